package models

// Student is the buyer, with the relationships the pricing rules read.
type Student struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`

	Memberships      IDSet `json:"-"` // societies the student is a regular member of
	PurchasedEvents  IDSet `json:"-"`
	DiscountedEvents IDSet `json:"-"`
	SavedEvents      IDSet `json:"-"`
}

// IsRegularMember reports whether the student is a regular member of the society.
func (s *Student) IsRegularMember(societyID int64) bool {
	return s.Memberships.Has(societyID)
}

// HasDiscountFor reports whether the student already bought the event with a discount.
func (s *Student) HasDiscountFor(eventID int64) bool {
	return s.DiscountedEvents.Has(eventID)
}

// HasPurchased reports whether the student has bought tickets for the event.
func (s *Student) HasPurchased(eventID int64) bool {
	return s.PurchasedEvents.Has(eventID)
}
