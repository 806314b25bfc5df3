package models

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// IDSet is an unordered set of entity ids.
type IDSet map[int64]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Add(id int64) {
	s[id] = struct{}{}
}

func (s IDSet) Remove(id int64) {
	delete(s, id)
}

// Slice returns the ids in ascending order.
func (s IDSet) Slice() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy.
func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// MemberRole names the collection a student belongs to in a society.
type MemberRole string

const (
	RoleRegular    MemberRole = "regular"
	RoleCommittee  MemberRole = "committee"
	RoleFollower   MemberRole = "follower"
	RoleSubscriber MemberRole = "subscriber"
)

// PayoutDestination is where a society receives its share of payments.
type PayoutDestination struct {
	AccountName        string `json:"account_name" db:"account_name"`
	AccountNumber      string `json:"-" db:"account_number"`
	SortCode           string `json:"-" db:"sort_code"`
	ProcessorAccountID string `json:"-" db:"processor_account_id"`
}

// HasBankDetails reports whether the bank fields are all filled in.
func (d PayoutDestination) HasBankDetails() bool {
	return strings.TrimSpace(d.AccountName) != "" &&
		strings.TrimSpace(d.AccountNumber) != "" &&
		strings.TrimSpace(d.SortCode) != ""
}

// Verified reports whether transfers can be sent to this destination.
func (d PayoutDestination) Verified() bool {
	return d.HasBankDetails() && strings.TrimSpace(d.ProcessorAccountID) != ""
}

// Society represents a student society selling tickets and memberships
type Society struct {
	ID             int64             `json:"id"`
	Name           string            `json:"name"`
	Email          string            `json:"email,omitempty"`
	MemberDiscount decimal.Decimal   `json:"member_discount"` // percent, 0-100
	MemberFee      decimal.Decimal   `json:"member_fee"`
	Payout         PayoutDestination `json:"payout"`
	CreatedAt      time.Time         `json:"created_at"`

	RegularMembers   IDSet `json:"-"`
	CommitteeMembers IDSet `json:"-"`
	Followers        IDSet `json:"-"`
	Subscribers      IDSet `json:"-"`
}

var hundred = decimal.NewFromInt(100)

// Validate validates the society data
func (s *Society) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return NewValidationError(CodeInvalidSociety, "name", "name is required")
	}
	if s.MemberDiscount.IsNegative() || s.MemberDiscount.GreaterThan(hundred) {
		return NewValidationError(CodeInvalidSociety, "member_discount", "member discount must be between 0 and 100")
	}
	if s.MemberFee.IsNegative() {
		return NewValidationError(CodeInvalidSociety, "member_fee", "member fee cannot be negative")
	}
	return nil
}

// AcceptsNewMembers is true when membership is free or the society can be paid.
func (s *Society) AcceptsNewMembers() bool {
	return s.MemberFee.IsZero() || s.Payout.Verified()
}

// DiscountRate is the member discount as a fraction in [0,1].
func (s *Society) DiscountRate() decimal.Decimal {
	return s.MemberDiscount.Shift(-2)
}
