package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testCart() *Cart {
	host := &Society{ID: 1, Name: "chess", MemberDiscount: d("10"), MemberFee: d("8.00")}
	event := testEvent()
	event.Host = host
	return &Cart{
		ID: 1,
		TicketLines: []*TicketLine{
			{ID: 11, EventID: event.ID, Event: event, Quantities: Quantities{EarlyBird: 2}},
		},
		Memberships: []*Society{host},
	}
}

func TestCart_Summarize(t *testing.T) {
	cart := testCart()
	s := cart.Summarize(DiscountMap{11: d("0.30")})

	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"before discount", s.TotalTicketPriceBeforeDiscount, "6.00"},
		{"memberships", s.TotalMembershipPrice, "8.00"},
		{"saved", s.TotalSaved, "0.30"},
		{"total", s.TotalPrice, "13.70"},
	}
	for _, c := range checks {
		if !c.got.Equal(d(c.want)) {
			t.Errorf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}
	if s.Count != 3 || s.TicketCount != 2 {
		t.Errorf("Count = %d, TicketCount = %d, want 3 and 2", s.Count, s.TicketCount)
	}
	if s.AllItemsFree() {
		t.Error("AllItemsFree() = true for a paid cart")
	}
}

func TestCart_AllItemsFree(t *testing.T) {
	empty := (&Cart{}).Summarize(nil)
	if empty.AllItemsFree() {
		t.Error("an empty cart is not all free")
	}

	cart := testCart()
	cart.Memberships = nil
	cart.TicketLines[0].Event.EarlyBird.Price = decimal.Zero
	cart.TicketLines[0].Event.Standard.Price = decimal.Zero
	if !cart.Summarize(nil).AllItemsFree() {
		t.Error("AllItemsFree() = false for zero-priced tickets")
	}
}

func TestCart_LineHelpers(t *testing.T) {
	cart := testCart()

	if cart.LineForEvent(1) == nil || cart.LineForEvent(99) != nil {
		t.Error("LineForEvent() did not find lines by event")
	}
	if cart.QuantityInCart(1, TicketClassEarlyBird) != 2 || cart.QuantityInCart(99, TicketClassEarlyBird) != 0 {
		t.Error("QuantityInCart() wrong")
	}
	if !cart.HasMembership(1) {
		t.Error("HasMembership(1) = false")
	}

	cart.RemoveMembership(1)
	cart.RemoveLine(11)
	if !cart.IsEmpty() {
		t.Error("cart should be empty after removing everything")
	}
}

func TestTicketLine_UnitPrice(t *testing.T) {
	event := testEvent()

	early := &TicketLine{Event: event, Quantities: Quantities{EarlyBird: 3}}
	if !early.UnitPrice().Equal(d("3.00")) {
		t.Errorf("UnitPrice() = %s, want early bird price", early.UnitPrice())
	}

	mixed := &TicketLine{Event: event, Quantities: Quantities{EarlyBird: 3, Standard: 1}}
	if !mixed.UnitPrice().Equal(d("5.00")) {
		t.Errorf("UnitPrice() = %s, want standard price", mixed.UnitPrice())
	}
}

func TestDiscountMap_ValueScan(t *testing.T) {
	original := DiscountMap{11: d("0.30"), 4: d("1.125")}

	value, err := original.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}

	var decoded DiscountMap
	if err := decoded.Scan(value); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if !decoded.Equal(original) {
		t.Errorf("Scan(Value()) = %v, want %v", decoded, original)
	}

	if err := decoded.Scan(nil); err != nil || len(decoded) != 0 {
		t.Errorf("Scan(nil) = %v, %v; want empty map", decoded, err)
	}
	if err := decoded.Scan(`{"7":"0.50"}`); err != nil || !decoded.Get(7).Equal(d("0.5")) {
		t.Errorf("Scan(string) = %v, %v", decoded, err)
	}
	if err := decoded.Scan(42); err == nil {
		t.Error("Scan(int) should fail")
	}

	var nilMap DiscountMap
	if v, _ := nilMap.Value(); string(v.([]byte)) != "{}" {
		t.Errorf("nil Value() = %s, want {}", v)
	}
}

func TestNewHistoricalCart(t *testing.T) {
	now := time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)
	cart := testCart()
	discounts := DiscountMap{11: d("0.30")}
	summary := cart.Summarize(discounts)

	h := NewHistoricalCart(cart, summary, now)

	if len(h.TicketLines) != 1 || len(h.Memberships) != 1 {
		t.Fatalf("NewHistoricalCart() = %+v", h)
	}
	line := h.TicketLines[0]
	if line.HostSocietyID != 1 || line.EventName != "Blitz Night" || !line.Total().Equal(d("6.00")) {
		t.Errorf("historical line = %+v", line)
	}
	if !h.TotalPrice.Equal(d("13.70")) || h.Count != 3 {
		t.Errorf("historical totals = %s / %d", h.TotalPrice, h.Count)
	}

	// Later cart changes must not show through.
	cart.TicketLines[0].Quantities.EarlyBird = 9
	cart.TicketLines[0].Event.EarlyBird.Price = d("100")
	discounts[11] = d("5")
	if h.TicketLines[0].Quantities.EarlyBird != 2 || !h.TicketLines[0].EarlyBirdPrice.Equal(d("3.00")) {
		t.Error("historical line aliases the cart")
	}
	if !h.Discounts.Get(11).Equal(d("0.30")) {
		t.Error("historical discounts alias the summary")
	}
}

func TestSociety_AcceptsNewMembers(t *testing.T) {
	verified := PayoutDestination{AccountName: "Chess", AccountNumber: "12345678", SortCode: "108800", ProcessorAccountID: "acct_1"}

	tests := []struct {
		name    string
		society Society
		want    bool
	}{
		{"free membership", Society{MemberFee: decimal.Zero}, true},
		{"paid with verified payout", Society{MemberFee: d("5"), Payout: verified}, true},
		{"paid without processor account", Society{MemberFee: d("5"), Payout: PayoutDestination{AccountName: "Chess", AccountNumber: "1", SortCode: "2"}}, false},
		{"paid without anything", Society{MemberFee: d("5")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.society.AcceptsNewMembers(); got != tt.want {
				t.Errorf("AcceptsNewMembers() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSociety_Validate(t *testing.T) {
	tests := []struct {
		name    string
		society Society
		wantErr bool
	}{
		{"valid", Society{Name: "Chess", MemberDiscount: d("10")}, false},
		{"missing name", Society{MemberDiscount: d("10")}, true},
		{"discount above 100", Society{Name: "Chess", MemberDiscount: d("100.5")}, true},
		{"negative fee", Society{Name: "Chess", MemberFee: d("-1")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.society.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if rate := (&Society{MemberDiscount: d("12.5")}).DiscountRate(); !rate.Equal(d("0.125")) {
		t.Errorf("DiscountRate() = %s, want 0.125", rate)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"validation", NewValidationError(CodeOutOfStock, "", "sold out"), KindValidation},
		{"oversell", &OversellError{EventID: 1}, KindOversell},
		{"gateway", &GatewayError{Kind: GatewayCard}, KindGateway},
		{"payout", &PayoutError{SellerID: 1}, KindPayout},
		{"not found", ErrEventNotFound, KindNotFound},
		{"other", errString("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

type errString string

func (e errString) Error() string { return string(e) }
