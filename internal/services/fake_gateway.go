package services

import (
	"context"
	"fmt"
	"sync"

	"society-ticketing/internal/models"
)

var fakeCardBrands = []string{"visa", "mastercard", "amex", "unionpay"}

// FakeGateway is an in-process PaymentGateway for development and tests.
// Its customers carry the fake prefix, so no payouts are ever sent for them.
type FakeGateway struct {
	mu        sync.Mutex
	rnd       models.RandomSource
	seq       int
	customers map[string]*Customer
	methods   map[string]*CardDetails
	failures  map[string]error
	// applied methods take effect before returning their failure, like a
	// processor timing out after doing the work.
	applied   map[string]bool
	intents   []PaymentIntentParams
	byID      map[string]*PaymentIntent
	byKey     map[string]string
	confirmed []string
}

// NewFakeGateway creates a fake gateway drawing card metadata from rnd
func NewFakeGateway(rnd models.RandomSource) *FakeGateway {
	return &FakeGateway{
		rnd:       rnd,
		customers: make(map[string]*Customer),
		methods:   make(map[string]*CardDetails),
		failures:  make(map[string]error),
		applied:   make(map[string]bool),
		byID:      make(map[string]*PaymentIntent),
		byKey:     make(map[string]string),
	}
}

// FailOn makes the named method return err. A nil err clears it.
func (g *FakeGateway) FailOn(method string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failures, method)
		return
	}
	g.failures[method] = err
}

// FailAfterApplying makes the named method do its work and then return err.
// A nil err clears it.
func (g *FakeGateway) FailAfterApplying(method string, err error) {
	g.FailOn(method, err)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.applied[method] = err != nil
}

// failure returns the forced error for method and whether the call should
// still take effect.
func (g *FakeGateway) failure(method string) (error, bool) {
	err := g.failures[method]
	return err, err == nil || g.applied[method]
}

func (g *FakeGateway) nextID(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_%06d", prefix, g.seq)
}

func (g *FakeGateway) CreateCustomer(_ context.Context, name, email string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failures["CreateCustomer"]; err != nil {
		return "", err
	}
	id := g.nextID(fakeCustomerPrefix + "_cus")
	g.customers[id] = &Customer{ID: id, Name: name, Email: email}
	return id, nil
}

func (g *FakeGateway) AttachPaymentMethod(_ context.Context, customerID, methodID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failures["AttachPaymentMethod"]; err != nil {
		return err
	}
	customer, ok := g.customers[customerID]
	if !ok {
		return &models.GatewayError{Kind: models.GatewayInvalidRequest, UserMessage: "No such customer.",
			Err: fmt.Errorf("unknown customer %s", customerID)}
	}
	customer.DefaultPaymentMethodID = methodID
	if _, ok := g.methods[methodID]; !ok {
		g.methods[methodID] = &CardDetails{
			ID:    methodID,
			Brand: fakeCardBrands[g.rnd.Intn(len(fakeCardBrands))],
			Last4: fmt.Sprintf("%04d", g.rnd.Intn(10000)),
		}
	}
	return nil
}

func (g *FakeGateway) CreatePaymentIntent(_ context.Context, p PaymentIntentParams) (*PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failures["CreatePaymentIntent"]; err != nil {
		return nil, err
	}
	if id, ok := g.byKey[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		out := *g.byID[id]
		return &out, nil
	}

	intent := &PaymentIntent{ID: g.nextID("fake_pi"), AmountMinor: p.AmountMinor, Status: "requires_confirmation"}
	g.intents = append(g.intents, p)
	g.byID[intent.ID] = intent
	if p.IdempotencyKey != "" {
		g.byKey[p.IdempotencyKey] = intent.ID
	}
	out := *intent
	return &out, nil
}

func (g *FakeGateway) RetrievePaymentIntent(_ context.Context, intentID string) (*PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failures["RetrievePaymentIntent"]; err != nil {
		return nil, err
	}
	intent, ok := g.byID[intentID]
	if !ok {
		return nil, &models.GatewayError{Kind: models.GatewayInvalidRequest, UserMessage: "No such payment intent.",
			Err: fmt.Errorf("unknown payment intent %s", intentID)}
	}
	out := *intent
	return &out, nil
}

func (g *FakeGateway) Confirm(_ context.Context, intentID string) (*PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	err, apply := g.failure("Confirm")
	intent, ok := g.byID[intentID]
	if !ok {
		return nil, &models.GatewayError{Kind: models.GatewayInvalidRequest, UserMessage: "No such payment intent.",
			Err: fmt.Errorf("unknown payment intent %s", intentID)}
	}
	if apply {
		if !intent.Confirmable() {
			return nil, &models.GatewayError{Kind: models.GatewayInvalidRequest, UserMessage: "Payment already processed.",
				Err: fmt.Errorf("payment intent %s is %s", intentID, intent.Status)}
		}
		intent.Status = IntentSucceeded
		g.confirmed = append(g.confirmed, intentID)
	}
	if err != nil {
		return nil, err
	}
	out := *intent
	return &out, nil
}

func (g *FakeGateway) RetrieveCustomer(_ context.Context, customerID string) (*Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failures["RetrieveCustomer"]; err != nil {
		return nil, err
	}
	customer, ok := g.customers[customerID]
	if !ok {
		return nil, &models.GatewayError{Kind: models.GatewayInvalidRequest, UserMessage: "No such customer.",
			Err: fmt.Errorf("unknown customer %s", customerID)}
	}
	out := *customer
	return &out, nil
}

func (g *FakeGateway) RetrievePaymentMethod(_ context.Context, methodID string) (*CardDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failures["RetrievePaymentMethod"]; err != nil {
		return nil, err
	}
	card, ok := g.methods[methodID]
	if !ok {
		return nil, &models.GatewayError{Kind: models.GatewayInvalidRequest, UserMessage: "No such payment method.",
			Err: fmt.Errorf("unknown payment method %s", methodID)}
	}
	out := *card
	return &out, nil
}

// Intents returns every payment intent requested so far.
func (g *FakeGateway) Intents() []PaymentIntentParams {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]PaymentIntentParams(nil), g.intents...)
}

// Confirmed returns the ids of confirmed intents.
func (g *FakeGateway) Confirmed() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.confirmed...)
}
