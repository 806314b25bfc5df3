package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"society-ticketing/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeGateway is the PaymentGateway backed by the Stripe API. Every call
// goes through a circuit breaker.
type StripeGateway struct {
	api     *client.API
	breaker *gobreaker.CircuitBreaker
}

// NewStripeGateway creates a Stripe gateway for the given secret key
func NewStripeGateway(secretKey string) *StripeGateway {
	return NewStripeGatewayWithClient(client.New(secretKey, nil))
}

// NewStripeGatewayWithClient wraps an existing API client.
func NewStripeGatewayWithClient(api *client.API) *StripeGateway {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Only server errors, rate limits and transport failures count against the breaker.
		IsSuccessful: func(err error) bool {
			var stripeErr *stripe.Error
			if errors.As(err, &stripeErr) {
				return stripeErr.HTTPStatusCode > 0 && stripeErr.HTTPStatusCode < http.StatusInternalServerError &&
					stripeErr.HTTPStatusCode != http.StatusTooManyRequests
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Payment gateway circuit breaker changed state")
		},
	})

	return &StripeGateway{api: api, breaker: breaker}
}

func (g *StripeGateway) call(fn func() (interface{}, error)) (interface{}, error) {
	result, err := g.breaker.Execute(fn)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return result, nil
}

// CreateCustomer creates a Stripe customer
func (g *StripeGateway) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	result, err := g.call(func() (interface{}, error) {
		params := &stripe.CustomerParams{
			Name:  stripe.String(name),
			Email: stripe.String(email),
		}
		params.Context = ctx
		return g.api.Customers.New(params)
	})
	if err != nil {
		return "", err
	}
	return result.(*stripe.Customer).ID, nil
}

// AttachPaymentMethod attaches the method and sets it as the invoice default
func (g *StripeGateway) AttachPaymentMethod(ctx context.Context, customerID, methodID string) error {
	_, err := g.call(func() (interface{}, error) {
		attach := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
		attach.Context = ctx
		if _, err := g.api.PaymentMethods.Attach(methodID, attach); err != nil {
			return nil, err
		}

		update := &stripe.CustomerParams{
			InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
				DefaultPaymentMethod: stripe.String(methodID),
			},
		}
		update.Context = ctx
		return g.api.Customers.Update(customerID, update)
	})
	return err
}

// CreatePaymentIntent creates a card payment intent, optionally transferred to a connected account
func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, p PaymentIntentParams) (*PaymentIntent, error) {
	result, err := g.call(func() (interface{}, error) {
		params := &stripe.PaymentIntentParams{
			Amount:             stripe.Int64(p.AmountMinor),
			Currency:           stripe.String(p.Currency),
			Customer:           stripe.String(p.CustomerID),
			PaymentMethod:      stripe.String(p.MethodID),
			PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		}
		if p.TransferDestination != "" {
			params.TransferData = &stripe.PaymentIntentTransferDataParams{
				Destination: stripe.String(p.TransferDestination),
			}
		}
		if p.IdempotencyKey != "" {
			params.SetIdempotencyKey(p.IdempotencyKey)
		}
		params.Context = ctx
		return g.api.PaymentIntents.New(params)
	})
	if err != nil {
		return nil, err
	}
	return toPaymentIntent(result.(*stripe.PaymentIntent)), nil
}

// RetrievePaymentIntent fetches the current state of a payment intent
func (g *StripeGateway) RetrievePaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	result, err := g.call(func() (interface{}, error) {
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		return g.api.PaymentIntents.Get(intentID, params)
	})
	if err != nil {
		return nil, err
	}
	return toPaymentIntent(result.(*stripe.PaymentIntent)), nil
}

// Confirm confirms a payment intent
func (g *StripeGateway) Confirm(ctx context.Context, intentID string) (*PaymentIntent, error) {
	result, err := g.call(func() (interface{}, error) {
		params := &stripe.PaymentIntentConfirmParams{}
		params.Context = ctx
		return g.api.PaymentIntents.Confirm(intentID, params)
	})
	if err != nil {
		return nil, err
	}
	return toPaymentIntent(result.(*stripe.PaymentIntent)), nil
}

// RetrieveCustomer fetches a customer and its default payment method
func (g *StripeGateway) RetrieveCustomer(ctx context.Context, customerID string) (*Customer, error) {
	result, err := g.call(func() (interface{}, error) {
		params := &stripe.CustomerParams{}
		params.Context = ctx
		return g.api.Customers.Get(customerID, params)
	})
	if err != nil {
		return nil, err
	}

	c := result.(*stripe.Customer)
	customer := &Customer{ID: c.ID, Name: c.Name, Email: c.Email}
	if c.InvoiceSettings != nil && c.InvoiceSettings.DefaultPaymentMethod != nil {
		customer.DefaultPaymentMethodID = c.InvoiceSettings.DefaultPaymentMethod.ID
	}
	return customer, nil
}

// RetrievePaymentMethod fetches the card brand and last four digits
func (g *StripeGateway) RetrievePaymentMethod(ctx context.Context, methodID string) (*CardDetails, error) {
	result, err := g.call(func() (interface{}, error) {
		params := &stripe.PaymentMethodParams{}
		params.Context = ctx
		return g.api.PaymentMethods.Get(methodID, params)
	})
	if err != nil {
		return nil, err
	}

	pm := result.(*stripe.PaymentMethod)
	details := &CardDetails{ID: pm.ID}
	if pm.Card != nil {
		details.Brand = string(pm.Card.Brand)
		details.Last4 = pm.Card.Last4
	}
	return details, nil
}

func toPaymentIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	return &PaymentIntent{ID: pi.ID, AmountMinor: pi.Amount, Status: string(pi.Status)}
}

// mapStripeError converts a Stripe or transport failure into a GatewayError
// with a message that can be shown to the buyer.
func mapStripeError(err error) error {
	var gatewayErr *models.GatewayError
	if errors.As(err, &gatewayErr) {
		return err
	}

	wrap := func(kind models.GatewayErrorKind, msg string) error {
		return &models.GatewayError{Kind: kind, UserMessage: msg, Err: err}
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return wrap(models.GatewayConnection, "API Connection Error: Check your network connection.")
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Type == stripe.ErrorTypeCard:
			return wrap(models.GatewayCard, fmt.Sprintf("Card Error: %s", stripeErr.Msg))
		case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
			return wrap(models.GatewayRateLimit, "Rate Limit Error: Too many requests made. Try again later.")
		case stripeErr.HTTPStatusCode == http.StatusUnauthorized:
			return wrap(models.GatewayAuthentication, "Authentication with the payment provider failed. Please contact support.")
		case stripeErr.Type == stripe.ErrorTypeInvalidRequest:
			return wrap(models.GatewayInvalidRequest, "The minimum checkout amount is £0.30.")
		}
		return wrap(models.GatewayGeneric, "Something went wrong. You were not charged. Please try again.")
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return wrap(models.GatewayConnection, "API Connection Error: Check your network connection.")
	}

	return wrap(models.GatewayGeneric, "Something went wrong. You were not charged. Please try again.")
}
