package models

import (
	"errors"
	"fmt"
)

// Common errors used throughout the application
var (
	ErrEventNotFound    = errors.New("event not found")
	ErrSocietyNotFound  = errors.New("society not found")
	ErrStudentNotFound  = errors.New("student not found")
	ErrCartLineNotFound = errors.New("cart line not found")
	ErrOrderNotFound    = errors.New("order not found")

	// ErrDuplicateOrderNumber means the generated order number is taken.
	ErrDuplicateOrderNumber = errors.New("order number already exists")
)

// ErrorKind classifies failures so callers can pick a response without
// inspecting concrete error types.
type ErrorKind string

const (
	KindValidation ErrorKind = "VALIDATION_ERROR"
	KindGateway    ErrorKind = "GATEWAY_ERROR"
	KindOversell   ErrorKind = "OVERSELL_CONFLICT"
	KindPayout     ErrorKind = "PAYOUT_FAILURE"
	KindNotFound   ErrorKind = "NOT_FOUND"
	KindInternal   ErrorKind = "INTERNAL_ERROR"
)

// Validation codes carried by ValidationError.
const (
	CodeOutOfStock         = "OUT_OF_STOCK"
	CodeNotReleased        = "NOT_RELEASED"
	CodeInvalidQuantity    = "INVALID_QUANTITY"
	CodeEventNotActive     = "EVENT_NOT_ACTIVE"
	CodeAlreadyMember      = "ALREADY_MEMBER"
	CodeMembershipInCart   = "MEMBERSHIP_IN_CART"
	CodeMembershipClosed   = "MEMBERSHIP_CLOSED"
	CodeMembershipNotFound = "MEMBERSHIP_NOT_IN_CART"
	CodeEmptyCart          = "EMPTY_CART"
	CodeInvalidAddress     = "INVALID_ADDRESS"
	CodeMissingPayment     = "MISSING_PAYMENT_METHOD"
	CodeInvalidEvent       = "INVALID_EVENT"
	CodeInvalidSociety     = "INVALID_SOCIETY"
	CodeCapacityBelowSold  = "CAPACITY_BELOW_SOLD"
	CodeEventCancelled     = "EVENT_ALREADY_CANCELLED"
	CodeCartChanged        = "CART_CHANGED"
)

// ValidationError is a rejected mutation. The caller's state is unchanged.
type ValidationError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NewValidationError creates a validation error with the given code.
func NewValidationError(code, field, message string) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: message}
}

// NewCartChangedError reports a cart modified while its checkout was settling.
func NewCartChangedError() *ValidationError {
	return NewValidationError(CodeCartChanged, "cart", "Your cart changed during checkout. Please review it and try again.")
}

// OversellError reports that settlement found fewer units than the cart holds.
type OversellError struct {
	EventID   int64
	Class     TicketClass
	Requested int
	Available int
}

func (e *OversellError) Error() string {
	return fmt.Sprintf("oversell conflict on event %d (%s): requested %d, available %d",
		e.EventID, e.Class, e.Requested, e.Available)
}

// GatewayErrorKind is the payment processor failure category.
type GatewayErrorKind string

const (
	GatewayCard           GatewayErrorKind = "card"
	GatewayRateLimit      GatewayErrorKind = "rate_limit"
	GatewayInvalidRequest GatewayErrorKind = "invalid_request"
	GatewayAuthentication GatewayErrorKind = "authentication"
	GatewayConnection     GatewayErrorKind = "connection"
	GatewayGeneric        GatewayErrorKind = "generic"
)

// GatewayError wraps a payment processor failure together with a message
// that is safe to show to the buyer.
type GatewayError struct {
	Kind        GatewayErrorKind
	UserMessage string
	Err         error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment gateway %s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("payment gateway %s error", e.Kind)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// PayoutError is a failed transfer to a single seller.
type PayoutError struct {
	SellerID    int64
	AmountMinor int64
	Err         error
}

func (e *PayoutError) Error() string {
	return fmt.Sprintf("payout of %d to society %d failed: %v", e.AmountMinor, e.SellerID, e.Err)
}

func (e *PayoutError) Unwrap() error { return e.Err }

// KindOf returns the taxonomy bucket for err.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var validationErr *ValidationError
	var oversellErr *OversellError
	var gatewayErr *GatewayError
	var payoutErr *PayoutError

	switch {
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &oversellErr):
		return KindOversell
	case errors.As(err, &gatewayErr):
		return KindGateway
	case errors.As(err, &payoutErr):
		return KindPayout
	case errors.Is(err, ErrEventNotFound),
		errors.Is(err, ErrSocietyNotFound),
		errors.Is(err, ErrStudentNotFound),
		errors.Is(err, ErrCartLineNotFound),
		errors.Is(err, ErrOrderNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

// IsValidation reports whether err is a ValidationError, optionally with one
// of the given codes.
func IsValidation(err error, codes ...string) bool {
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		return false
	}
	if len(codes) == 0 {
		return true
	}
	for _, code := range codes {
		if validationErr.Code == code {
			return true
		}
	}
	return false
}
