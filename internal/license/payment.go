package license

import (
	"context"
	"errors"
)

// ErrPaymentRejected is returned when payment verification fails.
var ErrPaymentRejected = errors.New("payment rejected")

// PaymentVerifier confirms that a purchase has been paid for. A real
// deployment plugs a payment gateway in here.
type PaymentVerifier interface {
	// Verify returns ErrPaymentRejected when the payment token is not accepted.
	Verify(ctx context.Context, token string) error
}

// StubVerifier accepts exactly one fixed test phone number. It stands in
// for a payment gateway in test mode.
type StubVerifier struct {
	testPhone string
}

// NewStubVerifier creates a verifier that accepts only the given phone number.
func NewStubVerifier(testPhone string) *StubVerifier {
	return &StubVerifier{testPhone: testPhone}
}

// Verify checks the submitted phone number against the configured value.
func (v *StubVerifier) Verify(ctx context.Context, token string) error {
	if token != v.testPhone {
		return ErrPaymentRejected
	}
	return nil
}
