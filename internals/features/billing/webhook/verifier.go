package webhook

import (
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"
)

var (
	ErrBadSignature = errors.New("invalid webhook signature")
	ErrMalformed    = errors.New("malformed webhook payload")
)

// Verifier authenticates a raw callback body against its signature header.
type Verifier interface {
	Verify(payload []byte, header string) (stripe.Event, error)
}

type StripeVerifier struct {
	Secret    string
	Tolerance time.Duration // zero uses the library default (5m)
}

func (v StripeVerifier) Verify(payload []byte, header string) (stripe.Event, error) {
	if v.Secret == "" {
		return stripe.Event{}, fmt.Errorf("%w: signing secret not configured", ErrBadSignature)
	}
	evt, err := stripewebhook.ConstructEventWithOptions(payload, header, v.Secret,
		stripewebhook.ConstructEventOptions{
			Tolerance:                v.Tolerance,
			IgnoreAPIVersionMismatch: true,
		})
	if err == nil {
		return evt, nil
	}
	switch {
	case errors.Is(err, stripewebhook.ErrNotSigned),
		errors.Is(err, stripewebhook.ErrInvalidHeader),
		errors.Is(err, stripewebhook.ErrNoValidSignature),
		errors.Is(err, stripewebhook.ErrTooOld):
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return stripe.Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
}
