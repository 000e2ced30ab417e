package payment

import (
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/stripe/stripe-go/v76/webhook"
)

// ErrSignature is returned when a webhook payload cannot be verified.
var ErrSignature = errors.New("invalid webhook signature")

const EventCheckoutCompleted = "checkout.session.completed"

// CompletedCheckout is the part of a Stripe checkout session the unlock
// needs.
type CompletedCheckout struct {
	ID            string            `json:"id"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

type Event struct {
	ID   string
	Type string
	// Checkout is set for checkout.session.completed events only.
	Checkout *CompletedCheckout
}

// ParseWebhook verifies the signature header against secret and decodes the
// event.
func ParseWebhook(payload []byte, signature, secret string) (*Event, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: webhook secret is not configured", ErrSignature)
	}
	if signature == "" {
		return nil, fmt.Errorf("%w: missing signature header", ErrSignature)
	}

	ev, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignature, err)
	}

	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if out.Type != EventCheckoutCompleted || ev.Data == nil {
		return out, nil
	}

	checkout, err := decodeCheckout(ev.Data.Object)
	if err != nil {
		return nil, err
	}
	out.Checkout = checkout
	return out, nil
}

func decodeCheckout(object map[string]interface{}) (*CompletedCheckout, error) {
	var checkout CompletedCheckout
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &checkout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating checkout decoder: %w", err)
	}
	if err := decoder.Decode(object); err != nil {
		return nil, fmt.Errorf("decoding checkout session: %w", err)
	}
	return &checkout, nil
}
