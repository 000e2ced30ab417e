package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

// Metadata keys attached to every checkout session.
const (
	MetadataQuizID       = "quizId"
	MetadataReferralCode = "referralCode"
)

const (
	productName        = "Unlock All Quiz Results"
	productDescription = "See all your compatibility matches with your partner"
)

var _ Checkout = (*Stripe)(nil)

// Stripe creates hosted checkout sessions.
type Stripe struct {
	api     *client.API
	baseURL string
	logger  *zap.Logger
}

// NewStripe builds a checkout client. backends may be nil to talk to the
// public API.
func NewStripe(key, baseURL string, backends *stripe.Backends, log *zap.Logger) (*Stripe, error) {
	if key == "" {
		return nil, errors.New("stripe secret key is not configured")
	}
	if log == nil {
		log = zap.NewNop()
	}

	api := &client.API{}
	api.Init(key, backends)

	return &Stripe{api: api, baseURL: baseURL, logger: log}, nil
}

func (s *Stripe) Create(ctx context.Context, o Order) (string, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(o.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(productName),
						Description: stripe.String(productDescription),
					},
					UnitAmount: stripe.Int64(o.AmountCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(SuccessURL(s.baseURL, o.QuizID)),
		CancelURL:  stripe.String(CancelURL(s.baseURL, o.QuizID)),
	}
	params.Context = ctx
	params.AddMetadata(MetadataQuizID, o.QuizID)
	if o.ReferralCode != "" {
		params.AddMetadata(MetadataReferralCode, o.ReferralCode)
	}

	cs, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("creating stripe checkout session: %w", err)
	}
	if cs.URL == "" {
		return "", fmt.Errorf("stripe checkout session %s has no url", cs.ID)
	}

	s.logger.Debug("stripe checkout session created", zap.String("checkout_id", cs.ID))
	return cs.URL, nil
}
