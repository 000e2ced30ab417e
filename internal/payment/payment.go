package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/mutual-match/internal/logger"
	"github.com/spigell/mutual-match/internal/referral"
	"github.com/spigell/mutual-match/internal/session"
)

var ErrIncomplete = errors.New("both partners must complete the quiz first")

const (
	DefaultPriceCents = 999
	DefaultCurrency   = "usd"
)

type Config struct {
	PriceCents int64  `mapstructure:"price-cents"`
	Currency   string `mapstructure:"currency"`
	BaseURL    string `mapstructure:"base-url"`
}

func DefaultConfig() Config {
	return Config{
		PriceCents: DefaultPriceCents,
		Currency:   DefaultCurrency,
		BaseURL:    "http://localhost:3000",
	}
}

// Order is what a checkout provider charges for.
type Order struct {
	QuizID       string
	ReferralCode string
	AmountCents  int64
	Currency     string
}

// Checkout creates a hosted payment page and returns its URL.
type Checkout interface {
	Create(ctx context.Context, o Order) (string, error)
}

type Sessions interface {
	Get(ctx context.Context, id string) (*session.Session, error)
	AttachReferral(ctx context.Context, id, code string, discount int) error
	MarkPaid(ctx context.Context, id string, p session.Payment) error
}

type Referrals interface {
	Validate(ctx context.Context, code string) (*referral.Code, error)
}

type Recorder interface {
	ObservePayment(referral bool, amountCents int64)
}

// Quote is the outcome of a checkout request.
type Quote struct {
	URL          string `json:"url"`
	AmountCents  int64  `json:"amountCents"`
	Discount     int    `json:"discount"`
	ReferralCode string `json:"referralCode,omitempty"`
	// Free is set when the discount covers the whole price and the session
	// was unlocked without a payment provider.
	Free bool `json:"free"`
}

type Service struct {
	cfg       Config
	sessions  Sessions
	referrals Referrals
	checkout  Checkout
	recorder  Recorder
	logger    *zap.Logger
}

func NewService(cfg Config, sessions Sessions, referrals Referrals, checkout Checkout, recorder Recorder, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}

	return &Service{
		cfg:       cfg,
		sessions:  sessions,
		referrals: referrals,
		checkout:  checkout,
		recorder:  recorder,
		logger:    log,
	}
}

// Checkout prices the unlock for a completed, unpaid session and starts a
// payment. Unknown or inactive referral codes are ignored and the full price
// is charged.
func (s *Service) Checkout(ctx context.Context, quizID, code string) (Quote, error) {
	sess, err := s.sessions.Get(ctx, quizID)
	if err != nil {
		return Quote{}, err
	}
	if !sess.Complete() {
		return Quote{}, fmt.Errorf("%w: quiz %s", ErrIncomplete, sess.ID)
	}
	if sess.Paid {
		return Quote{}, fmt.Errorf("%w: quiz %s", session.ErrAlreadyPaid, sess.ID)
	}

	log := logger.WithFields(s.logger, logger.QuizFields(sess.ID, "")...)

	quote := Quote{AmountCents: s.cfg.PriceCents}
	if code = referral.Normalize(code); code != "" && s.referrals != nil {
		found, err := s.referrals.Validate(ctx, code)
		switch {
		case err == nil:
			quote.ReferralCode = found.Code
			quote.Discount = found.DiscountPercent
			quote.AmountCents = referral.Price(s.cfg.PriceCents, found.DiscountPercent)
		case errors.Is(err, referral.ErrNotFound), errors.Is(err, referral.ErrInvalid):
			log.Warn("ignoring referral code", zap.String("referral_code", code), zap.Error(err))
		default:
			return Quote{}, fmt.Errorf("validating referral code: %w", err)
		}
	}

	if quote.ReferralCode != "" {
		if err := s.sessions.AttachReferral(ctx, sess.ID, quote.ReferralCode, quote.Discount); err != nil {
			return Quote{}, err
		}
	}

	if quote.AmountCents == 0 {
		return s.unlockFree(ctx, sess.ID, quote)
	}

	if s.checkout == nil {
		return Quote{}, errors.New("payments are not configured")
	}

	url, err := s.checkout.Create(ctx, Order{
		QuizID:       sess.ID,
		ReferralCode: quote.ReferralCode,
		AmountCents:  quote.AmountCents,
		Currency:     s.cfg.Currency,
	})
	if err != nil {
		return Quote{}, fmt.Errorf("creating checkout: %w", err)
	}
	quote.URL = url

	log.Info("checkout created",
		zap.Int64("amount_cents", quote.AmountCents),
		zap.String("referral_code", quote.ReferralCode),
	)
	return quote, nil
}

func (s *Service) unlockFree(ctx context.Context, quizID string, quote Quote) (Quote, error) {
	err := s.sessions.MarkPaid(ctx, quizID, session.Payment{
		PaymentID:    "referral:" + quote.ReferralCode,
		ReferralCode: quote.ReferralCode,
	})
	if err != nil {
		return Quote{}, err
	}
	if s.recorder != nil {
		s.recorder.ObservePayment(true, 0)
	}

	quote.Free = true
	quote.URL = SuccessURL(s.cfg.BaseURL, quizID)
	return quote, nil
}

// Complete applies a finished checkout. A checkout without a quiz id is
// ignored and a replay for an already paid session is not an error.
func (s *Service) Complete(ctx context.Context, c *CompletedCheckout) error {
	quizID := strings.TrimSpace(c.Metadata[MetadataQuizID])
	if quizID == "" {
		s.logger.Warn("completed checkout without quiz id", zap.String("checkout_id", c.ID))
		return nil
	}

	code := c.Metadata[MetadataReferralCode]
	err := s.sessions.MarkPaid(ctx, quizID, session.Payment{
		PaymentID:    c.ID,
		ReferralCode: code,
		AmountCents:  c.AmountTotal,
	})
	if errors.Is(err, session.ErrAlreadyPaid) {
		logger.WithFields(s.logger, logger.QuizFields(quizID, "")...).Debug(
			"checkout already applied", zap.String("checkout_id", c.ID))
		return nil
	}
	if err != nil {
		return err
	}

	if s.recorder != nil {
		s.recorder.ObservePayment(code != "", c.AmountTotal)
	}
	return nil
}

func SuccessURL(base, quizID string) string {
	return resultsURL(base, quizID) + "?success=true"
}

func CancelURL(base, quizID string) string {
	return resultsURL(base, quizID) + "?canceled=true"
}

func resultsURL(base, quizID string) string {
	return strings.TrimRight(base, "/") + "/results/" + quizID
}
