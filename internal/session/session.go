package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/mutual-match/internal/matching"
)

var (
	ErrNotFound         = errors.New("quiz session not found")
	ErrAlreadySubmitted = errors.New("partner has already submitted")
	ErrPartnerAPending  = errors.New("partner A has not completed yet")
	ErrAlreadyPaid      = errors.New("quiz session is already paid")
	ErrInvalidRequest   = errors.New("invalid request")
)

const (
	DefaultAnatomyA = "female"
	DefaultAnatomyB = "male"

	// MaxNameLength is counted in runes.
	MaxNameLength = 50
)

type Partner string

const (
	PartnerA Partner = "A"
	PartnerB Partner = "B"
)

func ParsePartner(s string) (Partner, error) {
	switch Partner(strings.ToUpper(strings.TrimSpace(s))) {
	case PartnerA:
		return PartnerA, nil
	case PartnerB:
		return PartnerB, nil
	default:
		return "", fmt.Errorf("%w: unknown partner %q", ErrInvalidRequest, s)
	}
}

// Session is one couple's quiz. Answers stay nil until the partner submits.
type Session struct {
	ID              string           `json:"id"`
	PartnerAName    string           `json:"partnerAName"`
	PartnerBName    string           `json:"partnerBName"`
	PartnerAAnatomy string           `json:"partnerAAnatomy"`
	PartnerBAnatomy string           `json:"partnerBAnatomy"`
	AnswersA        matching.Answers `json:"-"`
	AnswersB        matching.Answers `json:"-"`
	EmailA          string           `json:"-"`
	EmailB          string           `json:"-"`
	Paid            bool             `json:"paid"`
	PaymentID       string           `json:"-"`
	ReferralCode    string           `json:"-"`
	DiscountApplied int              `json:"-"`
	AmountPaid      int64            `json:"-"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// Answers returns the answers of p, nil when p has not submitted.
func (s *Session) Answers(p Partner) matching.Answers {
	if p == PartnerB {
		return s.AnswersB
	}
	return s.AnswersA
}

func (s *Session) Submitted(p Partner) bool {
	return s.Answers(p) != nil
}

// Complete reports whether both partners have submitted.
func (s *Session) Complete() bool {
	return s.Submitted(PartnerA) && s.Submitted(PartnerB)
}

// CanSubmit enforces the submission order: A once, then B once.
func (s *Session) CanSubmit(p Partner) error {
	if s.Submitted(p) {
		return fmt.Errorf("%w: partner %s", ErrAlreadySubmitted, p)
	}
	if p == PartnerB && !s.Submitted(PartnerA) {
		return ErrPartnerAPending
	}
	return nil
}

// Status is the public view of a session. It never carries answers.
type Status struct {
	ID              string    `json:"id"`
	PartnerAName    string    `json:"partnerAName"`
	PartnerBName    string    `json:"partnerBName"`
	PartnerAAnatomy string    `json:"partnerAAnatomy"`
	PartnerBAnatomy string    `json:"partnerBAnatomy"`
	PartnerADone    bool      `json:"partnerADone"`
	PartnerBDone    bool      `json:"partnerBDone"`
	Paid            bool      `json:"paid"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (s *Session) Status() Status {
	return Status{
		ID:              s.ID,
		PartnerAName:    s.PartnerAName,
		PartnerBName:    s.PartnerBName,
		PartnerAAnatomy: s.PartnerAAnatomy,
		PartnerBAnatomy: s.PartnerBAnatomy,
		PartnerADone:    s.Submitted(PartnerA),
		PartnerBDone:    s.Submitted(PartnerB),
		Paid:            s.Paid,
		CreatedAt:       s.CreatedAt,
	}
}

// Submission is one partner's answers as stored.
type Submission struct {
	Partner Partner
	Answers matching.Answers
	Email   string
	// Name replaces partner B's display name when set. Always empty for A.
	Name string
}

// Payment describes a completed checkout.
type Payment struct {
	PaymentID    string
	ReferralCode string
	AmountCents  int64
}

// ReferralUsage aggregates the sessions that used a referral code.
type ReferralUsage struct {
	Code         string `json:"code"`
	Uses         int    `json:"total_uses"`
	PaidUses     int    `json:"total_paid"`
	RevenueCents int64  `json:"total_revenue"`
}

// Store persists sessions. Implementations apply SaveAnswers and MarkPaid
// atomically, so concurrent writers cannot overwrite a submission or pay
// twice.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	// SaveAnswers returns ErrNotFound, ErrAlreadySubmitted or
	// ErrPartnerAPending when the submission is not allowed.
	SaveAnswers(ctx context.Context, id string, sub Submission) error
	// AttachReferral records the code and discount quoted at checkout.
	AttachReferral(ctx context.Context, id, code string, discount int) error
	// MarkPaid returns ErrAlreadyPaid when the session was paid before.
	MarkPaid(ctx context.Context, id string, p Payment) error
	// ReferralUsage is keyed by upper-cased referral code.
	ReferralUsage(ctx context.Context) (map[string]ReferralUsage, error)
}

// ClassifyRejected explains why a conditional answer write did not apply,
// given the session as re-read after the write.
func ClassifyRejected(s *Session, p Partner) error {
	if s == nil {
		return ErrNotFound
	}
	if err := s.CanSubmit(p); err != nil {
		return err
	}
	return fmt.Errorf("%w: partner %s", ErrAlreadySubmitted, p)
}
