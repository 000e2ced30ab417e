package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/mutual-match/internal/catalog"
	"github.com/spigell/mutual-match/internal/logger"
	"github.com/spigell/mutual-match/internal/matching"
	"github.com/spigell/mutual-match/internal/utils"
)

type CreateRequest struct {
	PartnerAName    string `json:"partnerAName"`
	PartnerAAnatomy string `json:"partnerAAnatomy"`
	PartnerBName    string `json:"partnerBName"`
	PartnerBAnatomy string `json:"partnerBAnatomy"`
}

// SubmitRequest is one partner's submission. Name is only honoured for
// partner B, who may correct the name partner A typed in.
type SubmitRequest struct {
	Partner Partner
	Answers matching.Answers
	Email   string
	Name    string
}

// Recorder receives submission events. metrics.Metrics satisfies it.
type Recorder interface {
	ObserveSubmission(partner string, answered int)
}

type Service struct {
	store    Store
	catalog  *catalog.Catalog
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewService(store Store, c *catalog.Catalog, recorder Recorder, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if c == nil {
		c = catalog.Default()
	}

	return &Service{
		store:    store,
		catalog:  c,
		recorder: recorder,
		logger:   log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	nameA := utils.Truncate(req.PartnerAName, MaxNameLength)
	nameB := utils.Truncate(req.PartnerBName, MaxNameLength)
	if nameA == "" || nameB == "" {
		return nil, fmt.Errorf("%w: both names are required", ErrInvalidRequest)
	}

	sess := &Session{
		ID:              s.newID(),
		PartnerAName:    nameA,
		PartnerBName:    nameB,
		PartnerAAnatomy: anatomyOrDefault(req.PartnerAAnatomy, DefaultAnatomyA),
		PartnerBAnatomy: anatomyOrDefault(req.PartnerBAnatomy, DefaultAnatomyB),
		CreatedAt:       s.now().UTC(),
	}

	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("creating quiz session: %w", err)
	}

	logger.WithFields(s.logger, logger.QuizFields(sess.ID, "")...).Info("quiz session created")
	return sess, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: quiz id is required", ErrInvalidRequest)
	}

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading quiz session %q: %w", id, err)
	}
	return sess, nil
}

func (s *Service) Status(ctx context.Context, id string) (Status, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return Status{}, err
	}
	return sess.Status(), nil
}

// Submit stores the answers of one partner. Ids outside the catalog are
// dropped before storing.
func (s *Service) Submit(ctx context.Context, id string, req SubmitRequest) error {
	partner, answers := req.Partner, req.Answers
	if answers == nil {
		return fmt.Errorf("%w: answers are required", ErrInvalidRequest)
	}

	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := sess.CanSubmit(partner); err != nil {
		return err
	}

	sub := Submission{
		Partner: partner,
		Answers: answers.Only(s.catalog),
		Email:   utils.NormalizeEmail(req.Email),
	}
	if partner == PartnerB {
		sub.Name = utils.Truncate(req.Name, MaxNameLength)
	}

	if err := s.store.SaveAnswers(ctx, sess.ID, sub); err != nil {
		return fmt.Errorf("saving answers: %w", err)
	}

	if s.recorder != nil {
		s.recorder.ObserveSubmission(string(partner), len(sub.Answers))
	}

	logger.WithFields(s.logger, logger.QuizFields(sess.ID, string(partner))...).Info(
		"answers submitted",
		zap.Int("answered", len(sub.Answers)),
		zap.Int("dropped", len(answers)-len(sub.Answers)),
	)
	return nil
}

// AttachReferral records the referral code quoted at checkout.
func (s *Service) AttachReferral(ctx context.Context, id, code string, discount int) error {
	if err := s.store.AttachReferral(ctx, id, strings.ToUpper(strings.TrimSpace(code)), discount); err != nil {
		return fmt.Errorf("attaching referral to %q: %w", id, err)
	}
	return nil
}

// MarkPaid unlocks the session. Repeated calls return ErrAlreadyPaid.
func (s *Service) MarkPaid(ctx context.Context, id string, p Payment) error {
	p.ReferralCode = strings.ToUpper(strings.TrimSpace(p.ReferralCode))
	if err := s.store.MarkPaid(ctx, id, p); err != nil {
		return fmt.Errorf("marking %q paid: %w", id, err)
	}

	logger.WithFields(s.logger, logger.QuizFields(id, "")...).Info(
		"payment completed",
		zap.Int64("amount_cents", p.AmountCents),
		zap.String("referral_code", p.ReferralCode),
	)
	return nil
}

func (s *Service) ReferralUsage(ctx context.Context) (map[string]ReferralUsage, error) {
	usage, err := s.store.ReferralUsage(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading referral usage: %w", err)
	}
	return usage, nil
}

func anatomyOrDefault(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	return utils.Truncate(value, MaxNameLength)
}
