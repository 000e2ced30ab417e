package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service struct {
	store  Store
	usage  UsageSource
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewService(store Store, usage UsageSource, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}

	return &Service{
		store:  store,
		usage:  usage,
		logger: log,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Normalize upper-cases a code and strips surrounding whitespace.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate returns the active code matching value case-insensitively.
func (s *Service) Validate(ctx context.Context, value string) (*Code, error) {
	value = Normalize(value)
	if value == "" {
		return nil, fmt.Errorf("%w: code is required", ErrInvalid)
	}

	code, err := s.store.FindCode(ctx, value)
	if err != nil {
		return nil, err
	}
	if !code.Active {
		return nil, fmt.Errorf("%w: %s is inactive", ErrNotFound, value)
	}
	return code, nil
}

// List returns every code with its usage, newest first.
func (s *Service) List(ctx context.Context) ([]Stats, error) {
	codes, err := s.store.ListCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing referral codes: %w", err)
	}

	usage, err := s.usage.ReferralUsage(ctx)
	if err != nil {
		return nil, err
	}

	stats := make([]Stats, 0, len(codes))
	for _, c := range codes {
		u := usage[Normalize(c.Code)]
		stats = append(stats, Stats{
			Code:         c,
			TotalUses:    u.Uses,
			TotalPaid:    u.PaidUses,
			TotalRevenue: u.RevenueCents,
		})
	}
	return stats, nil
}

func (s *Service) Create(ctx context.Context, value, influencer string, discount int) (*Code, error) {
	value = Normalize(value)
	influencer = strings.TrimSpace(influencer)
	if value == "" || influencer == "" {
		return nil, fmt.Errorf("%w: code and influencer name are required", ErrInvalid)
	}
	if err := validDiscount(discount); err != nil {
		return nil, err
	}

	if _, err := s.store.FindCode(ctx, value); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, value)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("checking referral code %s: %w", value, err)
	}

	now := s.now().UTC()
	code := &Code{
		ID:              s.newID(),
		Code:            value,
		InfluencerName:  influencer,
		DiscountPercent: discount,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateCode(ctx, code); err != nil {
		return nil, fmt.Errorf("creating referral code %s: %w", value, err)
	}

	s.logger.Info("referral code created", zap.String("code", value), zap.Int("discount_percent", discount))
	return code, nil
}

func (s *Service) Update(ctx context.Context, id string, upd Update) (*Code, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalid)
	}

	code, err := s.store.GetCode(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Code != nil {
		value := Normalize(*upd.Code)
		if value == "" {
			return nil, fmt.Errorf("%w: code must not be empty", ErrInvalid)
		}
		if value != code.Code {
			if _, err := s.store.FindCode(ctx, value); err == nil {
				return nil, fmt.Errorf("%w: %s", ErrDuplicate, value)
			} else if !errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("checking referral code %s: %w", value, err)
			}
		}
		code.Code = value
	}
	if upd.InfluencerName != nil {
		code.InfluencerName = strings.TrimSpace(*upd.InfluencerName)
	}
	if upd.DiscountPercent != nil {
		if err := validDiscount(*upd.DiscountPercent); err != nil {
			return nil, err
		}
		code.DiscountPercent = *upd.DiscountPercent
	}
	if upd.Active != nil {
		code.Active = *upd.Active
	}
	code.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateCode(ctx, code); err != nil {
		return nil, fmt.Errorf("updating referral code %s: %w", id, err)
	}
	return code, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if err := s.store.DeleteCode(ctx, id); err != nil {
		return fmt.Errorf("deleting referral code %s: %w", id, err)
	}
	s.logger.Info("referral code deleted", zap.String("id", id))
	return nil
}

func validDiscount(discount int) error {
	if discount < 0 || discount > 100 {
		return fmt.Errorf("%w: discount %d%% is outside 0..100", ErrInvalid, discount)
	}
	return nil
}

// Price applies a percent discount to base, rounding half up to whole cents.
// Discounts outside 0..100 are clamped.
func Price(baseCents int64, discount int) int64 {
	discount = min(max(discount, 0), 100)
	return (baseCents*int64(100-discount) + 50) / 100
}
