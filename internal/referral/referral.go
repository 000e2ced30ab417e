package referral

import (
	"context"
	"errors"
	"time"

	"github.com/spigell/mutual-match/internal/session"
)

var (
	ErrNotFound  = errors.New("referral code not found")
	ErrDuplicate = errors.New("a code with this name already exists")
	ErrInvalid   = errors.New("invalid referral code")
)

// Code is an influencer discount code. Codes are stored upper-cased and
// matched case-insensitively.
type Code struct {
	ID              string    `json:"id"`
	Code            string    `json:"code"`
	InfluencerName  string    `json:"influencer_name"`
	DiscountPercent int       `json:"discount_percent"`
	Active          bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Stats is a code with the usage of the sessions that quoted it.
type Stats struct {
	Code
	TotalUses    int   `json:"total_uses"`
	TotalPaid    int   `json:"total_paid"`
	TotalRevenue int64 `json:"total_revenue"`
}

// Update changes the non-nil fields of a code.
type Update struct {
	Code            *string `json:"code"`
	InfluencerName  *string `json:"influencer_name"`
	DiscountPercent *int    `json:"discount_percent"`
	Active          *bool   `json:"is_active"`
}

type Store interface {
	// ListCodes returns codes newest first.
	ListCodes(ctx context.Context) ([]Code, error)
	GetCode(ctx context.Context, id string) (*Code, error)
	// FindCode looks a code up by its upper-cased value.
	FindCode(ctx context.Context, code string) (*Code, error)
	CreateCode(ctx context.Context, c *Code) error
	UpdateCode(ctx context.Context, c *Code) error
	DeleteCode(ctx context.Context, id string) error
}

// UsageSource reports how sessions used referral codes.
type UsageSource interface {
	ReferralUsage(ctx context.Context) (map[string]session.ReferralUsage, error)
}
