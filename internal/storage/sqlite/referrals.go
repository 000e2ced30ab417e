package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spigell/mutual-match/internal/referral"
)

var _ referral.Store = (*Store)(nil)

const codeColumns = `id, code, influencer_name, discount_percent, is_active, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCode(row scanner) (*referral.Code, error) {
	var (
		c                    referral.Code
		active               int
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.ID, &c.Code, &c.InfluencerName, &c.DiscountPercent, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	c.Active = active != 0
	return &c, nil
}

func (s *Store) ListCodes(ctx context.Context) ([]referral.Code, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+codeColumns+` FROM referral_codes ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing referral codes: %w", err)
	}
	defer rows.Close()

	codes := []referral.Code{}
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning referral code: %w", err)
		}
		codes = append(codes, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating referral codes: %w", err)
	}
	return codes, nil
}

func (s *Store) GetCode(ctx context.Context, id string) (*referral.Code, error) {
	return s.queryCode(ctx, `SELECT `+codeColumns+` FROM referral_codes WHERE id = ?`, id)
}

func (s *Store) FindCode(ctx context.Context, code string) (*referral.Code, error) {
	return s.queryCode(ctx, `SELECT `+codeColumns+` FROM referral_codes WHERE code = UPPER(?)`, code)
}

func (s *Store) queryCode(ctx context.Context, query string, arg string) (*referral.Code, error) {
	c, err := scanCode(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, referral.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading referral code: %w", err)
	}
	return c, nil
}

func (s *Store) CreateCode(ctx context.Context, c *referral.Code) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO referral_codes (`+codeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Code, c.InfluencerName, c.DiscountPercent, boolInt(c.Active), formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", referral.ErrDuplicate, c.Code)
	}
	if err != nil {
		return fmt.Errorf("inserting referral code: %w", err)
	}
	return nil
}

func (s *Store) UpdateCode(ctx context.Context, c *referral.Code) error {
	res, err := s.db.ExecContext(ctx, `UPDATE referral_codes
		SET code = ?, influencer_name = ?, discount_percent = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		c.Code, c.InfluencerName, c.DiscountPercent, boolInt(c.Active), formatTime(c.UpdatedAt), c.ID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", referral.ErrDuplicate, c.Code)
	}
	if err != nil {
		return fmt.Errorf("updating referral code: %w", err)
	}
	return expectOne(res, referral.ErrNotFound)
}

func (s *Store) DeleteCode(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM referral_codes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting referral code: %w", err)
	}
	return expectOne(res, referral.ErrNotFound)
}

func expectOne(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}
