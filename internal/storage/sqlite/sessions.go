package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/mutual-match/internal/logger"
	"github.com/spigell/mutual-match/internal/matching"
	"github.com/spigell/mutual-match/internal/session"
)

var _ session.Store = (*Store)(nil)

const sessionColumns = `id, partner_a_name, partner_b_name, partner_a_anatomy, partner_b_anatomy,
	partner_a_answers, partner_b_answers, partner_a_email, partner_b_email,
	paid, stripe_session_id, referral_code, discount_applied, amount_paid, created_at`

func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO quiz_sessions
		(id, partner_a_name, partner_b_name, partner_a_anatomy, partner_b_anatomy, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.PartnerAName, sess.PartnerBName, sess.PartnerAAnatomy, sess.PartnerBAnatomy, formatTime(sess.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting quiz session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM quiz_sessions WHERE id = ?`, id)

	var (
		sess               session.Session
		answersA, answersB sql.NullString
		emailA, emailB     sql.NullString
		paymentID, code    sql.NullString
		paid               int
		createdAt          string
	)
	err := row.Scan(
		&sess.ID, &sess.PartnerAName, &sess.PartnerBName, &sess.PartnerAAnatomy, &sess.PartnerBAnatomy,
		&answersA, &answersB, &emailA, &emailB,
		&paid, &paymentID, &code, &sess.DiscountApplied, &sess.AmountPaid, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading quiz session: %w", err)
	}

	if sess.AnswersA, err = decodeAnswers(answersA); err != nil {
		return nil, err
	}
	if sess.AnswersB, err = decodeAnswers(answersB); err != nil {
		return nil, err
	}
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	sess.EmailA, sess.EmailB = emailA.String, emailB.String
	sess.Paid = paid != 0
	sess.PaymentID, sess.ReferralCode = paymentID.String, code.String

	return &sess, nil
}

// SaveAnswers writes a submission only when the ordering rule still holds at
// write time.
func (s *Store) SaveAnswers(ctx context.Context, id string, sub session.Submission) error {
	encoded, err := json.Marshal(sub.Answers)
	if err != nil {
		return fmt.Errorf("encoding answers: %w", err)
	}

	var (
		query string
		args  []any
	)
	switch sub.Partner {
	case session.PartnerA:
		query = `UPDATE quiz_sessions
			SET partner_a_answers = ?, partner_a_email = COALESCE(?, partner_a_email)
			WHERE id = ? AND partner_a_answers IS NULL`
		args = []any{string(encoded), nullString(sub.Email), id}
	case session.PartnerB:
		query = `UPDATE quiz_sessions
			SET partner_b_answers = ?, partner_b_email = COALESCE(?, partner_b_email),
				partner_b_name = COALESCE(?, partner_b_name)
			WHERE id = ? AND partner_a_answers IS NOT NULL AND partner_b_answers IS NULL`
		args = []any{string(encoded), nullString(sub.Email), nullString(sub.Name), id}
	default:
		return fmt.Errorf("%w: unknown partner %q", session.ErrInvalidRequest, sub.Partner)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating answers: %w", err)
	}
	if applied, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("updating answers: %w", err)
	} else if applied == 1 {
		return nil
	}

	current, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}

	logger.WithFields(s.logger, logger.QuizFields(id, string(sub.Partner))...).Debug("conditional answer write rejected")
	return session.ClassifyRejected(current, sub.Partner)
}

func (s *Store) AttachReferral(ctx context.Context, id, code string, discount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE quiz_sessions SET referral_code = ?, discount_applied = ? WHERE id = ? AND paid = 0`,
		nullString(code), discount, id,
	)
	if err != nil {
		return fmt.Errorf("attaching referral: %w", err)
	}
	return s.checkPaidUpdate(ctx, res, id)
}

func (s *Store) MarkPaid(ctx context.Context, id string, p session.Payment) error {
	res, err := s.db.ExecContext(ctx, `UPDATE quiz_sessions
		SET paid = 1, stripe_session_id = ?, amount_paid = ?, referral_code = COALESCE(?, referral_code)
		WHERE id = ? AND paid = 0`,
		nullString(p.PaymentID), p.AmountCents, nullString(p.ReferralCode), id,
	)
	if err != nil {
		return fmt.Errorf("marking paid: %w", err)
	}
	return s.checkPaidUpdate(ctx, res, id)
}

// checkPaidUpdate turns an update guarded by paid = 0 that touched nothing
// into ErrNotFound or ErrAlreadyPaid.
func (s *Store) checkPaidUpdate(ctx context.Context, res sql.Result, id string) error {
	applied, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if applied == 1 {
		return nil
	}

	if _, err := s.GetSession(ctx, id); err != nil {
		return err
	}
	return session.ErrAlreadyPaid
}

func (s *Store) ReferralUsage(ctx context.Context) (map[string]session.ReferralUsage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT UPPER(referral_code),
			COUNT(*),
			COALESCE(SUM(CASE WHEN paid = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN paid = 1 THEN amount_paid ELSE 0 END), 0)
		FROM quiz_sessions
		WHERE referral_code IS NOT NULL AND referral_code <> ''
		GROUP BY UPPER(referral_code)`)
	if err != nil {
		return nil, fmt.Errorf("querying referral usage: %w", err)
	}
	defer rows.Close()

	usage := make(map[string]session.ReferralUsage)
	for rows.Next() {
		var u session.ReferralUsage
		if err := rows.Scan(&u.Code, &u.Uses, &u.PaidUses, &u.RevenueCents); err != nil {
			return nil, fmt.Errorf("scanning referral usage: %w", err)
		}
		usage[u.Code] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating referral usage: %w", err)
	}

	s.logger.Debug("referral usage loaded", zap.Int("codes", len(usage)))
	return usage, nil
}

func decodeAnswers(raw sql.NullString) (matching.Answers, error) {
	if !raw.Valid {
		return nil, nil
	}

	var answers matching.Answers
	if err := json.Unmarshal([]byte(raw.String), &answers); err != nil {
		return nil, fmt.Errorf("decoding stored answers: %w", err)
	}
	if answers == nil {
		answers = matching.Answers{}
	}
	return answers, nil
}
