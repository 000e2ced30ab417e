package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	memoryPath = ":memory:"
	// fixed width, so stored timestamps sort as text
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

const schema = `
CREATE TABLE IF NOT EXISTS quiz_sessions (
	id TEXT PRIMARY KEY,
	partner_a_name TEXT NOT NULL,
	partner_b_name TEXT NOT NULL,
	partner_a_anatomy TEXT NOT NULL DEFAULT 'female',
	partner_b_anatomy TEXT NOT NULL DEFAULT 'male',
	partner_a_answers TEXT,
	partner_b_answers TEXT,
	partner_a_email TEXT,
	partner_b_email TEXT,
	paid INTEGER NOT NULL DEFAULT 0,
	stripe_session_id TEXT,
	referral_code TEXT,
	discount_applied INTEGER NOT NULL DEFAULT 0,
	amount_paid INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quiz_sessions_referral_code ON quiz_sessions(referral_code);

CREATE TABLE IF NOT EXISTS referral_codes (
	id TEXT PRIMARY KEY,
	code TEXT UNIQUE NOT NULL,
	influencer_name TEXT NOT NULL,
	discount_percent INTEGER NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_referral_codes_code ON referral_codes(code);
`

// Store keeps quiz sessions and referral codes in a single SQLite database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates the database file and its parent directory when missing and
// applies the schema. Use ":memory:" for a throwaway database.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}
	// SQLite allows a single writer; an in-memory database also lives only
	// as long as its one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	log.Debug("sqlite store ready", zap.String("path", path))
	return &Store{db: db, logger: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlitedriver.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
