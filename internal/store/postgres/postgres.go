// Package postgres implements the durable message log, ban ledger, and
// profanity ruleset on PostgreSQL. Schema is managed through embedded
// migrations. Per-user admission serialization uses a transaction-scoped
// advisory lock keyed on the user id, so the read-count-then-upsert
// sequence in the abuse policy commits atomically or not at all.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/DriftThreads/DriftThreads/internal/policy"
	"github.com/DriftThreads/DriftThreads/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the PostgreSQL-backed store. It implements store.MessageStore,
// store.BanStore, store.RuleStore, and policy.Store.
type Store struct {
	db *sql.DB
	q  querier
}

var (
	_ store.MessageStore = (*Store)(nil)
	_ store.BanStore     = (*Store)(nil)
	_ store.RuleStore    = (*Store)(nil)
	_ policy.Store       = (*Store)(nil)
)

// New opens a connection pool to the given database URL and verifies it.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{db: db, q: db}, nil
}

// Migrate applies all pending embedded migrations.
func (s *Store) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: migration source: %w", err)
	}
	driver, err := pgmigrate.WithInstance(s.db, &pgmigrate.Config{})
	if err != nil {
		return fmt.Errorf("postgres: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("postgres: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("postgres: migrate up: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// wrap marks a driver failure as a transient store outage. Both the
// sentinel and the underlying error stay matchable with errors.Is.
func wrap(op string, err error) error {
	return fmt.Errorf("postgres: %s: %w", op, errors.Join(store.ErrUnavailable, err))
}

// WithUserLock runs fn inside a transaction holding an advisory lock
// keyed on userID. The lock is released on commit or rollback; fn's
// writes are rolled back if it returns an error, so an admission decision
// and its ban upsert are applied together or not at all.
func (s *Store) WithUserLock(ctx context.Context, userID string, fn func(tx policy.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID); err != nil {
		return wrap("advisory lock", err)
	}

	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrap("commit", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Message log
// ---------------------------------------------------------------------------

// InsertMessage appends an admitted message to the log. The body must
// already be sanitized.
func (s *Store) InsertMessage(ctx context.Context, msg *store.Message) error {
	const query = `
		INSERT INTO messages (id, user_id, display_name, body, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.q.ExecContext(ctx, query,
		msg.ID, msg.UserID, msg.DisplayName, msg.Body, msg.CreatedAt)
	if err != nil {
		return wrap("insert message", err)
	}
	return nil
}

// LastMessageAt returns the timestamp of the user's most recent message.
func (s *Store) LastMessageAt(ctx context.Context, userID string) (time.Time, bool, error) {
	const query = `SELECT MAX(created_at) FROM messages WHERE user_id = $1`

	var last sql.NullTime
	if err := s.q.QueryRowContext(ctx, query, userID).Scan(&last); err != nil {
		return time.Time{}, false, wrap("last message", err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return last.Time, true, nil
}

// CountMessagesSince counts the user's messages strictly newer than since.
func (s *Store) CountMessagesSince(ctx context.Context, userID string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM messages WHERE user_id = $1 AND created_at > $2`

	var count int
	if err := s.q.QueryRowContext(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, wrap("count messages", err)
	}
	return count, nil
}

// ListRecent returns the newest messages, most recent first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]store.Message, error) {
	const query = `
		SELECT id, user_id, display_name, body, created_at
		FROM messages
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, wrap("list recent", err)
	}
	defer rows.Close()

	var msgs []store.Message
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.DisplayName, &m.Body, &m.CreatedAt); err != nil {
			return nil, wrap("scan message", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list recent", err)
	}
	return msgs, nil
}

// DeleteMessagesBefore removes every message older than cutoff and
// returns the number deleted.
func (s *Store) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM messages WHERE created_at < $1`

	res, err := s.q.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, wrap("delete messages", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap("delete messages", err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Ban ledger
// ---------------------------------------------------------------------------

// GetBan returns the user's ban row, or nil when none exists. Expired
// rows are returned as-is; activity is the caller's check.
func (s *Store) GetBan(ctx context.Context, userID string) (*store.BanRecord, error) {
	const query = `SELECT user_id, until, reason, issued_at FROM bans WHERE user_id = $1`

	var b store.BanRecord
	err := s.q.QueryRowContext(ctx, query, userID).Scan(&b.UserID, &b.Until, &b.Reason, &b.IssuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get ban", err)
	}
	return &b, nil
}

// UpsertBan writes the user's ban row. A later existing expiry is kept:
// bans extend, never shorten.
func (s *Store) UpsertBan(ctx context.Context, ban *store.BanRecord) error {
	const query = `
		INSERT INTO bans (user_id, until, reason, issued_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			until     = GREATEST(bans.until, EXCLUDED.until),
			reason    = CASE WHEN EXCLUDED.until >= bans.until THEN EXCLUDED.reason ELSE bans.reason END,
			issued_at = CASE WHEN EXCLUDED.until >= bans.until THEN EXCLUDED.issued_at ELSE bans.issued_at END`

	if _, err := s.q.ExecContext(ctx, query, ban.UserID, ban.Until, ban.Reason, ban.IssuedAt); err != nil {
		return wrap("upsert ban", err)
	}
	return nil
}

// DeleteExpiredBans opportunistically removes rows whose expiry has
// passed. Expired rows are already semantically absent, so this is pure
// housekeeping.
func (s *Store) DeleteExpiredBans(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM bans WHERE until <= $1`

	res, err := s.q.ExecContext(ctx, query, now)
	if err != nil {
		return 0, wrap("delete expired bans", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap("delete expired bans", err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Profanity rules
// ---------------------------------------------------------------------------

// ListRules returns the profanity ruleset in its fixed iteration order.
func (s *Store) ListRules(ctx context.Context) ([]store.ProfanityRule, error) {
	const query = `SELECT root, replacement, ordinal FROM profanity_rules ORDER BY ordinal`

	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, wrap("list rules", err)
	}
	defer rows.Close()

	var rules []store.ProfanityRule
	for rows.Next() {
		var r store.ProfanityRule
		if err := rows.Scan(&r.Root, &r.Replacement, &r.Position); err != nil {
			return nil, wrap("scan rule", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list rules", err)
	}
	return rules, nil
}
