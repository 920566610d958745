// Package store defines the persistent records of the moderation pipeline
// and the interfaces the policy and admission layers depend on. The
// canonical implementation is PostgreSQL (see the postgres subpackage);
// tests use in-memory fakes.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps transient infrastructure failures. Callers must
// surface it as a retryable error, never drop a message or skip a ban
// check because of it.
var ErrUnavailable = errors.New("store unavailable")

// Message is one entry in the append-only chat stream. The body has
// already been through the sanitizer by the time it is persisted;
// messages are immutable once admitted and are only ever removed by the
// retention purger.
type Message struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"` // display name at time of post
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// BanRecord is a temporary ban. At most one row exists per user; a later
// ban replaces the earlier one rather than stacking. A record whose Until
// is in the past is semantically absent.
type BanRecord struct {
	UserID   string    `json:"user_id"`
	Until    time.Time `json:"until"`
	Reason   string    `json:"reason"`
	IssuedAt time.Time `json:"issued_at"`
}

// Active reports whether the ban still covers the given instant.
func (b *BanRecord) Active(now time.Time) bool {
	return b != nil && b.Until.After(now)
}

// ProfanityRule maps a lowercase root word to its display-safe
// replacement. Rules are static reference data; Position fixes the
// iteration order so overlapping roots resolve deterministically.
type ProfanityRule struct {
	Root        string
	Replacement string
	Position    int
}

// MessageStore is the append-only message log.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *Message) error
	// LastMessageAt returns the most recent message timestamp for the
	// user; ok is false when the user has never posted.
	LastMessageAt(ctx context.Context, userID string) (t time.Time, ok bool, err error)
	CountMessagesSince(ctx context.Context, userID string, since time.Time) (int, error)
	ListRecent(ctx context.Context, limit int) ([]Message, error)
	// DeleteMessagesBefore removes every message older than cutoff and
	// returns the number of rows deleted.
	DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BanStore is the durable ban ledger.
type BanStore interface {
	// GetBan returns the user's ban row, or nil when none exists.
	// Expiry is the caller's concern: a returned row may already be stale.
	GetBan(ctx context.Context, userID string) (*BanRecord, error)
	// UpsertBan replaces the user's ban row. An existing later Until is
	// kept (bans extend, never shorten).
	UpsertBan(ctx context.Context, ban *BanRecord) error
	DeleteExpiredBans(ctx context.Context, now time.Time) (int64, error)
}

// RuleStore provides the profanity ruleset in iteration order.
type RuleStore interface {
	ListRules(ctx context.Context) ([]ProfanityRule, error)
}
