// Package policy decides whether a submission is admitted to the chat
// stream. Three checks run in order, each short-circuiting on rejection:
// an absolute lock-out (active ban), a per-message cooldown against
// rapid-fire posting, and a sliding burst window that escalates sustained
// flooding into an automatic temporary ban. The ban is issued on the
// triggering request itself, which is rejected, not admitted-then-punished.
package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/DriftThreads/DriftThreads/internal/store"
)

// Rejection reason codes, surfaced to callers verbatim.
const (
	ReasonRateLimited = "rate_limited"
	ReasonBanned      = "banned"
)

// BanReasonSpam is the reason recorded on automatic burst bans.
const BanReasonSpam = "spam"

// Config holds the policy thresholds. Defaults are the documented values;
// deployments may tune them but the semantics stay fixed.
type Config struct {
	Cooldown    time.Duration // minimum spacing between a user's messages
	BurstWindow time.Duration // trailing window for the burst count
	BurstLimit  int           // submissions in the window that trigger a ban
	BanDuration time.Duration // length of an automatic ban
}

// DefaultConfig returns the standard thresholds: 3s cooldown, 8 messages
// per 30s burst window, 10 minute bans.
func DefaultConfig() Config {
	return Config{
		Cooldown:    3 * time.Second,
		BurstWindow: 30 * time.Second,
		BurstLimit:  8,
		BanDuration: 10 * time.Minute,
	}
}

// Decision is the outcome of an admission check. When Reason is
// ReasonBanned, BanUntil and BanReason carry the ban details for
// user-facing display.
type Decision struct {
	Allowed   bool
	Reason    string
	BanUntil  time.Time
	BanReason string
}

// Store is the per-user state the policy reads and writes. WithUserLock
// runs fn inside a per-user critical section: the ban check, the burst
// count, and the ban upsert observe and mutate state that reflects only
// committed submissions, so two concurrent burst-triggering requests from
// the same user cannot both issue a ban. The Postgres implementation uses
// a transaction holding an advisory lock keyed on the user id; fn's
// writes commit only if fn returns nil.
type Store interface {
	WithUserLock(ctx context.Context, userID string, fn func(tx Store) error) error
	GetBan(ctx context.Context, userID string) (*store.BanRecord, error)
	UpsertBan(ctx context.Context, ban *store.BanRecord) error
	LastMessageAt(ctx context.Context, userID string) (time.Time, bool, error)
	CountMessagesSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// BanCache is an optional fast-path mirror of active bans. Get returns
// ok=false on miss or on any cache error; the durable ledger stays
// authoritative so the cache can only ever fail open.
type BanCache interface {
	Get(ctx context.Context, userID string) (ban *store.BanRecord, ok bool)
	Put(ctx context.Context, ban *store.BanRecord, now time.Time)
}

// Policy evaluates admission decisions against a shared store.
type Policy struct {
	cfg   Config
	st    Store
	cache BanCache
	onBan func(*store.BanRecord)
}

// New creates a Policy over the given store.
func New(cfg Config, st Store) *Policy {
	return &Policy{cfg: cfg, st: st}
}

// UseCache attaches a ban fast-path cache.
func (p *Policy) UseCache(c BanCache) {
	p.cache = c
}

// OnBanIssued registers a callback invoked after an automatic ban has
// been durably recorded. Used for metrics and event publishing.
func (p *Policy) OnBanIssued(fn func(*store.BanRecord)) {
	p.onBan = fn
}

// Admit evaluates a submission attempt from userID at time now. It
// returns a rejecting Decision for banned or rate-limited users, an
// allowing Decision otherwise, and a non-nil error only on store failure.
// A store failure never silently admits: the caller must treat it as
// retryable and reject the submission.
func (p *Policy) Admit(ctx context.Context, userID string, now time.Time) (Decision, error) {
	// Fast path: a cached active ban rejects without touching the store.
	if p.cache != nil {
		if ban, ok := p.cache.Get(ctx, userID); ok && ban.Active(now) {
			return banned(ban), nil
		}
	}

	var decision Decision
	var issued *store.BanRecord

	err := p.st.WithUserLock(ctx, userID, func(tx Store) error {
		// Step 1: active ban.
		ban, err := tx.GetBan(ctx, userID)
		if err != nil {
			return fmt.Errorf("policy: get ban: %w", err)
		}
		if ban.Active(now) {
			decision = banned(ban)
			return nil
		}

		// Step 2: cooldown. A gap of exactly Cooldown is allowed.
		last, posted, err := tx.LastMessageAt(ctx, userID)
		if err != nil {
			return fmt.Errorf("policy: last message: %w", err)
		}
		if posted && now.Sub(last) < p.cfg.Cooldown {
			decision = Decision{Reason: ReasonRateLimited}
			return nil
		}

		// Step 3: burst window. Crossing the threshold bans the user and
		// rejects the triggering submission.
		count, err := tx.CountMessagesSince(ctx, userID, now.Add(-p.cfg.BurstWindow))
		if err != nil {
			return fmt.Errorf("policy: burst count: %w", err)
		}
		if count >= p.cfg.BurstLimit {
			newBan := &store.BanRecord{
				UserID:   userID,
				Until:    now.Add(p.cfg.BanDuration),
				Reason:   BanReasonSpam,
				IssuedAt: now,
			}
			if err := tx.UpsertBan(ctx, newBan); err != nil {
				return fmt.Errorf("policy: upsert ban: %w", err)
			}
			issued = newBan
			decision = banned(newBan)
			return nil
		}

		decision = Decision{Allowed: true}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}

	// The ban is committed by the time the lock is released; mirror and
	// announce it outside the critical section.
	if issued != nil {
		if p.cache != nil {
			p.cache.Put(ctx, issued, now)
		}
		if p.onBan != nil {
			p.onBan(issued)
		}
	}

	return decision, nil
}

func banned(ban *store.BanRecord) Decision {
	return Decision{
		Reason:    ReasonBanned,
		BanUntil:  ban.Until,
		BanReason: ban.Reason,
	}
}
