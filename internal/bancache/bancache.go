// Package bancache mirrors active bans into Redis so the hot admission
// path can reject banned users without opening a database transaction.
// Records are hashes keyed by user id with an absolute expiry:
//
//	Key:    ban:<user_id>
//	Fields: reason, until, issued_at (RFC 3339)
//	TTL:    expires at the ban's until timestamp
//
// The durable ledger stays authoritative. Every cache failure is a miss,
// so an unavailable Redis degrades to ledger lookups, never to a skipped
// ban check and never to a phantom ban.
package bancache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/DriftThreads/DriftThreads/internal/store"
)

// KeyPrefix is the Redis key prefix for mirrored ban records.
const KeyPrefix = "ban:"

// Cache is a Redis-backed ban mirror. It implements policy.BanCache.
type Cache struct {
	client *redis.Client
	log    *zerolog.Logger
}

// New creates a Cache over the given Redis client.
func New(client *redis.Client, logger *zerolog.Logger) *Cache {
	return &Cache{client: client, log: logger}
}

// Get returns the mirrored ban for userID. ok is false on a miss or on
// any Redis or decoding error.
func (c *Cache) Get(ctx context.Context, userID string) (*store.BanRecord, bool) {
	fields, err := c.client.HGetAll(ctx, KeyPrefix+userID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("user_id", userID).Msg("ban cache read failed, falling through to ledger")
		}
		return nil, false
	}
	if len(fields) == 0 {
		return nil, false
	}

	until, err := time.Parse(time.RFC3339Nano, fields["until"])
	if err != nil {
		return nil, false
	}
	issuedAt, err := time.Parse(time.RFC3339Nano, fields["issued_at"])
	if err != nil {
		return nil, false
	}

	return &store.BanRecord{
		UserID:   userID,
		Until:    until,
		Reason:   fields["reason"],
		IssuedAt: issuedAt,
	}, true
}

// Put mirrors a ban with a TTL matching its remaining duration.
// Already-expired bans are not written. Failures are logged and ignored;
// the ledger has the record either way.
func (c *Cache) Put(ctx context.Context, ban *store.BanRecord, now time.Time) {
	if !ban.Active(now) {
		return
	}
	key := KeyPrefix + ban.UserID

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"reason":    ban.Reason,
		"until":     ban.Until.Format(time.RFC3339Nano),
		"issued_at": ban.IssuedAt.Format(time.RFC3339Nano),
	})
	pipe.ExpireAt(ctx, key, ban.Until)
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn().Err(err).Str("user_id", ban.UserID).Msg("ban cache write failed")
	}
}

// Invalidate drops the mirror for userID, e.g. after a manual unban.
func (c *Cache) Invalidate(ctx context.Context, userID string) {
	if err := c.client.Del(ctx, KeyPrefix+userID).Err(); err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("ban cache invalidate failed")
	}
}
