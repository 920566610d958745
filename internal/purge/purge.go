// Package purge enforces the retention horizon on the message log.
// Messages older than the horizon are deleted on a fixed schedule; the
// purger never touches anything newer, so it can run concurrently with
// submissions without coordination. Expired ban rows are dropped in the
// same pass as housekeeping.
package purge

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/DriftThreads/DriftThreads/internal/metrics"
	"github.com/DriftThreads/DriftThreads/internal/store"
)

// Purger deletes messages past the retention horizon.
type Purger struct {
	messages store.MessageStore
	bans     store.BanStore
	horizon  time.Duration
	interval time.Duration
	log      *zerolog.Logger
}

// New creates a Purger. horizon is the message age beyond which rows are
// eligible for deletion; interval is the tick period for Run.
func New(messages store.MessageStore, bans store.BanStore, horizon, interval time.Duration, logger *zerolog.Logger) *Purger {
	return &Purger{
		messages: messages,
		bans:     bans,
		horizon:  horizon,
		interval: interval,
		log:      logger,
	}
}

// Purge deletes every message with createdAt before now minus the
// horizon and returns the count. Idempotent: a second run with the same
// now deletes nothing. now must be trusted server time.
func (p *Purger) Purge(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-p.horizon)
	deleted, err := p.messages.DeleteMessagesBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.PurgedMessagesTotal.Add(float64(deleted))

	if p.bans != nil {
		if dropped, err := p.bans.DeleteExpiredBans(ctx, now); err != nil {
			// Expired rows are semantically absent already; log and move on.
			p.log.Warn().Err(err).Msg("expired ban cleanup failed")
		} else if dropped > 0 {
			p.log.Debug().Int64("bans", dropped).Msg("dropped expired ban rows")
		}
	}

	p.log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("retention purge complete")
	return deleted, nil
}

// Run purges on every tick until ctx is cancelled. A failed pass is
// logged and retried on the next tick; a missed cycle is an operational
// concern, not a user-visible one.
func (p *Purger) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info().Dur("interval", p.interval).Dur("horizon", p.horizon).Msg("purger started")
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("purger stopped")
			return
		case <-ticker.C:
			if _, err := p.Purge(ctx, time.Now().UTC()); err != nil {
				p.log.Error().Err(err).Msg("purge failed, will retry next tick")
			}
		}
	}
}
