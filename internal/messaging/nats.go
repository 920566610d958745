// Package messaging publishes moderation pipeline events over NATS so
// downstream consumers (delivery fan-out, audit, analytics) can react to
// admitted messages and issued bans. The pipeline itself never depends on
// a consumer: publishing is best-effort and a broker outage does not fail
// a submission.
package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/DriftThreads/DriftThreads/internal/store"
)

// NATS subjects published by the moderation service.
const (
	SubjectMessageAdmitted = "chat.admitted"
	SubjectBanIssued       = "moderation.banned"
)

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "driftthreads",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// Publisher emits pipeline events. A nil *NATSPublisher is a valid
// no-op implementation, so the service runs without a broker configured.
type Publisher interface {
	MessageAdmitted(msg *store.Message)
	BanIssued(ban *store.BanRecord)
}

// NATSPublisher publishes events to NATS.
type NATSPublisher struct {
	conn *nats.Conn
	log  *zerolog.Logger
}

// NewNATSPublisher connects to NATS with the given config. It returns an
// error if the initial connection fails; later disconnects are handled by
// the client's reconnect loop.
func NewNATSPublisher(config NATSConfig, logger *zerolog.Logger) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info().Msg("nats connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats connected")

	return &NATSPublisher{conn: nc, log: logger}, nil
}

// AdmittedEvent is the payload published on chat.admitted.
type AdmittedEvent struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Body        string    `json:"body"` // already sanitized
	CreatedAt   time.Time `json:"created_at"`
}

// BanEvent is the payload published on moderation.banned.
type BanEvent struct {
	UserID   string    `json:"user_id"`
	Until    time.Time `json:"until"`
	Reason   string    `json:"reason"`
	IssuedAt time.Time `json:"issued_at"`
}

// MessageAdmitted publishes an admitted message. Best-effort: failures
// are logged, never returned.
func (p *NATSPublisher) MessageAdmitted(msg *store.Message) {
	if p == nil {
		return
	}
	p.publish(SubjectMessageAdmitted, AdmittedEvent{
		ID:          msg.ID,
		UserID:      msg.UserID,
		DisplayName: msg.DisplayName,
		Body:        msg.Body,
		CreatedAt:   msg.CreatedAt,
	})
}

// BanIssued publishes a newly issued ban. Best-effort.
func (p *NATSPublisher) BanIssued(ban *store.BanRecord) {
	if p == nil {
		return
	}
	p.publish(SubjectBanIssued, BanEvent{
		UserID:   ban.UserID,
		Until:    ban.Until,
		Reason:   ban.Reason,
		IssuedAt: ban.IssuedAt,
	})
}

func (p *NATSPublisher) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error().Err(err).Str("subject", subject).Msg("marshal event")
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).Str("subject", subject).Msg("publish event")
	}
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}
