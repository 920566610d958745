// Package chat orchestrates message admission: validate, consult the
// abuse policy, sanitize, persist, announce. It is the only write path
// into the message log, which is how the "no raw profane text at rest"
// invariant holds.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/DriftThreads/DriftThreads/internal/metrics"
	"github.com/DriftThreads/DriftThreads/internal/policy"
	"github.com/DriftThreads/DriftThreads/internal/store"
)

// Machine-readable rejection codes.
const (
	CodeInvalidInput = "invalid_input"
	CodeRateLimited  = "rate_limited"
	CodeBanned       = "banned"
)

// Rejection is a normal, user-visible refusal to admit a message. For
// CodeBanned, BanUntil and BanReason carry the ban details for display.
type Rejection struct {
	Code      string
	Message   string
	BanUntil  time.Time
	BanReason string
}

func (r *Rejection) Error() string {
	return r.Message
}

// Sanitizer rewrites flagged words in a message body.
type Sanitizer interface {
	Sanitize(text string) string
}

// Publisher announces pipeline events; may be nil.
type Publisher interface {
	MessageAdmitted(msg *store.Message)
}

// Service is the admission pipeline over a shared store.
type Service struct {
	messages  store.MessageStore
	bans      store.BanStore
	policy    *policy.Policy
	sanitizer Sanitizer
	events    Publisher
	log       *zerolog.Logger
}

// NewService wires the admission pipeline. events may be nil when no
// broker is configured.
func NewService(messages store.MessageStore, bans store.BanStore, pol *policy.Policy, sanitizer Sanitizer, events Publisher, logger *zerolog.Logger) *Service {
	return &Service{
		messages:  messages,
		bans:      bans,
		policy:    pol,
		sanitizer: sanitizer,
		events:    events,
		log:       logger,
	}
}

// Submit runs the full admission pipeline for one inbound message.
// On success it returns the persisted message, sanitized body included.
// A *Rejection error is a normal policy outcome; any other error is a
// store failure the caller should surface as retryable.
//
// Validation runs before the abuse policy, so malformed input does not
// consume the sender's rate-limit budget.
func (s *Service) Submit(ctx context.Context, userID, displayName, rawBody string, now time.Time) (*store.Message, error) {
	body := strings.TrimSpace(rawBody)
	if err := ValidateBody(body); err != nil {
		metrics.SubmissionsTotal.WithLabelValues(CodeInvalidInput).Inc()
		return nil, &Rejection{Code: CodeInvalidInput, Message: err.Error()}
	}

	started := time.Now()
	decision, err := s.policy.Admit(ctx, userID, now)
	metrics.AdmitDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if !decision.Allowed {
		metrics.SubmissionsTotal.WithLabelValues(decision.Reason).Inc()
		return nil, rejectionFrom(decision)
	}

	msg := &store.Message{
		ID:          uuid.NewString(),
		UserID:      userID,
		DisplayName: displayName,
		Body:        s.sanitizer.Sanitize(body),
		CreatedAt:   now,
	}
	if err := s.messages.InsertMessage(ctx, msg); err != nil {
		metrics.SubmissionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.SubmissionsTotal.WithLabelValues("admitted").Inc()
	s.log.Debug().Str("user_id", userID).Str("message_id", msg.ID).Msg("message admitted")

	if s.events != nil {
		s.events.MessageAdmitted(msg)
	}
	return msg, nil
}

// BanStatus returns the user's active ban, or nil when none covers now.
func (s *Service) BanStatus(ctx context.Context, userID string, now time.Time) (*store.BanRecord, error) {
	ban, err := s.bans.GetBan(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ban.Active(now) {
		return nil, nil
	}
	return ban, nil
}

// Recent returns the newest admitted messages, most recent first.
func (s *Service) Recent(ctx context.Context, limit int) ([]store.Message, error) {
	return s.messages.ListRecent(ctx, limit)
}

func rejectionFrom(d policy.Decision) *Rejection {
	switch d.Reason {
	case policy.ReasonBanned:
		return &Rejection{
			Code:      CodeBanned,
			Message:   "you are temporarily banned",
			BanUntil:  d.BanUntil,
			BanReason: d.BanReason,
		}
	default:
		return &Rejection{
			Code:    CodeRateLimited,
			Message: "slow down before sending another message",
		}
	}
}
