package profanity

import (
	"context"
	"sync"

	"github.com/DriftThreads/DriftThreads/internal/store"
)

// Sanitizer wraps a Ruleset behind an explicit reload operation. The
// ruleset is loaded once at startup and swapped atomically on Reload;
// concurrent readers see either the old or the new compiled set, never a
// partial one.
type Sanitizer struct {
	mu       sync.RWMutex
	rs       *Ruleset
	rules    store.RuleStore
	suffixes []string
}

// NewSanitizer loads and compiles the ruleset from the rule store.
func NewSanitizer(ctx context.Context, rules store.RuleStore, suffixes []string) (*Sanitizer, error) {
	rs, err := Load(ctx, rules, suffixes)
	if err != nil {
		return nil, err
	}
	return &Sanitizer{rs: rs, rules: rules, suffixes: suffixes}, nil
}

// Sanitize applies the current ruleset to text.
func (s *Sanitizer) Sanitize(text string) string {
	s.mu.RLock()
	rs := s.rs
	s.mu.RUnlock()
	return rs.Sanitize(text)
}

// Reload re-reads the ruleset from the rule store and swaps it in. On
// failure the previous ruleset stays active.
func (s *Sanitizer) Reload(ctx context.Context) error {
	rs, err := Load(ctx, s.rules, s.suffixes)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.rs = rs
	s.mu.Unlock()
	return nil
}

// RuleCount returns the number of rules in the active set.
func (s *Sanitizer) RuleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rs.Len()
}
