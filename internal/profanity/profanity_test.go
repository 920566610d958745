package profanity

import (
	"context"
	"testing"

	"github.com/DriftThreads/DriftThreads/internal/store"
)

func mustCompile(t *testing.T, rules []store.ProfanityRule) *Ruleset {
	t.Helper()
	rs, err := Compile(rules, nil)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	return rs
}

func TestSanitize_WholeWordWithSuffix(t *testing.T) {
	rs := mustCompile(t, []store.ProfanityRule{
		{Root: "fuck", Replacement: "f***", Position: 1},
		{Root: "damn", Replacement: "d***", Position: 2},
	})

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare root", "fuck", "f***"},
		{"in sentence", "this is fucking great", "this is f***ing great"},
		{"suffix s", "no fucks given", "no f***s given"},
		{"suffix ers", "fuckers everywhere", "f***ers everywhere"},
		{"suffix ed", "totally fucked", "totally f***ed"},
		{"case insensitive", "FUCK this", "f*** this"},
		{"mixed case suffix", "FuCkInG", "f***InG"},
		{"all occurrences", "fuck fuck fuck", "f*** f*** f***"},
		{"multiple rules", "fucking damn thing", "f***ing d*** thing"},
		{"punctuation boundary", "well, fuck!", "well, f***!"},
		{"no false positive inside token", "classifucking", "classifucking"},
		{"no false positive prefix", "fuckle", "fuckle"},
		{"clean text unchanged", "a perfectly nice message", "a perfectly nice message"},
		{"empty input", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rs.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitize_SuffixCaseAndEdges(t *testing.T) {
	rs := mustCompile(t, []store.ProfanityRule{
		{Root: "crap", Replacement: "c***", Position: 1},
	})

	tests := []struct {
		input string
		want  string
	}{
		{"crappies", "crappies"},     // "pies" is not in the suffix set
		{"crapies", "c***ies"},       // "ies" is
		{"crap.", "c***."},
		{"(crap)", "(c***)"},
		{"crap-heap", "c***-heap"},   // hyphen is a word boundary
		{"scrap", "scrap"},           // bounded on the left
	}

	for _, tt := range tests {
		if got := rs.Sanitize(tt.input); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSanitize_RuleOrderWins(t *testing.T) {
	// Earlier rule rewrites first; the second rule never sees the
	// occurrence it overlaps with.
	rs := mustCompile(t, []store.ProfanityRule{
		{Root: "dumbass", Replacement: "d******", Position: 1},
		{Root: "ass", Replacement: "a**", Position: 2},
	})

	if got := rs.Sanitize("what a dumbass move"); got != "what a d****** move" {
		t.Errorf("got %q", got)
	}
	if got := rs.Sanitize("ass and dumbass"); got != "a** and d******" {
		t.Errorf("got %q", got)
	}
}

func TestSanitize_DoubleInvocationSafe(t *testing.T) {
	rs := mustCompile(t, []store.ProfanityRule{
		{Root: "fuck", Replacement: "f***", Position: 1},
	})

	once := rs.Sanitize("fucking hell")
	twice := rs.Sanitize(once)
	if once != twice {
		t.Errorf("re-sanitizing changed output: %q -> %q", once, twice)
	}
}

func TestCompile_RejectsEmptyRoot(t *testing.T) {
	_, err := Compile([]store.ProfanityRule{{Root: "  ", Replacement: "x"}}, nil)
	if err == nil {
		t.Fatal("expected error for empty root word")
	}
}

type stubRuleStore struct {
	rules []store.ProfanityRule
}

func (s *stubRuleStore) ListRules(_ context.Context) ([]store.ProfanityRule, error) {
	return s.rules, nil
}

func TestSanitizer_Reload(t *testing.T) {
	rules := &stubRuleStore{rules: []store.ProfanityRule{
		{Root: "fuck", Replacement: "f***", Position: 1},
	}}

	s, err := NewSanitizer(context.Background(), rules, nil)
	if err != nil {
		t.Fatalf("NewSanitizer() error: %v", err)
	}

	if got := s.Sanitize("damn"); got != "damn" {
		t.Fatalf("unexpected rewrite before reload: %q", got)
	}

	rules.rules = append(rules.rules, store.ProfanityRule{Root: "damn", Replacement: "d***", Position: 2})
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}

	if got := s.Sanitize("damn"); got != "d***" {
		t.Errorf("Sanitize after reload = %q, want %q", got, "d***")
	}
	if s.RuleCount() != 2 {
		t.Errorf("RuleCount() = %d, want 2", s.RuleCount())
	}
}
