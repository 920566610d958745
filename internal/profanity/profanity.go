// Package profanity rewrites flagged words in message bodies before they
// are persisted. Matching is case-insensitive and whole-word: a root word
// only fires when bounded by non-word characters or string edges, so it
// never rewrites the inside of an unrelated longer token. A fixed set of
// suffixes is matched along with the root and preserved after the
// replacement ("fucking" becomes "f***ing", not "f***").
package profanity

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/DriftThreads/DriftThreads/internal/store"
)

// DefaultSuffixes is the suffix set matched after a root word. Longest
// variants come first so the alternation consumes the whole token
// ("ers" before "er" before "s").
var DefaultSuffixes = []string{"ers", "ies", "ing", "es", "ed", "er", "s"}

type rule struct {
	root        string
	replacement string
	re          *regexp.Regexp
}

// Ruleset is an ordered, compiled profanity ruleset. Rules apply
// sequentially in their stored position order, so where two roots overlap
// the earlier rule wins. A Ruleset is immutable and safe for concurrent
// use.
type Ruleset struct {
	rules []rule
}

// Compile builds a Ruleset from stored rules, preserving their order.
// Roots must be non-empty; they are lowered before compilation since
// matching is case-insensitive anyway. A nil suffix slice selects
// DefaultSuffixes.
func Compile(rules []store.ProfanityRule, suffixes []string) (*Ruleset, error) {
	if suffixes == nil {
		suffixes = DefaultSuffixes
	}

	quoted := make([]string, len(suffixes))
	for i, s := range suffixes {
		quoted[i] = regexp.QuoteMeta(s)
	}
	alternation := strings.Join(quoted, "|")

	rs := &Ruleset{rules: make([]rule, 0, len(rules))}
	for _, r := range rules {
		root := strings.ToLower(strings.TrimSpace(r.Root))
		if root == "" {
			return nil, fmt.Errorf("profanity: empty root word at position %d", r.Position)
		}
		pattern := `(?i)\b` + regexp.QuoteMeta(root) + `(` + alternation + `)?\b`
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("profanity: compile rule %q: %w", root, err)
		}
		rs.rules = append(rs.rules, rule{root: root, replacement: r.Replacement, re: re})
	}
	return rs, nil
}

// Load reads the ruleset from the rule store and compiles it.
func Load(ctx context.Context, rules store.RuleStore, suffixes []string) (*Ruleset, error) {
	stored, err := rules.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("profanity: load rules: %w", err)
	}
	return Compile(stored, suffixes)
}

// Sanitize replaces every whole-word occurrence of each root word
// (with an optional known suffix) by the rule's replacement plus the
// matched suffix. It is pure and never fails; text with no matches passes
// through unchanged and empty input returns the empty string.
func (rs *Ruleset) Sanitize(text string) string {
	if text == "" || len(rs.rules) == 0 {
		return text
	}
	for _, r := range rs.rules {
		text = r.re.ReplaceAllStringFunc(text, func(m string) string {
			// Submatch 1 is the suffix; re-matching the full match is
			// cheap and avoids byte-offset assumptions about the root.
			sub := r.re.FindStringSubmatch(m)
			suffix := ""
			if len(sub) > 1 {
				suffix = sub[1]
			}
			return r.replacement + suffix
		})
	}
	return text
}

// Len returns the number of compiled rules.
func (rs *Ruleset) Len() int {
	return len(rs.rules)
}
