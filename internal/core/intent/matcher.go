package intent

import (
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
)

// Rule is one pattern -> responses mapping of a chatbot.
type Rule struct {
	ID        string
	Name      string
	Patterns  []string
	Responses []string
	Position  int
	Active    bool
}

// Match is the rule that fired and the response picked for it.
type Match struct {
	Rule     Rule
	Pattern  string
	Response string
}

// Matcher picks the first configured rule whose pattern occurs in the text.
type Matcher struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewMatcher() *Matcher {
	return NewMatcherWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewMatcherWithSource is used by tests that need a fixed response pick.
func NewMatcherWithSource(src rand.Source) *Matcher {
	return &Matcher{rnd: rand.New(src)}
}

// Match scans rules in Position order (ties keep their given order) and
// returns the first active rule with a non-empty pattern contained in the
// case-folded text. ok is false when nothing matches.
func (m *Matcher) Match(rules []Rule, text string) (*Match, bool) {
	normalized := normalize(text)
	if normalized == "" {
		return nil, false
	}

	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	for _, rule := range ordered {
		if !rule.Active {
			continue
		}
		for _, pattern := range rule.Patterns {
			p := normalize(pattern)
			if p == "" {
				continue
			}
			if strings.Contains(normalized, p) {
				return &Match{Rule: rule, Pattern: pattern, Response: m.pick(rule.Responses)}, true
			}
		}
	}
	return nil, false
}

func (m *Matcher) pick(responses []string) string {
	candidates := make([]string, 0, len(responses))
	for _, r := range responses {
		if strings.TrimSpace(r) != "" {
			candidates = append(candidates, r)
		}
	}
	switch len(candidates) {
	case 0:
		return ""
	case 1:
		return candidates[0]
	}

	m.mu.Lock()
	idx := m.rnd.Intn(len(candidates))
	m.mu.Unlock()
	return candidates[idx]
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
