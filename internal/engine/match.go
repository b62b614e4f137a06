// Package engine is the template interpreter: supplier detection, field
// extraction with locale normalization, table and line-item extraction, and
// result assembly. Extraction is a pure function over immutable inputs; the
// engine holds no mutable state between documents.
package engine

import (
	"time"

	"github.com/invoicetools/template-engine/internal/template"
)

// DefaultPatternBudget bounds a single pattern evaluation. Expressions come
// from external template files, so runtime cost is data-driven; a pattern
// that blows the budget is treated as a non-match for this document only.
const DefaultPatternBudget = 250 * time.Millisecond

// matcher runs compiled patterns under a wall-clock budget.
type matcher struct {
	budget time.Duration
}

func newMatcher(budget time.Duration) matcher {
	if budget <= 0 {
		budget = DefaultPatternBudget
	}
	return matcher{budget: budget}
}

// submatch applies the pattern to text under the budget and returns the
// full submatch slice. ok is false for inert patterns, non-matches, and
// evaluations that exceeded the budget.
func (m matcher) submatch(p *template.Pattern, text string) ([]string, bool) {
	re := p.Regexp()
	if re == nil {
		return nil, false
	}

	ch := make(chan []string, 1)
	go func() {
		ch <- re.FindStringSubmatch(text)
	}()

	timer := time.NewTimer(m.budget)
	defer timer.Stop()

	select {
	case groups := <-ch:
		if groups == nil {
			return nil, false
		}
		return groups, true
	case <-timer.C:
		// The goroutine finishes on its own; the result is discarded.
		return nil, false
	}
}

// find applies the pattern to text and returns the candidate value: the
// first capture group when the expression declares one (even if it matched
// empty; empty candidates are rejected downstream), the full match
// otherwise.
func (m matcher) find(p *template.Pattern, text string) (string, bool) {
	groups, ok := m.submatch(p, text)
	if !ok {
		return "", false
	}
	if len(groups) > 1 {
		return groups[1], true
	}
	return groups[0], true
}

// matches is find without the value.
func (m matcher) matches(p *template.Pattern, text string) bool {
	_, ok := m.find(p, text)
	return ok
}
