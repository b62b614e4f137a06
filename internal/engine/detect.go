package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/invoicetools/template-engine/internal/template"
)

// ErrNoTemplate is returned when no template scores above its own threshold
// and the repository has no enabled fallback template.
var ErrNoTemplate = errors.New("no template matched and no fallback available")

// Detector scores templates against raw document text and picks the best
// match. Detection is deterministic and side-effect-free: the same text
// against the same repository always selects the same template.
type Detector struct {
	logger *slog.Logger
	m      matcher
}

func NewDetector(logger *slog.Logger, budget time.Duration) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{logger: logger, m: newMatcher(budget)}
}

// Detect selects the template for rawText. A non-empty hint (free-text
// supplier name) is checked against supplier names and aliases first and
// short-circuits detection with maximum score.
//
// Scoring policy: the single highest-priority matching supplier pattern
// determines a template's score. Scores are never summed, so a template
// with many weak patterns cannot outrank one strong signature. Literal
// supplier name / alias presence in the text contributes a fixed score and
// competes under the same max rule.
func (d *Detector) Detect(ctx context.Context, rawText string, repo *template.Repository, hint string) (*template.Template, float64, error) {
	if hint != "" {
		if t := matchHint(repo, hint); t != nil {
			d.logger.Info("detect.hint", "template_id", t.ID, "hint", hint)
			return t, 1.0, nil
		}
	}

	var (
		best      *template.Template
		bestScore float64
	)
	textLower := strings.ToLower(rawText)

	for _, t := range repo.All() {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		score := d.scoreTemplate(ctx, t, rawText, textLower)
		if score > bestScore && score >= t.MinConfidence {
			// Strict > keeps ties on repository declaration order.
			best = t
			bestScore = score
		}
	}

	if best != nil {
		d.logger.Info("detect.ok", "template_id", best.ID, "score", bestScore)
		return best, bestScore, nil
	}

	if fb := repo.Fallback(); fb != nil {
		d.logger.Info("detect.fallback", "template_id", fb.ID)
		return fb, 0, nil
	}
	return nil, 0, ErrNoTemplate
}

func (d *Detector) scoreTemplate(ctx context.Context, t *template.Template, rawText, textLower string) float64 {
	score := 0.0

	if t.SupplierName != "" && strings.Contains(textLower, strings.ToLower(t.SupplierName)) {
		score = supplierNameScore
	}
	for _, alias := range t.SupplierAliases {
		if alias != "" && strings.Contains(textLower, strings.ToLower(alias)) {
			if aliasScore > score {
				score = aliasScore
			}
			break
		}
	}

	// Patterns are priority-sorted at load: the first match is the single
	// highest-priority matching pattern, which decides the pattern score.
	for _, p := range t.SupplierPatterns {
		if ctx.Err() != nil {
			return score
		}
		if d.m.matches(p, rawText) {
			if p.Confidence > score {
				score = p.Confidence
			}
			break
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

const (
	supplierNameScore = 0.8
	aliasScore        = 0.7
)

func matchHint(repo *template.Repository, hint string) *template.Template {
	h := strings.ToLower(strings.TrimSpace(hint))
	for _, t := range repo.All() {
		if t.SupplierName != "" && strings.Contains(strings.ToLower(t.SupplierName), h) {
			return t
		}
		for _, alias := range t.SupplierAliases {
			if strings.Contains(strings.ToLower(alias), h) || strings.Contains(h, strings.ToLower(alias)) {
				return t
			}
		}
	}
	return nil
}
