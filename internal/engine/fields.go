package engine

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/invoicetools/template-engine/internal/template"
)

// FieldExtractor evaluates a template's extraction rules against raw text.
type FieldExtractor struct {
	logger *slog.Logger
	m      matcher
}

func NewFieldExtractor(logger *slog.Logger, budget time.Duration) *FieldExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FieldExtractor{logger: logger, m: newMatcher(budget)}
}

// Extract runs every extraction rule and returns field values, per-field
// confidence and the names of required fields that produced no value.
// Missing data is never an error here; it is reported in missingRequired.
func (e *FieldExtractor) Extract(ctx context.Context, rawText string, t *template.Template) (fields map[string]any, confidence map[string]float64, missingRequired []string, err error) {
	fields = make(map[string]any, len(t.ExtractionRules))
	confidence = make(map[string]float64, len(t.ExtractionRules))

	for _, rule := range t.ExtractionRules {
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, err
		}

		value, conf, found := e.extractField(ctx, rule, rawText, t)
		if !found && rule.DefaultValue != "" {
			value, conf, found = rule.DefaultValue, 0, true
		}

		if found {
			fields[rule.FieldName] = value
			confidence[rule.FieldName] = conf
			if conf < rule.MinConfidence {
				e.logger.Debug("field.low_confidence",
					"template_id", t.ID, "field", rule.FieldName, "confidence", conf)
			}
		} else if rule.Required {
			missingRequired = append(missingRequired, rule.FieldName)
		}
	}

	sort.Strings(missingRequired)
	return fields, confidence, missingRequired, nil
}

// extractField walks the rule's patterns in priority order; the first
// pattern that yields a validated candidate wins. A pattern whose candidate
// fails validation is rejected, and evaluation moves to the next pattern,
// not the next rule.
func (e *FieldExtractor) extractField(ctx context.Context, rule *template.ExtractionRule, rawText string, t *template.Template) (any, float64, bool) {
	n := newNormalizer(t)

	for _, p := range rule.Patterns {
		if ctx.Err() != nil {
			return nil, 0, false
		}

		candidate, ok := e.m.find(p, rawText)
		if !ok {
			continue
		}
		candidate = strings.TrimSpace(candidate)
		if !p.Validate(candidate) {
			continue
		}
		candidate = strings.TrimSpace(p.Clean(candidate))
		if candidate == "" {
			continue
		}

		value, err := n.Value(rule.Kind, candidate)
		if err != nil {
			// Normalization failure is not fatal: keep the raw string at
			// the same confidence rather than discarding a present value.
			e.logger.Debug("field.normalize_failed",
				"template_id", t.ID, "field", rule.FieldName, "raw", candidate, "error", err)
			value = candidate
		}
		return value, p.Confidence, true
	}
	return nil, 0, false
}
