package engine

import (
	"github.com/invoicetools/template-engine/internal/template"
)

// Result is the aggregated outcome of extracting one document. It is owned
// by the caller and never mutated by the engine after being returned.
type Result struct {
	TemplateID      string
	DetectionScore  float64
	Fields          map[string]any
	FieldConfidence map[string]float64
	LineItems       []LineItem
	MissingRequired []string
	Quality         float64
}

// Field returns the value for a field name, or nil when absent.
func (r *Result) Field(name string) any { return r.Fields[name] }

// Assemble builds the final result and computes the overall quality score:
// the minimum confidence among required fields that are present, forced to
// zero when any required field is missing. Min, not mean, so one weak
// mandatory field stays visible instead of being averaged away.
func Assemble(t *template.Template, score float64, fields map[string]any, confidence map[string]float64, missingRequired []string, items []LineItem) *Result {
	res := &Result{
		TemplateID:      t.ID,
		DetectionScore:  score,
		Fields:          fields,
		FieldConfidence: confidence,
		LineItems:       items,
		MissingRequired: missingRequired,
	}

	if len(missingRequired) > 0 {
		res.Quality = 0
		return res
	}

	quality := 1.0
	sawRequired := false
	for _, rule := range t.ExtractionRules {
		if !rule.Required {
			continue
		}
		if _, ok := fields[rule.FieldName]; !ok {
			continue
		}
		sawRequired = true
		if c := confidence[rule.FieldName]; c < quality {
			quality = c
		}
	}
	if !sawRequired {
		// No required fields declared: fall back to the weakest extracted
		// field so the score still reflects extraction strength.
		for name := range fields {
			sawRequired = true
			if c := confidence[name]; c < quality {
				quality = c
			}
		}
	}
	if !sawRequired {
		quality = 0
	}
	res.Quality = clamp01(quality)
	return res
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
