package template

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// The wire format is the JSON layout produced by the template authoring
// tools. Field names and nesting are a compatibility contract with existing
// template files and must not change. Unknown fields (usage_count,
// success_rate, created_date, ...) are authoring bookkeeping and are
// ignored here.

type wirePattern struct {
	Pattern           string  `json:"pattern"`
	CaseSensitive     bool    `json:"case_sensitive"`
	Multiline         bool    `json:"multiline"`
	Confidence        float64 `json:"confidence_threshold"`
	Priority          int     `json:"priority"`
	ValidationPattern string  `json:"validation_pattern,omitempty"`
	CleanupPattern    string  `json:"cleanup_pattern,omitempty"`
	Replacement       string  `json:"replacement_pattern,omitempty"`
	Name              string  `json:"name,omitempty"`
}

type wireExtractionRule struct {
	FieldName     string        `json:"field_name"`
	FieldType     string        `json:"field_type"`
	Patterns      []wirePattern `json:"patterns"`
	Required      bool          `json:"required"`
	MinConfidence float64       `json:"min_confidence"`
	DefaultValue  string        `json:"default_value,omitempty"`
}

type wireTableRule struct {
	TableName       string            `json:"table_name"`
	HeaderPatterns  []string          `json:"header_patterns"`
	ColumnMapping   map[string]string `json:"column_mapping"`
	NumericColumns  []string          `json:"numeric_columns,omitempty"`
	RequiredColumns []string          `json:"required_columns,omitempty"`
	MinRows         int               `json:"min_rows,omitempty"`
	LinePatterns    []wirePattern     `json:"line_patterns,omitempty"`
}

type wireTemplate struct {
	TemplateID         string               `json:"template_id"`
	Name               string               `json:"name"`
	SupplierName       string               `json:"supplier_name,omitempty"`
	SupplierAliases    []string             `json:"supplier_aliases,omitempty"`
	SupplierPatterns   []wirePattern        `json:"supplier_patterns,omitempty"`
	ExtractionRules    []wireExtractionRule `json:"extraction_rules"`
	TableRules         []wireTableRule      `json:"table_rules,omitempty"`
	Language           string               `json:"language,omitempty"`
	Currency           string               `json:"currency,omitempty"`
	DateFormat         string               `json:"date_format,omitempty"`
	DecimalSeparator   string               `json:"decimal_separator,omitempty"`
	ThousandsSeparator string               `json:"thousands_separator,omitempty"`
	MinConfidence      float64              `json:"min_confidence,omitempty"`
	FallbackEnabled    *bool                `json:"fallback_enabled,omitempty"`
	StrictMode         bool                 `json:"strict_mode,omitempty"`
}

// Decode parses one template document. The JSON must already have passed
// schema validation; Decode still defends against contradictory values.
func Decode(doc []byte) (*Template, error) {
	var w wireTemplate
	if err := json.Unmarshal(doc, &w); err != nil {
		return nil, fmt.Errorf("unmarshal template: %w", err)
	}
	if w.TemplateID == "" {
		return nil, fmt.Errorf("template_id is required")
	}

	t := &Template{
		ID:                 w.TemplateID,
		Name:               w.Name,
		SupplierName:       w.SupplierName,
		SupplierAliases:    w.SupplierAliases,
		Language:           defaultStr(w.Language, "nl"),
		Currency:           defaultStr(w.Currency, "EUR"),
		DateFormat:         defaultStr(w.DateFormat, "%d-%m-%Y"),
		DecimalSeparator:   defaultStr(w.DecimalSeparator, ","),
		ThousandsSeparator: defaultStr(w.ThousandsSeparator, "."),
		MinConfidence:      w.MinConfidence,
		FallbackEnabled:    true,
		StrictMode:         w.StrictMode,
	}
	if w.FallbackEnabled != nil {
		t.FallbackEnabled = *w.FallbackEnabled
	}
	if t.MinConfidence <= 0 {
		t.MinConfidence = 0.3
	}

	for _, wp := range w.SupplierPatterns {
		t.SupplierPatterns = append(t.SupplierPatterns, decodePattern(wp))
	}
	sort.SliceStable(t.SupplierPatterns, func(i, j int) bool {
		return t.SupplierPatterns[i].Priority > t.SupplierPatterns[j].Priority
	})

	seen := make(map[string]bool, len(w.ExtractionRules))
	for _, wr := range w.ExtractionRules {
		if wr.FieldName == "" {
			return nil, fmt.Errorf("extraction rule without field_name")
		}
		if seen[wr.FieldName] {
			return nil, fmt.Errorf("duplicate extraction rule for field %q", wr.FieldName)
		}
		seen[wr.FieldName] = true

		rule := &ExtractionRule{
			FieldName:     wr.FieldName,
			Kind:          FieldKind(defaultStr(wr.FieldType, string(KindText))),
			Required:      wr.Required,
			MinConfidence: wr.MinConfidence,
			DefaultValue:  wr.DefaultValue,
		}
		if rule.MinConfidence <= 0 {
			rule.MinConfidence = 0.3
		}
		for _, wp := range wr.Patterns {
			rule.Patterns = append(rule.Patterns, decodePattern(wp))
		}
		// Evaluation order is descending priority; declaration order
		// breaks ties, so the sort must be stable.
		sort.SliceStable(rule.Patterns, func(i, j int) bool {
			return rule.Patterns[i].Priority > rule.Patterns[j].Priority
		})
		t.ExtractionRules = append(t.ExtractionRules, rule)
	}

	for _, wt := range w.TableRules {
		tr := &TableRule{
			TableName:       wt.TableName,
			HeaderPatterns:  wt.HeaderPatterns,
			ColumnMapping:   lowerKeys(wt.ColumnMapping),
			NumericColumns:  wt.NumericColumns,
			RequiredColumns: wt.RequiredColumns,
			MinRows:         wt.MinRows,
		}
		for _, wp := range wt.LinePatterns {
			tr.LinePatterns = append(tr.LinePatterns, decodePattern(wp))
		}
		t.TableRules = append(t.TableRules, tr)
	}

	return t, nil
}

func decodePattern(w wirePattern) *Pattern {
	p := &Pattern{
		Expression:           w.Pattern,
		CaseSensitive:        w.CaseSensitive,
		Multiline:            w.Multiline,
		Confidence:           w.Confidence,
		Priority:             w.Priority,
		ValidationExpression: w.ValidationPattern,
		CleanupExpression:    w.CleanupPattern,
		Replacement:          w.Replacement,
		Name:                 w.Name,
	}
	if p.Confidence < 0 {
		p.Confidence = 0
	}
	if p.Confidence > 1 {
		p.Confidence = 1
	}
	return p
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func lowerKeys(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}
