// Package template holds the declarative extraction rule model and the
// repository that loads rule documents from disk. Templates are plain data:
// adding support for a new supplier is a new JSON file, not new code.
package template

import "regexp"

// FieldKind tells the engine how to normalize an extracted value.
type FieldKind string

const (
	KindText       FieldKind = "text"
	KindNumber     FieldKind = "number"
	KindDate       FieldKind = "date"
	KindAmount     FieldKind = "amount"
	KindPercentage FieldKind = "percentage"
	KindVATNumber  FieldKind = "vat_number"
	KindIBAN       FieldKind = "iban"
	KindEmail      FieldKind = "email"
	KindPhone      FieldKind = "phone"
)

// Pattern is a single matching rule. The compiled matchers are populated at
// load time; a Pattern whose expression failed to compile has a nil re and
// never matches.
type Pattern struct {
	Expression    string
	CaseSensitive bool
	Multiline     bool
	Confidence    float64
	Priority      int

	ValidationExpression string
	CleanupExpression    string
	Replacement          string

	Name string

	re         *regexp.Regexp
	validation *regexp.Regexp
	cleanup    *regexp.Regexp
}

// Compiled reports whether the pattern's expression compiled at load time.
func (p *Pattern) Compiled() bool { return p.re != nil }

// ExtractionRule binds an ordered set of Patterns to one output field.
// Patterns are evaluated in descending priority, ties broken by declaration
// order.
type ExtractionRule struct {
	FieldName     string
	Kind          FieldKind
	Patterns      []*Pattern
	Required      bool
	MinConfidence float64
	DefaultValue  string
}

// TableRule describes how to locate and map one tabular structure.
type TableRule struct {
	TableName       string
	HeaderPatterns  []string
	ColumnMapping   map[string]string // raw header (lowercased) -> canonical field
	NumericColumns  []string
	RequiredColumns []string
	MinRows         int

	// LinePatterns are applied to raw text lines when no table grid
	// satisfies the rule. Each must capture description, quantity,
	// unit_price, total_amount style groups by name.
	LinePatterns []*Pattern

	headerRes []*regexp.Regexp
}

// Template bundles supplier detection, field rules and table rules for one
// invoice layout family. Immutable after load.
type Template struct {
	ID              string
	Name            string
	SupplierName    string
	SupplierAliases []string

	SupplierPatterns []*Pattern
	ExtractionRules  []*ExtractionRule
	TableRules       []*TableRule

	Language           string
	Currency           string
	DateFormat         string
	DecimalSeparator   string
	ThousandsSeparator string

	MinConfidence   float64
	FallbackEnabled bool
	StrictMode      bool
}

// RuleFor returns the extraction rule for a field name, or nil.
func (t *Template) RuleFor(field string) *ExtractionRule {
	for _, r := range t.ExtractionRules {
		if r.FieldName == field {
			return r
		}
	}
	return nil
}

// IsNumericColumn reports whether the canonical column name is declared
// numeric on this rule.
func (r *TableRule) IsNumericColumn(name string) bool {
	for _, c := range r.NumericColumns {
		if c == name {
			return true
		}
	}
	return false
}
