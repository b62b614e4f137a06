package template

import (
	"fmt"
	"regexp"
)

// CompileWarning records a pattern that failed to compile. The pattern stays
// in the template but is inert: it never matches.
type CompileWarning struct {
	TemplateID string
	Where      string // e.g. "supplier_patterns[2]", "invoice_number.patterns[0]"
	Expression string
	Err        error
}

func (w CompileWarning) String() string {
	return fmt.Sprintf("%s: %s: %q: %v", w.TemplateID, w.Where, w.Expression, w.Err)
}

// Compile compiles every regular expression in the template once, so no
// compilation happens on the per-document hot path. Invalid expressions are
// reported as warnings, never errors: one broken pattern must not take the
// whole template out of service. Load runs this automatically; it is
// exported for callers that build templates programmatically.
func Compile(t *Template) []CompileWarning {
	var warns []CompileWarning

	for i, p := range t.SupplierPatterns {
		warns = append(warns, compilePattern(t.ID, fmt.Sprintf("supplier_patterns[%d]", i), p)...)
	}
	for _, r := range t.ExtractionRules {
		for i, p := range r.Patterns {
			warns = append(warns, compilePattern(t.ID, fmt.Sprintf("%s.patterns[%d]", r.FieldName, i), p)...)
		}
	}
	for _, tr := range t.TableRules {
		for i, expr := range tr.HeaderPatterns {
			re, err := regexp.Compile("(?i)" + expr)
			if err != nil {
				warns = append(warns, CompileWarning{
					TemplateID: t.ID,
					Where:      fmt.Sprintf("%s.header_patterns[%d]", tr.TableName, i),
					Expression: expr,
					Err:        err,
				})
				continue
			}
			tr.headerRes = append(tr.headerRes, re)
		}
		for i, p := range tr.LinePatterns {
			warns = append(warns, compilePattern(t.ID, fmt.Sprintf("%s.line_patterns[%d]", tr.TableName, i), p)...)
		}
	}
	return warns
}

func compilePattern(tid, where string, p *Pattern) []CompileWarning {
	var warns []CompileWarning

	re, err := regexp.Compile(flags(p) + p.Expression)
	if err != nil {
		warns = append(warns, CompileWarning{TemplateID: tid, Where: where, Expression: p.Expression, Err: err})
	} else {
		p.re = re
	}

	if p.ValidationExpression != "" {
		// Validation is a full-string match. Wrapping in a group anchors
		// both ends regardless of the author's own anchoring, so a bare
		// prefix expression cannot accept trailing garbage.
		v, err := regexp.Compile("^(?:" + p.ValidationExpression + ")$")
		if err != nil {
			warns = append(warns, CompileWarning{
				TemplateID: tid, Where: where + ".validation",
				Expression: p.ValidationExpression, Err: err,
			})
			// A broken validator makes the pattern inert rather than
			// letting unvalidated values through.
			p.re = nil
		} else {
			p.validation = v
		}
	}

	if p.CleanupExpression != "" {
		c, err := regexp.Compile(flags(p) + p.CleanupExpression)
		if err != nil {
			warns = append(warns, CompileWarning{
				TemplateID: tid, Where: where + ".cleanup",
				Expression: p.CleanupExpression, Err: err,
			})
		} else {
			p.cleanup = c
		}
	}
	return warns
}

func flags(p *Pattern) string {
	f := ""
	if !p.CaseSensitive {
		f += "i"
	}
	if p.Multiline {
		f += "m"
	}
	if f == "" {
		return ""
	}
	return "(?" + f + ")"
}

// Regexp returns the compiled expression, or nil for an inert pattern.
func (p *Pattern) Regexp() *regexp.Regexp { return p.re }

// Validate reports whether the candidate fully matches the validation
// expression. Patterns without a validator accept everything.
func (p *Pattern) Validate(candidate string) bool {
	if p.validation == nil {
		return true
	}
	return p.validation.MatchString(candidate)
}

// Clean applies the cleanup substitution to a matched value. With no
// replacement configured the matched fragment is removed, matching the
// behavior template authors rely on for stripping OCR artifacts.
func (p *Pattern) Clean(value string) string {
	if p.cleanup == nil {
		return value
	}
	return p.cleanup.ReplaceAllString(value, p.Replacement)
}

// HeaderMatch reports whether the normalized header line satisfies any of
// the rule's header patterns.
func (r *TableRule) HeaderMatch(header string) bool {
	for _, re := range r.headerRes {
		if re.MatchString(header) {
			return true
		}
	}
	return false
}
