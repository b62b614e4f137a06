package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/invoicetools/template-engine/internal/template"
)

// normalizer converts raw matched strings into typed values using the
// template's locale settings. Failures here are soft: callers keep the raw
// string, because a wrong-format-but-present value beats an absent one.
type normalizer struct {
	decimalSep   string
	thousandsSep string
	dateLayouts  []string
}

func newNormalizer(t *template.Template) normalizer {
	n := normalizer{
		decimalSep:   t.DecimalSeparator,
		thousandsSep: t.ThousandsSeparator,
	}
	if layout := strftimeToLayout(t.DateFormat); layout != "" {
		n.dateLayouts = append(n.dateLayouts, layout)
	}
	n.dateLayouts = append(n.dateLayouts, fallbackDateLayouts...)
	return n
}

// Value normalizes a raw candidate according to the field kind.
func (n normalizer) Value(kind template.FieldKind, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch kind {
	case template.KindAmount, template.KindNumber:
		return n.Amount(raw)
	case template.KindPercentage:
		return n.Percentage(raw)
	case template.KindDate:
		return n.Date(raw)
	default:
		return raw, nil
	}
}

var currencyReplacer = strings.NewReplacer("€", "", "$", "", "£", "", "¥", "", " ", "", " ", "")

// Amount parses a monetary string into a fixed-point decimal using the
// template's separators, with a heuristic for values that use the other
// locale's separators anyway.
func (n normalizer) Amount(raw string) (decimal.Decimal, error) {
	cleaned := currencyReplacer.Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")

	switch {
	case hasComma && hasDot:
		// The rightmost separator is the decimal mark.
		if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case hasComma:
		parts := strings.Split(cleaned, ",")
		if len(parts) == 2 && len(parts[1]) <= 2 {
			cleaned = parts[0] + "." + parts[1]
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case hasDot && n.decimalSep == ",":
		// Template locale says dot is the thousands separator; only treat
		// it as such when it cannot be a decimal mark.
		parts := strings.Split(cleaned, ".")
		if len(parts) == 2 && len(parts[1]) == 3 {
			cleaned = parts[0] + parts[1]
		}
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return d, nil
}

// Percentage parses "21%" or "21,0 %" into a decimal.
func (n normalizer) Percentage(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	return n.Amount(s)
}

// Dutch month names appear in full-text invoice dates; they are folded to
// English before layout parsing. This is the explicit secondary parser for
// textual month locales.
var dutchMonths = map[string]string{
	"januari": "January", "februari": "February", "maart": "March",
	"april": "April", "mei": "May", "juni": "June",
	"juli": "July", "augustus": "August", "september": "September",
	"oktober": "October", "november": "November", "december": "December",
}

var fallbackDateLayouts = []string{
	"2 January 2006",
	"02.01.2006",
	"02-01-2006",
	"02/01/2006",
	"2-1-2006",
	"2/1/2006",
	"02-01-06",
	"02/01/06",
	"2006-01-02",
}

// Date parses a date string using the template's configured format first,
// then a fixed set of common invoice layouts.
func (n normalizer) Date(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	for nl, en := range dutchMonths {
		if strings.Contains(lower, nl) {
			idx := strings.Index(lower, nl)
			s = s[:idx] + en + s[idx+len(nl):]
			break
		}
	}

	for _, layout := range n.dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

// strftimeToLayout translates the strftime-style tokens used in template
// files into a Go time layout. Unknown tokens make the format unusable and
// yield "".
func strftimeToLayout(format string) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			b.WriteByte(format[i])
			continue
		}
		if i+1 >= len(format) {
			return ""
		}
		i++
		switch format[i] {
		case 'd':
			b.WriteString("02")
		case 'm':
			b.WriteString("01")
		case 'Y':
			b.WriteString("2006")
		case 'y':
			b.WriteString("06")
		case 'B':
			b.WriteString("January")
		case 'b':
			b.WriteString("Jan")
		case '%':
			b.WriteByte('%')
		default:
			return ""
		}
	}
	return b.String()
}
