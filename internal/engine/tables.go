package engine

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/invoicetools/template-engine/internal/template"
)

// LineItem is one extracted table row keyed by canonical field names.
type LineItem map[string]any

// TableExtractor turns table-cell grids (and, as a fallback, raw text
// lines) into line-item records according to a template's table rules.
type TableExtractor struct {
	logger *slog.Logger
	m      matcher
}

func NewTableExtractor(logger *slog.Logger, budget time.Duration) *TableExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TableExtractor{logger: logger, m: newMatcher(budget)}
}

// Extract tries each table rule in order against every grid and returns the
// rows of the first rule that is satisfied. An unsatisfied rule simply
// falls through to the next one; no rule satisfied means no line items.
func (e *TableExtractor) Extract(ctx context.Context, grids [][][]string, t *template.Template) ([]LineItem, error) {
	n := newNormalizer(t)

	for _, rule := range t.TableRules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, grid := range grids {
			items := e.extractGrid(rule, grid, n)
			if items != nil {
				e.logger.Debug("table.ok", "template_id", t.ID, "table", rule.TableName, "rows", len(items))
				return items, nil
			}
		}
	}
	return nil, nil
}

// extractGrid applies one rule to one grid. It returns nil when the rule is
// not satisfied (no header, too few rows, or a required column missing).
func (e *TableExtractor) extractGrid(rule *template.TableRule, grid [][]string, n normalizer) []LineItem {
	headerIdx, columns := e.findHeader(rule, grid)
	if headerIdx < 0 {
		return nil
	}

	var items []LineItem
	for _, row := range grid[headerIdx+1:] {
		if blankRow(row) {
			break
		}
		item, ok := e.parseRow(rule, columns, row, n)
		if !ok {
			continue // numeric parse failure excludes the row, not the table
		}
		if len(item) == 0 {
			break // row matches none of the mapped columns: table ended
		}
		items = append(items, item)
	}

	if len(items) < rule.MinRows {
		return nil
	}
	for _, item := range items {
		for _, req := range rule.RequiredColumns {
			if _, ok := item[req]; !ok {
				return nil
			}
		}
	}
	return items
}

// findHeader locates the header row and maps each cell index to its
// canonical field name. Rows before the header are ignored.
func (e *TableExtractor) findHeader(rule *template.TableRule, grid [][]string) (int, map[int]string) {
	for i, row := range grid {
		joined := normalizeHeader(strings.Join(row, " "))
		if !rule.HeaderMatch(joined) {
			continue
		}
		columns := make(map[int]string)
		for col, cell := range row {
			key := normalizeHeader(cell)
			if canonical, ok := rule.ColumnMapping[key]; ok {
				columns[col] = canonical
			}
			// unmapped columns are dropped
		}
		if len(columns) > 0 {
			return i, columns
		}
	}
	return -1, nil
}

func (e *TableExtractor) parseRow(rule *template.TableRule, columns map[int]string, row []string, n normalizer) (LineItem, bool) {
	item := make(LineItem)
	for col, name := range columns {
		if col >= len(row) {
			continue
		}
		cell := strings.TrimSpace(row[col])
		if cell == "" {
			continue
		}
		if rule.IsNumericColumn(name) {
			d, err := n.Amount(cell)
			if err != nil {
				return nil, false
			}
			item[name] = d
		} else {
			item[name] = cell
		}
	}
	return item, true
}

var wsRe = regexp.MustCompile(`\s+`)

func normalizeHeader(s string) string {
	return wsRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ExtractFromText scans raw text lines with the rule's line patterns when
// no grid satisfied any table rule. This recovers line items from invoices
// whose PDF extraction produced no usable table structure.
func (e *TableExtractor) ExtractFromText(ctx context.Context, rawText string, t *template.Template) ([]LineItem, error) {
	n := newNormalizer(t)
	lines := strings.Split(rawText, "\n")

	for _, rule := range t.TableRules {
		if len(rule.LinePatterns) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var items []LineItem
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if line == "" || skipLine(line) {
				continue
			}
			for _, p := range rule.LinePatterns {
				item, ok := e.lineMatch(p, line, n)
				if ok {
					items = append(items, item)
					break
				}
			}
		}
		if len(items) >= rule.MinRows && len(items) > 0 {
			return items, nil
		}
	}
	return nil, nil
}

// lineMatch applies a line pattern and builds a line item from its named
// capture groups. Numeric-looking groups are locale-parsed.
func (e *TableExtractor) lineMatch(p *template.Pattern, line string, n normalizer) (LineItem, bool) {
	re := p.Regexp()
	if re == nil {
		return nil, false
	}
	groups, ok := e.m.submatch(p, line)
	if !ok {
		return nil, false
	}

	item := make(LineItem)
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" || i >= len(groups) || groups[i] == "" {
			continue
		}
		val := strings.TrimSpace(groups[i])
		switch name {
		case "quantity", "unit_price", "total_amount", "vat_rate":
			d, err := n.Amount(val)
			if err != nil {
				return nil, false
			}
			item[name] = d
		default:
			item[name] = val
		}
	}
	if _, ok := item["description"]; !ok {
		return nil, false
	}
	return item, true
}

// Header and summary lines never hold line items; matching one of these
// keywords skips the line outright.
var skipKeywords = []string{
	"factuurnummer", "factuurdatum", "subtotaal", "btw", "totaal",
	"te betalen", "kvk:", "iban:", "bic:", "pagina",
}

func skipLine(line string) bool {
	l := strings.ToLower(line)
	for _, kw := range skipKeywords {
		if strings.Contains(l, kw) {
			return true
		}
	}
	return false
}
