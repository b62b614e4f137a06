package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/invoicetools/template-engine/internal/template"
)

// Document is the engine's input contract: already-linearized text plus
// zero or more table-cell grids, as produced by an external PDF provider.
type Document interface {
	Text() string
	Tables() [][][]string
}

// Engine runs the full extraction pipeline for one document: template
// detection, field extraction, table extraction, result assembly. It is
// safe for concurrent use; all per-document state is local to Process.
type Engine struct {
	logger   *slog.Logger
	detector *Detector
	fields   *FieldExtractor
	tables   *TableExtractor
}

// Options tune engine behavior; the zero value gives defaults.
type Options struct {
	PatternBudget time.Duration
}

func New(logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	budget := opts.PatternBudget
	return &Engine{
		logger:   logger,
		detector: NewDetector(logger, budget),
		fields:   NewFieldExtractor(logger, budget),
		tables:   NewTableExtractor(logger, budget),
	}
}

// Process extracts one document. hint, when non-empty, is a free-text
// supplier name used to short-circuit detection. The context is checked
// between pattern evaluations, so a cancelled document stops promptly with
// nothing to roll back.
func (e *Engine) Process(ctx context.Context, doc Document, repo *template.Repository, hint string) (*Result, error) {
	start := time.Now()
	rawText := doc.Text()

	t, score, err := e.detector.Detect(ctx, rawText, repo, hint)
	if err != nil {
		return nil, err
	}

	fields, confidence, missing, err := e.fields.Extract(ctx, rawText, t)
	if err != nil {
		return nil, err
	}

	items, err := e.tables.Extract(ctx, doc.Tables(), t)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		items, err = e.tables.ExtractFromText(ctx, rawText, t)
		if err != nil {
			return nil, err
		}
	}

	e.applySummary(t, doc.Tables(), fields, confidence)
	backfillAmounts(fields, confidence)
	// Backfill may have recovered required fields; the missing list must
	// reflect the final field set before quality is scored.
	missing = stillMissing(missing, fields)

	res := Assemble(t, score, fields, confidence, missing, items)
	e.logger.Info("extract.ok",
		"template_id", t.ID,
		"fields", len(fields),
		"line_items", len(items),
		"missing_required", len(missing),
		"quality", res.Quality,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// applySummary fills absent amount fields from a key-value shaped summary
// table when the template declares one.
func (e *Engine) applySummary(t *template.Template, grids [][][]string, fields map[string]any, confidence map[string]float64) {
	var rule *template.TableRule
	for _, tr := range t.TableRules {
		if tr.TableName == "summary" {
			rule = tr
			break
		}
	}
	if rule == nil {
		return
	}

	n := newNormalizer(t)
	for _, grid := range grids {
		for _, row := range grid {
			if len(row) < 2 {
				continue
			}
			key := normalizeHeader(row[0])
			canonical, ok := rule.ColumnMapping[key]
			if !ok {
				continue
			}
			if _, present := fields[canonical]; present {
				continue
			}
			d, err := n.Amount(strings.TrimSpace(row[len(row)-1]))
			if err != nil {
				continue
			}
			fields[canonical] = d
			confidence[canonical] = summaryConfidence
		}
	}
}

// Values recovered from a summary table carry a fixed, modest confidence.
const summaryConfidence = 0.5

// backfillAmounts derives whichever of net/vat/total is missing when the
// other two are present as decimals.
func backfillAmounts(fields map[string]any, confidence map[string]float64) {
	total, okT := fields["total_amount"].(decimal.Decimal)
	vat, okV := fields["vat_amount"].(decimal.Decimal)
	net, okN := fields["net_amount"].(decimal.Decimal)

	switch {
	case okT && okV && !okN:
		fields["net_amount"] = total.Sub(vat)
		confidence["net_amount"] = minConf(confidence, "total_amount", "vat_amount")
	case okN && okV && !okT:
		fields["total_amount"] = net.Add(vat)
		confidence["total_amount"] = minConf(confidence, "net_amount", "vat_amount")
	case okT && okN && !okV:
		fields["vat_amount"] = total.Sub(net)
		confidence["vat_amount"] = minConf(confidence, "total_amount", "net_amount")
	}
}

// stillMissing drops the names that backfill has since filled in.
func stillMissing(missing []string, fields map[string]any) []string {
	var out []string
	for _, name := range missing {
		if _, ok := fields[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

func minConf(confidence map[string]float64, a, b string) float64 {
	if confidence[a] < confidence[b] {
		return confidence[a]
	}
	return confidence[b]
}
