package engine

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lineItemsTemplate = `{
  "template_id": "t",
  "extraction_rules": [
    {"field_name": "invoice_number", "patterns": [{"pattern": "Factuurnummer[:\\s]+(\\S+)"}]}
  ],
  "table_rules": [{
    "table_name": "line_items",
    "header_patterns": ["omschrijving.*aantal.*bedrag"],
    "column_mapping": {
      "Omschrijving": "description",
      "Aantal": "quantity",
      "Bedrag": "total_amount"
    },
    "numeric_columns": ["quantity", "total_amount"],
    "required_columns": ["description"],
    "min_rows": 1,
    "line_patterns": [{
      "pattern": "^(?P<description>.+?)\\s{2,}(?P<quantity>\\d+)\\s{2,}(?P<total_amount>[\\d.,]+)$"
    }]
  }]
}`

func TestTableExtractSingleRow(t *testing.T) {
	tpl := buildTemplate(t, lineItemsTemplate)
	e := NewTableExtractor(slog.Default(), 0)

	grid := [][]string{
		{"Omschrijving", "Aantal", "Bedrag"},
		{"Abonnement", "1", "45,00"},
	}
	items, err := e.Extract(context.Background(), [][][]string{grid}, tpl)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "Abonnement", items[0]["description"])
	assert.True(t, decimal.NewFromInt(1).Equal(items[0]["quantity"].(decimal.Decimal)))
	assert.True(t, decimal.NewFromInt(45).Equal(items[0]["total_amount"].(decimal.Decimal)))
}

func TestTableExtractSkipsPreamble(t *testing.T) {
	tpl := buildTemplate(t, lineItemsTemplate)
	e := NewTableExtractor(slog.Default(), 0)

	grid := [][]string{
		{"Factuur 2025-001", "", ""},
		{"Omschrijving", "Aantal", "Bedrag"},
		{"Installatie", "2", "120,00"},
		{"Kabel", "3", "7,50"},
	}
	items, err := e.Extract(context.Background(), [][][]string{grid}, tpl)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Kabel", items[1]["description"])
}

func TestTableExtractStopsAtBlankRow(t *testing.T) {
	tpl := buildTemplate(t, lineItemsTemplate)
	e := NewTableExtractor(slog.Default(), 0)

	grid := [][]string{
		{"Omschrijving", "Aantal", "Bedrag"},
		{"Abonnement", "1", "45,00"},
		{"", "", ""},
		{"Totaal", "", "45,00"},
	}
	items, err := e.Extract(context.Background(), [][][]string{grid}, tpl)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestTableExtractNumericFailureExcludesRow(t *testing.T) {
	tpl := buildTemplate(t, lineItemsTemplate)
	e := NewTableExtractor(slog.Default(), 0)

	grid := [][]string{
		{"Omschrijving", "Aantal", "Bedrag"},
		{"Abonnement", "1", "45,00"},
		{"Korting", "n.v.t.", "-"},
		{"Kabel", "2", "7,50"},
	}
	items, err := e.Extract(context.Background(), [][][]string{grid}, tpl)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Abonnement", items[0]["description"])
	assert.Equal(t, "Kabel", items[1]["description"])
}

func TestTableExtractMinRowsNotMet(t *testing.T) {
	tpl := buildTemplate(t, `{
	  "template_id": "t",
	  "table_rules": [{
	    "table_name": "line_items",
	    "header_patterns": ["omschrijving.*bedrag"],
	    "column_mapping": {"Omschrijving": "description", "Bedrag": "total_amount"},
	    "numeric_columns": ["total_amount"],
	    "min_rows": 2
	  }]
	}`)
	e := NewTableExtractor(slog.Default(), 0)

	grid := [][]string{
		{"Omschrijving", "Bedrag"},
		{"Abonnement", "45,00"},
	}
	items, err := e.Extract(context.Background(), [][][]string{grid}, tpl)
	require.NoError(t, err)
	assert.Nil(t, items)
}

func TestTableExtractRequiredColumnMissing(t *testing.T) {
	tpl := buildTemplate(t, lineItemsTemplate)
	e := NewTableExtractor(slog.Default(), 0)

	// Header matches but the description cell is empty, so the required
	// column is absent and the whole table is rejected.
	grid := [][]string{
		{"Omschrijving", "Aantal", "Bedrag"},
		{"", "1", "45,00"},
	}
	items, err := e.Extract(context.Background(), [][][]string{grid}, tpl)
	require.NoError(t, err)
	assert.Nil(t, items)
}

func TestTableExtractNoHeader(t *testing.T) {
	tpl := buildTemplate(t, lineItemsTemplate)
	e := NewTableExtractor(slog.Default(), 0)

	grid := [][]string{
		{"Artikel", "Stuks", "Prijs"},
		{"Abonnement", "1", "45,00"},
	}
	items, err := e.Extract(context.Background(), [][][]string{grid}, tpl)
	require.NoError(t, err)
	assert.Nil(t, items)
}

func TestTableExtractFromTextLines(t *testing.T) {
	tpl := buildTemplate(t, lineItemsTemplate)
	e := NewTableExtractor(slog.Default(), 0)

	text := "Factuurnummer: 2025-001\n" +
		"Internetabonnement  1  45,00\n" +
		"Installatiekosten  1  25,00\n" +
		"Subtotaal  70,00\n"
	items, err := e.ExtractFromText(context.Background(), text, tpl)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Internetabonnement", items[0]["description"])
	assert.True(t, decimal.NewFromInt(25).Equal(items[1]["total_amount"].(decimal.Decimal)))
}

func TestTableExtractFromTextHonorsPatternBudget(t *testing.T) {
	tpl := buildTemplate(t, lineItemsTemplate)
	// Line patterns come from template files too, so they run under the
	// same per-evaluation budget as every other pattern.
	e := NewTableExtractor(slog.Default(), time.Nanosecond)

	line := strings.Repeat("woord ", 200000) + " 1  45,00"
	items, err := e.ExtractFromText(context.Background(), line, tpl)
	require.NoError(t, err)
	assert.Nil(t, items)
}

func TestTableExtractFromTextSkipsSummaryLines(t *testing.T) {
	tpl := buildTemplate(t, lineItemsTemplate)
	e := NewTableExtractor(slog.Default(), 0)

	// Every line is a summary or header keyword; nothing may be extracted.
	text := "Subtotaal  70,00\nBTW 21%  14,70\nTotaal  84,70\n"
	items, err := e.ExtractFromText(context.Background(), text, tpl)
	require.NoError(t, err)
	assert.Nil(t, items)
}
