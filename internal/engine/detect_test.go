package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoicetools/template-engine/internal/template"
)

func loadRepo(t *testing.T, docs map[string]string) *template.Repository {
	t.Helper()
	dir := t.TempDir()
	for name, doc := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(doc), 0644))
	}
	repo, err := template.Load(dir, slog.Default())
	require.NoError(t, err)
	return repo
}

const detectAcme = `{
  "template_id": "acme_nl",
  "supplier_name": "Acme B.V.",
  "supplier_aliases": ["Acme"],
  "min_confidence": 0.5,
  "fallback_enabled": false,
  "supplier_patterns": [
    {"pattern": "Acme\\s+B\\.V\\.", "confidence_threshold": 0.9, "priority": 10},
    {"pattern": "acme-portal\\.nl", "confidence_threshold": 0.4, "priority": 1}
  ],
  "extraction_rules": [
    {"field_name": "invoice_number", "patterns": [{"pattern": "nr (\\w+)"}]}
  ]
}`

const detectZiggo = `{
  "template_id": "ziggo_nl",
  "supplier_name": "Ziggo B.V.",
  "supplier_aliases": ["Ziggo"],
  "min_confidence": 0.5,
  "fallback_enabled": false,
  "supplier_patterns": [
    {"pattern": "Ziggo\\s+B\\.V\\.", "confidence_threshold": 0.9, "priority": 10}
  ],
  "extraction_rules": [
    {"field_name": "invoice_number", "patterns": [{"pattern": "nr (\\w+)"}]}
  ]
}`

const detectGeneric = `{
  "template_id": "generic_nl",
  "min_confidence": 0.3,
  "fallback_enabled": true,
  "extraction_rules": [
    {"field_name": "invoice_number", "patterns": [{"pattern": "nr (\\w+)"}]}
  ]
}`

func TestDetectPicksMatchingTemplate(t *testing.T) {
	repo := loadRepo(t, map[string]string{
		"acme.json":    detectAcme,
		"ziggo.json":   detectZiggo,
		"generic.json": detectGeneric,
	})
	d := NewDetector(slog.Default(), 0)

	tpl, score, err := d.Detect(context.Background(), "Factuur van Ziggo B.V.\nnr 123", repo, "")
	require.NoError(t, err)
	assert.Equal(t, "ziggo_nl", tpl.ID)
	assert.InDelta(t, 0.9, score, 1e-9)
}

func TestDetectIsDeterministic(t *testing.T) {
	repo := loadRepo(t, map[string]string{
		"acme.json":    detectAcme,
		"ziggo.json":   detectZiggo,
		"generic.json": detectGeneric,
	})
	d := NewDetector(slog.Default(), 0)
	text := "Acme B.V. factuur nr 1"

	t1, s1, err := d.Detect(context.Background(), text, repo, "")
	require.NoError(t, err)
	t2, s2, err := d.Detect(context.Background(), text, repo, "")
	require.NoError(t, err)

	assert.Equal(t, t1.ID, t2.ID)
	assert.Equal(t, s1, s2)
}

func TestDetectHighestPriorityPatternDecides(t *testing.T) {
	// Both Acme patterns match; the score must come from the
	// higher-priority one alone, not a sum.
	repo := loadRepo(t, map[string]string{"acme.json": detectAcme, "generic.json": detectGeneric})
	d := NewDetector(slog.Default(), 0)

	_, score, err := d.Detect(context.Background(), "Acme B.V. via acme-portal.nl", repo, "")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, score, 1e-9)
}

func TestDetectFallsBackToGeneric(t *testing.T) {
	repo := loadRepo(t, map[string]string{
		"acme.json":    detectAcme,
		"generic.json": detectGeneric,
	})
	d := NewDetector(slog.Default(), 0)

	tpl, score, err := d.Detect(context.Background(), "Onbekende leverancier, nr 9", repo, "")
	require.NoError(t, err)
	assert.Equal(t, "generic_nl", tpl.ID)
	assert.Equal(t, 0.0, score)
}

func TestDetectNoFallbackAvailable(t *testing.T) {
	repo := loadRepo(t, map[string]string{"acme.json": detectAcme})
	d := NewDetector(slog.Default(), 0)

	_, _, err := d.Detect(context.Background(), "Onbekende leverancier", repo, "")
	assert.ErrorIs(t, err, ErrNoTemplate)
}

func TestDetectHintShortCircuits(t *testing.T) {
	repo := loadRepo(t, map[string]string{
		"acme.json":    detectAcme,
		"ziggo.json":   detectZiggo,
		"generic.json": detectGeneric,
	})
	d := NewDetector(slog.Default(), 0)

	// Text says Acme, hint says Ziggo: the hint wins with maximum score.
	tpl, score, err := d.Detect(context.Background(), "Acme B.V. factuur", repo, "ziggo")
	require.NoError(t, err)
	assert.Equal(t, "ziggo_nl", tpl.ID)
	assert.Equal(t, 1.0, score)
}

func TestDetectTieBrokenByRepositoryOrder(t *testing.T) {
	// Two templates with identical signatures: the one declared first in
	// the repository (alphabetical file order) must win.
	same := func(id string) string {
		return `{
		  "template_id": "` + id + `",
		  "supplier_name": "Twin B.V.",
		  "min_confidence": 0.5,
		  "fallback_enabled": false,
		  "supplier_patterns": [{"pattern": "Twin\\s+B\\.V\\.", "confidence_threshold": 0.8, "priority": 5}],
		  "extraction_rules": [{"field_name": "invoice_number", "patterns": [{"pattern": "nr (\\w+)"}]}]
		}`
	}
	repo := loadRepo(t, map[string]string{
		"a_twin.json": same("twin_a"),
		"b_twin.json": same("twin_b"),
	})
	d := NewDetector(slog.Default(), 0)

	tpl, _, err := d.Detect(context.Background(), "Twin B.V. factuur", repo, "")
	require.NoError(t, err)
	assert.Equal(t, "twin_a", tpl.ID)
}

func TestDetectRespectsCancellation(t *testing.T) {
	repo := loadRepo(t, map[string]string{"acme.json": detectAcme, "generic.json": detectGeneric})
	d := NewDetector(slog.Default(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := d.Detect(ctx, "Acme B.V.", repo, "")
	assert.ErrorIs(t, err, context.Canceled)
}
