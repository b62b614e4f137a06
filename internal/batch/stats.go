package batch

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// Stats records per-template usage and success counts. Extraction itself
// never touches this store; the batch runner is the single writer, after
// each document completes, so workers stay lock-free.
type Stats struct {
	db *sql.DB
	mu sync.Mutex
}

const statsSchema = `
CREATE TABLE IF NOT EXISTS template_stats (
	template_id TEXT PRIMARY KEY,
	usage_count INTEGER NOT NULL DEFAULT 0,
	success_count INTEGER NOT NULL DEFAULT 0
);`

// OpenStats opens (and if needed creates) the bookkeeping database at path.
// Use ":memory:" for an ephemeral store.
func OpenStats(path string) (*Stats, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open stats db: %w", err)
	}
	// One writer, serialized by the mutex anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(statsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init stats schema: %w", err)
	}
	return &Stats{db: db}, nil
}

func (s *Stats) Close() error { return s.db.Close() }

// Record bumps the usage counter for a template, and the success counter
// when the document extracted with a non-zero quality score.
func (s *Stats) Record(ctx context.Context, templateID string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	succ := 0
	if success {
		succ = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO template_stats (template_id, usage_count, success_count)
		VALUES (?, 1, ?)
		ON CONFLICT(template_id) DO UPDATE SET
			usage_count = usage_count + 1,
			success_count = success_count + excluded.success_count`,
		templateID, succ)
	if err != nil {
		return fmt.Errorf("record stats: %w", err)
	}
	return nil
}

// TemplateStats is one row of bookkeeping.
type TemplateStats struct {
	TemplateID   string
	UsageCount   int
	SuccessCount int
}

// SuccessRate is successes over uses; 0 for unused templates.
func (t TemplateStats) SuccessRate() float64 {
	if t.UsageCount == 0 {
		return 0
	}
	return float64(t.SuccessCount) / float64(t.UsageCount)
}

// Snapshot returns all counters ordered by usage, highest first.
func (s *Stats) Snapshot(ctx context.Context) ([]TemplateStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT template_id, usage_count, success_count
		FROM template_stats ORDER BY usage_count DESC, template_id`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var out []TemplateStats
	for rows.Next() {
		var t TemplateStats
		if err := rows.Scan(&t.TemplateID, &t.UsageCount, &t.SuccessCount); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
