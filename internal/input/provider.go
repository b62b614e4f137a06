// Package input supplies documents to the engine. The engine itself only
// sees the Document contract: plain text plus string grids; how they were
// produced (PDF text layer, OCR, fixtures) is the provider's business.
package input

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Document is pre-extracted invoice content.
type Document struct {
	Name      string
	RawText   string
	RawTables [][][]string
}

func (d *Document) Text() string         { return d.RawText }
func (d *Document) Tables() [][][]string { return d.RawTables }

// LoadFile reads a document from a .txt file. A sibling
// "<name>.tables.json" file, when present, supplies the table grids as a
// JSON array of grids (grid = rows of cell strings).
func LoadFile(path string) (*Document, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	doc := &Document{
		Name:    filepath.Base(path),
		RawText: string(text),
	}

	tablesPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".tables.json"
	raw, err := os.ReadFile(tablesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, fmt.Errorf("read tables: %w", err)
	}
	if err := json.Unmarshal(raw, &doc.RawTables); err != nil {
		return nil, fmt.Errorf("parse tables %s: %w", tablesPath, err)
	}
	return doc, nil
}

// ScanDirectory lists the extractable documents (.txt) under dir,
// non-recursively, in name order.
func ScanDirectory(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan input dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}
