package template

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadError records one template document that could not be loaded. The
// load itself continues; a single malformed file must not take down the
// whole repository.
type LoadError struct {
	File string
	Err  error
}

func (e LoadError) Error() string { return fmt.Sprintf("template %s: %v", e.File, e.Err) }
func (e LoadError) Unwrap() error { return e.Err }

// Repository is the immutable, loaded collection of templates. It is built
// once at startup and shared read-only across batch workers; reload means
// building a new Repository, never mutating this one.
type Repository struct {
	templates []*Template
	byID      map[string]*Template
	warnings  []CompileWarning
	skipped   []LoadError
}

// Load parses every *.json template in dir. Malformed documents are skipped
// and recorded; patterns that fail to compile become inert and are recorded
// as warnings. Load fails only when the directory itself is unreadable or
// when it yields no usable template at all.
func Load(dir string, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read templates dir: %w", err)
	}

	schema := BuildTemplateJSONSchema()
	repo := &Repository{byID: make(map[string]*Template)}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	for _, name := range files {
		path := filepath.Join(dir, name)
		doc, err := os.ReadFile(path)
		if err != nil {
			repo.skip(logger, name, fmt.Errorf("read: %w", err))
			continue
		}
		if err := ValidateJSONAgainstSchema(schema, doc); err != nil {
			repo.skip(logger, name, err)
			continue
		}
		t, err := Decode(doc)
		if err != nil {
			repo.skip(logger, name, err)
			continue
		}
		if _, dup := repo.byID[t.ID]; dup {
			repo.skip(logger, name, fmt.Errorf("duplicate template_id %q", t.ID))
			continue
		}

		warns := Compile(t)
		for _, w := range warns {
			logger.Warn("template.pattern.inert", "template_id", w.TemplateID, "where", w.Where, "error", w.Err)
		}
		repo.warnings = append(repo.warnings, warns...)

		repo.templates = append(repo.templates, t)
		repo.byID[t.ID] = t
	}

	if len(repo.templates) == 0 {
		return nil, fmt.Errorf("no usable templates in %s (%d skipped)", dir, len(repo.skipped))
	}

	// Generic fallback templates go last so declaration-order tie-breaks
	// during detection always prefer a supplier-specific template.
	sort.SliceStable(repo.templates, func(i, j int) bool {
		return !repo.templates[i].generic() && repo.templates[j].generic()
	})

	logger.Info("repository.load",
		"dir", dir,
		"templates", len(repo.templates),
		"skipped", len(repo.skipped),
		"inert_patterns", len(repo.warnings),
	)
	return repo, nil
}

func (r *Repository) skip(logger *slog.Logger, file string, err error) {
	logger.Error("template.skipped", "file", file, "error", err)
	r.skipped = append(r.skipped, LoadError{File: file, Err: err})
}

// All returns templates in repository order: load order with generic
// fallback templates last. Callers must not mutate the returned slice.
func (r *Repository) All() []*Template { return r.templates }

// Get returns the template with the given id, or nil.
func (r *Repository) Get(id string) *Template { return r.byID[id] }

// Fallback returns the first generic fallback template, or nil when the
// repository carries none.
func (r *Repository) Fallback() *Template {
	for _, t := range r.templates {
		if t.generic() && t.FallbackEnabled {
			return t
		}
	}
	return nil
}

// Skipped reports the documents dropped during load.
func (r *Repository) Skipped() []LoadError { return r.skipped }

// Warnings reports the patterns that failed to compile during load.
func (r *Repository) Warnings() []CompileWarning { return r.warnings }

// generic marks templates with no supplier identity of their own. They can
// only be selected through fallback.
func (t *Template) generic() bool {
	return len(t.SupplierPatterns) == 0 && t.SupplierName == "" && len(t.SupplierAliases) == 0
}
