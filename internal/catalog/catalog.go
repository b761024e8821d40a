// Package catalog provides the static content catalog: base steps,
// ingredients and exercises, loaded from YAML.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hammamikhairi/glowroutine/internal/domain"
	"github.com/hammamikhairi/glowroutine/internal/logger"
)

//go:embed default.yaml
var defaultYAML []byte

// Compile-time interface check.
var _ domain.CatalogProvider = (*Source)(nil)

// Source holds the current catalog in memory. Safe for concurrent reads;
// Reload swaps the whole catalog at once.
type Source struct {
	mu      sync.RWMutex
	catalog *domain.Catalog
	path    string
	log     *logger.Logger
}

// NewDefaultSource creates a source preloaded with the bundled catalog.
func NewDefaultSource(log *logger.Logger) *Source {
	cat, err := Parse(defaultYAML)
	if err != nil {
		// The bundled file is covered by tests.
		panic(fmt.Sprintf("catalog: bundled catalog is invalid: %v", err))
	}
	log.Debug("loaded bundled catalog v%d (%d ingredients, %d exercises)",
		cat.Version, len(cat.Ingredients), len(cat.Exercises))
	return &Source{catalog: cat, log: log}
}

// NewFileSource loads the catalog from a YAML file.
func NewFileSource(path string, log *logger.Logger) (*Source, error) {
	s := &Source{path: path, log: log}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Catalog returns the current catalog. Callers must treat it as read-only.
func (s *Source) Catalog() *domain.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// Path returns the backing file, empty for the bundled catalog.
func (s *Source) Path() string {
	return s.path
}

// Reload re-reads the backing file. On error the previous catalog stays.
func (s *Source) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading catalog %s: %w", s.path, err)
	}
	cat, err := Parse(data)
	if err != nil {
		return fmt.Errorf("parsing catalog %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.catalog = cat
	s.mu.Unlock()

	s.log.Info("catalog loaded from %s (v%d, %d ingredients, %d exercises)",
		s.path, cat.Version, len(cat.Ingredients), len(cat.Exercises))
	return nil
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*domain.Catalog, error) {
	var cat domain.Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, err
	}
	if err := Validate(&cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Validate checks id uniqueness and numeric ranges.
func Validate(cat *domain.Catalog) error {
	ids := make(map[string]string)
	claim := func(kind, id string) error {
		if id == "" {
			return fmt.Errorf("%s with empty id", kind)
		}
		if prev, ok := ids[id]; ok {
			return fmt.Errorf("duplicate id %q (%s and %s)", id, prev, kind)
		}
		ids[id] = kind
		return nil
	}
	checkSession := func(id string, a domain.SessionAction) error {
		if a.WaitAfterSeconds < 0 {
			return fmt.Errorf("%s: negative wait_after_seconds", id)
		}
		if a.DurationSeconds != nil && *a.DurationSeconds < 0 {
			return fmt.Errorf("%s: negative duration_seconds", id)
		}
		return nil
	}

	for _, b := range cat.BaseSteps {
		if err := claim("base step", b.ID); err != nil {
			return err
		}
		if err := checkSession(b.ID, b.Session); err != nil {
			return err
		}
	}
	for _, in := range cat.Ingredients {
		if err := claim("ingredient", in.ID); err != nil {
			return err
		}
		if err := checkSession(in.ID, in.Session); err != nil {
			return err
		}
	}
	for _, ex := range cat.Exercises {
		if err := claim("exercise", ex.ID); err != nil {
			return err
		}
		if err := checkSession(ex.ID, ex.Session); err != nil {
			return err
		}
		if ex.DefaultSets < 0 {
			return fmt.Errorf("%s: negative default_sets", ex.ID)
		}
	}
	return nil
}
