// Package catalog holds the phenotype vocabulary and answers term searches.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/phenodx-server/internal/domain"
)

// MinQueryLength is the shortest trimmed query worth scanning the catalog for.
const MinQueryLength = 2

// ShouldSearch applies the caller policy for short queries.
func ShouldSearch(query string) bool {
	return len([]rune(strings.TrimSpace(query))) >= MinQueryLength
}

// Config controls catalog loading and caching
type Config struct {
	Path      string // JSON file of terms; empty loads the bundled terms
	CacheSize int    // search result LRU capacity
}

// Stats reports cache performance
type Stats struct {
	Terms     int       `json:"terms"`
	Hits      int64     `json:"hits"`
	Misses    int64     `json:"misses"`
	Searches  int64     `json:"searches"`
	LoadedAt  time.Time `json:"loaded_at"`
	LastError string    `json:"last_error,omitempty"`
}

// Catalog is an immutable, insertion-ordered set of vocabulary terms.
// Searches are safe for concurrent use.
type Catalog struct {
	mu         sync.RWMutex
	terms      []domain.VocabularyTerm
	lowerNames []string
	byID       map[string]int
	loaded     bool
	loadedAt   time.Time
	loadErr    error

	cache  *lru.Cache[string, []domain.VocabularyTerm]
	logger *logrus.Logger

	hits     atomic.Int64
	misses   atomic.Int64
	searches atomic.Int64
}

// New creates an empty catalog. Call Load or LoadTerms before searching.
func New(cfg Config, logger *logrus.Logger) (*Catalog, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 512
	}
	cache, err := lru.New[string, []domain.VocabularyTerm](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create search cache: %w", err)
	}
	return &Catalog{
		byID:   make(map[string]int),
		cache:  cache,
		logger: logger,
	}, nil
}

// Open creates a catalog and loads it from cfg.Path, or from the bundled
// terms when no path is configured. A load failure is recorded, not
// returned: searches then report ErrCatalogUnavailable.
func Open(cfg Config, logger *logrus.Logger) (*Catalog, error) {
	c, err := New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		c.LoadTerms(DefaultTerms())
		return c, nil
	}
	if err := c.Load(cfg.Path); err != nil {
		logger.WithError(err).WithField("path", cfg.Path).Error("Failed to load term catalog")
	}
	return c, nil
}

// Load reads a JSON array of terms from path.
func (c *Catalog) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		c.fail(err)
		return fmt.Errorf("failed to read catalog %s: %w", path, domain.ErrCatalogUnavailable)
	}

	var terms []domain.VocabularyTerm
	if err := json.Unmarshal(data, &terms); err != nil {
		c.fail(err)
		return fmt.Errorf("failed to parse catalog %s: %w", path, domain.ErrCatalogUnavailable)
	}

	c.LoadTerms(terms)
	return nil
}

// LoadTerms replaces the catalog contents. Terms with an empty id or name
// and repeated ids are skipped; the first occurrence wins.
func (c *Catalog) LoadTerms(terms []domain.VocabularyTerm) {
	kept := make([]domain.VocabularyTerm, 0, len(terms))
	lower := make([]string, 0, len(terms))
	byID := make(map[string]int, len(terms))

	for _, t := range terms {
		t.ID = strings.TrimSpace(t.ID)
		t.Name = strings.TrimSpace(t.Name)
		if t.ID == "" || t.Name == "" {
			continue
		}
		if _, dup := byID[t.ID]; dup {
			continue
		}
		byID[t.ID] = len(kept)
		kept = append(kept, t)
		lower = append(lower, strings.ToLower(t.Name))
	}

	c.mu.Lock()
	c.terms = kept
	c.lowerNames = lower
	c.byID = byID
	c.loaded = true
	c.loadErr = nil
	c.loadedAt = time.Now()
	c.mu.Unlock()
	c.cache.Purge()

	c.logger.WithField("terms", len(kept)).Info("Term catalog loaded")
}

func (c *Catalog) fail(err error) {
	c.mu.Lock()
	c.loadErr = err
	c.mu.Unlock()
}

// Search returns terms whose name contains query, case-insensitively, in
// catalog order. Only names are matched.
func (c *Catalog) Search(ctx context.Context, query string) ([]domain.VocabularyTerm, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if !loaded {
		return nil, fmt.Errorf("search %q: %w", query, domain.ErrCatalogUnavailable)
	}

	c.searches.Add(1)
	key := strings.ToLower(strings.TrimSpace(query))
	if cached, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return cloneTerms(cached), nil
	}
	c.misses.Add(1)

	c.mu.RLock()
	results := make([]domain.VocabularyTerm, 0)
	for i, name := range c.lowerNames {
		if strings.Contains(name, key) {
			results = append(results, c.terms[i])
		}
	}
	c.mu.RUnlock()

	c.cache.Add(key, results)
	c.logger.WithFields(logrus.Fields{
		"query":   key,
		"results": len(results),
	}).Debug("Catalog search")

	return cloneTerms(results), nil
}

// Get returns the term with id.
func (c *Catalog) Get(id string) (domain.VocabularyTerm, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byID[id]
	if !ok {
		return domain.VocabularyTerm{}, false
	}
	return c.terms[i], true
}

// Len returns the number of loaded terms.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.terms)
}

// Ready reports whether a catalog has been loaded successfully.
func (c *Catalog) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Stats returns cache statistics
func (c *Catalog) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Stats{
		Terms:    len(c.terms),
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Searches: c.searches.Load(),
		LoadedAt: c.loadedAt,
	}
	if c.loadErr != nil {
		s.LastError = c.loadErr.Error()
	}
	return s
}

func cloneTerms(in []domain.VocabularyTerm) []domain.VocabularyTerm {
	out := make([]domain.VocabularyTerm, len(in))
	copy(out, in)
	return out
}
