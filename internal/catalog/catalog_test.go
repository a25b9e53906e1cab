package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenodx-server/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func createTestCatalog(t *testing.T, terms []domain.VocabularyTerm) *Catalog {
	t.Helper()
	c, err := New(Config{CacheSize: 16}, testLogger())
	require.NoError(t, err)
	c.LoadTerms(terms)
	return c
}

func TestSearch_CaseInsensitiveSubstringInCatalogOrder(t *testing.T) {
	c := createTestCatalog(t, []domain.VocabularyTerm{
		{ID: "HP:0001250", Name: "Seizure"},
		{ID: "HP:0002315", Name: "Headache"},
		{ID: "HP:0011097", Name: "Epileptic spasm", Definition: "seizure-like"},
		{ID: "HP:0007359", Name: "Focal-onset seizure"},
	})

	results, err := c.Search(context.Background(), "SEIZ")
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "HP:0001250", results[0].ID)
	assert.Equal(t, "HP:0007359", results[1].ID)
}

func TestSearch_NameOnly(t *testing.T) {
	c := createTestCatalog(t, []domain.VocabularyTerm{
		{ID: "HP:0001250", Name: "Seizure", Synonyms: []string{"Fits"}},
	})

	results, err := c.Search(context.Background(), "fits")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_CachesResults(t *testing.T) {
	c := createTestCatalog(t, DefaultTerms())
	ctx := context.Background()

	first, err := c.Search(ctx, "head")
	require.NoError(t, err)
	second, err := c.Search(ctx, "HEAD")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 24, stats.Terms)

	// Mutating a returned slice must not affect the cache
	first[0].Name = "changed"
	third, _ := c.Search(ctx, "head")
	assert.Equal(t, "Headache", third[0].Name)
}

func TestSearch_NotLoaded(t *testing.T) {
	c, err := New(Config{}, testLogger())
	require.NoError(t, err)

	_, err = c.Search(context.Background(), "seizure")

	assert.True(t, errors.Is(err, domain.ErrCatalogUnavailable))
}

func TestShouldSearch(t *testing.T) {
	assert.False(t, ShouldSearch(""))
	assert.False(t, ShouldSearch(" s "))
	assert.True(t, ShouldSearch("se"))
}

func TestLoadTerms_SkipsInvalidAndDuplicates(t *testing.T) {
	c := createTestCatalog(t, []domain.VocabularyTerm{
		{ID: "HP:0001250", Name: "Seizure"},
		{ID: "", Name: "No id"},
		{ID: "HP:0000001", Name: ""},
		{ID: "HP:0001250", Name: "Seizure again"},
	})

	assert.Equal(t, 1, c.Len())
	term, ok := c.Get("HP:0001250")
	assert.True(t, ok)
	assert.Equal(t, "Seizure", term.Name)
	_, ok = c.Get("HP:9999999")
	assert.False(t, ok)
}

func TestOpen_FromFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "catalog-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "hpo.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "HP:0001945", "name": "Fever", "categories": ["Abnormality of temperature regulation"]},
		{"id": "HP:0002094", "name": "Dyspnea"}
	]`), 0644))

	c, err := Open(Config{Path: path}, testLogger())
	require.NoError(t, err)

	assert.True(t, c.Ready())
	assert.Equal(t, 2, c.Len())
}

func TestOpen_BadFileLeavesCatalogUnavailable(t *testing.T) {
	c, err := Open(Config{Path: "/nonexistent/hpo.json"}, testLogger())
	require.NoError(t, err)

	assert.False(t, c.Ready())
	assert.NotEmpty(t, c.Stats().LastError)
	_, err = c.Search(context.Background(), "fever")
	assert.ErrorIs(t, err, domain.ErrCatalogUnavailable)
}

func TestOpen_DefaultTerms(t *testing.T) {
	c, err := Open(Config{}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, len(DefaultTerms()), c.Len())
}

func TestExtract(t *testing.T) {
	c := createTestCatalog(t, DefaultTerms())

	found := c.Extract("Patient presents with FEVER and dyspnea; fever persisted 3 days.")

	require.Len(t, found, 2)
	// Catalog order, not text order
	assert.Equal(t, "HP:0002094", found[0].ID)
	assert.Equal(t, "HP:0001945", found[1].ID)

	assert.Empty(t, c.Extract("   "))
	assert.Empty(t, c.Extract("unremarkable examination"))
}

func TestHighlights(t *testing.T) {
	c := createTestCatalog(t, []domain.VocabularyTerm{{ID: "HP:0001945", Name: "Fever"}})

	hl := c.Highlights("fever, then Fever again")

	require.Len(t, hl, 2)
	assert.Equal(t, Highlight{TermID: "HP:0001945", Start: 0, End: 5}, hl[0])
	assert.Equal(t, 12, hl[1].Start)
}
