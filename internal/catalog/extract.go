package catalog

import (
	"strings"

	"github.com/phenodx-server/internal/domain"
)

// Extract returns the terms whose name occurs in text, case-insensitively,
// in catalog order and each at most once.
func (c *Catalog) Extract(text string) []domain.VocabularyTerm {
	lowered := strings.ToLower(text)
	found := make([]domain.VocabularyTerm, 0)
	if strings.TrimSpace(lowered) == "" {
		return found
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for i, name := range c.lowerNames {
		if strings.Contains(lowered, name) {
			found = append(found, c.terms[i])
		}
	}
	return found
}

// Highlight is a matched span of text.
type Highlight struct {
	TermID string `json:"term_id"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

// Highlights locates every occurrence of an extracted term name in text.
// Offsets are byte positions into text.
func (c *Catalog) Highlights(text string) []Highlight {
	lowered := strings.ToLower(text)
	out := make([]Highlight, 0)

	c.mu.RLock()
	defer c.mu.RUnlock()
	for i, name := range c.lowerNames {
		offset := 0
		for {
			idx := strings.Index(lowered[offset:], name)
			if idx < 0 {
				break
			}
			start := offset + idx
			out = append(out, Highlight{TermID: c.terms[i].ID, Start: start, End: start + len(name)})
			offset = start + len(name)
		}
	}
	return out
}
