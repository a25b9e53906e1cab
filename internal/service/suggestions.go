package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/phenodx-server/internal/domain"
	"github.com/phenodx-server/pkg/external"
)

// SuggestionService proposes further phenotypes to ask the patient about.
type SuggestionService struct {
	catalog  domain.TermCatalog
	remote   external.SuggestionAPI
	observer Observer
	logger   *logrus.Logger
}

// NewSuggestionService creates a suggestion service. remote may be nil, in
// which case only local suggestions are available.
func NewSuggestionService(catalog domain.TermCatalog, remote external.SuggestionAPI, observer Observer, logger *logrus.Logger) *SuggestionService {
	if observer == nil {
		observer = NopObserver{}
	}
	return &SuggestionService{catalog: catalog, remote: remote, observer: observer, logger: logger}
}

// Local collects the unmatched phenotypes of the current diagnoses that the
// patient has not reported, in first-seen order. Ids missing from the
// catalog are dropped.
func (s *SuggestionService) Local(diagnoses []domain.Diagnosis, symptoms []domain.PatientSymptom) []domain.VocabularyTerm {
	seen := make(map[string]bool, len(symptoms))
	for _, sym := range symptoms {
		seen[sym.ID] = true
	}

	out := make([]domain.VocabularyTerm, 0)
	for _, d := range diagnoses {
		for _, id := range d.UnmatchedSymptoms {
			if seen[id] {
				continue
			}
			seen[id] = true
			term, ok := s.catalog.Get(id)
			if !ok {
				continue
			}
			out = append(out, term)
		}
	}
	return out
}

// Suggest asks the suggestion backend for related phenotypes. Failures are
// reported as ErrSuggestionUnavailable.
func (s *SuggestionService) Suggest(ctx context.Context, symptoms []domain.PatientSymptom) ([]domain.VocabularyTerm, error) {
	if s.remote == nil {
		return nil, fmt.Errorf("no suggestion backend configured: %w", domain.ErrSuggestionUnavailable)
	}
	if len(symptoms) == 0 {
		return []domain.VocabularyTerm{}, nil
	}

	names := make([]string, len(symptoms))
	selected := make(map[string]bool, len(symptoms))
	for i, sym := range symptoms {
		names[i] = sym.Name
		selected[sym.ID] = true
	}

	resp, err := s.remote.SuggestSymptoms(ctx, &external.SuggestRequest{Symptoms: names})
	if err != nil {
		s.observer.RecordSuggestion(false)
		s.logger.WithError(err).Warn("Suggestion backend request failed")
		return nil, fmt.Errorf("%v: %w", err, domain.ErrSuggestionUnavailable)
	}
	s.observer.RecordSuggestion(true)

	out := make([]domain.VocabularyTerm, 0, len(resp.SuggestedSymptoms))
	for _, sug := range resp.SuggestedSymptoms {
		id := strings.TrimSpace(sug.HPOID)
		if id == "" || selected[id] {
			continue
		}
		selected[id] = true
		if term, ok := s.catalog.Get(id); ok {
			out = append(out, term)
			continue
		}
		out = append(out, domain.VocabularyTerm{ID: id, Name: sug.HPOTerm})
	}
	return out, nil
}
