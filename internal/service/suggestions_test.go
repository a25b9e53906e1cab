package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenodx-server/internal/catalog"
	"github.com/phenodx-server/internal/domain"
	"github.com/phenodx-server/pkg/external"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Open(catalog.Config{}, testLogger())
	require.NoError(t, err)
	return c
}

func TestSuggestionService_Local(t *testing.T) {
	s := NewSuggestionService(testCatalog(t), nil, nil, testLogger())
	diagnoses := []domain.Diagnosis{
		{ID: "D002", UnmatchedSymptoms: []string{"HP:0002353", "HP:0001347"}},
		{ID: "D004", UnmatchedSymptoms: []string{"HP:0001257", "HP:0001347", "HP:9999999"}},
	}
	symptoms := []domain.PatientSymptom{
		symptom("HP:0001250", "Seizure"),
		symptom("HP:0001257", "Spasticity"),
	}

	got := s.Local(diagnoses, symptoms)

	ids := make([]string, len(got))
	for i, term := range got {
		ids[i] = term.ID
	}
	assert.Equal(t, []string{"HP:0002353", "HP:0001347"}, ids)
	assert.Equal(t, "EEG abnormality", got[0].Name)
}

func TestSuggestionService_Remote(t *testing.T) {
	api := &fakeSuggestionAPI{resp: &external.SuggestResponse{SuggestedSymptoms: []external.SuggestedSymptom{
		{HPOID: "HP:0001251", HPOTerm: "Ataxia"},
		{HPOID: "HP:0001250", HPOTerm: "Seizure"},
		{HPOID: "HP:0012345", HPOTerm: "Something new"},
		{HPOID: "HP:0001251", HPOTerm: "Ataxia"},
	}}}
	obs := &countingObserver{}
	s := NewSuggestionService(testCatalog(t), api, obs, testLogger())

	got, err := s.Suggest(context.Background(), []domain.PatientSymptom{symptom("HP:0001250", "Seizure")})
	require.NoError(t, err)

	assert.Equal(t, []string{"Seizure"}, api.last.Symptoms)
	require.Len(t, got, 2)
	assert.Equal(t, "HP:0001251", got[0].ID)
	assert.Equal(t, domain.VocabularyTerm{ID: "HP:0012345", Name: "Something new"}, got[1])
	assert.Equal(t, 1, obs.suggestions[true])
}

func TestSuggestionService_RemoteFailure(t *testing.T) {
	obs := &countingObserver{}
	s := NewSuggestionService(testCatalog(t), &fakeSuggestionAPI{err: external.ErrUpstream}, obs, testLogger())

	_, err := s.Suggest(context.Background(), []domain.PatientSymptom{symptom("HP:0001250", "Seizure")})

	assert.ErrorIs(t, err, domain.ErrSuggestionUnavailable)
	assert.Equal(t, 1, obs.suggestions[false])
}

func TestSuggestionService_NoBackend(t *testing.T) {
	s := NewSuggestionService(testCatalog(t), nil, nil, testLogger())

	_, err := s.Suggest(context.Background(), []domain.PatientSymptom{symptom("HP:0001250", "Seizure")})

	assert.ErrorIs(t, err, domain.ErrSuggestionUnavailable)
}
