package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenodx-server/internal/domain"
)

func diagnosisIDs(ds []domain.Diagnosis) []string {
	ids := make([]string, len(ds))
	for i, d := range ds {
		ids[i] = d.ID
	}
	return ids
}

func TestReferenceRanker_EmptyInput(t *testing.T) {
	r := NewReferenceRanker(testLogger())

	results, err := r.Rank(context.Background(), nil)

	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestReferenceRanker_Scenarios(t *testing.T) {
	tests := []struct {
		name       string
		symptoms   []domain.PatientSymptom
		wantIDs    []string
		wantScores []float64
	}{
		{
			name:       "seizure alone",
			symptoms:   []domain.PatientSymptom{symptom("HP:0001250", "Seizure")},
			wantIDs:    []string{"D002", "D004", "D006"},
			wantScores: []float64{90, 30, 20},
		},
		{
			name: "seizure with spasticity",
			symptoms: []domain.PatientSymptom{
				symptom("HP:0001250", "Seizure"),
				symptom("HP:0001257", "Spasticity"),
			},
			wantIDs:    []string{"D002", "D004", "D006"},
			wantScores: []float64{90, 80, 20},
		},
		{
			name: "dyspnea with fever",
			symptoms: []domain.PatientSymptom{
				symptom("HP:0002094", "Dyspnea"),
				symptom("HP:0001945", "Fever"),
			},
			wantIDs:    []string{"D003"},
			wantScores: []float64{75},
		},
		{
			name:       "dyspnea alone",
			symptoms:   []domain.PatientSymptom{symptom("HP:0002094", "Dyspnea")},
			wantIDs:    []string{"D003"},
			wantScores: []float64{25},
		},
		{
			name:       "ties keep table order",
			symptoms:   []domain.PatientSymptom{symptom("HP:0001347", "Hyperreflexia")},
			wantIDs:    []string{"D002", "D004"},
			wantScores: []float64{30, 30},
		},
		{
			name:       "no overlap",
			symptoms:   []domain.PatientSymptom{symptom("HP:0000508", "Ptosis")},
			wantIDs:    []string{},
			wantScores: []float64{},
		},
	}

	r := NewReferenceRanker(testLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := r.Rank(context.Background(), tt.symptoms)
			require.NoError(t, err)

			assert.Equal(t, tt.wantIDs, diagnosisIDs(results))
			scores := make([]float64, len(results))
			for i, d := range results {
				scores[i] = d.ConfidenceScore
				assert.Equal(t, domain.SourceReference, d.Source)
			}
			assert.Equal(t, tt.wantScores, scores)
		})
	}
}

func TestReferenceRanker_MatchedAndUnmatched(t *testing.T) {
	r := NewReferenceRanker(testLogger())

	results, err := r.Rank(context.Background(), []domain.PatientSymptom{
		symptom("HP:0001250", "Seizure"),
		symptom("HP:0001251", "Ataxia"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	epilepsy := results[0]
	assert.Equal(t, "Epilepsy", epilepsy.Name)
	assert.Equal(t, []domain.MatchedSymptom{
		{SymptomID: "HP:0001250", Weight: 0.95},
		{SymptomID: "HP:0001251", Weight: 0.4},
	}, epilepsy.MatchedSymptoms)
	assert.Equal(t, []string{"HP:0002353", "HP:0001347"}, epilepsy.UnmatchedSymptoms)
	assert.NotEmpty(t, epilepsy.References)

	for _, d := range results {
		assert.NotEmpty(t, d.MatchedSymptoms, d.Name)
		for _, id := range d.UnmatchedSymptoms {
			assert.NotEqual(t, "HP:0001250", id)
			assert.NotEqual(t, "HP:0001251", id)
		}
	}
}

func TestReferenceRanker_CancelledContext(t *testing.T) {
	r := NewReferenceRanker(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Rank(ctx, []domain.PatientSymptom{symptom("HP:0001250", "Seizure")})

	assert.ErrorIs(t, err, context.Canceled)
}
