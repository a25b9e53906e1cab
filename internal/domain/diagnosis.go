package domain

import (
	"time"
)

// Diagnosis is a candidate condition ranked against the patient's symptoms.
// Remote backends put the MIM number in ID and their similarity score in
// ConfidenceScore.
type Diagnosis struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	ConfidenceScore   float64          `json:"confidence_score"`
	MatchedSymptoms   []MatchedSymptom `json:"matched_symptoms"`
	UnmatchedSymptoms []string         `json:"unmatched_symptoms"`
	References        []Reference      `json:"references,omitempty"`
	Source            RankingSource    `json:"source,omitempty"`
}

// MatchedSymptom links a diagnosis to one of the patient's symptoms.
type MatchedSymptom struct {
	SymptomID string  `json:"symptom_id"`
	Weight    float64 `json:"weight"`
}

// Reference represents a literature or clinical guideline reference
type Reference struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// HasMatch reports whether symptomID is among the matched symptoms.
func (d Diagnosis) HasMatch(symptomID string) bool {
	for _, m := range d.MatchedSymptoms {
		if m.SymptomID == symptomID {
			return true
		}
	}
	return false
}

// ClampScore bounds a confidence score to the 0-100 range.
func ClampScore(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}

// RankingSource identifies which ranker produced a diagnosis list.
type RankingSource string

const (
	SourceRemote    RankingSource = "remote"
	SourceReference RankingSource = "reference"
)

// RankingStatus is the lifecycle state of a session's ranking request.
type RankingStatus string

const (
	RankingIdle      RankingStatus = "idle"
	RankingLoading   RankingStatus = "loading"
	RankingSucceeded RankingStatus = "succeeded"
	RankingFailed    RankingStatus = "failed"
)

// IsTerminal reports whether the status ends a request.
func (s RankingStatus) IsTerminal() bool {
	return s == RankingSucceeded || s == RankingFailed
}

// RankingState is a snapshot of a session's ranking.
type RankingState struct {
	Status    RankingStatus `json:"status"`
	Token     uint64        `json:"token"`
	Source    RankingSource `json:"source,omitempty"`
	Diagnoses []Diagnosis   `json:"diagnoses"`
	Error     string        `json:"error,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// HistoryEntry is a persisted analysis: the symptoms submitted and the
// diagnoses returned.
type HistoryEntry struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id"`
	Timestamp time.Time        `json:"timestamp"`
	Symptoms  []PatientSymptom `json:"symptoms"`
	Diagnoses []Diagnosis      `json:"diagnoses"`
}

// Validate checks the entry before it is stored.
func (h *HistoryEntry) Validate() error {
	if h.SessionID == "" {
		return NewValidationError("session_id", "session id is required", h.SessionID)
	}
	if len(h.Symptoms) == 0 {
		return NewValidationError("symptoms", "at least one symptom is required", nil)
	}
	return nil
}
