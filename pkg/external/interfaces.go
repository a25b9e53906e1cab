package external

import (
	"context"
	"errors"
	"time"
)

// ErrUpstream marks a failed exchange with a backend: transport error,
// non-2xx status or undecodable body.
var ErrUpstream = errors.New("upstream request failed")

// RankingAPI scores diseases for a set of phenotype names
type RankingAPI interface {
	AnalyzeSymptoms(ctx context.Context, req *AnalyzeRequest) (*AnalyzeResponse, error)
}

// SuggestionAPI proposes related phenotypes for a set of phenotype names
type SuggestionAPI interface {
	SuggestSymptoms(ctx context.Context, req *SuggestRequest) (*SuggestResponse, error)
}

// AnalyzeRequest is the body of POST /analyze_symptoms
type AnalyzeRequest struct {
	Symptoms  []string `json:"symptoms"`
	Frequency []string `json:"frequency"`
}

// DiseaseRanking is one ranked disease in an analyze response
type DiseaseRanking struct {
	MIM             string  `json:"MIM,omitempty"`
	Disease         string  `json:"Disease"`
	SimilarityScore float64 `json:"Similarity Score"`
}

// AnalyzeResponse is the body returned by POST /analyze_symptoms
type AnalyzeResponse struct {
	DiseaseRanking []DiseaseRanking `json:"disease_ranking"`
}

// SuggestRequest is the body of POST /suggest_symptoms
type SuggestRequest struct {
	Symptoms []string `json:"symptoms"`
}

// SuggestedSymptom is one suggestion returned by the backend
type SuggestedSymptom struct {
	HPOID   string `json:"HPO ID"`
	HPOTerm string `json:"HPO Term"`
}

// SuggestResponse is the body returned by POST /suggest_symptoms
type SuggestResponse struct {
	SuggestedSymptoms []SuggestedSymptom `json:"suggested_symptoms"`
}

// ServiceHealth represents the health status of a backend
type ServiceHealth struct {
	Service   string    `json:"service"`
	Healthy   bool      `json:"healthy"`
	State     string    `json:"breaker_state"`
	LastCheck time.Time `json:"last_check"`
	Error     string    `json:"error,omitempty"`
}
