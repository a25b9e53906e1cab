package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/phenodx-server/internal/domain"
)

// jsonClient posts JSON to a backend with a timeout and a token-bucket rate limit
type jsonClient struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	rateLimit  *rate.Limiter
}

func newJSONClient(name string, config domain.BackendConfig) jsonClient {
	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	return jsonClient{
		name:    name,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(limit, 1),
	}
}

func (c *jsonClient) post(ctx context.Context, path string, in, out interface{}) error {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return fmt.Errorf("%s request abandoned: %w", c.name, ctx.Err())
		}
		return fmt.Errorf("%s request failed: %v: %w", c.name, err, ErrUpstream)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s returned status %d: %w", c.name, resp.StatusCode, ErrUpstream)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %v: %w", c.name, err, ErrUpstream)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %v: %w", c.name, err, ErrUpstream)
	}
	return nil
}

// RankingClient talks to the disease ranking backend
type RankingClient struct {
	jsonClient
}

// NewRankingClient creates a new ranking backend client
func NewRankingClient(config domain.BackendConfig) *RankingClient {
	return &RankingClient{jsonClient: newJSONClient("ranking backend", config)}
}

// AnalyzeSymptoms posts the patient's phenotype names and frequency labels
func (c *RankingClient) AnalyzeSymptoms(ctx context.Context, req *AnalyzeRequest) (*AnalyzeResponse, error) {
	var resp AnalyzeResponse
	if err := c.post(ctx, "/analyze_symptoms", req, &resp); err != nil {
		return nil, err
	}
	if resp.DiseaseRanking == nil {
		return nil, fmt.Errorf("ranking backend response missing disease_ranking: %w", ErrUpstream)
	}
	return &resp, nil
}

// SuggestionClient talks to the symptom suggestion backend
type SuggestionClient struct {
	jsonClient
}

// NewSuggestionClient creates a new suggestion backend client
func NewSuggestionClient(config domain.BackendConfig) *SuggestionClient {
	return &SuggestionClient{jsonClient: newJSONClient("suggestion backend", config)}
}

// SuggestSymptoms posts the patient's phenotype names
func (c *SuggestionClient) SuggestSymptoms(ctx context.Context, req *SuggestRequest) (*SuggestResponse, error) {
	var resp SuggestResponse
	if err := c.post(ctx, "/suggest_symptoms", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
