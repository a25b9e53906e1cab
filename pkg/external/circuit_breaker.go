package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/phenodx-server/internal/domain"
)

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxRequests  uint32        `json:"max_requests"`
	Interval     time.Duration `json:"interval"`
	Timeout      time.Duration `json:"timeout"`
	MinRequests  uint32        `json:"min_requests"`
	FailureRatio float64       `json:"failure_ratio"`
}

// DefaultCircuitBreakerConfig trips after 60% failures over at least 3 requests
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:  5,
		Interval:     30 * time.Second,
		Timeout:      60 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

func newBreaker(name string, config CircuitBreakerConfig, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= config.MinRequests && failureRatio >= config.FailureRatio
		},
		// A caller abandoning its request says nothing about backend health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
}

// ResilientClient wraps the backend clients with circuit breakers and an
// optional response cache.
type ResilientClient struct {
	ranking    RankingAPI
	suggestion SuggestionAPI
	cache      *CacheClient // nil disables caching

	rankingBreaker    *gobreaker.CircuitBreaker
	suggestionBreaker *gobreaker.CircuitBreaker
	logger            *logrus.Logger
}

// NewResilientClient creates a new resilient client. cache may be nil.
func NewResilientClient(ranking RankingAPI, suggestion SuggestionAPI, cache *CacheClient, config CircuitBreakerConfig, logger *logrus.Logger) *ResilientClient {
	return &ResilientClient{
		ranking:           ranking,
		suggestion:        suggestion,
		cache:             cache,
		rankingBreaker:    newBreaker("RankingBackend", config, logger),
		suggestionBreaker: newBreaker("SuggestionBackend", config, logger),
		logger:            logger,
	}
}

// AnalyzeSymptoms queries the ranking backend with circuit breaker and caching
func (r *ResilientClient) AnalyzeSymptoms(ctx context.Context, req *AnalyzeRequest) (*AnalyzeResponse, error) {
	if r.cache != nil {
		if cached, found, err := r.cache.GetAnalysis(ctx, req); err == nil && found {
			return cached, nil
		}
	}

	result, err := r.rankingBreaker.Execute(func() (interface{}, error) {
		return r.ranking.AnalyzeSymptoms(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("ranking backend unavailable (circuit breaker open): %w", ErrUpstream)
		}
		return nil, fmt.Errorf("ranking query failed: %w", err)
	}

	data := result.(*AnalyzeResponse)

	if r.cache != nil {
		if cacheErr := r.cache.SetAnalysis(ctx, req, data, 0); cacheErr != nil {
			r.logger.WithError(cacheErr).Warn("Failed to cache ranking response")
		}
	}

	return data, nil
}

// SuggestSymptoms queries the suggestion backend with a circuit breaker
func (r *ResilientClient) SuggestSymptoms(ctx context.Context, req *SuggestRequest) (*SuggestResponse, error) {
	result, err := r.suggestionBreaker.Execute(func() (interface{}, error) {
		return r.suggestion.SuggestSymptoms(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("suggestion backend unavailable (circuit breaker open): %w", ErrUpstream)
		}
		return nil, fmt.Errorf("suggestion query failed: %w", err)
	}
	return result.(*SuggestResponse), nil
}

// Health reports breaker state for each backend
func (r *ResilientClient) Health() []ServiceHealth {
	now := time.Now()
	return []ServiceHealth{
		{
			Service:   "ranking",
			Healthy:   r.rankingBreaker.State() != gobreaker.StateOpen,
			State:     r.rankingBreaker.State().String(),
			LastCheck: now,
		},
		{
			Service:   "suggestion",
			Healthy:   r.suggestionBreaker.State() != gobreaker.StateOpen,
			State:     r.suggestionBreaker.State().String(),
			LastCheck: now,
		},
	}
}

// NewResilientClientFromConfig builds the ranking and suggestion clients
// from cfg. When caching is enabled but Redis cannot be reached the client
// runs uncached. The returned cache is nil in that case and must be closed
// by the caller otherwise.
func NewResilientClientFromConfig(cfg *domain.Config, logger *logrus.Logger) (*ResilientClient, *CacheClient) {
	var cache *CacheClient
	if cfg.Cache.Enabled {
		c, err := NewCacheClient(cfg.Cache)
		if err != nil {
			logger.WithError(err).Warn("Ranking cache unavailable, continuing without it")
		} else {
			cache = c
		}
	}

	client := NewResilientClient(
		NewRankingClient(cfg.ExternalAPI.Ranking),
		NewSuggestionClient(cfg.ExternalAPI.Suggestion),
		cache,
		DefaultCircuitBreakerConfig(),
		logger,
	)
	return client, cache
}
