package external

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phenodx-server/internal/domain"
)

// CacheClient wraps Redis client with caching functionality for backend responses
type CacheClient struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewCacheClient creates a new cache client
func NewCacheClient(config domain.CacheConfig) (*CacheClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.PoolSize
	opts.PoolTimeout = config.PoolTimeout
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &CacheClient{
		redis:      client,
		defaultTTL: config.DefaultTTL,
	}, nil
}

// CachedAnalysis represents a cached ranking response with metadata
type CachedAnalysis struct {
	Data      *AnalyzeResponse `json:"data"`
	CachedAt  time.Time        `json:"cached_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// GetAnalysis retrieves a cached ranking response
func (c *CacheClient) GetAnalysis(ctx context.Context, req *AnalyzeRequest) (*AnalyzeResponse, bool, error) {
	key := AnalysisKey(req)

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get analysis cache: %w", err)
	}

	var cached CachedAnalysis
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// SetAnalysis caches a ranking response
func (c *CacheClient) SetAnalysis(ctx context.Context, req *AnalyzeRequest, data *AnalyzeResponse, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	cached := CachedAnalysis{
		Data:      data,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis cache data: %w", err)
	}

	return c.redis.Set(ctx, AnalysisKey(req), jsonData, ttl).Err()
}

// InvalidateAll removes every cached analysis
func (c *CacheClient) InvalidateAll(ctx context.Context) error {
	iter := c.redis.Scan(ctx, 0, analysisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete cache key: %w", err)
		}
	}
	return iter.Err()
}

// Health pings Redis
func (c *CacheClient) Health(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *CacheClient) Close() error {
	return c.redis.Close()
}

const analysisKeyPrefix = "phenodx:analysis:"

// AnalysisKey derives the cache key for a request. Symptom order matters
// to the backend's filtering, so the key keeps it.
func AnalysisKey(req *AnalyzeRequest) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(req.Symptoms, "\x1f")))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(req.Frequency, "\x1f")))
	return analysisKeyPrefix + hex.EncodeToString(h.Sum(nil))
}
