package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/pricing-model/backend-go/internal/config"
	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	runKeyPrefix     = "pricing:run"
	runScanBatchSize = 100
)

// RunCache memoizes completed pricing runs by input fingerprint. A run is a
// pure function of its inputs, so a hit can be served without recomputing.
type RunCache interface {
	GetRun(ctx context.Context, fingerprint string) (*domain.RunResult, bool, error)
	SetRun(ctx context.Context, result *domain.RunResult) error
	InvalidateAll(ctx context.Context) error
}

type redisRunCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopRunCache struct{}

// NewRunCache returns a redis-backed cache, or a cache that never hits when
// caching is disabled.
func NewRunCache(ctx context.Context, cfg config.CacheConfig) (RunCache, error) {
	if !cfg.Enabled {
		return &noopRunCache{}, nil
	}

	client, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &redisRunCache{
		client: client,
		ttl:    runTTL(cfg),
	}, nil
}

func NewNoopRunCache() RunCache {
	return &noopRunCache{}
}

func (c *redisRunCache) GetRun(ctx context.Context, fingerprint string) (*domain.RunResult, bool, error) {
	payload, err := c.client.Get(ctx, buildRunKey(fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var result domain.RunResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, false, fmt.Errorf("decode pricing run cache: %w", err)
	}

	return &result, true, nil
}

func (c *redisRunCache) SetRun(ctx context.Context, result *domain.RunResult) error {
	if result == nil || result.Fingerprint == "" {
		return nil
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode pricing run cache: %w", err)
	}

	if err := c.client.Set(ctx, buildRunKey(result.Fingerprint), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisRunCache) InvalidateAll(ctx context.Context) error {
	n, err := unlinkPrefix(ctx, c.client, runKeyPrefix+":", runScanBatchSize)
	if err != nil {
		return err
	}
	log.Info().Int("keys", n).Msg("cache: pricing runs invalidated")
	return nil
}

func (n *noopRunCache) GetRun(ctx context.Context, fingerprint string) (*domain.RunResult, bool, error) {
	return nil, false, nil
}

func (n *noopRunCache) SetRun(ctx context.Context, result *domain.RunResult) error {
	return nil
}

func (n *noopRunCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func buildRunKey(fingerprint string) string {
	return fmt.Sprintf("%s:%s", runKeyPrefix, fingerprint)
}

// Fingerprint hashes a snapshot together with the run options that change
// its output. Worker count is excluded since it never changes results.
func Fingerprint(in domain.PricingInputs, opts domain.RunOptions) (string, error) {
	opts.Workers = 0
	payload, err := json.Marshal(struct {
		Inputs  domain.PricingInputs `json:"inputs"`
		Options domain.RunOptions    `json:"options"`
	}{in, opts})
	if err != nil {
		return "", fmt.Errorf("encode pricing fingerprint: %w", err)
	}

	sum := sha1.Sum(payload)
	return hex.EncodeToString(sum[:]), nil
}
