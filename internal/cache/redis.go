package cache

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/andresuchdata/pricing-model/backend-go/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	defaultRunTTL = time.Hour
	pingTimeout   = 5 * time.Second
)

// connect opens and pings a client built from cfg.
func connect(ctx context.Context, cfg config.CacheConfig) (*redis.Client, error) {
	opts, err := buildRedisOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}

	log.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("cache: redis connected")
	return client, nil
}

func runTTL(cfg config.CacheConfig) time.Duration {
	if cfg.RunTTLSeconds <= 0 {
		return defaultRunTTL
	}
	return time.Duration(cfg.RunTTLSeconds) * time.Second
}

func buildRedisOptions(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opt, nil
	}

	host, port := cfg.RedisHost, cfg.RedisPort
	if host == "" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = "6379"
	}

	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}

// unlinkPrefix removes every key under prefix in SCAN-sized batches and
// reports how many were removed.
func unlinkPrefix(ctx context.Context, client *redis.Client, prefix string, batch int64) (int, error) {
	iter := client.Scan(ctx, 0, prefix+"*", batch).Iterator()

	removed := 0
	keys := make([]string, 0, batch)
	flush := func() error {
		if len(keys) == 0 {
			return nil
		}
		if err := client.Unlink(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis unlink: %w", err)
		}
		removed += len(keys)
		keys = keys[:0]
		return nil
	}

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if int64(len(keys)) >= batch {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan: %w", err)
	}
	return removed, flush()
}
