package cache

import (
	"context"
	"testing"

	"github.com/andresuchdata/pricing-model/backend-go/internal/config"
	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
)

func TestFingerprint(t *testing.T) {
	in := domain.PricingInputs{
		Products: []domain.ProductRecord{{ProductID: "1", City: "pune", MRP: 10, Cost: 5}},
	}
	pct := 12.0

	base, err := Fingerprint(in, domain.RunOptions{Category: "eggs"})
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}

	tests := []struct {
		name string
		in   domain.PricingInputs
		opts domain.RunOptions
		same bool
	}{
		{"identical", in, domain.RunOptions{Category: "eggs"}, true},
		{"workers ignored", in, domain.RunOptions{Category: "eggs", Workers: 8}, true},
		{"manual margin", in, domain.RunOptions{Category: "eggs", TargetMarginPct: &pct}, false},
		{"day of week", in, domain.RunOptions{Category: "eggs", DayOfWeek: "monday"}, false},
		{
			"different cost",
			domain.PricingInputs{Products: []domain.ProductRecord{{ProductID: "1", City: "pune", MRP: 10, Cost: 6}}},
			domain.RunOptions{Category: "eggs"},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Fingerprint(tt.in, tt.opts)
			if err != nil {
				t.Fatalf("Fingerprint: %v", err)
			}
			if (got == base) != tt.same {
				t.Fatalf("fingerprint equality = %v, want %v", got == base, tt.same)
			}
		})
	}
}

func TestBuildRunKey(t *testing.T) {
	if got := buildRunKey("abc"); got != "pricing:run:abc" {
		t.Fatalf("buildRunKey = %q", got)
	}
}

func TestNewRunCache_Disabled(t *testing.T) {
	c, err := NewRunCache(context.Background(), config.CacheConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewRunCache: %v", err)
	}

	ctx := context.Background()
	if err := c.SetRun(ctx, &domain.RunResult{Fingerprint: "f"}); err != nil {
		t.Fatalf("SetRun: %v", err)
	}
	if _, ok, err := c.GetRun(ctx, "f"); ok || err != nil {
		t.Fatalf("noop cache returned a hit (ok=%v err=%v)", ok, err)
	}
}

func TestBuildRedisOptions(t *testing.T) {
	opts, err := buildRedisOptions(config.CacheConfig{RedisHost: "cache", RedisDB: 2})
	if err != nil {
		t.Fatalf("buildRedisOptions: %v", err)
	}
	if opts.Addr != "cache:6379" || opts.DB != 2 {
		t.Errorf("options = %s db %d", opts.Addr, opts.DB)
	}

	opts, err = buildRedisOptions(config.CacheConfig{RedisURL: "redis://:secret@example:6380/3"})
	if err != nil {
		t.Fatalf("buildRedisOptions url: %v", err)
	}
	if opts.Addr != "example:6380" || opts.DB != 3 || opts.Password != "secret" {
		t.Errorf("url options = %+v", opts)
	}

	if _, err := buildRedisOptions(config.CacheConfig{RedisURL: "http://nope"}); err == nil {
		t.Error("expected error for non-redis url")
	}
}

func TestRunTTL(t *testing.T) {
	if got := runTTL(config.CacheConfig{}); got != defaultRunTTL {
		t.Errorf("default ttl = %v", got)
	}
	if got := runTTL(config.CacheConfig{RunTTLSeconds: 90}); got.Seconds() != 90 {
		t.Errorf("ttl = %v", got)
	}
}
