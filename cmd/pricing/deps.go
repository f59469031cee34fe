package main

import (
	"context"
	"fmt"

	"github.com/andresuchdata/pricing-model/backend-go/internal/cache"
	"github.com/andresuchdata/pricing-model/backend-go/internal/config"
	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
	"github.com/andresuchdata/pricing-model/backend-go/internal/pricing"
	"github.com/andresuchdata/pricing-model/backend-go/internal/repository"
	"github.com/andresuchdata/pricing-model/backend-go/internal/repository/postgres"
	"github.com/andresuchdata/pricing-model/backend-go/internal/service"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	_ "modernc.org/sqlite"
)

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "db-url",
		Usage:   "Postgres connection string for run history",
		EnvVars: []string{"DATABASE_URL"},
	}
}

func newSQLiteFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "sqlite",
		Usage: "Record run history in a local SQLite file instead of Postgres",
	}
}

func runOptionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "category",
			Usage:   "Category label recorded on the run",
			EnvVars: []string{"PRICING_CATEGORY"},
		},
		&cli.Float64Flag{
			Name:  "target-margin",
			Usage: "Manual target margin in percent; replaces computed targets",
		},
		&cli.StringFlag{
			Name:    "day",
			Usage:   "Day of week used to pick elasticity rows",
			EnvVars: []string{"PRICING_DAY_OF_WEEK"},
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "Concurrent matching and tiering workers",
			EnvVars: []string{"PRICING_WORKERS"},
		},
		&cli.StringFlag{
			Name:    "reference",
			Usage:   "YAML file overriding reference tables",
			EnvVars: []string{"PRICING_REFERENCE_FILE"},
		},
	}
}

// runOptions merges flags over configured defaults.
func runOptions(c *cli.Context, cfg *config.Config) domain.RunOptions {
	opts := domain.RunOptions{
		Category:  cfg.Pricing.Category,
		DayOfWeek: cfg.Pricing.DayOfWeek,
		Workers:   cfg.Pricing.Workers,
	}
	if cfg.Pricing.TargetMarginPct > 0 {
		pct := cfg.Pricing.TargetMarginPct
		opts.TargetMarginPct = &pct
	}
	if c.IsSet("category") {
		opts.Category = c.String("category")
	}
	if c.IsSet("day") {
		opts.DayOfWeek = c.String("day")
	}
	if c.IsSet("workers") {
		opts.Workers = c.Int("workers")
	}
	if c.IsSet("target-margin") {
		pct := c.Float64("target-margin")
		opts.TargetMarginPct = &pct
	}
	return opts
}

func newEngine(c *cli.Context, cfg *config.Config) (*pricing.Engine, error) {
	path := cfg.Pricing.ReferenceFile
	if c.IsSet("reference") {
		path = c.String("reference")
	}

	ref := pricing.DefaultReference()
	if path != "" {
		loaded, err := pricing.LoadReference(path)
		if err != nil {
			return nil, err
		}
		ref = loaded
		log.Info().Str("file", path).Msg("pricing: reference tables loaded")
	}
	return pricing.NewEngine(ref, pricing.WithWorkers(cfg.Pricing.Workers)), nil
}

// openRepository picks the history store: --sqlite, then --db-url (pgx),
// then the configured database when useConfigDB is set. A nil repository
// means history is not recorded.
func openRepository(c *cli.Context, cfg *config.Config, useConfigDB bool) (repository.RunRepository, func(), error) {
	var db *postgres.DB

	switch {
	case c.String("sqlite") != "":
		sqlDB, err := sqlx.Open("sqlite", c.String("sqlite"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
		db = postgres.Wrap(sqlDB, 1)
	case c.String("db-url") != "":
		sqlDB, err := sqlx.Connect("pgx", c.String("db-url"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		db = postgres.Wrap(sqlDB, 0)
	case useConfigDB:
		shared, err := postgres.NewDB(&cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		db = shared
	default:
		return nil, func() {}, nil
	}

	repo := postgres.NewRunRepository(db)
	if err := repo.EnsureSchema(c.Context); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return repo, func() { _ = db.Close() }, nil
}

// newRunCache falls back to no caching when redis is unreachable.
func newRunCache(ctx context.Context, cfg *config.Config) cache.RunCache {
	rc, err := cache.NewRunCache(ctx, cfg.Cache)
	if err != nil {
		log.Warn().Err(err).Msg("pricing: run cache disabled")
		return cache.NewNoopRunCache()
	}
	return rc
}

func newPricingService(c *cli.Context, cfg *config.Config, useConfigDB bool) (*service.PricingService, func(), error) {
	engine, err := newEngine(c, cfg)
	if err != nil {
		return nil, nil, err
	}
	repo, closeFn, err := openRepository(c, cfg, useConfigDB)
	if err != nil {
		return nil, nil, err
	}
	return service.NewPricingService(engine, repo, newRunCache(c.Context, cfg)), closeFn, nil
}
