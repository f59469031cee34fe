package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/andresuchdata/pricing-model/backend-go/internal/cache"
	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
	"github.com/andresuchdata/pricing-model/backend-go/internal/ingest"
	"github.com/andresuchdata/pricing-model/backend-go/internal/pricing"
	"github.com/andresuchdata/pricing-model/backend-go/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrPersistenceDisabled is returned by history lookups when no repository is
// configured.
var ErrPersistenceDisabled = errors.New("run persistence is not configured")

const replayPageSize = 1000

type PricingService struct {
	engine *pricing.Engine
	repo   repository.RunRepository
	cache  cache.RunCache
	newID  func() string
}

// NewPricingService builds the run orchestrator. repo may be nil, in which
// case runs are computed but not recorded.
func NewPricingService(engine *pricing.Engine, repo repository.RunRepository, cacheImpl cache.RunCache) *PricingService {
	if cacheImpl == nil {
		cacheImpl = cache.NewNoopRunCache()
	}
	return &PricingService{
		engine: engine,
		repo:   repo,
		cache:  cacheImpl,
		newID:  func() string { return uuid.NewString() },
	}
}

// Run prices a snapshot. Identical inputs and options are served from the
// cache or from the last completed run with the same fingerprint.
func (s *PricingService) Run(ctx context.Context, in domain.PricingInputs, opts domain.RunOptions) (*domain.RunResult, error) {
	fp, err := cache.Fingerprint(in, opts)
	if err != nil {
		return nil, err
	}
	logger := log.With().Str("fingerprint", fp).Str("category", opts.Category).Logger()

	if cached, ok, err := s.cache.GetRun(ctx, fp); err == nil && ok {
		logger.Debug().Str("run_id", cached.RunID).Msg("pricing: served from cache")
		return cached, nil
	} else if err != nil {
		logger.Warn().Err(err).Msg("pricing: cache get failed")
	}

	if prior, err := s.replay(ctx, fp); err == nil && prior != nil {
		logger.Info().Str("run_id", prior.RunID).Msg("pricing: replayed completed run")
		s.remember(ctx, prior)
		return prior, nil
	} else if err != nil {
		logger.Warn().Err(err).Msg("pricing: replay lookup failed")
	}

	run := &domain.PricingRun{
		ID:              s.newID(),
		Category:        opts.Category,
		Fingerprint:     fp,
		Status:          domain.RunStatusProcessing,
		TargetMarginPct: opts.TargetMarginPct,
		StartedAt:       time.Now().UTC(),
	}
	if s.repo != nil {
		if err := s.repo.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to record pricing run: %w", err)
		}
	}

	result, err := s.engine.Run(in, opts)
	if err != nil {
		if s.repo != nil {
			if ferr := s.repo.FailRun(ctx, run.ID, err); ferr != nil {
				logger.Error().Err(ferr).Str("run_id", run.ID).Msg("pricing: failed to mark run failed")
			}
		}
		return nil, err
	}
	result.RunID = run.ID
	result.Fingerprint = fp

	if s.repo != nil {
		if err := s.repo.CompleteRun(ctx, run.ID, result); err != nil {
			return nil, fmt.Errorf("failed to store pricing run: %w", err)
		}
	}
	s.remember(ctx, result)

	logger.Info().
		Str("run_id", run.ID).
		Int("items", len(result.Items)).
		Int("issues", len(result.Issues)).
		Msg("pricing: run stored")
	return result, nil
}

// RunSnapshot loads the tables in dir and prices them.
func (s *PricingService) RunSnapshot(ctx context.Context, dir string, opts domain.RunOptions) (*domain.RunResult, error) {
	snap, err := ingest.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, snap.Inputs, opts)
}

// RunWorkbook prices a single uploaded workbook.
func (s *PricingService) RunWorkbook(ctx context.Context, r io.Reader, opts domain.RunOptions) (*domain.RunResult, error) {
	snap, err := ingest.ReadWorkbook(r)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, snap.Inputs, opts)
}

func (s *PricingService) GetRun(ctx context.Context, runID string) (*domain.PricingRun, error) {
	if s.repo == nil {
		return nil, ErrPersistenceDisabled
	}
	return s.repo.GetRun(ctx, runID)
}

func (s *PricingService) ListRuns(ctx context.Context, limit int) ([]domain.PricingRun, error) {
	if s.repo == nil {
		return nil, ErrPersistenceDisabled
	}
	return s.repo.ListRuns(ctx, limit)
}

func (s *PricingService) ListItems(ctx context.Context, runID string, filter domain.ItemFilter) ([]domain.PricedProduct, int, error) {
	if s.repo == nil {
		return nil, 0, ErrPersistenceDisabled
	}
	if _, err := s.repo.GetRun(ctx, runID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListItems(ctx, runID, filter)
}

// InvalidateCache drops every memoized run, e.g. after a reference table change.
func (s *PricingService) InvalidateCache(ctx context.Context) error {
	return s.cache.InvalidateAll(ctx)
}

func (s *PricingService) EnsureSchema(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.EnsureSchema(ctx)
}

// replay rebuilds the result of a completed run with the same fingerprint.
func (s *PricingService) replay(ctx context.Context, fp string) (*domain.RunResult, error) {
	if s.repo == nil {
		return nil, nil
	}

	run, err := s.repo.FindCompletedRun(ctx, fp)
	if errors.Is(err, domain.ErrRunNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var items []domain.PricedProduct
	for page := 1; ; page++ {
		batch, total, err := s.repo.ListItems(ctx, run.ID, domain.ItemFilter{Page: page, PageSize: replayPageSize})
		if err != nil {
			return nil, err
		}
		items = append(items, batch...)
		if len(batch) == 0 || len(items) >= total {
			break
		}
	}
	if items == nil {
		items = []domain.PricedProduct{}
	}

	return &domain.RunResult{
		RunID:       run.ID,
		Category:    run.Category,
		Fingerprint: run.Fingerprint,
		Items:       items,
		Summary:     run.Summary,
		Issues:      run.Issues,
	}, nil
}

func (s *PricingService) remember(ctx context.Context, result *domain.RunResult) {
	if err := s.cache.SetRun(ctx, result); err != nil {
		log.Warn().Err(err).Str("run_id", result.RunID).Msg("pricing: cache set failed")
	}
}
