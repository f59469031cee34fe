package repository

import (
	"context"

	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
)

// RunRepository persists pricing run headers and their priced rows.
type RunRepository interface {
	EnsureSchema(ctx context.Context) error
	CreateRun(ctx context.Context, run *domain.PricingRun) error
	CompleteRun(ctx context.Context, runID string, result *domain.RunResult) error
	FailRun(ctx context.Context, runID string, cause error) error
	GetRun(ctx context.Context, runID string) (*domain.PricingRun, error)
	FindCompletedRun(ctx context.Context, fingerprint string) (*domain.PricingRun, error)
	ListRuns(ctx context.Context, limit int) ([]domain.PricingRun, error)
	ListItems(ctx context.Context, runID string, filter domain.ItemFilter) ([]domain.PricedProduct, int, error)
}
