package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
	"github.com/andresuchdata/pricing-model/backend-go/internal/pricing"
	"github.com/andresuchdata/pricing-model/backend-go/internal/repository"
	"github.com/andresuchdata/pricing-model/backend-go/internal/repository/postgres"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type memCache struct {
	runs map[string]*domain.RunResult
	sets int
}

func newMemCache() *memCache {
	return &memCache{runs: map[string]*domain.RunResult{}}
}

func (c *memCache) GetRun(_ context.Context, fp string) (*domain.RunResult, bool, error) {
	r, ok := c.runs[fp]
	return r, ok, nil
}

func (c *memCache) SetRun(_ context.Context, r *domain.RunResult) error {
	c.sets++
	c.runs[r.Fingerprint] = r
	return nil
}

func (c *memCache) InvalidateAll(context.Context) error {
	c.runs = map[string]*domain.RunResult{}
	return nil
}

func newTestRepo(t *testing.T) repository.RunRepository {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	repo := postgres.NewRunRepository(postgres.Wrap(db, 1))
	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return repo
}

func testInputs() domain.PricingInputs {
	return domain.PricingInputs{
		Products: []domain.ProductRecord{
			{ProductID: "900", City: "Mumbai", Brand: "Happy Eggs", ItemName: "Happy White Eggs", RawUOM: "6 pcs", MRP: 60, Cost: 45},
			{ProductID: "901", City: "Pune", Brand: "Sunny", ItemName: "Sunny Brown Eggs", RawUOM: "30 pcs", MRP: 300, Cost: 250},
		},
		Competitors: []domain.CompetitorObservation{
			{City: "mumbai", Brand: "Happy", ItemName: "Happy Eggs", RawUOM: "6 pcs", UnitPrice: 56, Source: "s1"},
		},
	}
}

func TestPricingService_RunPersistsAndReplays(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	svc := NewPricingService(pricing.NewEngine(nil), repo, nil)

	first, err := svc.Run(ctx, testInputs(), domain.RunOptions{Category: "eggs"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if first.RunID == "" || first.Fingerprint == "" {
		t.Fatalf("run not identified: %+v", first)
	}

	run, err := svc.GetRun(ctx, first.RunID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != domain.RunStatusCompleted || run.TotalProducts != 2 {
		t.Errorf("stored run = %+v", run)
	}

	second, err := svc.Run(ctx, testInputs(), domain.RunOptions{Category: "eggs", Workers: 8})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if second.RunID != first.RunID {
		t.Errorf("identical inputs produced a new run %s, want replay of %s", second.RunID, first.RunID)
	}
	if len(second.Items) != len(first.Items) {
		t.Fatalf("replayed items = %d, want %d", len(second.Items), len(first.Items))
	}
	for i := range first.Items {
		if second.Items[i].FinalPrice != first.Items[i].FinalPrice || second.Items[i].ActionReason != first.Items[i].ActionReason {
			t.Errorf("item %d replayed as %+v, want %+v", i, second.Items[i], first.Items[i])
		}
	}

	third, err := svc.Run(ctx, testInputs(), domain.RunOptions{Category: "eggs", DayOfWeek: "Monday"})
	if err != nil {
		t.Fatal(err)
	}
	if third.RunID == first.RunID {
		t.Error("different options reused the same run")
	}

	runs, err := svc.ListRuns(ctx, 10)
	if err != nil || len(runs) != 2 {
		t.Errorf("ListRuns() = %d runs, %v", len(runs), err)
	}
}

func TestPricingService_CacheHitSkipsEngine(t *testing.T) {
	ctx := context.Background()
	mc := newMemCache()
	svc := NewPricingService(pricing.NewEngine(nil), nil, mc)

	first, err := svc.Run(ctx, testInputs(), domain.RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if mc.sets != 1 {
		t.Fatalf("cache sets = %d, want 1", mc.sets)
	}

	second, err := svc.Run(ctx, testInputs(), domain.RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Error("expected the cached result to be returned")
	}
	if mc.sets != 1 {
		t.Errorf("cache sets = %d after hit, want 1", mc.sets)
	}

	if err := svc.InvalidateCache(ctx); err != nil {
		t.Fatal(err)
	}
	third, err := svc.Run(ctx, testInputs(), domain.RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if third == first {
		t.Error("expected a fresh run after invalidation")
	}
}

func TestPricingService_FailedRunIsRecorded(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	svc := NewPricingService(pricing.NewEngine(nil), repo, nil)
	svc.newID = func() string { return "run-failed" }

	in := testInputs()
	for i := range in.Products {
		in.Products[i].ProductID = ""
	}
	_, err := svc.Run(ctx, in, domain.RunOptions{})
	if !errors.Is(err, domain.ErrMissingProductID) {
		t.Fatalf("Run() error = %v, want ErrMissingProductID", err)
	}

	run, err := svc.GetRun(ctx, "run-failed")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != domain.RunStatusFailed || run.ErrorMessage == "" {
		t.Errorf("run = %+v, want failed with message", run)
	}
}

func TestPricingService_WithoutRepository(t *testing.T) {
	ctx := context.Background()
	svc := NewPricingService(pricing.NewEngine(nil), nil, nil)

	res, err := svc.Run(ctx, testInputs(), domain.RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.RunID == "" {
		t.Error("run id not assigned")
	}

	if _, err := svc.GetRun(ctx, res.RunID); !errors.Is(err, ErrPersistenceDisabled) {
		t.Errorf("GetRun() error = %v", err)
	}
	if _, _, err := svc.ListItems(ctx, res.RunID, domain.ItemFilter{}); !errors.Is(err, ErrPersistenceDisabled) {
		t.Errorf("ListItems() error = %v", err)
	}
	if err := svc.EnsureSchema(ctx); err != nil {
		t.Errorf("EnsureSchema() error = %v", err)
	}
}

func TestPricingService_ListItems(t *testing.T) {
	ctx := context.Background()
	svc := NewPricingService(pricing.NewEngine(nil), newTestRepo(t), nil)

	res, err := svc.Run(ctx, testInputs(), domain.RunOptions{})
	if err != nil {
		t.Fatal(err)
	}

	items, total, err := svc.ListItems(ctx, res.RunID, domain.ItemFilter{City: "PUNE"})
	if err != nil {
		t.Fatalf("ListItems() error = %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ProductID != "901" {
		t.Errorf("items = %+v (total %d)", items, total)
	}

	if _, _, err := svc.ListItems(ctx, "missing", domain.ItemFilter{}); !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("ListItems(missing) error = %v", err)
	}
}

func TestPricingService_RunSnapshot(t *testing.T) {
	dir := t.TempDir()
	im := "ITEM_CODE,CITY,BRAND,ITEM_NAME,uom,MRP,COGS_LATEST\n900,Pune,Happy,Happy Eggs,6 pcs,60,45\n"
	if err := os.WriteFile(filepath.Join(dir, "IM.csv"), []byte(im), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := NewPricingService(pricing.NewEngine(nil), nil, nil)
	res, err := svc.RunSnapshot(context.Background(), dir, domain.RunOptions{Category: "eggs"})
	if err != nil {
		t.Fatalf("RunSnapshot() error = %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].FinalPrice <= 0 {
		t.Errorf("items = %+v", res.Items)
	}

	if _, err := svc.RunSnapshot(context.Background(), t.TempDir(), domain.RunOptions{}); err == nil {
		t.Error("expected error for a snapshot without a product table")
	}
}
