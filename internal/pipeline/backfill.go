// Package pipeline prices a series of dated snapshot directories with a
// bounded worker pool, e.g. to backfill history after a rule change.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
	"github.com/andresuchdata/pricing-model/backend-go/internal/ingest"
	"github.com/rs/zerolog/log"
)

// SnapshotRunner prices one materialized snapshot directory.
type SnapshotRunner interface {
	RunSnapshot(ctx context.Context, dir string, opts domain.RunOptions) (*domain.RunResult, error)
}

type Config struct {
	WorkerCount   int
	OutputDir     string // empty skips writing per-snapshot CSVs
	RetryAttempts int
	RetryBackoff  time.Duration
}

func DefaultConfig() Config {
	return Config{
		WorkerCount:   4,
		OutputDir:     "data/output/backfill",
		RetryAttempts: 2,
		RetryBackoff:  5 * time.Second,
	}
}

// Snapshot is one dated input directory.
type Snapshot struct {
	Dir  string
	Date time.Time
}

type Result struct {
	Snapshot Snapshot
	RunID    string
	Items    int
	Output   string
	Err      error
}

var datePattern = regexp.MustCompile(`(\d{4})-?(\d{2})-?(\d{2})`)

// SnapshotDate extracts a YYYY-MM-DD or YYYYMMDD date from a name.
func SnapshotDate(name string) (time.Time, error) {
	m := datePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, fmt.Errorf("no date in %q", name)
	}
	return time.Parse("20060102", m[1]+m[2]+m[3])
}

// Discover lists dated subdirectories of root in date order. Undated
// directories are skipped.
func Discover(root string) ([]Snapshot, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", root, err)
	}

	var snaps []Snapshot
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		date, err := SnapshotDate(e.Name())
		if err != nil {
			log.Debug().Str("dir", e.Name()).Msg("backfill: skipping undated directory")
			continue
		}
		snaps = append(snaps, Snapshot{Dir: filepath.Join(root, e.Name()), Date: date})
	}

	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].Date.Before(snaps[j].Date) })
	return snaps, nil
}

type Orchestrator struct {
	runner SnapshotRunner
	cfg    Config
	sleep  func(context.Context, time.Duration) error
}

func NewOrchestrator(runner SnapshotRunner, cfg Config) *Orchestrator {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	return &Orchestrator{runner: runner, cfg: cfg, sleep: sleepCtx}
}

// Run prices every snapshot. Results come back in snapshot order; a failed
// snapshot is reported in its Result and does not stop the others.
func (o *Orchestrator) Run(ctx context.Context, snaps []Snapshot, opts domain.RunOptions) ([]Result, error) {
	results := make([]Result, len(snaps))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < o.cfg.WorkerCount; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range jobs {
				results[i] = o.process(ctx, snaps[i], opts)
				if results[i].Err != nil {
					log.Error().Err(results[i].Err).
						Int("worker", workerID).
						Str("dir", snaps[i].Dir).
						Msg("backfill: snapshot failed")
				}
			}
		}(w)
	}

enqueue:
	for i := range snaps {
		select {
		case <-ctx.Done():
			break enqueue
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	log.Info().Int("snapshots", len(snaps)).Int("failed", failed).Msg("backfill: complete")
	return results, nil
}

func (o *Orchestrator) process(ctx context.Context, snap Snapshot, opts domain.RunOptions) Result {
	res := Result{Snapshot: snap}

	var (
		result *domain.RunResult
		err    error
	)
	for attempt := 0; attempt <= o.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := o.sleep(ctx, o.cfg.RetryBackoff); err != nil {
				res.Err = err
				return res
			}
		}
		result, err = o.runner.RunSnapshot(ctx, snap.Dir, opts)
		if err == nil || !retryable(err) {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Str("dir", snap.Dir).Msg("backfill: retrying snapshot")
	}
	if err != nil {
		res.Err = err
		return res
	}

	res.RunID = result.RunID
	res.Items = len(result.Items)

	if o.cfg.OutputDir != "" {
		out := filepath.Join(o.cfg.OutputDir, fmt.Sprintf("pricing_%s.csv", snap.Date.Format("2006-01-02")))
		if err := writeCSV(out, result.Items); err != nil {
			res.Err = err
			return res
		}
		res.Output = out
	}
	return res
}

// retryable is false for input problems, which fail the same way every time.
func retryable(err error) bool {
	var cfgErr *domain.ConfigError
	if errors.As(err, &cfgErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func writeCSV(path string, items []domain.PricedProduct) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := ingest.WriteCSV(f, items); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
