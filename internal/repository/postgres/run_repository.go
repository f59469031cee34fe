package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
	"github.com/andresuchdata/pricing-model/backend-go/internal/repository"
	"github.com/jmoiron/sqlx"
)

const (
	defaultItemPageSize = 100
	maxItemPageSize     = 1000
)

// The DDL sticks to types both Postgres and SQLite accept.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS pricing_runs (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		status TEXT NOT NULL,
		target_margin_pct DOUBLE PRECISION,
		total_products INTEGER NOT NULL DEFAULT 0,
		matched_products INTEGER NOT NULL DEFAULT 0,
		fallback_priced INTEGER NOT NULL DEFAULT 0,
		avg_realized_margin_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_price_index DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_gmv_goodness DOUBLE PRECISION NOT NULL DEFAULT 0,
		issue_count INTEGER NOT NULL DEFAULT 0,
		issues TEXT NOT NULL DEFAULT '[]',
		error_message TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pricing_runs_fingerprint ON pricing_runs (fingerprint, status)`,
	`CREATE TABLE IF NOT EXISTS pricing_run_items (
		run_id TEXT NOT NULL REFERENCES pricing_runs (id) ON DELETE CASCADE,
		row_index INTEGER NOT NULL,
		product_id TEXT NOT NULL,
		city TEXT NOT NULL,
		brand TEXT NOT NULL,
		item_name TEXT NOT NULL,
		pack_token TEXT NOT NULL,
		city_tier TEXT NOT NULL,
		is_private_label BOOLEAN NOT NULL,
		stock_status TEXT NOT NULL,
		mrp DOUBLE PRECISION NOT NULL,
		cost DOUBLE PRECISION NOT NULL,
		bdpo DOUBLE PRECISION NOT NULL,
		matched_price DOUBLE PRECISION,
		matched_brand TEXT NOT NULL,
		matched_source TEXT NOT NULL,
		match_rationale TEXT NOT NULL,
		pack_category TEXT NOT NULL,
		kvi_tier TEXT NOT NULL,
		target_margin_fraction DOUBLE PRECISION NOT NULL,
		final_price DOUBLE PRECISION NOT NULL,
		realized_margin_pct DOUBLE PRECISION NOT NULL,
		realized_discount_pct DOUBLE PRECISION NOT NULL,
		action_reason TEXT NOT NULL,
		price_index DOUBLE PRECISION,
		gmv_goodness DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, row_index)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pricing_run_items_city ON pricing_run_items (run_id, city)`,
}

const runColumns = `id, category, fingerprint, status, target_margin_pct, total_products,
	matched_products, fallback_priced, avg_realized_margin_pct, avg_price_index, avg_gmv_goodness,
	issue_count, issues, error_message, started_at, completed_at`

const itemColumns = `product_id, city, brand, item_name, pack_token, city_tier, is_private_label,
	stock_status, mrp, cost, bdpo, matched_price, matched_brand, matched_source, match_rationale,
	pack_category, kvi_tier, target_margin_fraction, final_price, realized_margin_pct,
	realized_discount_pct, action_reason, price_index, gmv_goodness`

// runRow flattens the run header for scanning.
type runRow struct {
	domain.PricingRun
	MatchedProducts      int     `db:"matched_products"`
	FallbackPriced       int     `db:"fallback_priced"`
	AvgRealizedMarginPct float64 `db:"avg_realized_margin_pct"`
	AvgPriceIndex        float64 `db:"avg_price_index"`
	AvgGMVGoodness       float64 `db:"avg_gmv_goodness"`
	IssuesJSON           string  `db:"issues"`
}

func (r runRow) toDomain() (*domain.PricingRun, error) {
	run := r.PricingRun
	run.Summary = domain.Summary{
		TotalProducts:        r.TotalProducts,
		MatchedProducts:      r.MatchedProducts,
		FallbackPriced:       r.FallbackPriced,
		AvgRealizedMarginPct: r.AvgRealizedMarginPct,
		AvgPriceIndex:        r.AvgPriceIndex,
		AvgGMVGoodness:       r.AvgGMVGoodness,
	}
	if r.IssuesJSON != "" {
		if err := json.Unmarshal([]byte(r.IssuesJSON), &run.Issues); err != nil {
			return nil, fmt.Errorf("decode issues of run %s: %w", r.ID, err)
		}
	}
	return &run, nil
}

type runRepository struct {
	db *DB
}

func NewRunRepository(db *DB) repository.RunRepository {
	return &runRepository{db: db}
}

func (r *runRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (r *runRepository) CreateRun(ctx context.Context, run *domain.PricingRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = domain.RunStatusProcessing
	}

	query := r.db.Rebind(`
		INSERT INTO pricing_runs (id, category, fingerprint, status, target_margin_pct, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.Category, run.Fingerprint, string(run.Status), run.TargetMarginPct, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create pricing run: %w", err)
	}
	return nil
}

func (r *runRepository) CompleteRun(ctx context.Context, runID string, result *domain.RunResult) error {
	issues, err := json.Marshal(result.Issues)
	if err != nil {
		return fmt.Errorf("encode run issues: %w", err)
	}
	if result.Issues == nil {
		issues = []byte("[]")
	}

	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := insertItems(ctx, tx, runID, result.Items); err != nil {
			return err
		}

		s := result.Summary
		query := tx.Rebind(`
			UPDATE pricing_runs SET
				status = ?,
				total_products = ?,
				matched_products = ?,
				fallback_priced = ?,
				avg_realized_margin_pct = ?,
				avg_price_index = ?,
				avg_gmv_goodness = ?,
				issue_count = ?,
				issues = ?,
				completed_at = ?
			WHERE id = ?
		`)
		res, err := tx.ExecContext(ctx, query,
			string(domain.RunStatusCompleted), s.TotalProducts, s.MatchedProducts, s.FallbackPriced,
			s.AvgRealizedMarginPct, s.AvgPriceIndex, s.AvgGMVGoodness,
			len(result.Issues), string(issues), time.Now().UTC(), runID)
		if err != nil {
			return fmt.Errorf("failed to complete pricing run: %w", err)
		}
		return expectOneRow(res, runID)
	})
}

func insertItems(ctx context.Context, tx *sqlx.Tx, runID string, items []domain.PricedProduct) error {
	query := tx.Rebind(`
		INSERT INTO pricing_run_items (
			run_id, row_index, ` + itemColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, it := range items {
		_, err := stmt.ExecContext(ctx,
			runID, i,
			it.ProductID, it.City, it.Brand, it.ItemName, it.PackToken, string(it.CityTier), it.IsPrivateLabel,
			string(it.StockStatus), it.MRP, it.Cost, it.BDPO, it.MatchedPrice, it.MatchedBrand, it.MatchedSource,
			it.MatchRationale, string(it.PackCategory), string(it.KVITier), it.TargetMarginFraction, it.FinalPrice,
			it.RealizedMarginPct, it.RealizedDiscountPct, it.ActionReason, it.PriceIndex, it.GMVGoodness,
		)
		if err != nil {
			return fmt.Errorf("failed to insert priced item %s/%s: %w", it.City, it.ProductID, err)
		}
	}
	return nil
}

func (r *runRepository) FailRun(ctx context.Context, runID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	query := r.db.Rebind(`UPDATE pricing_runs SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, string(domain.RunStatusFailed), msg, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("failed to mark pricing run failed: %w", err)
	}
	return expectOneRow(res, runID)
}

func (r *runRepository) GetRun(ctx context.Context, runID string) (*domain.PricingRun, error) {
	query := r.db.Rebind(`SELECT ` + runColumns + ` FROM pricing_runs WHERE id = ?`)
	return r.getOne(ctx, query, runID)
}

func (r *runRepository) FindCompletedRun(ctx context.Context, fingerprint string) (*domain.PricingRun, error) {
	query := r.db.Rebind(`
		SELECT ` + runColumns + `
		FROM pricing_runs
		WHERE fingerprint = ? AND status = ?
		ORDER BY started_at DESC
		LIMIT 1
	`)
	return r.getOne(ctx, query, fingerprint, string(domain.RunStatusCompleted))
}

func (r *runRepository) getOne(ctx context.Context, query string, args ...interface{}) (*domain.PricingRun, error) {
	var row runRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get pricing run: %w", err)
	}
	return row.toDomain()
}

func (r *runRepository) ListRuns(ctx context.Context, limit int) ([]domain.PricingRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := r.db.Rebind(`SELECT ` + runColumns + ` FROM pricing_runs ORDER BY started_at DESC, id LIMIT ?`)

	var rows []runRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list pricing runs: %w", err)
	}

	runs := make([]domain.PricingRun, 0, len(rows))
	for _, row := range rows {
		run, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

func (r *runRepository) ListItems(ctx context.Context, runID string, filter domain.ItemFilter) ([]domain.PricedProduct, int, error) {
	conditions := []string{"run_id = ?"}
	args := []interface{}{runID}

	if city := strings.ToLower(strings.TrimSpace(filter.City)); city != "" {
		conditions = append(conditions, "LOWER(city) = ?")
		args = append(args, city)
	}
	if tier, ok := domain.ParseKVITier(filter.Tier); ok {
		conditions = append(conditions, "kvi_tier = ?")
		args = append(args, string(tier))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := r.db.Rebind(`SELECT COUNT(*) FROM pricing_run_items WHERE ` + where)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count priced items: %w", err)
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	query := r.db.Rebind(`
		SELECT ` + itemColumns + `
		FROM pricing_run_items
		WHERE ` + where + `
		ORDER BY row_index
		LIMIT ? OFFSET ?
	`)
	args = append(args, size, (page-1)*size)

	items := []domain.PricedProduct{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list priced items: %w", err)
	}
	return items, total, nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultItemPageSize
	}
	if size > maxItemPageSize {
		size = maxItemPageSize
	}
	return page, size
}

func expectOneRow(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}
	return nil
}
