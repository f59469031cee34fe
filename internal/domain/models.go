// backend-go/internal/domain/models.go
package domain

import (
	"math"
	"time"
)

// ProductRecord is one row of the internal catalog (IM) for a city.
type ProductRecord struct {
	ProductID        string  `json:"product_id" db:"product_id"`
	City             string  `json:"city" db:"city"`
	Brand            string  `json:"brand" db:"brand"`
	ItemName         string  `json:"item_name" db:"item_name"`
	RawUOM           string  `json:"raw_uom" db:"raw_uom"`
	MRP              float64 `json:"mrp" db:"mrp"`
	Cost             float64 `json:"cost" db:"cost"`
	OperationalFloor float64 `json:"operational_floor,omitempty" db:"operational_floor"` // MOP
	BDPO             string  `json:"bdpo,omitempty" db:"bdpo"`                           // "5%" or an absolute amount
	CurrentPrice     float64 `json:"current_price,omitempty" db:"current_price"`
}

// CompetitorObservation is a scraped competitor shelf price.
type CompetitorObservation struct {
	City      string  `json:"city"`
	Brand     string  `json:"brand"`
	ItemName  string  `json:"item_name"`
	RawUOM    string  `json:"raw_uom"`
	UnitPrice float64 `json:"unit_price"`
	MRP       float64 `json:"mrp"`
	Source    string  `json:"source"`
}

// StockEntry carries the stock signal for a (city, product) pair.
type StockEntry struct {
	City      string      `json:"city"`
	ProductID string      `json:"product_id"`
	Status    StockStatus `json:"status"`
}

// RevenueWeight is the GMV contribution of a product. City is optional.
type RevenueWeight struct {
	ProductID string  `json:"product_id"`
	City      string  `json:"city,omitempty"`
	Weight    float64 `json:"weight"`
}

// BrandPolicy holds contractual brand terms.
type BrandPolicy struct {
	Brand     string `json:"brand"`
	FixedSDPO string `json:"fixed_sdpo"`     // "5%" or "5"
	BDPO      string `json:"bdpo,omitempty"` // used when the product row has none
}

// Exclusion removes a brand's competitor observations in one city.
type Exclusion struct {
	City  string `json:"city"`
	Brand string `json:"brand"`
}

// ElasticityEntry supplies the demand response used by GMV goodness.
type ElasticityEntry struct {
	ProductID  string  `json:"product_id"`
	City       string  `json:"city"`
	Day        string  `json:"day,omitempty"`
	Elasticity float64 `json:"elasticity"`
	BaseQty    float64 `json:"base_qty,omitempty"`
}

// PricingInputs is the in-memory snapshot consumed by one run.
type PricingInputs struct {
	Products      []ProductRecord         `json:"products"`
	Competitors   []CompetitorObservation `json:"competitors"`
	Stock         []StockEntry            `json:"stock"`
	Weights       []RevenueWeight         `json:"weights"`
	BrandPolicies []BrandPolicy           `json:"brand_policies"`
	Exclusions    []Exclusion             `json:"exclusions"`
	Elasticities  []ElasticityEntry       `json:"elasticities"`
}

// RunOptions are caller choices that are not part of the data snapshot.
type RunOptions struct {
	Category string `json:"category"`
	// TargetMarginPct replaces every computed target when set (manual margin mode).
	TargetMarginPct *float64 `json:"target_margin_pct,omitempty"`
	DayOfWeek       string   `json:"day_of_week,omitempty"`
	Workers         int      `json:"-"`
}

// Validate rejects options no run can honor.
func (o RunOptions) Validate() error {
	if pct := o.TargetMarginPct; pct != nil && (math.IsNaN(*pct) || *pct < 0 || *pct >= 100) {
		return &ConfigError{Table: "run_options", Err: ErrTargetMarginRange}
	}
	return nil
}

// MatchResult is the competitor reference chosen for one product record.
type MatchResult struct {
	ProductID     string   `json:"product_id"`
	City          string   `json:"city"`
	MatchedPrice  *float64 `json:"matched_price"`
	MatchedBrand  string   `json:"matched_brand,omitempty"`
	MatchedSource string   `json:"matched_source,omitempty"`
	Rationale     string   `json:"rationale"`
}

// HasPrice reports whether the match carries a usable competitor price.
func (m MatchResult) HasPrice() bool {
	return m.MatchedPrice != nil && *m.MatchedPrice > 0
}

// TierAssignment is the KVI classification of one product record.
type TierAssignment struct {
	ProductID            string       `json:"product_id"`
	City                 string       `json:"city"`
	PackCategory         PackCategory `json:"pack_category"`
	KVITier              KVITier      `json:"kvi_tier"`
	RevenueShare         float64      `json:"revenue_share"`
	CumulativeShare      float64      `json:"cumulative_share"`
	TargetMarginFraction float64      `json:"target_margin_fraction"`
}

// PricedProduct is the terminal row of a run.
type PricedProduct struct {
	ProductID      string      `json:"product_id" db:"product_id"`
	City           string      `json:"city" db:"city"`
	Brand          string      `json:"brand" db:"brand"`
	ItemName       string      `json:"item_name" db:"item_name"`
	PackToken      string      `json:"pack_token" db:"pack_token"`
	CityTier       CityTier    `json:"city_tier" db:"city_tier"`
	IsPrivateLabel bool        `json:"is_private_label" db:"is_private_label"`
	StockStatus    StockStatus `json:"stock_status" db:"stock_status"`

	MRP  float64 `json:"mrp" db:"mrp"`
	Cost float64 `json:"cost" db:"cost"`
	BDPO float64 `json:"bdpo" db:"bdpo"`

	MatchedPrice   *float64 `json:"matched_price" db:"matched_price"`
	MatchedBrand   string   `json:"matched_brand,omitempty" db:"matched_brand"`
	MatchedSource  string   `json:"matched_source,omitempty" db:"matched_source"`
	MatchRationale string   `json:"match_rationale" db:"match_rationale"`

	PackCategory         PackCategory `json:"pack_category" db:"pack_category"`
	KVITier              KVITier      `json:"kvi_tier" db:"kvi_tier"`
	TargetMarginFraction float64      `json:"target_margin_fraction" db:"target_margin_fraction"`

	FinalPrice          float64 `json:"final_price" db:"final_price"`
	RealizedMarginPct   float64 `json:"realized_margin_pct" db:"realized_margin_pct"`
	RealizedDiscountPct float64 `json:"realized_discount_pct" db:"realized_discount_pct"`
	ActionReason        string  `json:"action_reason" db:"action_reason"`

	PriceIndex  *float64 `json:"price_index,omitempty" db:"price_index"`
	GMVGoodness float64  `json:"gmv_goodness" db:"gmv_goodness"`
}

// Summary aggregates a priced catalog.
type Summary struct {
	TotalProducts        int     `json:"total_products" db:"total_products"`
	MatchedProducts      int     `json:"matched_products" db:"matched_products"`
	FallbackPriced       int     `json:"fallback_priced" db:"fallback_priced"`
	AvgRealizedMarginPct float64 `json:"avg_realized_margin_pct" db:"avg_realized_margin_pct"`
	AvgPriceIndex        float64 `json:"avg_price_index" db:"avg_price_index"`
	AvgGMVGoodness       float64 `json:"avg_gmv_goodness" db:"avg_gmv_goodness"`
}

// RunResult is what one engine invocation produces.
type RunResult struct {
	RunID       string          `json:"run_id"`
	Category    string          `json:"category"`
	Fingerprint string          `json:"fingerprint"`
	Items       []PricedProduct `json:"items"`
	Summary     Summary         `json:"summary"`
	Issues      []Issue         `json:"issues,omitempty"`
}

// PricingRun is the persisted header of a run.
type PricingRun struct {
	ID              string     `json:"id" db:"id"`
	Category        string     `json:"category" db:"category"`
	Fingerprint     string     `json:"fingerprint" db:"fingerprint"`
	Status          RunStatus  `json:"status" db:"status"`
	TargetMarginPct *float64   `json:"target_margin_pct,omitempty" db:"target_margin_pct"`
	TotalProducts   int        `json:"total_products" db:"total_products"`
	IssueCount      int        `json:"issue_count" db:"issue_count"`
	Summary         Summary    `json:"summary" db:"-"`
	Issues          []Issue    `json:"issues,omitempty" db:"-"`
	ErrorMessage    string     `json:"error_message,omitempty" db:"error_message"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// ItemFilter narrows the priced rows of a run.
type ItemFilter struct {
	City     string
	Tier     string
	Page     int
	PageSize int
}
