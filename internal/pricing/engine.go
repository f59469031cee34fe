// Package pricing computes per-city retail prices for a catalog snapshot:
// unit normalization, competitor matching, KVI tiering and the bounded price
// cascade. A run is a deterministic function of its inputs.
package pricing

import (
	"time"

	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
	"github.com/rs/zerolog/log"
)

// Engine wires the stages together. It is safe for concurrent use; each Run
// works on its own tables.
type Engine struct {
	ref        *Reference
	normalizer *UnitNormalizer
	preparer   *Preparer
	calculator *Calculator
	reporter   *Reporter
	workers    int
}

// Option customizes an Engine.
type Option func(*Engine)

// WithWorkers sets the fan-out used for per-group matching and tiering.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithRules replaces the price cascade.
func WithRules(rules []PriceRule) Option {
	return func(e *Engine) {
		e.calculator = NewCalculator(e.ref, rules)
	}
}

func NewEngine(ref *Reference, opts ...Option) *Engine {
	if ref == nil {
		ref = DefaultReference()
	}
	normalizer := NewUnitNormalizer(ref)
	e := &Engine{
		ref:        ref,
		normalizer: normalizer,
		preparer:   NewPreparer(ref, normalizer),
		calculator: NewCalculator(ref, nil),
		reporter:   NewReporter(ref),
		workers:    1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Reference() *Reference { return e.ref }

func (e *Engine) Normalizer() *UnitNormalizer { return e.normalizer }

// Run prices every product record in the snapshot. Only invalid options or a
// product table with no identifiers at all return an error; everything else
// is reported as issues.
func (e *Engine) Run(in domain.PricingInputs, opts domain.RunOptions) (*domain.RunResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	workers := e.workers
	if opts.Workers > 0 {
		workers = opts.Workers
	}

	issues := &IssueLog{}
	if len(in.Products) == 0 {
		issues.Add(domain.Issue{Kind: domain.IssueMissingInput, Detail: "product table is empty"})
	}

	prepared, err := e.preparer.Prepare(in, issues)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Int("products", len(prepared.Products)).
		Int("competitors", len(prepared.Competitors)).
		Msg("pricing: data prepared")

	matches := NewMatcher(e.ref, workers).Match(prepared)
	tiers := NewTierer(e.ref, workers).Assign(prepared.Products, opts.TargetMarginPct)

	sdpo, brandBDPO := indexBrandPolicies(in.BrandPolicies)

	items := make([]domain.PricedProduct, len(prepared.Products))
	currentPrices := make([]float64, len(prepared.Products))
	for i, p := range prepared.Products {
		items[i] = e.calculator.Price(p, matches[i], tiers[i], sdpo, brandBDPO, issues)
		currentPrices[i] = p.Record.CurrentPrice
	}

	e.reporter.Annotate(items, currentPrices, in.Elasticities, opts.DayOfWeek)

	result := &domain.RunResult{
		Category: opts.Category,
		Items:    items,
		Summary:  Summarize(items),
		Issues:   issues.Issues(),
	}

	log.Info().
		Int("products", result.Summary.TotalProducts).
		Int("matched", result.Summary.MatchedProducts).
		Int("issues", len(result.Issues)).
		Float64("avg_margin_pct", result.Summary.AvgRealizedMarginPct).
		Dur("elapsed", time.Since(start)).
		Msg("pricing: run complete")

	return result, nil
}

func indexBrandPolicies(policies []domain.BrandPolicy) (map[string]float64, map[string]string) {
	sdpo := make(map[string]float64, len(policies))
	bdpo := make(map[string]string, len(policies))
	for _, bp := range policies {
		brand := cleanKey(bp.Brand)
		if _, dup := sdpo[brand]; dup {
			continue
		}
		sdpo[brand] = ParseSDPO(bp.FixedSDPO)
		if bp.BDPO != "" {
			bdpo[brand] = bp.BDPO
		}
	}
	return sdpo, bdpo
}
