package pricing

import (
	"fmt"
	"sort"

	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	matchPriorityExactToken = 1
	matchPriorityPackSize   = 2
)

// Matcher selects one competitor reference price per product record.
type Matcher struct {
	ref     *Reference
	workers int
}

func NewMatcher(ref *Reference, workers int) *Matcher {
	if workers < 1 {
		workers = 1
	}
	return &Matcher{ref: ref, workers: workers}
}

type oppGroupKey struct {
	City    string
	Token   string
	Variant string
}

type brandJoinKey struct {
	City     string
	BrandKey string
	MRP      float64
}

// Match returns one MatchResult per product, aligned with data.Products.
func (m *Matcher) Match(data *PreparedData) []domain.MatchResult {
	results := make([]domain.MatchResult, len(data.Products))
	for i, p := range data.Products {
		results[i] = domain.MatchResult{ProductID: p.ProductID, City: p.Record.City}
	}

	groups := m.oppGroups(data)
	fanOut(m.workers, len(groups), func(i int) {
		m.matchPrivateLabelGroup(data, groups[i].products, groups[i].pool, results)
	})

	compIndex := indexCompetitorsByBrand(data.Competitors)
	cities := brandedCities(data.Products)
	fanOut(m.workers, len(cities), func(i int) {
		m.matchBrandedCity(data, cities[i], compIndex, results)
	})

	m.applyGeographicFallback(data, results)

	matched := 0
	for _, r := range results {
		if r.HasPrice() {
			matched++
		}
	}
	log.Info().Int("products", len(results)).Int("matched", matched).Msg("pricing: matching complete")

	return results
}

type oppGroup struct {
	key      oppGroupKey
	products []int
	pool     []int
}

// oppGroups partitions private-label products by (city, pack, variant) in
// first-seen order and attaches the competitor pool of each group.
func (m *Matcher) oppGroups(data *PreparedData) []*oppGroup {
	byKey := make(map[oppGroupKey]*oppGroup)
	var ordered []*oppGroup

	for i, p := range data.Products {
		if !p.IsPrivateLabel {
			continue
		}
		key := oppGroupKey{City: p.City, Token: p.PackToken, Variant: p.Variant}
		g, ok := byKey[key]
		if !ok {
			g = &oppGroup{key: key}
			byKey[key] = g
			ordered = append(ordered, g)
		}
		g.products = append(g.products, i)
	}

	ceiling := m.ref.Data().OPPUnitPriceCeiling
	for i, c := range data.Competitors {
		if !c.Matchable() || c.Record.UnitPrice <= 0 || c.PricePerUnit > ceiling {
			continue
		}
		key := oppGroupKey{City: c.City, Token: c.PackToken, Variant: c.Variant}
		if g, ok := byKey[key]; ok {
			g.pool = append(g.pool, i)
		}
	}

	return ordered
}

func (m *Matcher) matchPrivateLabelGroup(data *PreparedData, products, pool []int, results []domain.MatchResult) {
	sorted := append([]int(nil), products...)
	sort.SliceStable(sorted, func(a, b int) bool {
		return data.Products[sorted[a]].Record.Cost < data.Products[sorted[b]].Record.Cost
	})

	// Unrecognized or missing pack tokens share a group key but are not a
	// comparable pack, so the whole group stays unmatched.
	var spaced []int
	if data.Products[sorted[0]].Matchable() {
		spaced = SpacedPrices(data.Competitors, pool, m.ref.Data().SpacingRatio)
	}

	for rank, idx := range sorted {
		r := &results[idx]
		if rank >= len(spaced) {
			r.Rationale = fmt.Sprintf("OPP condition not met: Rank %d > Avail (%d)", rank+1, len(spaced))
			continue
		}
		c := data.Competitors[spaced[rank]].Record
		price := c.UnitPrice
		r.MatchedPrice = &price
		r.MatchedBrand = c.Brand
		r.MatchedSource = c.Source
		r.Rationale = fmt.Sprintf("OPP Match: Rank %d", rank+1)
	}
}

// SpacedPrices sorts the pool by price (then source) and keeps the first
// observation plus every later one priced at least ratio times the last kept.
func SpacedPrices(comps []PreparedCompetitor, pool []int, ratio float64) []int {
	sorted := append([]int(nil), pool...)
	sort.SliceStable(sorted, func(a, b int) bool {
		ca, cb := comps[sorted[a]].Record, comps[sorted[b]].Record
		if ca.UnitPrice != cb.UnitPrice {
			return ca.UnitPrice < cb.UnitPrice
		}
		return ca.Source < cb.Source
	})

	var kept []int
	last := 0.0
	for _, idx := range sorted {
		price := comps[idx].Record.UnitPrice
		if price >= last*ratio {
			kept = append(kept, idx)
			last = price
		}
	}
	return kept
}

func indexCompetitorsByBrand(comps []PreparedCompetitor) map[brandJoinKey][]int {
	idx := make(map[brandJoinKey][]int)
	for i, c := range comps {
		if c.BrandKey == "" || c.Record.UnitPrice <= 0 {
			continue
		}
		key := brandJoinKey{City: c.City, BrandKey: c.BrandKey, MRP: c.MRPRounded}
		idx[key] = append(idx[key], i)
	}
	return idx
}

func brandedCities(products []PreparedProduct) []string {
	seen := make(map[string]struct{})
	var cities []string
	for _, p := range products {
		if p.IsPrivateLabel {
			continue
		}
		if _, ok := seen[p.City]; !ok {
			seen[p.City] = struct{}{}
			cities = append(cities, p.City)
		}
	}
	return cities
}

type brandCandidate struct {
	comp     int
	priority int
}

func (m *Matcher) matchBrandedCity(data *PreparedData, city string, compIndex map[brandJoinKey][]int, results []domain.MatchResult) {
	for i, p := range data.Products {
		if p.IsPrivateLabel || p.City != city {
			continue
		}

		best, ok := bestBrandedCandidate(p, data.Competitors, compIndex)
		r := &results[i]
		if !ok {
			r.Rationale = "Non OPP condition not met"
			continue
		}

		c := data.Competitors[best.comp].Record
		price := c.UnitPrice
		r.MatchedPrice = &price
		r.MatchedBrand = c.Brand
		r.MatchedSource = c.Source
		if best.priority == matchPriorityExactToken {
			r.Rationale = "Non-OPP Match: Exact UOM String"
		} else {
			r.Rationale = "Non-OPP Match: Numeric Pack Size"
		}
	}
}

// bestBrandedCandidate keeps the highest-priority join, then the cheapest
// price, then source name and input order.
func bestBrandedCandidate(p PreparedProduct, comps []PreparedCompetitor, compIndex map[brandJoinKey][]int) (brandCandidate, bool) {
	if p.BrandKey == "" || !p.Matchable() {
		return brandCandidate{}, false
	}

	var (
		best  brandCandidate
		found bool
	)
	for _, ci := range compIndex[brandJoinKey{City: p.City, BrandKey: p.BrandKey, MRP: p.MRPRounded}] {
		c := comps[ci]
		if !c.Matchable() {
			continue
		}

		priority := 0
		switch {
		case c.PackToken == p.PackToken:
			priority = matchPriorityExactToken
		case c.PackSize == p.PackSize:
			priority = matchPriorityPackSize
		default:
			continue
		}

		cand := brandCandidate{comp: ci, priority: priority}
		if !found || betterCandidate(cand, best, comps) {
			best = cand
			found = true
		}
	}
	return best, found
}

func betterCandidate(a, b brandCandidate, comps []PreparedCompetitor) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	pa, pb := comps[a.comp].Record, comps[b.comp].Record
	if pa.UnitPrice != pb.UnitPrice {
		return pa.UnitPrice < pb.UnitPrice
	}
	if pa.Source != pb.Source {
		return pa.Source < pb.Source
	}
	return a.comp < b.comp
}

type fallbackKey struct {
	State     string
	ProductID string
}

// applyGeographicFallback lets an unmatched T2 product borrow the cheapest
// direct match of the same product in a T1 city of the same state. Only direct
// matches are borrowed, never another fallback.
func (m *Matcher) applyGeographicFallback(data *PreparedData, results []domain.MatchResult) {
	lookup := make(map[fallbackKey]int)
	for i, p := range data.Products {
		if p.CityTier != domain.CityTier1 || p.ProductID == "" || !results[i].HasPrice() {
			continue
		}
		key := fallbackKey{State: p.State, ProductID: p.ProductID}
		if cur, ok := lookup[key]; !ok || *results[i].MatchedPrice < *results[cur].MatchedPrice {
			lookup[key] = i
		}
	}
	if len(lookup) == 0 {
		return
	}

	title := cases.Title(language.English)
	for i, p := range data.Products {
		if p.CityTier != domain.CityTier2 || p.ProductID == "" || results[i].HasPrice() {
			continue
		}
		if p.StockStatus == domain.StockInsufficient {
			continue
		}
		src, ok := lookup[fallbackKey{State: p.State, ProductID: p.ProductID}]
		if !ok {
			continue
		}

		price := *results[src].MatchedPrice
		r := &results[i]
		r.MatchedPrice = &price
		r.MatchedBrand = results[src].MatchedBrand
		r.MatchedSource = results[src].MatchedSource
		r.Rationale = fmt.Sprintf("Fallback: Used %s T1", title.String(p.State))
	}
}
