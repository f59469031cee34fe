package pricing

import (
	"strings"

	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
)

type demandResponse struct {
	Elasticity float64
	BaseQty    float64
}

// Reporter computes per-row performance fields and the catalog summary.
type Reporter struct {
	ref *Reference
}

func NewReporter(ref *Reference) *Reporter {
	return &Reporter{ref: ref}
}

// Annotate fills PriceIndex and GMVGoodness on every row in place. Rows belong
// to the current run; the earlier stage tables are not touched.
func (r *Reporter) Annotate(items []domain.PricedProduct, currentPrices []float64, elasticities []domain.ElasticityEntry, day string) {
	demand := r.indexDemand(elasticities, day)
	ref := r.ref.Data()

	for i := range items {
		it := &items[i]

		if it.MatchedPrice != nil && *it.MatchedPrice > 0 {
			idx := it.FinalPrice / *it.MatchedPrice * 100
			it.PriceIndex = &idx
		}

		resp := demandResponse{Elasticity: ref.DefaultElasticity, BaseQty: ref.DefaultBaseQty}
		if it.ProductID != "" {
			if d, ok := demand[cleanKey(it.City)+"_"+it.ProductID]; ok {
				resp = d
			} else if d, ok := demand["_"+it.ProductID]; ok {
				resp = d
			}
		}

		current := currentPrices[i]
		if current <= 0 {
			current = it.MRP
		}
		it.GMVGoodness = GMVGoodness(current, it.FinalPrice, resp.Elasticity, resp.BaseQty)
	}
}

// GMVGoodness projects the GMV change of moving from current to next price
// under a linear elasticity response.
func GMVGoodness(current, next, elasticity, baseQty float64) float64 {
	if current == 0 {
		current = 1
	}
	pctChange := (next - current) / current
	newQty := baseQty * (1 + elasticity*pctChange)
	return next*newQty - current*baseQty
}

func (r *Reporter) indexDemand(entries []domain.ElasticityEntry, day string) map[string]demandResponse {
	ref := r.ref.Data()
	idx := make(map[string]demandResponse, len(entries))
	for _, e := range entries {
		if day != "" && e.Day != "" && !strings.EqualFold(strings.TrimSpace(e.Day), strings.TrimSpace(day)) {
			continue
		}
		key := cleanKey(e.City) + "_" + CanonicalProductID(e.ProductID)
		if _, dup := idx[key]; dup {
			continue
		}
		base := e.BaseQty
		if base <= 0 {
			base = ref.DefaultBaseQty
		}
		idx[key] = demandResponse{Elasticity: e.Elasticity, BaseQty: base}
	}
	return idx
}

// Summarize aggregates a priced catalog.
func Summarize(items []domain.PricedProduct) domain.Summary {
	s := domain.Summary{TotalProducts: len(items), AvgPriceIndex: 100}
	if len(items) == 0 {
		return s
	}

	var marginSum, indexSum, goodnessSum float64
	indexed := 0
	for _, it := range items {
		marginSum += it.RealizedMarginPct
		goodnessSum += it.GMVGoodness
		if it.MatchedPrice != nil && *it.MatchedPrice > 0 {
			s.MatchedProducts++
		}
		if it.PriceIndex != nil {
			indexSum += *it.PriceIndex
			indexed++
		}
		switch it.ActionReason {
		case ReasonMissingCost, ReasonUnpriceableItem, ReasonMissingProductID:
			s.FallbackPriced++
		}
	}

	n := float64(len(items))
	s.AvgRealizedMarginPct = marginSum / n
	s.AvgGMVGoodness = goodnessSum / n
	if indexed > 0 {
		s.AvgPriceIndex = indexSum / float64(indexed)
	}
	return s
}
