package pricing

import (
	"sort"

	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
)

// Tierer assigns KVI tiers by cumulative revenue share and looks up target margins.
type Tierer struct {
	ref     *Reference
	workers int
}

func NewTierer(ref *Reference, workers int) *Tierer {
	if workers < 1 {
		workers = 1
	}
	return &Tierer{ref: ref, workers: workers}
}

type tierGroupKey struct {
	City     string
	Category domain.PackCategory
}

// Assign returns one TierAssignment per product, aligned with products.
// overridePct, when non-nil, replaces every computed target margin.
func (t *Tierer) Assign(products []PreparedProduct, overridePct *float64) []domain.TierAssignment {
	out := make([]domain.TierAssignment, len(products))

	groups := make(map[tierGroupKey][]int)
	var order []tierGroupKey
	for i, p := range products {
		cat := t.ref.PackCategory(PackCount(p.PackToken))
		out[i] = domain.TierAssignment{
			ProductID:    p.ProductID,
			City:         p.Record.City,
			PackCategory: cat,
			KVITier:      domain.KVITier3,
		}

		key := tierGroupKey{City: p.City, Category: cat}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	fanOut(t.workers, len(order), func(i int) {
		t.rankGroup(products, groups[order[i]], out)
	})

	for i, p := range products {
		if overridePct != nil {
			out[i].TargetMarginFraction = *overridePct / 100
			continue
		}
		out[i].TargetMarginFraction = t.ref.TargetMargin(out[i].PackCategory, out[i].KVITier, p.IsPrivateLabel, p.CityTier)
	}

	return out
}

// rankGroup orders members by revenue weight descending (ties keep input
// order) and walks the cumulative share against the tier thresholds.
func (t *Tierer) rankGroup(products []PreparedProduct, members []int, out []domain.TierAssignment) {
	sorted := append([]int(nil), members...)
	sort.SliceStable(sorted, func(a, b int) bool {
		return products[sorted[a]].RevenueWeight > products[sorted[b]].RevenueWeight
	})

	total := 0.0
	for _, idx := range sorted {
		total += products[idx].RevenueWeight
	}
	if total == 0 {
		total = 1
	}

	ref := t.ref.Data()
	running := 0.0
	for _, idx := range sorted {
		w := products[idx].RevenueWeight
		running += w
		share := running / total

		a := &out[idx]
		a.RevenueShare = w / total
		a.CumulativeShare = share

		switch {
		case w == 0:
			a.KVITier = domain.KVITier3
		case share <= ref.Tier1CumulativeShare:
			a.KVITier = domain.KVITier1
		case share <= ref.Tier2CumulativeShare:
			a.KVITier = domain.KVITier2
		default:
			a.KVITier = domain.KVITier3
		}
	}
}
