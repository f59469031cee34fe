package pricing

import (
	"strings"
	"testing"

	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
)

func prepareForTest(t *testing.T, in domain.PricingInputs) *PreparedData {
	t.Helper()
	data, err := newTestPreparer().Prepare(in, &IssueLog{})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	return data
}

func TestSpacedPrices(t *testing.T) {
	prices := []float64{10.6, 10, 12, 10.2}
	comps := make([]PreparedCompetitor, len(prices))
	pool := make([]int, len(prices))
	for i, p := range prices {
		comps[i] = PreparedCompetitor{Record: domain.CompetitorObservation{UnitPrice: p, Source: "s"}}
		pool[i] = i
	}

	kept := SpacedPrices(comps, pool, 1.05)

	want := []float64{10, 10.6, 12}
	if len(kept) != len(want) {
		t.Fatalf("kept %d prices, want %d", len(kept), len(want))
	}
	for i, idx := range kept {
		if got := comps[idx].Record.UnitPrice; got != want[i] {
			t.Errorf("kept[%d] = %v, want %v", i, got, want[i])
		}
	}
}

func TestMatcher_PrivateLabelRanks(t *testing.T) {
	in := domain.PricingInputs{
		Products: []domain.ProductRecord{
			{ProductID: "11173", City: "A", ItemName: "Eggs", RawUOM: "12 pcs", MRP: 10, Cost: 6},
			{ProductID: "11962", City: "A", ItemName: "Eggs", RawUOM: "12 pcs", MRP: 10, Cost: 5},
			{ProductID: "11174", City: "A", ItemName: "Eggs", RawUOM: "12 pcs", MRP: 10, Cost: 7},
		},
		Competitors: []domain.CompetitorObservation{
			{City: "A", Brand: "X", ItemName: "Eggs", RawUOM: "12 pieces", UnitPrice: 8.3, Source: "s2"},
			{City: "A", Brand: "Y", ItemName: "Eggs", RawUOM: "12 pieces", UnitPrice: 8, Source: "s1"},
			// different variant, never in the pool
			{City: "A", Brand: "Z", ItemName: "Brown Eggs", RawUOM: "12 pieces", UnitPrice: 9, Source: "s1"},
			// unit price above the per-piece ceiling
			{City: "A", Brand: "Z", ItemName: "Eggs", RawUOM: "12 pieces", UnitPrice: 240, Source: "s3"},
		},
	}

	results := NewMatcher(DefaultReference(), 2).Match(prepareForTest(t, in))

	if !results[1].HasPrice() || *results[1].MatchedPrice != 8 {
		t.Fatalf("cheapest cost product match = %+v, want 8", results[1])
	}
	if results[1].Rationale != "OPP Match: Rank 1" || results[1].MatchedBrand != "Y" {
		t.Errorf("rank 1 = %+v", results[1])
	}
	for _, i := range []int{0, 2} {
		if results[i].HasPrice() {
			t.Errorf("product %d unexpectedly matched: %+v", i, results[i])
		}
		if !strings.HasPrefix(results[i].Rationale, "OPP condition not met") {
			t.Errorf("product %d rationale = %q", i, results[i].Rationale)
		}
	}
	if results[0].Rationale != "OPP condition not met: Rank 2 > Avail (1)" {
		t.Errorf("rank 2 rationale = %q", results[0].Rationale)
	}
}

func TestMatcher_BrandedPriority(t *testing.T) {
	tests := []struct {
		name      string
		comps     []domain.CompetitorObservation
		wantPrice float64
		wantWhy   string
	}{
		{
			name: "exact token beats cheaper pack size",
			comps: []domain.CompetitorObservation{
				{City: "pune", Brand: "Happy Farms", RawUOM: "2 pcs", UnitPrice: 80, MRP: 100, Source: "a"},
				{City: "pune", Brand: "Happy", RawUOM: "2 combo", UnitPrice: 95, MRP: 100, Source: "b"},
			},
			wantPrice: 95,
			wantWhy:   "Non-OPP Match: Exact UOM String",
		},
		{
			name: "numeric pack size",
			comps: []domain.CompetitorObservation{
				{City: "pune", Brand: "Happy Eggs", RawUOM: "2 pcs", UnitPrice: 80, MRP: 100, Source: "a"},
			},
			wantPrice: 80,
			wantWhy:   "Non-OPP Match: Numeric Pack Size",
		},
		{
			name: "cheapest of equal priority",
			comps: []domain.CompetitorObservation{
				{City: "pune", Brand: "Happy", RawUOM: "2 combo", UnitPrice: 95, MRP: 100, Source: "b"},
				{City: "pune", Brand: "Happy", RawUOM: "2 combo", UnitPrice: 92, MRP: 100.4, Source: "c"},
			},
			wantPrice: 92,
			wantWhy:   "Non-OPP Match: Exact UOM String",
		},
		{
			name: "mrp must match",
			comps: []domain.CompetitorObservation{
				{City: "pune", Brand: "Happy", RawUOM: "2 combo", UnitPrice: 95, MRP: 120, Source: "b"},
			},
			wantWhy: "Non OPP condition not met",
		},
		{
			name: "other city ignored",
			comps: []domain.CompetitorObservation{
				{City: "mumbai", Brand: "Happy", RawUOM: "2 combo", UnitPrice: 95, MRP: 100, Source: "b"},
			},
			wantWhy: "Non OPP condition not met",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := domain.PricingInputs{
				Products: []domain.ProductRecord{
					{ProductID: "500", City: "Pune", Brand: "Happy Eggs", RawUOM: "2 combo", MRP: 100, Cost: 70},
				},
				Competitors: tt.comps,
			}
			r := NewMatcher(DefaultReference(), 1).Match(prepareForTest(t, in))[0]

			if r.Rationale != tt.wantWhy {
				t.Errorf("rationale = %q, want %q", r.Rationale, tt.wantWhy)
			}
			if tt.wantPrice == 0 {
				if r.HasPrice() {
					t.Errorf("unexpected match %v", *r.MatchedPrice)
				}
				return
			}
			if !r.HasPrice() || *r.MatchedPrice != tt.wantPrice {
				t.Errorf("matched = %+v, want %v", r, tt.wantPrice)
			}
		})
	}
}

func TestMatcher_GeographicFallback(t *testing.T) {
	in := domain.PricingInputs{
		Products: []domain.ProductRecord{
			{ProductID: "500", City: "mumbai", Brand: "Happy", RawUOM: "6 pcs", MRP: 60, Cost: 40},
			{ProductID: "500", City: "pune", Brand: "Happy", RawUOM: "6 pcs", MRP: 60, Cost: 40},
			{ProductID: "500", City: "nagpur", Brand: "Happy", RawUOM: "6 pcs", MRP: 60, Cost: 40},
			{ProductID: "501", City: "mumbai", Brand: "Happy", RawUOM: "6 pcs", MRP: 70, Cost: 40},
			{ProductID: "501", City: "nagpur", Brand: "Happy", RawUOM: "6 pcs", MRP: 70, Cost: 40},
			{ProductID: "502", City: "nagpur", Brand: "Happy", RawUOM: "6 pcs", MRP: 80, Cost: 40},
		},
		Competitors: []domain.CompetitorObservation{
			{City: "mumbai", Brand: "Happy", RawUOM: "6 pcs", UnitPrice: 58, MRP: 60, Source: "a"},
			{City: "pune", Brand: "Happy", RawUOM: "6 pcs", UnitPrice: 55, MRP: 60, Source: "a"},
			{City: "mumbai", Brand: "Happy", RawUOM: "6 pcs", UnitPrice: 66, MRP: 70, Source: "a"},
		},
		Stock: []domain.StockEntry{
			{City: "nagpur", ProductID: "501", Status: domain.StockInsufficient},
		},
	}

	results := NewMatcher(DefaultReference(), 4).Match(prepareForTest(t, in))

	fb := results[2]
	if !fb.HasPrice() || *fb.MatchedPrice != 55 {
		t.Fatalf("fallback = %+v, want cheapest T1 price 55", fb)
	}
	if fb.Rationale != "Fallback: Used Maharashtra T1" {
		t.Errorf("rationale = %q", fb.Rationale)
	}
	if results[4].HasPrice() {
		t.Errorf("insufficient T2 product borrowed a price: %+v", results[4])
	}
	if results[5].HasPrice() {
		t.Errorf("product without T1 match borrowed a price: %+v", results[5])
	}

	// the borrowed value is a copy
	*results[1].MatchedPrice = 1
	if *fb.MatchedPrice != 55 {
		t.Error("fallback shares storage with its source")
	}
}

func TestMatcher_UnrecognizedPackNeverMatches(t *testing.T) {
	tests := []struct {
		name    string
		product domain.ProductRecord
		comp    domain.CompetitorObservation
		wantWhy string
	}{
		{
			name:    "branded verbatim token against one piece",
			product: domain.ProductRecord{ProductID: "500", City: "pune", Brand: "Happy", RawUOM: "tray", MRP: 60, Cost: 40},
			comp:    domain.CompetitorObservation{City: "pune", Brand: "Happy", RawUOM: "1 pcs", UnitPrice: 5, MRP: 60, Source: "a"},
			wantWhy: "Non OPP condition not met",
		},
		{
			name:    "branded verbatim token on both sides",
			product: domain.ProductRecord{ProductID: "500", City: "pune", Brand: "Happy", RawUOM: "tray", MRP: 60, Cost: 40},
			comp:    domain.CompetitorObservation{City: "pune", Brand: "Happy", RawUOM: "tray", UnitPrice: 5, MRP: 60, Source: "a"},
			wantWhy: "Non OPP condition not met",
		},
		{
			name:    "private label verbatim token",
			product: domain.ProductRecord{ProductID: "11962", City: "pune", RawUOM: "tray", MRP: 60, Cost: 40},
			comp:    domain.CompetitorObservation{City: "pune", Brand: "X", RawUOM: "tray", UnitPrice: 5, MRP: 60, Source: "a"},
			wantWhy: "OPP condition not met: Rank 1 > Avail (0)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := domain.PricingInputs{
				Products:    []domain.ProductRecord{tt.product},
				Competitors: []domain.CompetitorObservation{tt.comp},
			}
			r := NewMatcher(DefaultReference(), 1).Match(prepareForTest(t, in))[0]
			if r.HasPrice() {
				t.Errorf("matched %v through an unrecognized pack", *r.MatchedPrice)
			}
			if r.Rationale != tt.wantWhy {
				t.Errorf("rationale = %q, want %q", r.Rationale, tt.wantWhy)
			}
		})
	}
}
