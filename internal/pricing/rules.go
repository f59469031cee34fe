package pricing

import "github.com/andresuchdata/pricing-model/backend-go/internal/domain"

// Action reasons recorded on priced products.
const (
	ReasonMinMargin        = "Min Margin"
	ReasonInsufficientT2   = "T2 Insufficient: Ignored Comp Match"
	ReasonCompMatch        = "Comp Match"
	ReasonKVIUndercut      = "KVI T1 Aggression: Beat Comp by 2%"
	ReasonBrandFixedSDPO   = "Brand Rule: Fixed SDPO"
	ReasonMissingCost      = "Fallback: Missing COGS -> MRP"
	ReasonUnpriceableItem  = "Unpriceable: Missing COGS and MRP"
	ReasonMissingProductID = "Unpriceable: Missing Product ID"
)

// PriceInputs is everything a price rule may look at for one product.
type PriceInputs struct {
	MRP            float64
	Cost           float64
	BDPO           float64 // flat brand discount amount
	FixedSDPO      float64 // mandated discount fraction, 0 when none
	Target         float64
	Tier           domain.KVITier
	HasComp        bool
	CompPrice      float64 // matched price, or MinMarginPrice when unmatched
	MinMarginPrice float64
	CompMargin     float64 // margin realized at CompPrice
	Insufficient   bool    // T2 city with insufficient stock
	UndercutFactor float64
}

// PriceRule is one step of the pricing cascade.
type PriceRule struct {
	Name string
	// ExemptFromCeiling lets contractual prices sit above the generic ceiling.
	ExemptFromCeiling bool
	Applies           func(in PriceInputs) bool
	Price             func(in PriceInputs) float64
}

// DefaultRules returns the cascade in priority order, lowest first. The last
// rule whose predicate holds sets the price.
func DefaultRules() []PriceRule {
	return []PriceRule{
		{
			Name:    ReasonMinMargin,
			Applies: func(PriceInputs) bool { return true },
			Price:   func(in PriceInputs) float64 { return in.MinMarginPrice },
		},
		{
			Name:    ReasonInsufficientT2,
			Applies: func(in PriceInputs) bool { return in.Insufficient },
			Price:   func(in PriceInputs) float64 { return in.MinMarginPrice },
		},
		{
			Name: ReasonCompMatch,
			Applies: func(in PriceInputs) bool {
				return in.HasComp && in.CompMargin >= in.Target && !in.Insufficient
			},
			Price: func(in PriceInputs) float64 { return in.CompPrice },
		},
		{
			Name: ReasonKVIUndercut,
			Applies: func(in PriceInputs) bool {
				return in.Tier == domain.KVITier1 && in.HasComp && in.CompMargin > in.Target && !in.Insufficient
			},
			Price: func(in PriceInputs) float64 { return in.CompPrice * in.UndercutFactor },
		},
		{
			Name:              ReasonBrandFixedSDPO,
			ExemptFromCeiling: true,
			Applies:           func(in PriceInputs) bool { return in.FixedSDPO > 0 },
			Price:             func(in PriceInputs) float64 { return in.MRP*(1-in.FixedSDPO) - in.BDPO },
		},
	}
}

// Evaluate returns the winning rule and its price.
func Evaluate(rules []PriceRule, in PriceInputs) (PriceRule, float64) {
	for i := len(rules) - 1; i >= 0; i-- {
		if rules[i].Applies(in) {
			return rules[i], rules[i].Price(in)
		}
	}
	return PriceRule{Name: ReasonMinMargin}, in.MinMarginPrice
}
