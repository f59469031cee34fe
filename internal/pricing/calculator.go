package pricing

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
	"github.com/shopspring/decimal"
)

// Calculator turns matches and tier assignments into bounded final prices.
type Calculator struct {
	ref   *Reference
	rules []PriceRule
}

func NewCalculator(ref *Reference, rules []PriceRule) *Calculator {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Calculator{ref: ref, rules: rules}
}

// Price computes the priced row for one product.
func (c *Calculator) Price(p PreparedProduct, m domain.MatchResult, t domain.TierAssignment, sdpo map[string]float64, brandBDPO map[string]string, issues *IssueLog) domain.PricedProduct {
	ref := c.ref.Data()
	rec := p.Record
	mrp := rec.MRP

	bdpoText := rec.BDPO
	if strings.TrimSpace(bdpoText) == "" {
		bdpoText = brandBDPO[p.BrandClean]
	}
	bdpo := ParseBDPO(bdpoText, mrp, ref.BDPOCapFraction)

	cost := rec.Cost
	if cost == 0 {
		cost = rec.OperationalFloor
	}

	out := domain.PricedProduct{
		ProductID:            p.ProductID,
		City:                 rec.City,
		Brand:                rec.Brand,
		ItemName:             rec.ItemName,
		PackToken:            p.PackToken,
		CityTier:             p.CityTier,
		IsPrivateLabel:       p.IsPrivateLabel,
		StockStatus:          p.StockStatus,
		MRP:                  mrp,
		Cost:                 cost,
		BDPO:                 bdpo,
		MatchedPrice:         m.MatchedPrice,
		MatchedBrand:         m.MatchedBrand,
		MatchedSource:        m.MatchedSource,
		MatchRationale:       m.Rationale,
		PackCategory:         t.PackCategory,
		KVITier:              t.KVITier,
		TargetMarginFraction: t.TargetMarginFraction,
	}

	if p.ProductID == "" {
		c.priceWithoutID(&out, p.City, issues)
		return out
	}
	if cost <= 0 {
		c.priceWithoutCost(&out, issues)
		return out
	}

	in := PriceInputs{
		MRP:            mrp,
		Cost:           cost,
		BDPO:           bdpo,
		FixedSDPO:      sdpo[p.BrandClean],
		Target:         t.TargetMarginFraction,
		Tier:           t.KVITier,
		HasComp:        m.HasPrice(),
		Insufficient:   p.CityTier == domain.CityTier2 && p.StockStatus == domain.StockInsufficient,
		UndercutFactor: ref.UndercutFactor,
	}
	in.MinMarginPrice = in.Target*mrp + cost - bdpo
	in.CompPrice = in.MinMarginPrice
	if in.HasComp {
		in.CompPrice = *m.MatchedPrice
	}
	in.CompMargin = (in.CompPrice - cost + bdpo) / nonZero(mrp)

	rule, price := Evaluate(c.rules, in)
	out.ActionReason = rule.Name

	ceiling := math.Floor(mrp - bdpo)
	if p.IsPrivateLabel {
		ceiling = mrp * ref.PrivateLabelCeilingFactor
	}

	floor := cost
	if mop := rec.OperationalFloor; mop > 0 {
		if mop > ceiling && mrp > 0 {
			issues.Add(domain.Issue{
				Kind:      domain.IssueConstraintConflict,
				City:      p.City,
				ProductID: p.ProductID,
				Detail:    fmt.Sprintf("operational floor %.2f above ceiling %.2f, using cost %.2f", mop, ceiling, cost),
			})
		} else {
			floor = math.Max(mop, cost)
		}
	}

	if !rule.ExemptFromCeiling {
		if floor > ceiling {
			issues.Add(domain.Issue{
				Kind:      domain.IssueConstraintConflict,
				City:      p.City,
				ProductID: p.ProductID,
				Detail:    fmt.Sprintf("floor %.2f above ceiling %.2f, floor kept", floor, ceiling),
			})
		}
		price = math.Min(price, ceiling)
	}
	price = math.Max(price, floor)

	final := RoundCurrency(price)
	if final < floor {
		final = math.Ceil(floor)
	}
	if !rule.ExemptFromCeiling && final > ceiling {
		if down := math.Floor(ceiling); down >= floor {
			final = down
		} else if floor <= ceiling {
			issues.Add(domain.Issue{
				Kind:      domain.IssueConstraintConflict,
				City:      p.City,
				ProductID: p.ProductID,
				Detail:    fmt.Sprintf("rounded price %.0f above ceiling %.2f, floor %.2f kept", final, ceiling, floor),
			})
		}
	}
	out.FinalPrice = math.Max(final, 1)

	c.realize(&out)
	return out
}

func (c *Calculator) priceWithoutCost(out *domain.PricedProduct, issues *IssueLog) {
	if out.MRP > 0 {
		out.FinalPrice = math.Max(RoundCurrency(out.MRP), 1)
		out.ActionReason = ReasonMissingCost
	} else {
		out.FinalPrice = 1
		out.ActionReason = ReasonUnpriceableItem
		issues.Add(domain.Issue{
			Kind:      domain.IssueUnpriceable,
			City:      cleanKey(out.City),
			ProductID: out.ProductID,
			Detail:    "cost and MRP both unusable, priced at minimum unit",
		})
	}
	c.realize(out)
}

// priceWithoutID keeps a row that has no join key at its MRP.
func (c *Calculator) priceWithoutID(out *domain.PricedProduct, city string, issues *IssueLog) {
	out.FinalPrice = 1
	if out.MRP > 0 {
		out.FinalPrice = math.Max(RoundCurrency(out.MRP), 1)
	}
	out.ActionReason = ReasonMissingProductID
	issues.Add(domain.Issue{
		Kind:   domain.IssueUnpriceable,
		City:   city,
		Detail: fmt.Sprintf("%s %q has no product_id, kept at MRP", out.Brand, out.ItemName),
	})
	c.realize(out)
}

func (c *Calculator) realize(out *domain.PricedProduct) {
	den := nonZero(out.MRP)
	out.RealizedMarginPct = (out.FinalPrice - out.Cost + out.BDPO) / den * 100
	out.RealizedDiscountPct = (out.MRP - out.FinalPrice - out.BDPO) / den * 100
}

// RoundCurrency rounds half to even to the smallest currency unit.
func RoundCurrency(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).RoundBank(0).Float64()
	return f
}

// ParseBDPO reads a brand discount given as "5%" of MRP or as an absolute
// amount. Positive values are capped at capFraction*mrp, anything else is 0.
func ParseBDPO(raw string, mrp, capFraction float64) float64 {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "nan") {
		return 0
	}

	var val float64
	if strings.Contains(s, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(s, "%", "")), 64)
		if err != nil {
			return 0
		}
		val = mrp * pct / 100
	} else {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		val = v
	}

	if val > 0 {
		return math.Min(val, mrp*capFraction)
	}
	return 0
}

// ParseSDPO reads a mandated discount percentage ("5%" or "5") as a fraction.
func ParseSDPO(raw string) float64 {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "%", ""))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0
	}
	return v / 100
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
