package pricing

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
	"github.com/rs/zerolog/log"
)

// Variant types, checked in this order against the lower-cased item name.
const (
	VariantDuck  = "Duck"
	VariantQuail = "Quail"
	VariantBrown = "Brown"
	VariantWhite = "White"
)

// PreparedProduct is a product record annotated by data preparation. The raw
// record is kept untouched in Record.
type PreparedProduct struct {
	Index  int
	Record domain.ProductRecord

	ProductID        string
	City             string
	BrandClean       string
	BrandKey         string
	PackToken        string
	PackMissing      bool
	// PackUnrecognized marks a token kept verbatim; it never matches anything.
	PackUnrecognized bool
	PackSize         float64
	CityTier         domain.CityTier
	State            string
	Variant          string
	MRPRounded       float64
	IsPrivateLabel   bool
	StockStatus      domain.StockStatus
	RevenueWeight    float64
}

// PreparedCompetitor is a competitor observation annotated by data preparation.
type PreparedCompetitor struct {
	Index  int
	Record domain.CompetitorObservation

	City             string
	BrandClean       string
	BrandKey         string
	PackToken        string
	PackMissing      bool
	PackUnrecognized bool
	PackSize         float64
	Variant          string
	MRPRounded       float64
	PricePerUnit     float64
}

// PreparedData is the output of the preparation stage.
type PreparedData struct {
	Products    []PreparedProduct
	Competitors []PreparedCompetitor
	Excluded    int
}

// Preparer cleans keys and derives attributes for both input tables.
type Preparer struct {
	ref           *Reference
	normalizer    *UnitNormalizer
	brandSuffixes []*regexp.Regexp
}

func NewPreparer(ref *Reference, normalizer *UnitNormalizer) *Preparer {
	p := &Preparer{ref: ref, normalizer: normalizer}
	for _, s := range ref.Data().BrandSuffixes {
		p.brandSuffixes = append(p.brandSuffixes, regexp.MustCompile(`\b`+regexp.QuoteMeta(strings.ToLower(s))+`\b`))
	}
	return p
}

// Prepare produces the enriched tables. It returns a *domain.ConfigError
// wrapping domain.ErrMissingProductID only when no product row has an
// identifier; a row without one is kept and reported through issues, like
// every other problem.
func (p *Preparer) Prepare(in domain.PricingInputs, issues *IssueLog) (*PreparedData, error) {
	if err := checkProductIDs(in.Products); err != nil {
		return nil, err
	}

	stock := indexStock(in.Stock)
	weights := indexWeights(in.Weights, issues)

	out := &PreparedData{
		Products: make([]PreparedProduct, 0, len(in.Products)),
	}

	for i, rec := range in.Products {
		id := CanonicalProductID(rec.ProductID)
		city := cleanKey(rec.City)
		if id == "" {
			issues.Add(domain.Issue{
				Kind:   domain.IssueMissingInput,
				City:   city,
				Detail: fmt.Sprintf("product row %d has no product_id, not matched", i),
			})
		}

		token, recognized := p.normalizer.NormalizeDetailed(rec.RawUOM, rec.ItemName)
		if !recognized {
			issues.Add(domain.Issue{
				Kind:      domain.IssueAmbiguousNormalization,
				City:      city,
				ProductID: id,
				Detail:    fmt.Sprintf("unit %q kept verbatim", rec.RawUOM),
			})
		}

		pp := PreparedProduct{
			Index:            i,
			Record:           rec,
			ProductID:        id,
			City:             city,
			BrandClean:       cleanKey(rec.Brand),
			BrandKey:         p.BrandKey(rec.Brand),
			PackToken:        token,
			PackMissing:      IsMissingPack(token),
			PackUnrecognized: !recognized,
			PackSize:         float64(PackCount(token)),
			CityTier:         p.ref.CityTier(city),
			State:            p.ref.State(city),
			Variant:          VariantType(rec.ItemName),
			MRPRounded:       math.RoundToEven(rec.MRP),
			IsPrivateLabel:   p.ref.IsPrivateLabel(id),
			StockStatus:      domain.StockUnknown,
		}

		if id != "" {
			if st, ok := stock[city+"_"+id]; ok {
				pp.StockStatus = st
			}
			if w, ok := weights[city+"_"+id]; ok {
				pp.RevenueWeight = w
			} else if w, ok := weights["_"+id]; ok {
				pp.RevenueWeight = w
			}
		}

		out.Products = append(out.Products, pp)
	}

	excluded := exclusionSet(in.Exclusions)
	out.Competitors = make([]PreparedCompetitor, 0, len(in.Competitors))
	for i, obs := range in.Competitors {
		city := cleanKey(obs.City)
		brand := cleanKey(obs.Brand)
		if _, ok := excluded[city+"_"+brand]; ok {
			out.Excluded++
			continue
		}

		token, recognized := p.normalizer.NormalizeDetailed(obs.RawUOM, obs.ItemName)
		size := float64(PackCount(token))
		out.Competitors = append(out.Competitors, PreparedCompetitor{
			Index:        i,
			Record:       obs,
			City:         city,
			BrandClean:   brand,
			BrandKey:     p.BrandKey(obs.Brand),
			PackToken:        token,
			PackMissing:      IsMissingPack(token),
			PackUnrecognized: !recognized,
			PackSize:         size,
			Variant:          VariantType(obs.ItemName),
			MRPRounded:       math.RoundToEven(obs.MRP),
			PricePerUnit:     obs.UnitPrice / size,
		})
	}

	if out.Excluded > 0 {
		log.Info().Int("excluded", out.Excluded).Msg("pricing: competitor rows excluded by city/brand list")
	}
	if len(in.Competitors) == 0 {
		issues.Add(domain.Issue{Kind: domain.IssueMissingInput, Detail: "competitor table is empty, no product can match"})
	}
	if len(in.Stock) == 0 {
		issues.Add(domain.Issue{Kind: domain.IssueMissingInput, Detail: "stock table is empty, all stock signals unknown"})
	}
	if len(in.Weights) == 0 {
		issues.Add(domain.Issue{Kind: domain.IssueMissingInput, Detail: "revenue weight table is empty, all products are Tier3"})
	}

	return out, nil
}

// checkProductIDs fails when the table has rows but none of them carries a
// product id, i.e. the join key column is absent.
func checkProductIDs(products []domain.ProductRecord) error {
	if len(products) == 0 {
		return nil
	}
	for _, rec := range products {
		if CanonicalProductID(rec.ProductID) != "" {
			return nil
		}
	}
	return &domain.ConfigError{Table: "products", Row: 0, Err: domain.ErrMissingProductID}
}

// Matchable reports whether the product can take part in any match.
func (p PreparedProduct) Matchable() bool {
	return p.ProductID != "" && !p.PackMissing && !p.PackUnrecognized
}

// Matchable reports whether the observation can serve as a match.
func (c PreparedCompetitor) Matchable() bool {
	return !c.PackMissing && !c.PackUnrecognized
}

// BrandKey strips generic suffix words ("eggs", "farms", ...) from a brand.
func (p *Preparer) BrandKey(brand string) string {
	s := cleanKey(brand)
	for _, re := range p.brandSuffixes {
		s = re.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}

// VariantType classifies an item by name keywords.
func VariantType(name string) string {
	s := strings.ToLower(name)
	switch {
	case strings.Contains(s, "duck"):
		return VariantDuck
	case strings.Contains(s, "quail"):
		return VariantQuail
	case strings.Contains(s, "brown"), strings.Contains(s, "desi"), strings.Contains(s, "country"):
		return VariantBrown
	default:
		return VariantWhite
	}
}

// CanonicalProductID trims an identifier and drops a float rendering such as
// "11962.0" down to "11962" so spreadsheet exports join with text exports.
func CanonicalProductID(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "nan") {
		return ""
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}

func indexStock(entries []domain.StockEntry) map[string]domain.StockStatus {
	idx := make(map[string]domain.StockStatus, len(entries))
	for _, e := range entries {
		key := cleanKey(e.City) + "_" + CanonicalProductID(e.ProductID)
		if _, dup := idx[key]; dup {
			continue // first row wins
		}
		idx[key] = domain.ParseStockStatus(string(e.Status))
	}
	return idx
}

func indexWeights(entries []domain.RevenueWeight, issues *IssueLog) map[string]float64 {
	idx := make(map[string]float64, len(entries))
	for _, e := range entries {
		id := CanonicalProductID(e.ProductID)
		key := cleanKey(e.City) + "_" + id
		if _, dup := idx[key]; dup {
			continue
		}
		w := e.Weight
		if w < 0 || math.IsNaN(w) {
			issues.Add(domain.Issue{
				Kind:      domain.IssueMissingInput,
				City:      cleanKey(e.City),
				ProductID: id,
				Detail:    fmt.Sprintf("revenue weight %v treated as 0", e.Weight),
			})
			w = 0
		}
		idx[key] = w
	}
	return idx
}

func exclusionSet(entries []domain.Exclusion) map[string]struct{} {
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		set[cleanKey(e.City)+"_"+cleanKey(e.Brand)] = struct{}{}
	}
	return set
}
