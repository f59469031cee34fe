package pricing

import (
	"fmt"
	"slices"
	"strings"

	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
	"github.com/spf13/viper"
)

// MarginPair holds the target margin fraction for private-label and branded items.
type MarginPair struct {
	PrivateLabel float64 `mapstructure:"private_label" json:"private_label"`
	Branded      float64 `mapstructure:"branded" json:"branded"`
}

// MarginRule applies to a set of pack categories. Tier1 items are price sensitive
// and get the thinner pair, every other tier gets Rest.
type MarginRule struct {
	Categories []domain.PackCategory `mapstructure:"categories" json:"categories"`
	Tier1      MarginPair            `mapstructure:"tier1" json:"tier1"`
	Rest       MarginPair            `mapstructure:"rest" json:"rest"`
}

// PackBand maps discrete piece counts to a pack category.
type PackBand struct {
	Category domain.PackCategory `mapstructure:"category" json:"category"`
	Counts   []int               `mapstructure:"counts" json:"counts"`
}

// ReferenceData is the loadable form of the static lookup tables.
type ReferenceData struct {
	UOMSynonyms     map[string]string `mapstructure:"uom_synonyms" json:"uom_synonyms"`
	T1Cities        []string          `mapstructure:"t1_cities" json:"t1_cities"`
	CityStates      map[string]string `mapstructure:"city_states" json:"city_states"`
	PrivateLabelIDs []string          `mapstructure:"private_label_ids" json:"private_label_ids"`
	BrandSuffixes   []string          `mapstructure:"brand_suffixes" json:"brand_suffixes"`
	PackBands       []PackBand        `mapstructure:"pack_bands" json:"pack_bands"`
	MarginRules     []MarginRule      `mapstructure:"margin_rules" json:"margin_rules"`
	DefaultMargin   float64           `mapstructure:"default_margin" json:"default_margin"`

	T2MarginReduction         float64 `mapstructure:"t2_margin_reduction" json:"t2_margin_reduction"`
	SpacingRatio              float64 `mapstructure:"spacing_ratio" json:"spacing_ratio"`
	OPPUnitPriceCeiling       float64 `mapstructure:"opp_unit_price_ceiling" json:"opp_unit_price_ceiling"`
	UndercutFactor            float64 `mapstructure:"undercut_factor" json:"undercut_factor"`
	PrivateLabelCeilingFactor float64 `mapstructure:"private_label_ceiling_factor" json:"private_label_ceiling_factor"`
	BDPOCapFraction           float64 `mapstructure:"bdpo_cap_fraction" json:"bdpo_cap_fraction"`
	Tier1CumulativeShare      float64 `mapstructure:"tier1_cumulative_share" json:"tier1_cumulative_share"`
	Tier2CumulativeShare      float64 `mapstructure:"tier2_cumulative_share" json:"tier2_cumulative_share"`
	DefaultElasticity         float64 `mapstructure:"default_elasticity" json:"default_elasticity"`
	DefaultBaseQty            float64 `mapstructure:"default_base_qty" json:"default_base_qty"`
}

// DefaultReferenceData returns the tables used for the eggs catalog.
func DefaultReferenceData() ReferenceData {
	return ReferenceData{
		UOMSynonyms: map[string]string{
			"2 combo": "2_combo",
		},
		T1Cities: []string{
			"bangalore", "chennai", "delhi", "faridabad", "gurgaon",
			"hyderabad", "kolkata", "mumbai", "noida", "pune",
		},
		CityStates: map[string]string{
			"bangalore": "karnataka", "mysore": "karnataka", "mangalore": "karnataka",
			"chennai": "tamil nadu", "coimbatore": "tamil nadu", "madurai": "tamil nadu",
			"hyderabad": "telangana", "warangal": "telangana", "vizag": "andhra pradesh",
			"mumbai": "maharashtra", "pune": "maharashtra", "nagpur": "maharashtra",
			"delhi": "delhi", "noida": "uttar pradesh", "gurgaon": "haryana",
			"kolkata": "west bengal", "ahmedabad": "gujarat", "jaipur": "rajasthan",
		},
		PrivateLabelIDs: []string{
			"833000", "11962", "548512", "56620", "35213", "11174", "11173", "51950",
			"11966", "428785", "12341", "12490", "78360", "691733", "744712", "16886",
			"13422", "604104", "24379", "14043", "716088", "709061", "697269", "630903",
			"558087", "124058", "478620", "890035", "438327", "141942", "11897", "11961",
			"370525", "548855", "839302", "303428", "498900", "923763", "995731", "445831",
			"776284", "6881", "193321",
		},
		BrandSuffixes: []string{"eggs", "egg", "farms", "farm", "foods", "poultry"},
		PackBands: []PackBand{
			{Category: domain.PackLarge, Counts: []int{30, 24, 25, 20}},
			{Category: domain.PackMid, Counts: []int{10, 12, 15, 18}},
			{Category: domain.PackSmall, Counts: []int{6, 4}},
		},
		MarginRules: []MarginRule{
			{
				Categories: []domain.PackCategory{domain.PackSmall, domain.PackMid},
				Tier1:      MarginPair{PrivateLabel: 0.10, Branded: 0.17},
				Rest:       MarginPair{PrivateLabel: 0.11, Branded: 0.20},
			},
			{
				Categories: []domain.PackCategory{domain.PackLarge},
				Tier1:      MarginPair{PrivateLabel: 0.05, Branded: 0.15},
				Rest:       MarginPair{PrivateLabel: 0.06, Branded: 0.18},
			},
		},
		DefaultMargin:             0.15,
		T2MarginReduction:         0.05,
		SpacingRatio:              1.05,
		OPPUnitPriceCeiling:       10,
		UndercutFactor:            0.98,
		PrivateLabelCeilingFactor: 0.96,
		BDPOCapFraction:           0.9,
		Tier1CumulativeShare:      0.80,
		Tier2CumulativeShare:      0.95,
		DefaultElasticity:         -1.0,
		DefaultBaseQty:            10,
	}
}

// Reference is the compiled, read-only view of ReferenceData handed to every stage.
type Reference struct {
	data          ReferenceData
	t1Cities      map[string]struct{}
	privateLabels map[string]struct{}
	packBands     map[int]domain.PackCategory
	marginRules   map[domain.PackCategory]MarginRule
}

// NewReference validates and compiles reference data.
func NewReference(data ReferenceData) (*Reference, error) {
	if data.SpacingRatio < 1 {
		return nil, fmt.Errorf("spacing_ratio must be >= 1, got %v", data.SpacingRatio)
	}
	if data.Tier1CumulativeShare <= 0 || data.Tier2CumulativeShare < data.Tier1CumulativeShare {
		return nil, fmt.Errorf("invalid tier thresholds %v/%v", data.Tier1CumulativeShare, data.Tier2CumulativeShare)
	}

	r := &Reference{
		data:          cloneReferenceData(data),
		t1Cities:      make(map[string]struct{}, len(data.T1Cities)),
		privateLabels: make(map[string]struct{}, len(data.PrivateLabelIDs)),
		packBands:     make(map[int]domain.PackCategory),
		marginRules:   make(map[domain.PackCategory]MarginRule),
	}

	// keys are cleaned here, so the maps are rebuilt rather than cloned
	r.data.UOMSynonyms = make(map[string]string, len(data.UOMSynonyms))
	for k, v := range data.UOMSynonyms {
		r.data.UOMSynonyms[cleanKey(k)] = v
	}
	r.data.CityStates = make(map[string]string, len(data.CityStates))
	for k, v := range data.CityStates {
		r.data.CityStates[cleanKey(k)] = cleanKey(v)
	}

	for _, c := range data.T1Cities {
		r.t1Cities[cleanKey(c)] = struct{}{}
	}
	for _, id := range data.PrivateLabelIDs {
		r.privateLabels[CanonicalProductID(id)] = struct{}{}
	}
	for _, band := range data.PackBands {
		for _, n := range band.Counts {
			if _, dup := r.packBands[n]; dup {
				return nil, fmt.Errorf("pack count %d assigned to more than one category", n)
			}
			r.packBands[n] = band.Category
		}
	}
	for _, rule := range data.MarginRules {
		for _, c := range rule.Categories {
			r.marginRules[c] = rule
		}
	}

	return r, nil
}

func cloneReferenceData(data ReferenceData) ReferenceData {
	out := data
	out.T1Cities = slices.Clone(data.T1Cities)
	out.PrivateLabelIDs = slices.Clone(data.PrivateLabelIDs)
	out.BrandSuffixes = slices.Clone(data.BrandSuffixes)

	out.PackBands = make([]PackBand, len(data.PackBands))
	for i, band := range data.PackBands {
		band.Counts = slices.Clone(band.Counts)
		out.PackBands[i] = band
	}
	out.MarginRules = make([]MarginRule, len(data.MarginRules))
	for i, rule := range data.MarginRules {
		rule.Categories = slices.Clone(rule.Categories)
		out.MarginRules[i] = rule
	}
	return out
}

// DefaultReference compiles DefaultReferenceData. It cannot fail.
func DefaultReference() *Reference {
	r, err := NewReference(DefaultReferenceData())
	if err != nil {
		panic(err)
	}
	return r
}

// LoadReference overlays a YAML/JSON file on top of the defaults.
func LoadReference(path string) (*Reference, error) {
	data := DefaultReferenceData()
	if path == "" {
		return NewReference(data)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read pricing reference %s: %w", path, err)
	}
	if err := v.Unmarshal(&data); err != nil {
		return nil, fmt.Errorf("decode pricing reference %s: %w", path, err)
	}

	return NewReference(data)
}

// Data returns the compiled tables. The slices and maps are shared with the
// reference and must not be modified.
func (r *Reference) Data() ReferenceData {
	return r.data
}

func (r *Reference) Synonym(s string) (string, bool) {
	v, ok := r.data.UOMSynonyms[s]
	return v, ok
}

func (r *Reference) CityTier(city string) domain.CityTier {
	if _, ok := r.t1Cities[city]; ok {
		return domain.CityTier1
	}
	return domain.CityTier2
}

func (r *Reference) State(city string) string {
	if s, ok := r.data.CityStates[city]; ok {
		return s
	}
	return "unknown"
}

func (r *Reference) IsPrivateLabel(productID string) bool {
	_, ok := r.privateLabels[productID]
	return ok
}

func (r *Reference) PackCategory(count int) domain.PackCategory {
	if c, ok := r.packBands[count]; ok {
		return c
	}
	return domain.PackOther
}

// TargetMargin looks up the target margin fraction. T2 cities get a flat
// reduction and the result never goes below zero.
func (r *Reference) TargetMargin(cat domain.PackCategory, tier domain.KVITier, privateLabel bool, cityTier domain.CityTier) float64 {
	t := r.data.DefaultMargin
	if rule, ok := r.marginRules[cat]; ok {
		pair := rule.Rest
		if tier == domain.KVITier1 {
			pair = rule.Tier1
		}
		t = pair.Branded
		if privateLabel {
			t = pair.PrivateLabel
		}
	}

	if cityTier == domain.CityTier2 {
		t -= r.data.T2MarginReduction
	}
	if t < 0 {
		return 0
	}
	return t
}

func cleanKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
