package ingest

import (
	"fmt"
	"io"

	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
)

// Table names double as file base names ("im.csv") and workbook sheet names.
const (
	TableProducts      = "products"
	TableCompetitors   = "competitors"
	TableCosts         = "costs"
	TableStock         = "stock"
	TableWeights       = "weights"
	TableBrandPolicies = "brand_policies"
	TableExclusions    = "exclusions"
	TableElasticities  = "elasticities"
)

// tableAliases lists accepted file/sheet base names per table.
var tableAliases = map[string][]string{
	TableProducts:      {"products", "im", "im_pricing", "internal"},
	TableCompetitors:   {"competitors", "comp", "comp_pricing", "competition"},
	TableCosts:         {"costs", "cogs", "cost"},
	TableStock:         {"stock", "stocks", "stock_status"},
	TableWeights:       {"weights", "gmv", "gmv_contribution", "revenue"},
	TableBrandPolicies: {"brand_policies", "sdpo", "brand_sdpo"},
	TableExclusions:    {"exclusions", "exclusion", "excl"},
	TableElasticities:  {"elasticities", "elasticity", "sensitivity", "price_sensitivity"},
}

var (
	colProductID = []string{"ITEM_CODE", "product_id", "item_code", "id"}
	colCity      = []string{"CITY", "city", "city_name"}
	colBrand     = []string{"BRAND", "brand_name", "brand"}
	colItemName  = []string{"ITEM_NAME", "product_name", "item_name", "name"}
	colUOM       = []string{"uom", "UOM", "unit", "pack"}
)

// CostEntry is one row of the cost table. City is optional.
type CostEntry struct {
	ProductID string
	City      string
	Cost      float64
}

// ReadProducts reads the internal catalog. A table without a product id
// column cannot be priced at all.
func ReadProducts(r io.Reader) ([]domain.ProductRecord, error) {
	t, err := readCSVTable(TableProducts, r)
	if err != nil {
		return nil, err
	}
	return productsFromTable(t)
}

func productsFromTable(t *table) ([]domain.ProductRecord, error) {
	if _, ok := t.column(colProductID...); !ok {
		return nil, &domain.ConfigError{Table: t.name, Row: 0, Err: domain.ErrMissingProductID}
	}

	var (
		id      = t.field(colProductID...)
		city    = t.field(colCity...)
		brand   = t.field(colBrand...)
		name    = t.field(colItemName...)
		uom     = t.field(colUOM...)
		mrp     = t.field("MRP", "IM_MRP", "mrp")
		cost    = t.field("COGS_LATEST", "cogs", "COGS", "cost")
		mop     = t.field("MOP", "operational_floor", "min_operating_price")
		bdpo    = t.field("BDPO", "bdpo")
		current = t.field("Current_Price", "current_price", "selling_price")
	)

	out := make([]domain.ProductRecord, 0, len(t.rows))
	for _, rec := range t.rows {
		out = append(out, domain.ProductRecord{
			ProductID:        id.str(rec),
			City:             city.str(rec),
			Brand:            brand.str(rec),
			ItemName:         name.str(rec),
			RawUOM:           uom.str(rec),
			MRP:              mrp.num(rec),
			Cost:             cost.num(rec),
			OperationalFloor: mop.num(rec),
			BDPO:             bdpo.str(rec),
			CurrentPrice:     current.num(rec),
		})
	}
	return out, nil
}

func ReadCompetitors(r io.Reader) ([]domain.CompetitorObservation, error) {
	t, err := readCSVTable(TableCompetitors, r)
	if err != nil {
		return nil, err
	}
	return competitorsFromTable(t), nil
}

func competitorsFromTable(t *table) []domain.CompetitorObservation {
	var (
		city   = t.field(colCity...)
		brand  = t.field(colBrand...)
		name   = t.field(colItemName...)
		uom    = t.field(colUOM...)
		price  = t.field("selling_price", "unit_price", "price", "sp")
		mrp    = t.field("mrp", "MRP")
		source = t.field("source", "platform", "competitor")
	)

	out := make([]domain.CompetitorObservation, 0, len(t.rows))
	for _, rec := range t.rows {
		out = append(out, domain.CompetitorObservation{
			City:      city.str(rec),
			Brand:     brand.str(rec),
			ItemName:  name.str(rec),
			RawUOM:    uom.str(rec),
			UnitPrice: price.num(rec),
			MRP:       mrp.num(rec),
			Source:    source.str(rec),
		})
	}
	return out
}

func ReadCosts(r io.Reader) ([]CostEntry, error) {
	t, err := readCSVTable(TableCosts, r)
	if err != nil {
		return nil, err
	}
	return costsFromTable(t)
}

func costsFromTable(t *table) ([]CostEntry, error) {
	if _, ok := t.column(colProductID...); !ok {
		return nil, fmt.Errorf("%s: no product id column", t.name)
	}
	var (
		id   = t.field(colProductID...)
		city = t.field(colCity...)
		cost = t.field("COGS", "cogs", "COGS_LATEST", "cost")
	)

	out := make([]CostEntry, 0, len(t.rows))
	for _, rec := range t.rows {
		out = append(out, CostEntry{ProductID: id.str(rec), City: city.str(rec), Cost: cost.num(rec)})
	}
	return out, nil
}

func stockFromTable(t *table) []domain.StockEntry {
	var (
		id     = t.field(colProductID...)
		city   = t.field(colCity...)
		status = t.field("STOCK_STATUS", "stock_status", "status", "stocks")
	)

	out := make([]domain.StockEntry, 0, len(t.rows))
	for _, rec := range t.rows {
		out = append(out, domain.StockEntry{
			ProductID: id.str(rec),
			City:      city.str(rec),
			Status:    domain.ParseStockStatus(status.str(rec)),
		})
	}
	return out
}

func weightsFromTable(t *table) []domain.RevenueWeight {
	var (
		id     = t.field(colProductID...)
		city   = t.field(colCity...)
		weight = t.field("GMV Contribution", "gmv", "weight", "revenue", "sales")
	)

	out := make([]domain.RevenueWeight, 0, len(t.rows))
	for _, rec := range t.rows {
		out = append(out, domain.RevenueWeight{ProductID: id.str(rec), City: city.str(rec), Weight: weight.num(rec)})
	}
	return out
}

func brandPoliciesFromTable(t *table) []domain.BrandPolicy {
	var (
		brand = t.field("Brand", "brand_name", "BRAND")
		sdpo  = t.field("Hardcoded_SDPO", "fixed_sdpo", "sdpo", "Fixed_SDPO_Pct")
		bdpo  = t.field("BDPO", "bdpo")
	)

	out := make([]domain.BrandPolicy, 0, len(t.rows))
	for _, rec := range t.rows {
		out = append(out, domain.BrandPolicy{Brand: brand.str(rec), FixedSDPO: sdpo.str(rec), BDPO: bdpo.str(rec)})
	}
	return out
}

func exclusionsFromTable(t *table) []domain.Exclusion {
	var (
		city  = t.field(colCity...)
		brand = t.field(colBrand...)
	)

	out := make([]domain.Exclusion, 0, len(t.rows))
	for _, rec := range t.rows {
		out = append(out, domain.Exclusion{City: city.str(rec), Brand: brand.str(rec)})
	}
	return out
}

func elasticitiesFromTable(t *table) []domain.ElasticityEntry {
	var (
		id   = t.field(colProductID...)
		city = t.field(colCity...)
		day  = t.field("Day", "day_of_week")
		el   = t.field("Price Senstitivity", "Price Sensitivity", "elasticity")
		qty  = t.field("Daily_Avg_Qty", "base_qty", "avg_qty")
	)

	out := make([]domain.ElasticityEntry, 0, len(t.rows))
	for _, rec := range t.rows {
		entry := domain.ElasticityEntry{
			ProductID: id.str(rec),
			City:      city.str(rec),
			Day:       day.str(rec),
			BaseQty:   qty.num(rec),
		}
		// a blank sensitivity cell means "use the default", not zero elasticity
		if el.str(rec) == "" {
			continue
		}
		entry.Elasticity = el.num(rec)
		out = append(out, entry)
	}
	return out
}

// JoinCosts fills product costs from the cost table, matching on
// (product_id, city) first and product_id alone second. A product keeps its
// own cost when the table has no entry for it.
func JoinCosts(products []domain.ProductRecord, costs []CostEntry) []domain.ProductRecord {
	if len(costs) == 0 {
		return products
	}

	byKey := make(map[string]float64, len(costs))
	for _, c := range costs {
		key := costKey(c.ProductID, c.City)
		if _, dup := byKey[key]; !dup {
			byKey[key] = c.Cost
		}
	}

	out := make([]domain.ProductRecord, len(products))
	for i, p := range products {
		out[i] = p
		if v, ok := byKey[costKey(p.ProductID, p.City)]; ok {
			out[i].Cost = v
		} else if v, ok := byKey[costKey(p.ProductID, "")]; ok {
			out[i].Cost = v
		}
	}
	return out
}
