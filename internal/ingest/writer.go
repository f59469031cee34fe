package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
	"github.com/shopspring/decimal"
)

// OutputHeader is the column order of exported pricing files.
var OutputHeader = []string{
	"product_id", "city", "brand", "item_name", "pack_token", "city_tier",
	"is_private_label", "stock_status", "mrp", "cost", "bdpo",
	"matched_price", "matched_brand", "matched_source", "match_rationale",
	"pack_category", "kvi_tier", "target_margin_pct",
	"final_price", "realized_margin_pct", "realized_discount_pct", "action_reason",
	"price_index", "gmv_goodness",
}

// Rows renders priced products as string rows, header first.
func Rows(items []domain.PricedProduct) [][]string {
	out := make([][]string, 0, len(items)+1)
	out = append(out, OutputHeader)
	for _, it := range items {
		out = append(out, []string{
			it.ProductID,
			it.City,
			it.Brand,
			it.ItemName,
			it.PackToken,
			string(it.CityTier),
			strconv.FormatBool(it.IsPrivateLabel),
			string(it.StockStatus),
			formatNum(it.MRP),
			formatNum(it.Cost),
			formatNum(it.BDPO),
			formatOptional(it.MatchedPrice),
			it.MatchedBrand,
			it.MatchedSource,
			it.MatchRationale,
			string(it.PackCategory),
			string(it.KVITier),
			formatNum(it.TargetMarginFraction * 100),
			formatNum(it.FinalPrice),
			formatNum(it.RealizedMarginPct),
			formatNum(it.RealizedDiscountPct),
			it.ActionReason,
			formatOptional(it.PriceIndex),
			formatNum(it.GMVGoodness),
		})
	}
	return out
}

func WriteCSV(w io.Writer, items []domain.PricedProduct) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(Rows(items)); err != nil {
		return fmt.Errorf("failed to write pricing csv: %w", err)
	}
	return nil
}

func formatNum(v float64) string {
	return decimal.NewFromFloat(v).Round(4).String()
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatNum(*v)
}
