package ingest

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
	"github.com/xuri/excelize/v2"
)

const imCSV = `ITEM_CODE,CITY,BRAND,ITEM_NAME,uom,MRP,COGS_LATEST,MOP,BDPO,Current_Price
11962.0,Mumbai,Farm Fresh,Farm Fresh Eggs,6 pcs,"1,000",45,,5%,52
11173,Pune,Sunny,Sunny Eggs,12 pieces,₹ 96,nan,10,,

`

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestReadProducts(t *testing.T) {
	got, err := ReadProducts(strings.NewReader(imCSV))
	if err != nil {
		t.Fatalf("ReadProducts() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2 (blank rows skipped)", len(got))
	}

	first := got[0]
	if first.ProductID != "11962.0" || first.City != "Mumbai" || first.RawUOM != "6 pcs" {
		t.Errorf("first row = %+v", first)
	}
	if first.MRP != 1000 || first.Cost != 45 || first.BDPO != "5%" || first.CurrentPrice != 52 {
		t.Errorf("first row numbers = %+v", first)
	}

	second := got[1]
	if second.MRP != 96 {
		t.Errorf("currency symbol not stripped: MRP = %v", second.MRP)
	}
	if second.Cost != 0 {
		t.Errorf("nan cost = %v, want 0", second.Cost)
	}
	if second.OperationalFloor != 10 {
		t.Errorf("MOP = %v, want 10", second.OperationalFloor)
	}
}

func TestReadProductsMissingIDColumn(t *testing.T) {
	_, err := ReadProducts(strings.NewReader("CITY,BRAND\nMumbai,X\n"))
	if !errors.Is(err, domain.ErrMissingProductID) {
		t.Fatalf("error = %v, want ErrMissingProductID", err)
	}
	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Table != TableProducts {
		t.Fatalf("error = %#v, want ConfigError for products", err)
	}
}

func TestReadCompetitorsAliases(t *testing.T) {
	body := "city_name,brand_name,product_name,UOM,unit_price,mrp,source\n" +
		"Mumbai,Sunny,Sunny Eggs,6 pcs,48.5,60,Blinkit\n" +
		"Pune,,,,,,\n"
	got, err := ReadCompetitors(strings.NewReader(body))
	if err != nil {
		t.Fatalf("ReadCompetitors() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2", len(got))
	}
	want := domain.CompetitorObservation{
		City: "Mumbai", Brand: "Sunny", ItemName: "Sunny Eggs", RawUOM: "6 pcs",
		UnitPrice: 48.5, MRP: 60, Source: "Blinkit",
	}
	if got[0] != want {
		t.Errorf("row = %+v, want %+v", got[0], want)
	}
	if got[1].UnitPrice != 0 || got[1].City != "Pune" {
		t.Errorf("sparse row = %+v", got[1])
	}
}

func TestJoinCosts(t *testing.T) {
	products := []domain.ProductRecord{
		{ProductID: "1", City: "Mumbai", Cost: 9},
		{ProductID: "1.0", City: "Pune", Cost: 9},
		{ProductID: "2", City: "Pune", Cost: 9},
	}
	costs := []CostEntry{
		{ProductID: "1", City: "mumbai", Cost: 40},
		{ProductID: "1", Cost: 30},
		{ProductID: "1", City: "Mumbai", Cost: 99},
	}

	got := JoinCosts(products, costs)
	want := []float64{40, 30, 9}
	for i, w := range want {
		if got[i].Cost != w {
			t.Errorf("product %d cost = %v, want %v", i, got[i].Cost, w)
		}
	}
	if products[0].Cost != 9 {
		t.Errorf("input mutated: %v", products[0].Cost)
	}
}

func TestElasticitiesSkipBlank(t *testing.T) {
	tbl, err := readCSVTable(TableElasticities, strings.NewReader(
		"ITEM_CODE,CITY,Day,Price Senstitivity,Daily_Avg_Qty\n"+
			"1,Mumbai,Monday,-1.5,20\n"+
			"2,Mumbai,Monday,,20\n"))
	if err != nil {
		t.Fatal(err)
	}
	got := elasticitiesFromTable(tbl)
	if len(got) != 1 || got[0].Elasticity != -1.5 || got[0].BaseQty != 20 || got[0].Day != "Monday" {
		t.Fatalf("elasticities = %+v", got)
	}
}

func TestTableKind(t *testing.T) {
	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"IM", TableProducts, true},
		{"Comp", TableCompetitors, true},
		{"COGS", TableCosts, true},
		{"GMV Contribution", TableWeights, true},
		{"SDPO", TableBrandPolicies, true},
		{"Price-Sensitivity", TableElasticities, true},
		{"notes", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tableKind(tt.name)
			if got != tt.want || ok != tt.ok {
				t.Errorf("tableKind(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "IM.csv", imCSV)
	writeFile(t, dir, "cogs.csv", "ITEM_CODE,COGS\n11962,41\n")
	writeFile(t, dir, "stock.csv", "CITY,ITEM_CODE,STOCK_STATUS\nMumbai,11962,Insufficient\n")
	writeFile(t, dir, "sdpo.csv", "Brand,Hardcoded_SDPO\nSunny,2%\n")
	writeFile(t, dir, "readme.txt", "ignored")
	writeFile(t, dir, "notes.csv", "a,b\n1,2\n")

	snap, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if len(snap.Inputs.Products) != 2 {
		t.Fatalf("products = %d, want 2", len(snap.Inputs.Products))
	}
	if snap.Inputs.Products[0].Cost != 41 {
		t.Errorf("cost table not joined: %v", snap.Inputs.Products[0].Cost)
	}
	if len(snap.Inputs.Stock) != 1 || snap.Inputs.Stock[0].Status != domain.StockInsufficient {
		t.Errorf("stock = %+v", snap.Inputs.Stock)
	}
	if len(snap.Inputs.BrandPolicies) != 1 || snap.Inputs.BrandPolicies[0].FixedSDPO != "2%" {
		t.Errorf("brand policies = %+v", snap.Inputs.BrandPolicies)
	}

	wantLoaded := []string{TableBrandPolicies, TableCosts, TableProducts, TableStock}
	if strings.Join(snap.Loaded, ",") != strings.Join(wantLoaded, ",") {
		t.Errorf("loaded = %v, want %v", snap.Loaded, wantLoaded)
	}
	if len(snap.Missing) != len(tableAliases)-len(wantLoaded) {
		t.Errorf("missing = %v", snap.Missing)
	}
}

func TestLoadDirWithoutProducts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "comp.csv", "city,brand,selling_price\nMumbai,X,10\n")

	_, err := LoadDir(dir)
	if !errors.Is(err, ErrTableNotFound) {
		t.Fatalf("error = %v, want ErrTableNotFound", err)
	}
}

func buildWorkbook(t *testing.T, sheets map[string][][]interface{}, order []string) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, name := range order {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				t.Fatal(err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			t.Fatal(err)
		}
		for r, row := range sheets[name] {
			cell, _ := excelize.CoordinatesToCellName(1, r+1)
			row := row
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				t.Fatal(err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	return &buf
}

func TestReadWorkbook(t *testing.T) {
	buf := buildWorkbook(t, map[string][][]interface{}{
		"IM": {
			{"ITEM_CODE", "CITY", "BRAND", "ITEM_NAME", "uom", "MRP", "COGS_LATEST"},
			{"900", "Mumbai", "Farm Fresh", "Farm Fresh Eggs", "6 pcs", 60, 45},
		},
		"Comp": {
			{"city", "brand", "item_name", "uom", "selling_price"},
			{"Mumbai", "Sunny", "Sunny Eggs", "6 pcs", 48},
		},
		"Notes": {
			{"anything"},
		},
	}, []string{"IM", "Comp", "Notes"})

	snap, err := ReadWorkbook(buf)
	if err != nil {
		t.Fatalf("ReadWorkbook() error = %v", err)
	}
	if len(snap.Inputs.Products) != 1 || snap.Inputs.Products[0].MRP != 60 {
		t.Errorf("products = %+v", snap.Inputs.Products)
	}
	if len(snap.Inputs.Competitors) != 1 || snap.Inputs.Competitors[0].UnitPrice != 48 {
		t.Errorf("competitors = %+v", snap.Inputs.Competitors)
	}
}

func TestLoadDirNamedWorkbook(t *testing.T) {
	dir := t.TempDir()
	buf := buildWorkbook(t, map[string][][]interface{}{
		"Sheet A": {
			{"ITEM_CODE", "CITY", "MRP"},
			{"1", "Pune", 30},
		},
	}, []string{"Sheet A"})
	if err := os.WriteFile(filepath.Join(dir, "im.xlsx"), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	snap, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if len(snap.Inputs.Products) != 1 || snap.Inputs.Products[0].City != "Pune" {
		t.Errorf("products = %+v", snap.Inputs.Products)
	}
}

func TestWriteCSV(t *testing.T) {
	matched := 50.0
	idx := 112.0
	items := []domain.PricedProduct{{
		ProductID:            "900",
		City:                 "Mumbai",
		Brand:                "Farm Fresh",
		MRP:                  60,
		Cost:                 45,
		MatchedPrice:         &matched,
		TargetMarginFraction: 0.07,
		FinalPrice:           56,
		RealizedMarginPct:    19.642857142857142,
		ActionReason:         "Min Margin",
		PriceIndex:           &idx,
		KVITier:              domain.KVITier3,
	}, {
		ProductID: "901",
	}}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, items); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	if lines[0] != strings.Join(OutputHeader, ",") {
		t.Errorf("header = %s", lines[0])
	}

	row := strings.Split(lines[1], ",")
	col := func(name string) string {
		for i, h := range OutputHeader {
			if h == name {
				return row[i]
			}
		}
		t.Fatalf("no column %s", name)
		return ""
	}
	checks := map[string]string{
		"final_price":         "56",
		"target_margin_pct":   "7",
		"matched_price":       "50",
		"realized_margin_pct": "19.6429",
		"kvi_tier":            "Tier3",
		"price_index":         "112",
	}
	for name, want := range checks {
		if got := col(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}

	empty := strings.Split(lines[2], ",")
	if empty[11] != "" {
		t.Errorf("nil matched_price rendered as %q", empty[11])
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, Rows([]domain.PricedProduct{{ProductID: "1", City: "Pune", FinalPrice: 10}})); err != nil {
		t.Fatalf("WriteXLSX() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	v, err := f.GetCellValue("pricing", "A2")
	if err != nil || v != "1" {
		t.Errorf("A2 = %q, %v", v, err)
	}
}
