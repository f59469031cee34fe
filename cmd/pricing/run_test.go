package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
)

func TestLoadSnapshot(t *testing.T) {
	dir := t.TempDir()
	im := "ITEM_CODE,CITY,MRP\n1,Pune,30\n"
	if err := os.WriteFile(filepath.Join(dir, "im.csv"), []byte(im), 0o644); err != nil {
		t.Fatal(err)
	}

	snap, err := loadSnapshot(dir)
	if err != nil {
		t.Fatalf("loadSnapshot(dir) error = %v", err)
	}
	if len(snap.Inputs.Products) != 1 {
		t.Errorf("products = %d", len(snap.Inputs.Products))
	}

	if _, err := loadSnapshot(filepath.Join(dir, "im.csv")); err == nil {
		t.Error("expected error for a bare csv file")
	}
	if _, err := loadSnapshot(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for a missing path")
	}
}

func TestWriteOutput(t *testing.T) {
	dir := t.TempDir()
	items := []domain.PricedProduct{{ProductID: "1", City: "Pune", FinalPrice: 28}}

	csvPath := filepath.Join(dir, "nested", "out.csv")
	if err := writeOutput(csvPath, items); err != nil {
		t.Fatalf("writeOutput(csv) error = %v", err)
	}
	body, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(body), "product_id,") || !strings.Contains(string(body), "1,Pune") {
		t.Errorf("csv = %q", body)
	}

	xlsxPath := filepath.Join(dir, "out.xlsx")
	if err := writeOutput(xlsxPath, items); err != nil {
		t.Fatalf("writeOutput(xlsx) error = %v", err)
	}
	if contentTypeFor(xlsxPath) == contentTypeFor(csvPath) {
		t.Error("content types should differ by extension")
	}
}
