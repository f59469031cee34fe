// Package ingest reads pricing input tables from CSV and XLSX exports and
// writes priced catalogs back to CSV.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// table is a header-indexed view over raw rows.
type table struct {
	name   string
	header map[string]int
	rows   [][]string
}

// normalizeHeader makes "GMV Contribution", "gmv_contribution" and
// "GMV-Contribution" the same key.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(h)
}

func newTable(name string, records [][]string) (*table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: missing header row", name)
	}

	t := &table{name: name, header: make(map[string]int, len(records[0]))}
	for i, col := range records[0] {
		key := normalizeHeader(col)
		if _, dup := t.header[key]; !dup {
			t.header[key] = i
		}
	}

	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

func readCSVTable(name string, r io.Reader) (*table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read CSV: %w", name, err)
	}
	return newTable(name, records)
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// column resolves the first alias present in the header.
func (t *table) column(aliases ...string) (int, bool) {
	for _, a := range aliases {
		if idx, ok := t.header[normalizeHeader(a)]; ok {
			return idx, true
		}
	}
	return -1, false
}

// field is a column accessor that tolerates short rows and absent columns.
type field int

const absent field = -1

func (t *table) field(aliases ...string) field {
	idx, ok := t.column(aliases...)
	if !ok {
		return absent
	}
	return field(idx)
}

func (f field) str(rec []string) string {
	if f == absent || int(f) >= len(rec) {
		return ""
	}
	v := strings.TrimSpace(rec[f])
	if strings.EqualFold(v, "nan") || strings.EqualFold(v, "null") {
		return ""
	}
	return v
}

// num parses a numeric cell; thousands separators and currency symbols are
// dropped, anything unparsable is 0.
func (f field) num(rec []string) float64 {
	v := f.str(rec)
	if v == "" {
		return 0
	}
	v = strings.NewReplacer(",", "", "₹", "", "Rs.", "", "Rs", "", "$", "").Replace(v)
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return n
}

// ErrTableNotFound is returned when a required input table is absent.
var ErrTableNotFound = errors.New("table not found")
