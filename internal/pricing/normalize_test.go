package pricing

import "testing"

func TestUnitNormalizer_Normalize(t *testing.T) {
	n := NewUnitNormalizer(DefaultReference())

	tests := []struct {
		name string
		uom  string
		item string
		want string
	}{
		{"pack of pieces", "1 pack (6 pcs)", "", "6_pieces"},
		{"measure replaced by name count", "500g", "Brand Eggs 12 Pieces", "12_pieces"},
		{"empty", "", "", "nan"},
		{"millilitres", "250ml", "", "250_ml"},
		{"leading pack", "30 Pack", "", "30_pieces"},
		{"pieces", "12 pcs", "", "12_pieces"},
		{"bare integer", " 10 ", "", "10_pieces"},
		{"roman one pack", "i pack (10 pieces)", "", "10_pieces"},
		{"synonym", "2 Combo", "", "2_combo"},
		{"grams without name", "500 g", "", "500_g"},
		{"count before eggs", "", "Farm Fresh 6 White Eggs", "6_pieces"},
		{"trailing count", "", "Country Eggs 30", "30_pieces"},
		{"unrecognized kept verbatim", "Tray", "", "tray"},
		{"unrecognized resolved by name", "tray", "Happy Hens 12 pc", "12_pieces"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Normalize(tt.uom, tt.item); got != tt.want {
				t.Fatalf("Normalize(%q, %q) = %q, want %q", tt.uom, tt.item, got, tt.want)
			}
		})
	}
}

func TestUnitNormalizer_Recognized(t *testing.T) {
	n := NewUnitNormalizer(DefaultReference())

	if _, ok := n.NormalizeDetailed("dozen-ish", ""); ok {
		t.Fatal("expected free text to be unrecognized")
	}
	if _, ok := n.NormalizeDetailed("6 pcs", ""); !ok {
		t.Fatal("expected piece count to be recognized")
	}
}

func TestPackCount(t *testing.T) {
	tests := map[string]int{
		"12_pieces": 12,
		"500_g":     500,
		"2_combo":   2,
		"nan":       1,
		"":          1,
	}
	for token, want := range tests {
		if got := PackCount(token); got != want {
			t.Errorf("PackCount(%q) = %d, want %d", token, got, want)
		}
	}
}

func TestIsMissingPack(t *testing.T) {
	for _, tok := range []string{"", "nan", "unknown"} {
		if !IsMissingPack(tok) {
			t.Errorf("IsMissingPack(%q) = false", tok)
		}
	}
	if IsMissingPack("6_pieces") {
		t.Error("6_pieces reported missing")
	}
}
