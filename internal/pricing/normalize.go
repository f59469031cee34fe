package pricing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MissingPackToken is returned for empty unit text. It never denotes a real pack.
const MissingPackToken = "nan"

var (
	uomPackOfPieces = regexp.MustCompile(`pack.*\(\s*(\d+)\s*(?:pcs|pieces|pc)\s*\)`)
	uomLeadingPack  = regexp.MustCompile(`^(\d+)\s*pack`)
	uomPieces       = regexp.MustCompile(`(\d+)\s*(?:pieces|pcs|piece)`)
	uomGrams        = regexp.MustCompile(`(\d+)\s*g`)
	uomMillilitres  = regexp.MustCompile(`(\d+)\s*ml`)
	uomBareInteger  = regexp.MustCompile(`^\d+$`)

	namePieces     = regexp.MustCompile(`(\d+)\s*(?:pc|pcs|piece|pieces)`)
	nameCountEggs  = regexp.MustCompile(`(\d+)\s+(?:(?:\w+\s+){0,3})eggs`)
	nameTrailCount = regexp.MustCompile(`eggs\s+(\d+)$`)

	packDigits = regexp.MustCompile(`(\d+)`)
)

// weight and volume suffixes cannot express a multi-pack
var measureSuffixes = []string{"_g", "_ml", "_kg", "_l"}

// UnitNormalizer turns pack/unit descriptors into canonical tokens such as
// "12_pieces" or "500_g". It holds no mutable state.
type UnitNormalizer struct {
	ref *Reference
}

func NewUnitNormalizer(ref *Reference) *UnitNormalizer {
	return &UnitNormalizer{ref: ref}
}

// Normalize returns the canonical pack token for a raw unit and item name.
func (n *UnitNormalizer) Normalize(rawUOM, itemName string) string {
	token, _ := n.NormalizeDetailed(rawUOM, itemName)
	return token
}

// NormalizeDetailed also reports whether any rule recognized the input. An
// unrecognized input comes back lower-cased and trimmed.
func (n *UnitNormalizer) NormalizeDetailed(rawUOM, itemName string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(rawUOM))
	if s == "" {
		s = MissingPackToken
	}

	token, recognized := n.parseUOM(s)

	missing := token == "" || token == MissingPackToken || token == "unknown"
	if (isMeasure(token) || missing || !recognized) && strings.TrimSpace(itemName) != "" {
		if count, ok := countFromName(itemName); ok {
			return fmt.Sprintf("%d_pieces", count), true
		}
	}

	return token, recognized
}

func (n *UnitNormalizer) parseUOM(s string) (string, bool) {
	if n.ref != nil {
		if v, ok := n.ref.Synonym(s); ok {
			return v, true
		}
	}

	s = strings.ReplaceAll(s, "i pack", "1 pack")

	if m := uomPackOfPieces.FindStringSubmatch(s); m != nil {
		return m[1] + "_pieces", true
	}
	if m := uomLeadingPack.FindStringSubmatch(s); m != nil {
		return m[1] + "_pieces", true
	}
	if m := uomPieces.FindStringSubmatch(s); m != nil {
		return m[1] + "_pieces", true
	}
	if m := uomGrams.FindStringSubmatch(s); m != nil {
		return m[1] + "_g", true
	}
	if m := uomMillilitres.FindStringSubmatch(s); m != nil {
		return m[1] + "_ml", true
	}
	if uomBareInteger.MatchString(s) {
		return s + "_pieces", true
	}

	return s, false
}

func countFromName(name string) (int, bool) {
	s := strings.ToLower(name)

	for _, re := range []*regexp.Regexp{namePieces, nameCountEggs, nameTrailCount} {
		if m := re.FindStringSubmatch(s); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func isMeasure(token string) bool {
	for _, suffix := range measureSuffixes {
		if strings.Contains(token, suffix) {
			return true
		}
	}
	return false
}

// PackCount extracts the first integer from a pack token, defaulting to 1.
func PackCount(token string) int {
	m := packDigits.FindString(token)
	if m == "" {
		return 1
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 1
	}
	return n
}

// IsMissingPack reports whether a token carries no pack information.
func IsMissingPack(token string) bool {
	return token == "" || token == MissingPackToken || token == "unknown"
}
