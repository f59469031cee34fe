package domain

import "strings"

type StockStatus string

const (
	StockSufficient   StockStatus = "sufficient"
	StockInsufficient StockStatus = "insufficient"
	StockUnknown      StockStatus = "unknown"
)

// ParseStockStatus maps free-form stock labels (case-insensitive) to a status.
// Anything unrecognized, including "NA", is unknown.
func ParseStockStatus(label string) StockStatus {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "sufficient", "ok", "in stock":
		return StockSufficient
	case "insufficient", "low", "oos", "out of stock":
		return StockInsufficient
	default:
		return StockUnknown
	}
}

type CityTier string

const (
	CityTier1 CityTier = "T1"
	CityTier2 CityTier = "T2"
)

type KVITier string

const (
	KVITier1 KVITier = "Tier1"
	KVITier2 KVITier = "Tier2"
	KVITier3 KVITier = "Tier3"
)

// ParseKVITier accepts "Tier1", "tier 1" and "1".
func ParseKVITier(s string) (KVITier, bool) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "") {
	case "tier1", "1":
		return KVITier1, true
	case "tier2", "2":
		return KVITier2, true
	case "tier3", "3":
		return KVITier3, true
	}
	return "", false
}

type PackCategory string

const (
	PackLarge PackCategory = "Large"
	PackMid   PackCategory = "Mid"
	PackSmall PackCategory = "Small"
	PackOther PackCategory = "Other"
)

type RunStatus string

const (
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)
