package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingProductID aborts a run when no product row carries the join key.
	ErrMissingProductID  = errors.New("product table is missing product_id")
	// ErrTargetMarginRange rejects a manual margin outside [0, 100) percent.
	ErrTargetMarginRange = errors.New("target_margin_pct must be in [0, 100)")
	ErrEmptyCatalog      = errors.New("product table is empty")
	ErrRunNotFound       = errors.New("pricing run not found")
)

// IssueKind classifies conditions that degrade a run without aborting it.
type IssueKind string

const (
	IssueMissingInput           IssueKind = "missing_input"
	IssueAmbiguousNormalization IssueKind = "ambiguous_normalization"
	IssueConstraintConflict     IssueKind = "constraint_conflict"
	IssueUnpriceable            IssueKind = "unpriceable"
)

// Issue is an auditable, non-fatal finding attached to a run.
type Issue struct {
	Kind      IssueKind `json:"kind"`
	City      string    `json:"city,omitempty"`
	ProductID string    `json:"product_id,omitempty"`
	Detail    string    `json:"detail"`
}

func (i Issue) String() string {
	if i.ProductID == "" {
		return fmt.Sprintf("%s: %s", i.Kind, i.Detail)
	}
	return fmt.Sprintf("%s [%s/%s]: %s", i.Kind, i.City, i.ProductID, i.Detail)
}

// ConfigError reports a structurally unusable input table.
type ConfigError struct {
	Table string
	Row   int
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s row %d: %v", e.Table, e.Row, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
