// Package catalog owns the check template catalog, placeholder binding, and
// test selection for validated tables.
package catalog

import (
	"errors"
	"fmt"
)

// ShapeType classifies the structure of a table under validation.
type ShapeType string

const (
	// ShapeType1 is an overwrite-in-place dimension (no history rows).
	ShapeType1 ShapeType = "Type1"
	// ShapeType2 is a versioned-history dimension with begin/end validity
	// timestamps and a current-row flag.
	ShapeType2 ShapeType = "Type2"
	// ShapeGeneric is an arbitrary table validated by custom checks only.
	ShapeGeneric ShapeType = "Generic"
)

// Severity ranks how serious a failing check is for the overall run status.
type Severity string

const (
	// SeverityHigh failures (or errors) force the whole run to FAIL.
	SeverityHigh Severity = "HIGH"
	// SeverityMedium failures fail the run without blocking semantics.
	SeverityMedium Severity = "MEDIUM"
	// SeverityLow failures are advisory.
	SeverityLow Severity = "LOW"
)

// CheckSource identifies where a bound check originated.
type CheckSource string

const (
	// SourceBuiltin marks checks generated from the built-in catalog.
	SourceBuiltin CheckSource = "builtin"
	// SourceCustom marks checks authored per configuration row.
	SourceCustom CheckSource = "custom"
)

// Sentinel values shared by the SCD2 check queries.
const (
	// OpenEndDate is the high-watermark end date carried by current rows.
	OpenEndDate = "2099-12-31"
)

// ErrUnknownShape is returned when checks are requested for a shape the
// registry does not know about.
var ErrUnknownShape = errors.New("unknown table shape")

// ConfigurationError reports a malformed or inconsistent validation
// configuration. It is fatal for the affected row only: the row needs a
// configuration fix, not a retry.
type ConfigurationError struct {
	ConfigID string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.ConfigID == "" {
		return "invalid validation config: " + e.Reason
	}

	return fmt.Sprintf("invalid validation config %q: %s", e.ConfigID, e.Reason)
}

// CheckTemplate is a reusable, parameterized validation rule. Built-in
// templates are immutable at runtime; extension templates loaded from a
// catalog file behave identically.
type CheckTemplate struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Category    string      `yaml:"category"`
	Description string      `yaml:"description,omitempty"`
	Severity    Severity    `yaml:"severity"`
	Query       string      `yaml:"query"`
	Shapes      []ShapeType `yaml:"shapes"`
}

// AppliesTo reports whether the template is applicable to the given shape.
func (t *CheckTemplate) AppliesTo(shape ShapeType) bool {
	for _, s := range t.Shapes {
		if s == shape {
			return true
		}
	}

	return false
}

// CustomCheck is an ad hoc rule declared on a single configuration row.
// The authored query embeds the row's literal column names; only the
// {{table}} placeholder is expanded.
type CustomCheck struct {
	Name        string   `json:"name"`
	Query       string   `json:"query"`
	Description string   `json:"description,omitempty"`
	Severity    Severity `json:"severity"`
}

// ValidationConfig is one declared table under validation: the declarative
// source of truth a run and a reconciliation pass are both derived from.
type ValidationConfig struct {
	ID      string    `json:"configId"`
	Dataset string    `json:"datasetName"`
	Table   string    `json:"tableName"`
	Shape   ShapeType `json:"shapeType"`

	PrimaryKeys  []string `json:"primaryKeys,omitempty"`
	SurrogateKey string   `json:"surrogateKey,omitempty"`

	// SCD2 temporal attributes. Required together when Shape is ShapeType2.
	BeginDateColumn  string `json:"beginDateColumn,omitempty"`
	EndDateColumn    string `json:"endDateColumn,omitempty"`
	ActiveFlagColumn string `json:"activeFlagColumn,omitempty"`

	CustomChecks []CustomCheck `json:"customTests,omitempty"`

	// Schedule is a cron expression; empty means manual runs only.
	Schedule string `json:"schedule,omitempty"`
	Active   bool   `json:"isActive"`
}

// Validate checks the structural invariants of the configuration row.
// Partial SCD2 temporal configuration is rejected rather than silently
// skipping checks.
func (c *ValidationConfig) Validate() error {
	if c.ID == "" {
		return &ConfigurationError{Reason: "config id is required"}
	}

	if c.Dataset == "" || c.Table == "" {
		return &ConfigurationError{ConfigID: c.ID, Reason: "dataset and table names are required"}
	}

	switch c.Shape {
	case ShapeType1, ShapeType2, ShapeGeneric:
	default:
		return &ConfigurationError{
			ConfigID: c.ID,
			Reason:   fmt.Sprintf("unknown shape type %q", c.Shape),
		}
	}

	if c.Shape != ShapeGeneric && len(c.PrimaryKeys) == 0 {
		return &ConfigurationError{
			ConfigID: c.ID,
			Reason:   fmt.Sprintf("primary keys are required for shape %s", c.Shape),
		}
	}

	if c.Shape == ShapeType2 {
		if err := c.validateTemporalColumns(); err != nil {
			return err
		}
	}

	for i, custom := range c.CustomChecks {
		if custom.Name == "" || custom.Query == "" {
			return &ConfigurationError{
				ConfigID: c.ID,
				Reason:   fmt.Sprintf("custom check #%d needs both a name and a query", i+1),
			}
		}
	}

	return nil
}

// validateTemporalColumns enforces the all-or-nothing SCD2 temporal column
// invariant: all three columns set, or none.
func (c *ValidationConfig) validateTemporalColumns() error {
	set := 0

	for _, col := range []string{c.BeginDateColumn, c.EndDateColumn, c.ActiveFlagColumn} {
		if col != "" {
			set++
		}
	}

	if set != 0 && set != 3 {
		return &ConfigurationError{
			ConfigID: c.ID,
			Reason:   "SCD2 temporal columns (begin date, end date, active flag) must be configured together",
		}
	}

	return nil
}

// HasTemporalColumns reports whether all three SCD2 temporal columns are set.
func (c *ValidationConfig) HasTemporalColumns() bool {
	return c.BeginDateColumn != "" && c.EndDateColumn != "" && c.ActiveFlagColumn != ""
}

// ConfigFilter narrows a configuration listing. Zero value selects
// everything.
type ConfigFilter struct {
	Dataset    string
	OnlyActive bool
}

// Matches reports whether the configuration row passes the filter.
func (f ConfigFilter) Matches(cfg *ValidationConfig) bool {
	if f.OnlyActive && !cfg.Active {
		return false
	}

	if f.Dataset != "" && cfg.Dataset != f.Dataset {
		return false
	}

	return true
}

// BoundCheck is a template bound to one configuration row: a fully resolved,
// executable query plus the originating identity. Ephemeral, constructed per
// run and never persisted independently.
type BoundCheck struct {
	CheckID     string
	Name        string
	Category    string
	Description string
	Severity    Severity
	Query       string
	Source      CheckSource
}
