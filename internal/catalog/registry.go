package catalog

import "fmt"

// activeFlagTruthy is the literal set of values accepted as "current row" by
// the SCD2 checks. The flag column is cast to text so boolean, char, and
// numeric flag columns all behave the same.
const activeFlagTruthy = `CAST({{active_flag}} AS VARCHAR) IN ('true', 'TRUE', 'Y', '1')`

// scd2OrderedHistory is the shared CTE used by the continuity checks: each
// row paired with the begin date of its successor within the same grain.
// A single-row grain has a NULL next_begin and is trivially continuous.
const scd2OrderedHistory = `WITH ordered_history AS (
    SELECT {{primary_key}} AS grain_key,
           {{begin_date}} AS begin_date,
           {{end_date}} AS end_date,
           LEAD({{begin_date}}) OVER (PARTITION BY {{primary_key}} ORDER BY {{begin_date}}) AS next_begin
    FROM {{table}}
)`

var allShapes = []ShapeType{ShapeType1, ShapeType2, ShapeGeneric}

// builtinTemplates is the ordered built-in catalog. Order is load-bearing:
// smoke checks come first, then null checks, then uniqueness, then temporal
// rules, because later checks assume the earlier structural ones as
// prerequisites for meaningful diagnosis. Every query selects violating
// rows; zero violations means PASS.
var builtinTemplates = []CheckTemplate{
	{
		ID:          "table_exists",
		Name:        "Table Exists",
		Category:    "smoke",
		Severity:    SeverityHigh,
		Description: "Verify the target table exists and is queryable",
		Query:       `SELECT 1 AS probe FROM {{table}} WHERE 1 = 0`,
		Shapes:      allShapes,
	},
	{
		ID:          "primary_key_not_null",
		Name:        "Primary Key NOT NULL",
		Category:    "completeness",
		Severity:    SeverityHigh,
		Description: "No row may have a NULL component in its primary key",
		Query:       `SELECT * FROM {{table}} WHERE {{primary_key}} IS NULL`,
		Shapes:      allShapes,
	},
	{
		ID:          "surrogate_key_not_null",
		Name:        "Surrogate Key NOT NULL",
		Category:    "completeness",
		Severity:    SeverityHigh,
		Description: "The surrogate key column must never be NULL",
		Query:       `SELECT * FROM {{table}} WHERE {{surrogate_key}} IS NULL`,
		Shapes:      allShapes,
	},
	{
		ID:          "begin_date_not_null",
		Name:        "Begin Date NOT NULL",
		Category:    "completeness",
		Severity:    SeverityHigh,
		Description: "Every history row needs a begin date",
		Query:       `SELECT * FROM {{table}} WHERE {{begin_date}} IS NULL`,
		Shapes:      []ShapeType{ShapeType2},
	},
	{
		ID:          "end_date_not_null",
		Name:        "End Date NOT NULL",
		Category:    "completeness",
		Severity:    SeverityHigh,
		Description: "Every history row needs an end date (current rows carry the open sentinel)",
		Query:       `SELECT * FROM {{table}} WHERE {{end_date}} IS NULL`,
		Shapes:      []ShapeType{ShapeType2},
	},
	{
		ID:          "active_flag_not_null",
		Name:        "Active Flag NOT NULL",
		Category:    "completeness",
		Severity:    SeverityHigh,
		Description: "Every history row needs a current-row flag",
		Query:       `SELECT * FROM {{table}} WHERE {{active_flag}} IS NULL`,
		Shapes:      []ShapeType{ShapeType2},
	},
	{
		ID:          "primary_key_unique",
		Name:        "Primary Key Uniqueness",
		Category:    "integrity",
		Severity:    SeverityHigh,
		Description: "Report every row participating in a duplicated primary key",
		Query: `SELECT * FROM {{table}} WHERE {{primary_key}} IN (
    SELECT {{primary_key}} FROM {{table}}
    WHERE {{primary_key}} IS NOT NULL
    GROUP BY {{primary_key}} HAVING COUNT(*) > 1
)`,
		Shapes: allShapes,
	},
	{
		ID:          "surrogate_key_unique",
		Name:        "Surrogate Key Uniqueness",
		Category:    "integrity",
		Severity:    SeverityHigh,
		Description: "Report every row participating in a duplicated surrogate key",
		Query: `SELECT * FROM {{table}} WHERE {{surrogate_key}} IN (
    SELECT {{surrogate_key}} FROM {{table}}
    WHERE {{surrogate_key}} IS NOT NULL
    GROUP BY {{surrogate_key}} HAVING COUNT(*) > 1
)`,
		Shapes: allShapes,
	},
	{
		ID:          "begin_date_unique_per_grain",
		Name:        "Unique Begin Date per Grain",
		Category:    "integrity",
		Severity:    SeverityHigh,
		Description: "No grain may have two versions starting at the same time",
		Query: `SELECT {{primary_key}} AS grain_key, {{begin_date}} AS begin_date, COUNT(*) AS duplicate_count
FROM {{table}}
GROUP BY {{primary_key}}, {{begin_date}} HAVING COUNT(*) > 1`,
		Shapes: []ShapeType{ShapeType2},
	},
	{
		ID:          "end_date_unique_per_grain",
		Name:        "Unique End Date per Grain",
		Category:    "integrity",
		Severity:    SeverityHigh,
		Description: "No grain may have two versions ending at the same time",
		Query: `SELECT {{primary_key}} AS grain_key, {{end_date}} AS end_date, COUNT(*) AS duplicate_count
FROM {{table}}
GROUP BY {{primary_key}}, {{end_date}} HAVING COUNT(*) > 1`,
		Shapes: []ShapeType{ShapeType2},
	},
	{
		ID:          "begin_before_end",
		Name:        "Begin Date Before End Date",
		Category:    "validity",
		Severity:    SeverityHigh,
		Description: "Version validity intervals must be well-ordered",
		Query:       `SELECT * FROM {{table}} WHERE {{begin_date}} >= {{end_date}}`,
		Shapes:      []ShapeType{ShapeType2},
	},
	{
		ID:          "single_active_row",
		Name:        "One Current Row per Grain",
		Category:    "validity",
		Severity:    SeverityHigh,
		Description: "Each grain must have exactly one row flagged as current",
		Query: `SELECT {{primary_key}} AS grain_key,
       SUM(CASE WHEN ` + activeFlagTruthy + ` THEN 1 ELSE 0 END) AS active_count
FROM {{table}}
GROUP BY {{primary_key}}
HAVING SUM(CASE WHEN ` + activeFlagTruthy + ` THEN 1 ELSE 0 END) <> 1`,
		Shapes: []ShapeType{ShapeType2},
	},
	{
		ID:          "active_row_open_end_date",
		Name:        "Current Row Carries Open End Date",
		Category:    "validity",
		Severity:    SeverityHigh,
		Description: "Rows flagged as current must hold the open end-date sentinel",
		Query: `SELECT * FROM {{table}}
WHERE ` + activeFlagTruthy + ` AND CAST({{end_date}} AS VARCHAR) NOT LIKE '` + OpenEndDate + `%'`,
		Shapes: []ShapeType{ShapeType2},
	},
	{
		ID:          "flag_end_date_consistency",
		Name:        "Flag and End Date Consistency",
		Category:    "validity",
		Severity:    SeverityHigh,
		Description: "The current-row flag and the open end-date sentinel must agree in both directions",
		Query: `SELECT * FROM {{table}}
WHERE (` + activeFlagTruthy + ` AND CAST({{end_date}} AS VARCHAR) NOT LIKE '` + OpenEndDate + `%')
   OR (NOT ` + activeFlagTruthy + ` AND CAST({{end_date}} AS VARCHAR) LIKE '` + OpenEndDate + `%')`,
		Shapes: []ShapeType{ShapeType2},
	},
	{
		ID:          "history_continuity",
		Name:        "Continuous History",
		Category:    "validity",
		Severity:    SeverityHigh,
		Description: "Within a grain, each version's end date must equal the next version's begin date (no gaps, no overlaps)",
		Query: scd2OrderedHistory + `
SELECT * FROM ordered_history
WHERE next_begin IS NOT NULL AND end_date <> next_begin`,
		Shapes: []ShapeType{ShapeType2},
	},
	{
		ID:          "no_row_after_current",
		Name:        "No Row After Current",
		Category:    "validity",
		Severity:    SeverityHigh,
		Description: "No version may begin after the current (open-ended) row of its grain",
		Query: scd2OrderedHistory + `
SELECT * FROM ordered_history
WHERE CAST(end_date AS VARCHAR) LIKE '` + OpenEndDate + `%' AND next_begin IS NOT NULL`,
		Shapes: []ShapeType{ShapeType2},
	},
}

// Registry owns the catalog of check templates and exposes lookup by shape.
// The built-in catalog is fixed at construction; extension templates from a
// catalog file are appended after the built-ins and ordered as loaded.
type Registry struct {
	templates []CheckTemplate
	known     map[ShapeType]struct{}
}

// NewRegistry returns a registry holding the built-in catalog plus any
// extension templates, in deterministic order.
func NewRegistry(extensions ...CheckTemplate) *Registry {
	templates := make([]CheckTemplate, 0, len(builtinTemplates)+len(extensions))
	templates = append(templates, builtinTemplates...)
	templates = append(templates, extensions...)

	return &Registry{
		templates: templates,
		known: map[ShapeType]struct{}{
			ShapeType1:   {},
			ShapeType2:   {},
			ShapeGeneric: {},
		},
	}
}

// ListApplicable returns all templates applicable to the given shape, in the
// registry's stable catalog order. Requesting an unregistered shape is a
// configuration error, not a silent empty result.
func (r *Registry) ListApplicable(shape ShapeType) ([]CheckTemplate, error) {
	if _, ok := r.known[shape]; !ok {
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("%v: %q", ErrUnknownShape, shape),
		}
	}

	applicable := make([]CheckTemplate, 0, len(r.templates))

	for _, template := range r.templates {
		if template.AppliesTo(shape) {
			applicable = append(applicable, template)
		}
	}

	return applicable, nil
}

// Templates returns the full catalog in order, for listing endpoints.
func (r *Registry) Templates() []CheckTemplate {
	out := make([]CheckTemplate, len(r.templates))
	copy(out, r.templates)

	return out
}
