package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Recognized template placeholders. Binding is plain string substitution:
// no expression evaluation ever happens inside a template, which bounds the
// injection surface to identifiers that already exist as configured column
// and table names.
const (
	placeholderTable        = "table"
	placeholderPrimaryKey   = "primary_key"
	placeholderSurrogateKey = "surrogate_key"
	placeholderBeginDate    = "begin_date"
	placeholderEndDate      = "end_date"
	placeholderActiveFlag   = "active_flag"
)

// ErrUnboundPlaceholder signals a binding gap: the template references a
// field absent on the configuration (for example a surrogate key when none
// is configured). The check is inapplicable to that row, not an error.
var ErrUnboundPlaceholder = errors.New("template placeholder cannot be resolved for this configuration")

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-z_]+)\s*\}\}`)

// Bind expands every {{placeholder}} token in the template using identifiers
// from the configuration row. It returns ErrUnboundPlaceholder (wrapped with
// the offending token) when any placeholder has no value on the row, so the
// caller can drop the check instead of executing a partial query.
func Bind(template string, cfg *ValidationConfig) (string, error) {
	var bindErr error

	bound := placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		name := placeholderPattern.FindStringSubmatch(token)[1]

		value, err := resolvePlaceholder(name, cfg)
		if err != nil && bindErr == nil {
			bindErr = err
		}

		return value
	})

	if bindErr != nil {
		return "", bindErr
	}

	return bound, nil
}

// resolvePlaceholder maps one placeholder name to its literal SQL fragment.
func resolvePlaceholder(name string, cfg *ValidationConfig) (string, error) {
	switch name {
	case placeholderTable:
		return QualifiedTableName(cfg.Dataset, cfg.Table), nil
	case placeholderPrimaryKey:
		if len(cfg.PrimaryKeys) == 0 {
			return "", fmt.Errorf("%w: {{%s}}", ErrUnboundPlaceholder, name)
		}

		return CompositeKeyExpression(cfg.PrimaryKeys), nil
	case placeholderSurrogateKey:
		return resolveColumn(name, cfg.SurrogateKey)
	case placeholderBeginDate:
		return resolveColumn(name, cfg.BeginDateColumn)
	case placeholderEndDate:
		return resolveColumn(name, cfg.EndDateColumn)
	case placeholderActiveFlag:
		return resolveColumn(name, cfg.ActiveFlagColumn)
	default:
		return "", fmt.Errorf("%w: {{%s}} is not a recognized placeholder", ErrUnboundPlaceholder, name)
	}
}

func resolveColumn(placeholder, column string) (string, error) {
	if column == "" {
		return "", fmt.Errorf("%w: {{%s}}", ErrUnboundPlaceholder, placeholder)
	}

	return quoteIdentifier(column), nil
}

// QualifiedTableName returns the fully-qualified, quoted table reference.
func QualifiedTableName(dataset, table string) string {
	return quoteIdentifier(dataset) + "." + quoteIdentifier(table)
}

// CompositeKeyExpression collapses an ordered set of key columns into a
// single SQL-comparable expression, so uniqueness and grouping checks behave
// identically for single- and multi-column keys.
//
// A single column is emitted verbatim (quoted). Multiple columns are cast to
// VARCHAR and concatenated with a separator; SQL NULL propagation makes the
// whole expression NULL when any component is NULL, which is exactly what
// the not-null checks need.
func CompositeKeyExpression(columns []string) string {
	if len(columns) == 1 {
		return quoteIdentifier(columns[0])
	}

	parts := make([]string, 0, len(columns))
	for _, column := range columns {
		parts = append(parts, "CAST("+quoteIdentifier(column)+" AS VARCHAR)")
	}

	return "(" + strings.Join(parts, " || '|' || ") + ")"
}

// quoteIdentifier escapes an identifier for safe literal inclusion in a
// bound query.
func quoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
