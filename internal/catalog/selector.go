package catalog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Selector produces the final ordered set of bound checks for one
// configuration row. Output is deterministic: the same configuration and the
// same registry contents always yield the same checks in the same order, so
// run results stay comparable across history.
type Selector struct {
	registry *Registry
	logger   *slog.Logger
}

// NewSelector creates a selector over the given registry.
func NewSelector(registry *Registry, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Selector{registry: registry, logger: logger}
}

// Select validates the configuration, binds every applicable built-in
// template, drops binder-signaled inapplicable ones, and appends the row's
// custom checks bound through the same mechanism.
func (s *Selector) Select(cfg *ValidationConfig) ([]BoundCheck, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	templates, err := s.registry.ListApplicable(cfg.Shape)
	if err != nil {
		return nil, err
	}

	checks := make([]BoundCheck, 0, len(templates)+len(cfg.CustomChecks))

	for _, template := range templates {
		query, err := Bind(template.Query, cfg)
		if errors.Is(err, ErrUnboundPlaceholder) {
			// Binding gap: the check does not apply to this row.
			s.logger.Debug("skipping inapplicable check",
				slog.String("config_id", cfg.ID),
				slog.String("check_id", template.ID),
				slog.String("reason", err.Error()),
			)

			continue
		} else if err != nil {
			return nil, fmt.Errorf("binding check %s for config %s: %w", template.ID, cfg.ID, err)
		}

		checks = append(checks, BoundCheck{
			CheckID:     template.ID,
			Name:        template.Name,
			Category:    template.Category,
			Description: template.Description,
			Severity:    template.Severity,
			Query:       query,
			Source:      SourceBuiltin,
		})
	}

	for _, custom := range cfg.CustomChecks {
		query, err := Bind(custom.Query, cfg)
		if errors.Is(err, ErrUnboundPlaceholder) {
			s.logger.Debug("skipping custom check with unresolved placeholder",
				slog.String("config_id", cfg.ID),
				slog.String("check_name", custom.Name),
				slog.String("reason", err.Error()),
			)

			continue
		} else if err != nil {
			return nil, fmt.Errorf("binding custom check %q for config %s: %w", custom.Name, cfg.ID, err)
		}

		severity := custom.Severity
		if severity == "" {
			severity = SeverityHigh
		}

		checks = append(checks, BoundCheck{
			CheckID:     customCheckID(custom.Name),
			Name:        "[Custom] " + custom.Name,
			Category:    "custom",
			Description: custom.Description,
			Severity:    severity,
			Query:       query,
			Source:      SourceCustom,
		})
	}

	return checks, nil
}

// customCheckID derives a stable check id from a custom check name.
func customCheckID(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, slug)

	return "custom_" + slug
}
