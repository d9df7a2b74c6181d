package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ExtensionsFile is the on-disk format for additional check templates loaded
// at startup. Extension templates go through the same binding and
// applicability machinery as the built-ins.
type ExtensionsFile struct {
	Version   string          `yaml:"version"`
	Templates []CheckTemplate `yaml:"templates"`
}

// LoadExtensions reads extension templates from a YAML catalog file.
func LoadExtensions(path string) ([]CheckTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading extension catalog %s: %w", path, err)
	}

	var file ExtensionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing extension catalog %s: %w", path, err)
	}

	for i, template := range file.Templates {
		if err := validateExtension(&template); err != nil {
			return nil, fmt.Errorf("extension catalog %s, template #%d: %w", path, i+1, err)
		}
	}

	return file.Templates, nil
}

func validateExtension(template *CheckTemplate) error {
	if template.ID == "" || template.Name == "" || template.Query == "" {
		return fmt.Errorf("id, name, and query are required")
	}

	switch template.Severity {
	case SeverityHigh, SeverityMedium, SeverityLow:
	case "":
		return fmt.Errorf("severity is required")
	default:
		return fmt.Errorf("unknown severity %q", template.Severity)
	}

	if len(template.Shapes) == 0 {
		return fmt.Errorf("at least one applicable shape is required")
	}

	for _, shape := range template.Shapes {
		switch shape {
		case ShapeType1, ShapeType2, ShapeGeneric:
		default:
			return fmt.Errorf("unknown shape %q", shape)
		}
	}

	return nil
}
