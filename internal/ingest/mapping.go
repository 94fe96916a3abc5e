package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ColumnConfig defines how one logical field is extracted from the sheet.
// Sources are candidate columns in priority order; the first present
// candidate wins. Fallback "all" makes the normalizer try every present
// candidate until one yields a non-empty value.
type ColumnConfig struct {
	Sources  []string
	Required bool
	Fallback string
}

// Mapping is a parsed column-mapping document
type Mapping struct {
	SheetName any
	Columns   map[string]ColumnConfig
	Defaults  map[string]any
}

// ResolvedField binds a logical field to the present source columns and
// its (already substituted) default value
type ResolvedField struct {
	Sources     []string
	Default     any
	FallbackAll bool
}

// Resolution maps logical fields to their resolved bindings
type Resolution map[string]ResolvedField

type rawMapping struct {
	SheetName any            `yaml:"sheet_name"`
	Columns   map[string]any `yaml:"columns"`
	Defaults  map[string]any `yaml:"defaults"`
}

// LoadMapping parses a mapping document. The shorthand form
// `field: Column` means a single required source.
func LoadMapping(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("no se pudo leer el fichero de mapeos %s: %w", path, err)
	}

	var raw rawMapping
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("el mapeo YAML no es válido (%s): %w", path, err)
	}

	mapping := &Mapping{
		SheetName: raw.SheetName,
		Columns:   make(map[string]ColumnConfig, len(raw.Columns)),
		Defaults:  raw.Defaults,
	}

	for field, value := range raw.Columns {
		config, err := coerceColumnConfig(value)
		if err != nil {
			return nil, fmt.Errorf("columna %q: %w", field, err)
		}
		mapping.Columns[field] = config
	}

	return mapping, nil
}

// Resolve binds logical fields to the workbook headers. Every required
// field must have at least one candidate present; otherwise the unresolved
// required sources are reported through a MissingColumnsError.
// workbookPath feeds the {workbook_label}/{workbook_stem} substitutions
// available to string defaults.
func (m *Mapping) Resolve(headers map[string]bool, workbookPath string) (Resolution, error) {
	var missing []string
	resolution := make(Resolution, len(m.Columns))

	for field, config := range m.Columns {
		var present []string
		for _, source := range config.Sources {
			if headers[source] {
				present = append(present, source)
			}
		}

		if config.Required && len(present) == 0 {
			missing = append(missing, config.Sources...)
			continue
		}

		resolution[field] = ResolvedField{
			Sources:     present,
			Default:     substituteDefault(m.Defaults[field], workbookPath),
			FallbackAll: strings.EqualFold(config.Fallback, "all"),
		}
	}

	// Fields that only carry a default still resolve
	for field, value := range m.Defaults {
		if _, ok := resolution[field]; ok {
			continue
		}
		if _, mapped := m.Columns[field]; mapped {
			continue
		}
		resolution[field] = ResolvedField{Default: substituteDefault(value, workbookPath)}
	}

	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	return resolution, nil
}

func coerceColumnConfig(value any) (ColumnConfig, error) {
	switch typed := value.(type) {
	case string:
		return ColumnConfig{Sources: []string{typed}, Required: true}, nil
	case map[string]any:
		config := ColumnConfig{}
		if source, ok := typed["source"].(string); ok && source != "" {
			config.Sources = append(config.Sources, source)
		}
		if sources, ok := typed["sources"].([]any); ok {
			for _, item := range sources {
				if s, ok := item.(string); ok {
					config.Sources = append(config.Sources, s)
				}
			}
		}
		if required, ok := typed["required"].(bool); ok {
			config.Required = required
		} else {
			config.Required = len(config.Sources) > 0
		}
		if fallback, ok := typed["fallback"].(string); ok {
			config.Fallback = fallback
		}
		return config, nil
	default:
		return ColumnConfig{}, fmt.Errorf("definición de columna no soportada: %T", value)
	}
}

// substituteDefault expands {workbook_label} and {workbook_stem} in
// string defaults
func substituteDefault(value any, workbookPath string) any {
	s, ok := value.(string)
	if !ok || workbookPath == "" {
		return value
	}
	label := filepath.Base(workbookPath)
	stem := strings.TrimSuffix(label, filepath.Ext(label))
	s = strings.ReplaceAll(s, "{workbook_label}", label)
	s = strings.ReplaceAll(s, "{workbook_stem}", stem)
	return s
}
