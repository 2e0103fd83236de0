package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"autotrader/internal/condition"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// LoadRules reads rule records from an INI file (one section per condition)
// or a YAML file with a top-level "conditions" list. Records are returned in
// declaration order.
func LoadRules(path string) ([]condition.Record, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loadYAMLRules(path)
	default:
		return loadINIRules(path)
	}
}

func loadINIRules(path string) ([]condition.Record, error) {
	// Repeated sections and keys are kept so they can be rejected instead of
	// silently merged.
	file, err := ini.LoadSources(ini.LoadOptions{
		AllowNonUniqueSections: true,
		AllowShadows:           true,
		InsensitiveKeys:        true,
	}, path)
	if err != nil {
		return nil, fmt.Errorf("load rules %s: %w", path, err)
	}

	var records []condition.Record
	for _, section := range file.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		rec := condition.Record{ID: section.Name()}
		for _, key := range section.Keys() {
			if values := key.ValueWithShadows(); len(values) > 1 {
				return nil, fmt.Errorf("%s: [%s] %s: key set %d times", path, section.Name(), strings.ToUpper(key.Name()), len(values))
			}
			if err := applyINIKey(&rec, key); err != nil {
				return nil, fmt.Errorf("%s: [%s] %s: %w", path, section.Name(), strings.ToUpper(key.Name()), err)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func applyINIKey(rec *condition.Record, key *ini.Key) error {
	name := strings.ToUpper(strings.TrimSpace(key.Name()))
	switch name {
	case "PERCENT_UP", "PRICE_UP", "PERCENT_DOWN", "PRICE_DOWN", "INTERVAL":
		value, err := key.Float64()
		if err != nil {
			return fmt.Errorf("invalid number %q", key.String())
		}
		switch name {
		case "PERCENT_UP":
			rec.PercentUp = &value
		case "PRICE_UP":
			rec.PriceUp = &value
		case "PERCENT_DOWN":
			rec.PercentDown = &value
		case "PRICE_DOWN":
			rec.PriceDown = &value
		case "INTERVAL":
			rec.Interval = value
		}
	case "FROM_UP", "FROM_DOWN":
		basis, err := condition.ParseBasis(key.String())
		if err != nil {
			return err
		}
		if name == "FROM_UP" {
			rec.FromUp = basis
		} else {
			rec.FromDown = basis
		}
	case "NEXT_LINK":
		rec.Next = strings.TrimSpace(key.String())
	default:
		return fmt.Errorf("unknown key")
	}
	return nil
}

type yamlRules struct {
	Conditions []yamlRecord `yaml:"conditions"`
}

type yamlRecord struct {
	ID          string   `yaml:"id"`
	PercentUp   *float64 `yaml:"percent_up"`
	PriceUp     *float64 `yaml:"price_up"`
	FromUp      string   `yaml:"from_up"`
	PercentDown *float64 `yaml:"percent_down"`
	PriceDown   *float64 `yaml:"price_down"`
	FromDown    string   `yaml:"from_down"`
	Interval    float64  `yaml:"interval"`
	NextLink    string   `yaml:"next_link"`
}

func loadYAMLRules(path string) ([]condition.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load rules %s: %w", path, err)
	}
	var doc yamlRules
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}

	records := make([]condition.Record, 0, len(doc.Conditions))
	for _, raw := range doc.Conditions {
		fromUp, err := condition.ParseBasis(raw.FromUp)
		if err != nil {
			return nil, fmt.Errorf("%s: [%s] FROM_UP: %w", path, raw.ID, err)
		}
		fromDown, err := condition.ParseBasis(raw.FromDown)
		if err != nil {
			return nil, fmt.Errorf("%s: [%s] FROM_DOWN: %w", path, raw.ID, err)
		}
		records = append(records, condition.Record{
			ID:          raw.ID,
			PercentUp:   raw.PercentUp,
			PriceUp:     raw.PriceUp,
			FromUp:      fromUp,
			PercentDown: raw.PercentDown,
			PriceDown:   raw.PriceDown,
			FromDown:    fromDown,
			Interval:    raw.Interval,
			Next:        raw.NextLink,
		})
	}
	return records, nil
}
