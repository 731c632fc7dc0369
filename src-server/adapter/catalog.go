package adapter

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SourceConfig describes one entry of the YAML source catalog.
type SourceConfig struct {
	// internal identifier, used for provenance and logging
	Name string `yaml:"name"`
	// json_feed | html | ics | submission
	Type string `yaml:"type"`

	URL string `yaml:"url"`
	// local file for submission drops
	Path string `yaml:"path"`

	// owning organization; adapters without per-record group data
	// stamp every candidate with these
	Group        string `yaml:"group"`
	GroupWebsite string `yaml:"group_website"`

	// goquery selector for the html adapter's event items
	Selector string `yaml:"selector"`

	Timeout Duration `yaml:"timeout"`
}

// Duration accepts "10s"-style text in the catalog, which yaml.v3 won't
// decode into a bare time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

type Catalog struct {
	Sources []SourceConfig `yaml:"sources"`
}

// Fills in missing values so partially-written catalogs still behave.
func (c *Catalog) Normalize() {
	for i := range c.Sources {
		if c.Sources[i].Timeout <= 0 {
			c.Sources[i].Timeout = Duration(defaultTimeout)
		}
		if c.Sources[i].Selector == "" {
			c.Sources[i].Selector = ".event"
		}
	}
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadCatalog: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("LoadCatalog: %w", err)
	}
	catalog.Normalize()

	for _, cfg := range catalog.Sources {
		switch {
		case cfg.Name == "":
			return nil, fmt.Errorf("LoadCatalog: source with blank name")
		case cfg.Type == "":
			return nil, fmt.Errorf("LoadCatalog: source %s has no type", cfg.Name)
		case cfg.Type == "submission" && cfg.Path == "":
			return nil, fmt.Errorf("LoadCatalog: submission source %s has no path", cfg.Name)
		case cfg.Type != "submission" && cfg.URL == "":
			return nil, fmt.Errorf("LoadCatalog: source %s has no url", cfg.Name)
		}
	}

	return &catalog, nil
}
