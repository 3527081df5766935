package ingest

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/david/property-catalog/internal/models"
)

//go:embed config/catalog.yaml
var catalogYAML embed.FS

// Column names understood by the normalizer.
const (
	ColID              = "id"
	ColTitle           = "title"
	ColTransactionType = "transaction_type"
	ColLocation        = "location"
	ColAreaLabel       = "area_label"
	ColConfiguration   = "configuration"
	ColPrice           = "price"
	ColCarpetArea      = "carpet_area"
	ColBuiltUpArea     = "built_up_area"
	ColPossession      = "possession"
	ColDescription     = "description"
	ColMedia           = "media"
	ColVerified        = "verified"
	ColPostedDate      = "posted_date"
	ColViews           = "views"
	ColLikes           = "likes"
)

// Registry holds the Catalog Source layout for every category.
type Registry struct {
	Source        SourceConfig     `yaml:"source"`
	DefaultRegion string           `yaml:"default_region"`
	FeaturedCount int              `yaml:"featured_count"`
	Gazetteer     []GazetteerEntry `yaml:"gazetteer"`
	Categories    []CategoryConfig `yaml:"categories"`
}

// FetchConfig defines HTTP fetching configuration for the Catalog Source.
type FetchConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"` // Default: 30
	MaxRetries     int     `yaml:"max_retries,omitempty"`     // Default: 3
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty"`  // Requests per second, default: 1.0
	ProxyURL       string  `yaml:"proxy_url,omitempty"`
	AcceptLanguage string  `yaml:"accept_language,omitempty"`
}

// Override replaces the fields that are set to a positive value and keeps
// the rest, so the registry's fetch block applies unless the caller sets one.
func (c FetchConfig) Override(timeoutSeconds, maxRetries int, rateLimitRPS float64) FetchConfig {
	if timeoutSeconds > 0 {
		c.TimeoutSeconds = timeoutSeconds
	}
	if maxRetries > 0 {
		c.MaxRetries = maxRetries
	}
	if rateLimitRPS > 0 {
		c.RateLimitRPS = rateLimitRPS
	}
	return c
}

type SourceConfig struct {
	BaseURL string      `yaml:"base_url"`
	Fetch   FetchConfig `yaml:"fetch,omitempty"`
}

type GazetteerEntry struct {
	Match    string `yaml:"match"`
	Location string `yaml:"location"`
}

// ColumnMap maps a semantic column name to its positional index in a row.
// A name that is absent has no column in that category.
type ColumnMap map[string]int

// CategoryConfig is the per-category layout handed to the normalizer.
type CategoryConfig struct {
	ID      models.Category `yaml:"id"`
	Label   string          `yaml:"label"`
	Sheet   string          `yaml:"sheet"`
	Columns ColumnMap       `yaml:"columns"`

	// Filled from the registry so the normalizer stays a pure function of its inputs.
	FeaturedCount int              `yaml:"-"`
	DefaultRegion string           `yaml:"-"`
	Gazetteer     []GazetteerEntry `yaml:"-"`
}

// LoadRegistry reads the catalog layout. An explicit path wins over the embedded copy.
func LoadRegistry(path string) (*Registry, error) {
	var data []byte
	var err error
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = catalogYAML.ReadFile("config/catalog.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog registry: %w", err)
	}

	// Expand environment variables within the YAML content (e.g. ${CATALOG_SOURCE_URL})
	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("failed to parse catalog registry: %w", err)
	}
	if err := reg.validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *Registry) validate() error {
	seen := make(map[models.Category]bool)
	for _, c := range r.Categories {
		cat, ok := models.ParseCategory(string(c.ID))
		if !ok || cat == models.CategoryAll {
			return fmt.Errorf("registry: unknown category %q", c.ID)
		}
		if seen[cat] {
			return fmt.Errorf("registry: duplicate category %q", c.ID)
		}
		seen[cat] = true
		if _, ok := c.Columns[ColID]; !ok {
			return fmt.Errorf("registry: category %q has no id column", c.ID)
		}
	}
	return nil
}

// Category returns the resolved layout for one category.
func (r *Registry) Category(id models.Category) (CategoryConfig, bool) {
	for _, c := range r.Categories {
		if c.ID == id {
			c.FeaturedCount = r.FeaturedCount
			c.DefaultRegion = r.DefaultRegion
			c.Gazetteer = r.Gazetteer
			if c.Sheet == "" {
				c.Sheet = string(c.ID)
			}
			return c, true
		}
	}
	return CategoryConfig{}, false
}

// All returns every resolved category layout in registry order.
func (r *Registry) All() []CategoryConfig {
	out := make([]CategoryConfig, 0, len(r.Categories))
	for _, c := range r.Categories {
		resolved, _ := r.Category(c.ID)
		out = append(out, resolved)
	}
	return out
}

// SheetURL joins the source base URL and a sheet name.
func (r *Registry) SheetURL(sheet string) string {
	return strings.TrimRight(r.Source.BaseURL, "/") + "/" + strings.TrimLeft(sheet, "/")
}
