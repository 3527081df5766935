package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/property-catalog/internal/models"
)

func TestLoadRegistry_Embedded(t *testing.T) {
	t.Setenv("CATALOG_SOURCE_URL", "https://sheets.example.com/v1/")

	reg, err := LoadRegistry("")
	require.NoError(t, err)

	require.Len(t, reg.Categories, len(models.Categories))
	assert.Equal(t, "Pune", reg.DefaultRegion)
	assert.Equal(t, 3, reg.FeaturedCount)
	assert.NotEmpty(t, reg.Gazetteer)

	bungalow, ok := reg.Category(models.CategoryBungalow)
	require.True(t, ok)
	_, hasTransaction := bungalow.Columns[ColTransactionType]
	assert.False(t, hasTransaction, "bungalow sheet has no transaction column")
	assert.Equal(t, "Pune", bungalow.DefaultRegion)
	assert.Equal(t, 3, bungalow.FeaturedCount)

	plot, ok := reg.Category(models.CategoryPlot)
	require.True(t, ok)
	assert.Equal(t, "https://sheets.example.com/v1/plots", reg.SheetURL(plot.Sheet))

	_, ok = reg.Category(models.CategoryAll)
	assert.False(t, ok)
}

func TestLoadRegistry_FromPathValidates(t *testing.T) {
	dir := t.TempDir()

	dup := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(dup, []byte(`
categories:
  - id: residential
    columns: {id: 0}
  - id: residential
    columns: {id: 0}
`), 0o644))
	_, err := LoadRegistry(dup)
	assert.ErrorContains(t, err, "duplicate category")

	noID := filepath.Join(dir, "noid.yaml")
	require.NoError(t, os.WriteFile(noID, []byte(`
categories:
  - id: plot
    columns: {title: 1}
`), 0o644))
	_, err = LoadRegistry(noID)
	assert.ErrorContains(t, err, "no id column")

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte(`
categories:
  - id: castle
    columns: {id: 0}
`), 0o644))
	_, err = LoadRegistry(unknown)
	assert.ErrorContains(t, err, "unknown category")

	_, err = LoadRegistry(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestFetchConfig_Override(t *testing.T) {
	reg, err := LoadRegistry("")
	require.NoError(t, err)

	kept := reg.Source.Fetch.Override(0, 0, 0)
	assert.Equal(t, reg.Source.Fetch, kept, "registry fetch block survives unset overrides")
	assert.Equal(t, 15, kept.TimeoutSeconds)
	assert.Equal(t, 2, kept.MaxRetries)
	assert.Equal(t, 5.0, kept.RateLimitRPS)

	tuned := reg.Source.Fetch.Override(40, 0, 0.5)
	assert.Equal(t, 40, tuned.TimeoutSeconds)
	assert.Equal(t, 2, tuned.MaxRetries)
	assert.Equal(t, 0.5, tuned.RateLimitRPS)
}
