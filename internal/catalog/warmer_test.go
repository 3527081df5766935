package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/property-catalog/internal/models"
)

func TestWarmer_RunPopulatesCache(t *testing.T) {
	src := &fakeCollector{items: catalogOf(6)}
	c := newTestCache(src, &fakeClock{now: day}, true)
	w := NewWarmer(c, "", nil, quietLogger())

	require.NoError(t, w.Run(context.Background()))

	page, err := c.Get(context.Background(), models.Filter{Category: models.CategoryAll})
	require.NoError(t, err)
	assert.Equal(t, ServedCache, page.ServedFrom)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestWarmer_RunReportsFailure(t *testing.T) {
	src := &fakeCollector{err: errors.New("source down")}
	c := newTestCache(src, &fakeClock{now: day}, true)
	w := NewWarmer(c, "", []models.Filter{{Category: models.CategoryPlot}}, quietLogger())

	err := w.Run(context.Background())
	assert.ErrorContains(t, err, "source down")
}

func TestWarmer_StartStop(t *testing.T) {
	c := newTestCache(&fakeCollector{}, &fakeClock{now: day}, true)

	bad := NewWarmer(c, "every now and then", nil, quietLogger())
	assert.Error(t, bad.Start())

	w := NewWarmer(c, "@every 1h", nil, quietLogger())
	require.NoError(t, w.Start())
	require.NoError(t, w.Start(), "second start is a no-op")
	w.Stop()
	w.Stop()
}
