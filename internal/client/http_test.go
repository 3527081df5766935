package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/property-catalog/internal/catalog"
	"github.com/david/property-catalog/internal/models"
)

func TestEncodeQuery(t *testing.T) {
	q := EncodeQuery(models.Filter{
		Category:        models.CategoryCommercial,
		TransactionType: models.TransactionLease,
		Search:          "office",
		MinPrice:        25000,
		Bedrooms:        []int{2, 3},
		Configurations:  []string{"shop", "office"},
		VerifiedOnly:    true,
		Limit:           20,
		Offset:          40,
	})

	assert.Equal(t, "commercial", q.Get("category"))
	assert.Equal(t, "lease", q.Get("transactionType"))
	assert.Equal(t, "office", q.Get("search"))
	assert.Equal(t, "25000", q.Get("minPrice"))
	assert.Equal(t, "2,3", q.Get("bedrooms"))
	assert.Equal(t, "shop,office", q.Get("configuration"))
	assert.Equal(t, "true", q.Get("verified"))
	assert.Equal(t, "40", q.Get("offset"))
	assert.False(t, q.Has("maxPrice"))
	assert.False(t, q.Has("featured"))

	all := EncodeQuery(models.Filter{Category: models.CategoryAll, TransactionType: models.TransactionUnknown})
	assert.Empty(t, all.Encode())
}

func TestHTTPClient_FetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/properties", r.URL.Path)
		assert.Equal(t, "plot", r.URL.Query().Get("category"))
		assert.Equal(t, "10", r.URL.Query().Get("offset"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"data": [{"id": "11", "category": "plot", "title": "Plot in Wagholi", "price": "45 L"}],
			"total": 11,
			"pagination": {"limit": 10, "offset": 10, "hasMore": false},
			"servedFrom": "stale"
		}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", 0)
	page, err := c.FetchPage(context.Background(), models.Filter{Category: models.CategoryPlot, Limit: 10, Offset: 10})
	require.NoError(t, err)

	require.Len(t, page.Items, 1)
	assert.Equal(t, "plot/11", page.Items[0].Key())
	assert.Equal(t, 11, page.Total)
	assert.Equal(t, 10, page.Offset)
	assert.False(t, page.HasMore)
	assert.Equal(t, catalog.ServedStale, page.ServedFrom)
}

func TestHTTPClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("category") {
		case "plot":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"success": false, "error": "invalid or missing fields", "fields": ["minPrice"]}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`upstream unavailable`))
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 0)

	_, err := c.FetchPage(context.Background(), models.Filter{Category: models.CategoryPlot, MinPrice: -1})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, []string{"minPrice"}, apiErr.Fields)

	_, err = c.FetchPage(context.Background(), models.Filter{})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestCoordinator_OverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": [{"id": "1", "category": "bungalow"}], "total": 1,
			"pagination": {"limit": 20, "offset": 0, "hasMore": false}, "servedFrom": "fresh"}`))
	}))
	defer srv.Close()

	c := NewCoordinator(NewHTTPClient(srv.URL, 0), Options{}, quietLogger())
	defer c.Close()

	c.SetCategory(models.CategoryBungalow)
	c.Wait()
	s := c.Snapshot()
	require.NoError(t, s.Err)
	assert.Equal(t, 1, s.Loaded)
	assert.Equal(t, catalog.ServedFresh, s.ServedFrom)
}
