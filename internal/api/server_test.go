package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/david/property-catalog/internal/auth"
	"github.com/david/property-catalog/internal/catalog"
	"github.com/david/property-catalog/internal/client"
	"github.com/david/property-catalog/internal/ingest"
	"github.com/david/property-catalog/internal/models"
)

const adminSecret = "open-sesame"

type fakeCollector struct {
	mu      sync.Mutex
	items   []models.Property
	err     error
	filters []models.Filter
}

func (f *fakeCollector) Collect(_ context.Context, filter models.Filter) (catalog.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return catalog.Result{}, f.err
	}
	var out []models.Property
	for _, p := range f.items {
		if filter.IsAll() || p.Category == filter.Category {
			out = append(out, p)
		}
	}
	return catalog.Result{Items: out, Total: len(out)}, nil
}

func (f *fakeCollector) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeLeads struct {
	mu    sync.Mutex
	leads []models.Lead
	err   error
}

func (f *fakeLeads) InsertLead(_ context.Context, lead *models.Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	lead.ID = uuid.New()
	lead.CreatedAt = time.Now()
	f.leads = append(f.leads, *lead)
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func listings(n int) []models.Property {
	out := make([]models.Property, 0, n)
	for i := 1; i <= n; i++ {
		cat := models.CategoryResidential
		if i%2 == 0 {
			cat = models.CategoryCommercial
		}
		out = append(out, models.Property{
			ID:              strconv.Itoa(i),
			Category:        cat,
			Title:           "Listing " + strconv.Itoa(i),
			Location:        "Pune",
			TransactionType: models.TransactionBuy,
		})
	}
	return out
}

type fixture struct {
	server    *Server
	collector *fakeCollector
	leads     *fakeLeads
	now       *time.Time
}

func newFixture(t *testing.T, withLeads bool) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fx := &fixture{collector: &fakeCollector{items: listings(30)}, now: &now}

	cache := catalog.NewCache(fx.collector, catalog.NewMemoryStore(0), catalog.Options{
		TTL: time.Minute,
		Now: func() time.Time { return *fx.now },
	}, quietLogger())
	authService, err := auth.NewService(auth.Options{Secret: adminSecret, JWTSecret: "signing-key"}, quietLogger())
	require.NoError(t, err)

	deps := Deps{
		Cache: cache,
		Categories: []CategoryInfo{
			{ID: models.CategoryResidential, Label: "Residential"},
			{ID: models.CategoryCommercial, Label: "Commercial"},
		},
		AuthService: authService,
		Logger:      quietLogger(),
	}
	if withLeads {
		fx.leads = &fakeLeads{}
		deps.Leads = fx.leads
	}
	fx.server = NewServer(deps)
	return fx
}

func (fx *fixture) do(t *testing.T, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	fx.server.Echo.ServeHTTP(rec, req)
	return rec
}

type listBody struct {
	Success    bool              `json:"success"`
	Data       []models.Property `json:"data"`
	Total      int               `json:"total"`
	ServedFrom string            `json:"servedFrom"`
	Error      string            `json:"error"`
	Fields     []string          `json:"fields"`
	Pagination struct {
		Limit   int  `json:"limit"`
		Offset  int  `json:"offset"`
		HasMore bool `json:"hasMore"`
	} `json:"pagination"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) listBody {
	t.Helper()
	var out listBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	fx := newFixture(t, false)
	rec := fx.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestListProperties_FreshThenCached(t *testing.T) {
	fx := newFixture(t, false)

	rec := fx.do(t, http.MethodGet, "/api/properties?limit=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.True(t, body.Success)
	assert.Len(t, body.Data, 10)
	assert.Equal(t, 30, body.Total)
	assert.Equal(t, 10, body.Pagination.Limit)
	assert.True(t, body.Pagination.HasMore)
	assert.Equal(t, "fresh", body.ServedFrom)
	assert.Equal(t, "fresh", rec.Header().Get("X-Cache"))
	assert.Equal(t, cacheControlFresh, rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = fx.do(t, http.MethodGet, "/api/properties?limit=10&offset=20", "", nil)
	body = decode(t, rec)
	assert.Equal(t, "cache", body.ServedFrom)
	assert.Len(t, body.Data, 10)
	assert.False(t, body.Pagination.HasMore)
	assert.Equal(t, 20, body.Pagination.Offset)
	assert.Len(t, fx.collector.filters, 1)
}

func TestListProperties_StaleOnUpstreamFailure(t *testing.T) {
	fx := newFixture(t, false)
	require.Equal(t, http.StatusOK, fx.do(t, http.MethodGet, "/api/properties", "", nil).Code)

	*fx.now = fx.now.Add(2 * time.Minute)
	fx.collector.fail(&ingest.UpstreamError{Category: models.CategoryAll, Err: errors.New("boom")})

	rec := fx.do(t, http.MethodGet, "/api/properties", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stale", decode(t, rec).ServedFrom)
	assert.Equal(t, "stale", rec.Header().Get("X-Cache"))
	assert.Equal(t, cacheControlStale, rec.Header().Get("Cache-Control"))

	// A query with no history has nothing to fall back on
	rec = fx.do(t, http.MethodGet, "/api/properties?search=villa", "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	assert.False(t, body.Success)
	assert.NotEmpty(t, body.Error)
}

func TestListProperties_ValidationErrors(t *testing.T) {
	fx := newFixture(t, false)

	tests := []struct {
		query string
		field string
	}{
		{"category=castle", "category"},
		{"transactionType=swap", "transactionType"},
		{"minPrice=abc", "minPrice"},
		{"bedrooms=2,x", "bedrooms"},
		{"possession=soon", "possession"},
		{"minPrice=500&maxPrice=100", "maxPrice"},
		{"sort=random", "sort"},
		{"minPrice=NaN", "minPrice"},
		{"maxPrice=Inf", "maxPrice"},
		{"minArea=nan", "minArea"},
		{"maxArea=-Inf", "maxArea"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := fx.do(t, http.MethodGet, "/api/properties?"+tt.query, "", nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode(t, rec)
			assert.False(t, body.Success)
			assert.Contains(t, body.Fields, tt.field)
		})
	}
}

func TestListProperties_LimitIsClamped(t *testing.T) {
	fx := newFixture(t, false)

	body := decode(t, fx.do(t, http.MethodGet, "/api/properties?limit=500", "", nil))
	assert.Equal(t, models.MaxLimit, body.Pagination.Limit)
	assert.Len(t, body.Data, 30)

	body = decode(t, fx.do(t, http.MethodGet, "/api/properties?limit=0", "", nil))
	assert.Equal(t, 1, body.Pagination.Limit)

	body = decode(t, fx.do(t, http.MethodGet, "/api/properties?limit=abc&offset=-4", "", nil))
	assert.Equal(t, models.DefaultLimit, body.Pagination.Limit)
	assert.Equal(t, 0, body.Pagination.Offset)
}

func TestParseFilter_RoundTripsClientEncoding(t *testing.T) {
	fx := newFixture(t, false)
	want := models.Filter{
		Search:          "sea view",
		Category:        models.CategoryResidential,
		TransactionType: models.TransactionLease,
		Possession:      models.PossessionReady,
		Location:        "Baner",
		MinPrice:        25000,
		MaxPrice:        90000.5,
		MinArea:         600,
		Bedrooms:        []int{2, 3},
		Configurations:  []string{"2 bhk", "3 bhk"},
		VerifiedOnly:    true,
		Sort:            models.SortPriceAsc,
		Limit:           40,
		Offset:          80,
	}

	req := httptest.NewRequest(http.MethodGet, "/api/properties?"+client.EncodeQuery(want).Encode(), nil)
	c := fx.server.Echo.NewContext(req, httptest.NewRecorder())
	got, err := ParseFilter(c)
	require.NoError(t, err)
	assert.Equal(t, want.Normalized(), got.Normalized())
}

func TestGetProperty(t *testing.T) {
	fx := newFixture(t, false)

	rec := fx.do(t, http.MethodGet, "/api/properties/commercial/4", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Success bool            `json:"success"`
		Data    models.Property `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "4", body.Data.ID)
	assert.Equal(t, models.CategoryCommercial, body.Data.Category)
	assert.Equal(t, "fresh", rec.Header().Get("X-Cache"))

	assert.Equal(t, http.StatusNotFound, fx.do(t, http.MethodGet, "/api/properties/commercial/3", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, fx.do(t, http.MethodGet, "/api/properties/all/3", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, fx.do(t, http.MethodGet, "/api/properties/castle/3", "", nil).Code)
}

func TestGetCategories(t *testing.T) {
	fx := newFixture(t, false)
	rec := fx.do(t, http.MethodGet, "/api/categories", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []CategoryInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "Residential", body.Data[0].Label)
}

func TestCreateLead(t *testing.T) {
	fx := newFixture(t, true)

	rec := fx.do(t, http.MethodPost, "/api/leads",
		`{"name":"Asha","phone":"+91 98220 12345","category":"Residential","propertyId":"7"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, fx.leads.leads, 1)
	assert.Equal(t, models.CategoryResidential, fx.leads.leads[0].Category)
	assert.Equal(t, "7", fx.leads.leads[0].PropertyID)

	rec = fx.do(t, http.MethodPost, "/api/leads", `{"name":"","phone":"12","propertyId":"7"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.ElementsMatch(t, []string{"name", "phone", "category"}, body.Fields)
	assert.Len(t, fx.leads.leads, 1)
}

func TestCreateLead_DisabledWithoutDatabase(t *testing.T) {
	fx := newFixture(t, false)
	rec := fx.do(t, http.MethodPost, "/api/leads", `{"name":"Asha","phone":"9822012345"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminRoutes(t *testing.T) {
	fx := newFixture(t, false)
	secret := map[string]string{auth.AdminHeader: adminSecret}

	assert.Equal(t, http.StatusUnauthorized, fx.do(t, http.MethodGet, "/api/admin/cache/stats", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		fx.do(t, http.MethodGet, "/api/admin/cache/stats", "", map[string]string{auth.AdminHeader: "guess"}).Code)

	rec := fx.do(t, http.MethodPost, "/api/admin/cache/warm?category=residential,commercial", "", secret)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, fx.collector.filters, 2)

	rec = fx.do(t, http.MethodPost, "/api/admin/cache/warm?category=castle", "", secret)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fx.do(t, http.MethodGet, "/api/admin/cache/stats", "", secret)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Data catalog.Stats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Data.Entries)

	rec = fx.do(t, http.MethodPost, "/api/admin/cache/purge", "", secret)
	require.Equal(t, http.StatusOK, rec.Code)
	var purged struct {
		Purged int `json:"purged"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &purged))
	assert.Equal(t, 2, purged.Purged)
}

func TestAdminToken(t *testing.T) {
	fx := newFixture(t, false)

	rec := fx.do(t, http.MethodPost, "/api/admin/token", `{"secret":"nope"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = fx.do(t, http.MethodPost, "/api/admin/token", `{"secret":"`+adminSecret+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)

	rec = fx.do(t, http.MethodGet, "/api/admin/cache/stats", "", map[string]string{"Authorization": "Bearer " + body.Token})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	fx := newFixture(t, false)
	rec := fx.do(t, http.MethodGet, "/api/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.False(t, body.Success)
}

func TestClientAgainstServer(t *testing.T) {
	fx := newFixture(t, false)
	ts := httptest.NewServer(fx.server.Echo)
	defer ts.Close()

	hc := client.NewHTTPClient(ts.URL, time.Second)
	page, err := hc.FetchPage(context.Background(), models.Filter{Category: models.CategoryCommercial, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 15, page.Total)
	assert.Len(t, page.Items, 5)
	assert.True(t, page.HasMore)
	assert.Equal(t, catalog.ServedFresh, page.ServedFrom)

	_, err = hc.FetchPage(context.Background(), models.Filter{MinPrice: -1})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

type mockLeads struct {
	mock.Mock
}

func (m *mockLeads) InsertLead(ctx context.Context, lead *models.Lead) error {
	args := m.Called(ctx, lead)
	return args.Error(0)
}

func TestCreateLead_StoreFailure(t *testing.T) {
	fx := newFixture(t, false)
	leads := new(mockLeads)
	leads.On("InsertLead", mock.Anything, mock.MatchedBy(func(l *models.Lead) bool {
		return l.Name == "Asha" && l.Category == models.CategoryPlot
	})).Return(errors.New("connection reset")).Once()
	fx.server.Leads = leads

	rec := fx.do(t, http.MethodPost, "/api/leads", `{"name":"Asha","phone":"9822012345","category":"plot"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Internal Server Error", body.Error)
	leads.AssertExpectations(t)
}
