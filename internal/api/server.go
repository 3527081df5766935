package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/david/property-catalog/internal/auth"
	"github.com/david/property-catalog/internal/catalog"
	"github.com/david/property-catalog/internal/ingest"
	"github.com/david/property-catalog/internal/models"
)

// ErrLeadsDisabled is returned by the lead endpoint when no database is configured.
var ErrLeadsDisabled = errors.New("lead capture is not configured")

const (
	cacheControlFresh = "public, max-age=60, s-maxage=300, stale-while-revalidate=600"
	cacheControlStale = "public, max-age=10, s-maxage=30, stale-while-revalidate=60"
)

// LeadWriter persists captured leads. *db.LeadStore implements it.
type LeadWriter interface {
	InsertLead(ctx context.Context, lead *models.Lead) error
}

// CategoryInfo is one entry of GET /api/categories.
type CategoryInfo struct {
	ID    models.Category `json:"id"`
	Label string          `json:"label"`
}

// Deps are the collaborators the server routes to. Leads may be nil.
type Deps struct {
	Cache       *catalog.Cache
	Categories  []CategoryInfo
	Leads       LeadWriter
	AuthService *auth.Service
	CORSOrigins []string
	Logger      *logrus.Logger
}

type Server struct {
	Cache       *catalog.Cache
	Categories  []CategoryInfo
	Leads       LeadWriter
	AuthService *auth.Service
	Echo        *echo.Echo
	logger      *logrus.Logger
}

func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := logger.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"request_id": v.RequestID,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request failed")
				return nil
			}
			entry.Info("request")
			return nil
		},
	}))

	allowedOrigins := deps.CORSOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  allowedOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, auth.AdminHeader},
		ExposeHeaders: []string{"X-Cache", echo.HeaderXRequestID},
	}))

	s := &Server{
		Cache:       deps.Cache,
		Categories:  deps.Categories,
		Leads:       deps.Leads,
		AuthService: deps.AuthService,
		Echo:        e,
		logger:      logger,
	}
	e.HTTPErrorHandler = s.handleHTTPError

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)

	api := s.Echo.Group("/api")
	api.GET("/properties", s.handleListProperties)
	api.GET("/properties/:category/:id", s.handleGetProperty)
	api.GET("/categories", s.handleGetCategories)

	leadLimiter := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(0.2),
		Burst:     5,
		ExpiresIn: 3 * time.Minute,
	})
	api.POST("/leads", s.handleCreateLead, middleware.RateLimiter(leadLimiter))

	api.POST("/admin/token", s.handleAdminToken)
	admin := api.Group("/admin")
	admin.Use(s.AuthService.Middleware)
	admin.POST("/cache/purge", s.handlePurgeCache)
	admin.POST("/cache/warm", s.handleWarmCache)
	admin.GET("/cache/stats", s.handleCacheStats)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

type pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

type listResponse struct {
	Success    bool               `json:"success"`
	Data       []models.Property  `json:"data"`
	Total      int                `json:"total"`
	Pagination pagination         `json:"pagination"`
	ServedFrom catalog.ServedFrom `json:"servedFrom"`
}

func (s *Server) handleListProperties(c echo.Context) error {
	filter, err := ParseFilter(c)
	if err != nil {
		return s.writeError(c, err)
	}

	page, err := s.Cache.Get(c.Request().Context(), filter)
	if err != nil {
		return s.writeError(c, err)
	}

	setCacheHeaders(c, page.ServedFrom)
	data := page.Items
	if data == nil {
		data = []models.Property{}
	}
	return c.JSON(http.StatusOK, listResponse{
		Success: true,
		Data:    data,
		Total:   page.Total,
		Pagination: pagination{
			Limit:   page.Limit,
			Offset:  page.Offset,
			HasMore: page.HasMore,
		},
		ServedFrom: page.ServedFrom,
	})
}

func (s *Server) handleGetProperty(c echo.Context) error {
	category, ok := models.ParseCategory(c.Param("category"))
	if !ok {
		return s.writeError(c, &models.ValidationError{Fields: []string{"category"}})
	}

	p, from, err := s.Cache.Lookup(c.Request().Context(), category, c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	setCacheHeaders(c, from)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"data":       p,
		"servedFrom": from,
	})
}

func (s *Server) handleGetCategories(c echo.Context) error {
	categories := s.Categories
	if categories == nil {
		categories = []CategoryInfo{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    categories,
	})
}

type leadRequest struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Category   string `json:"category"`
	PropertyID string `json:"propertyId"`
	Message    string `json:"message"`
}

func (s *Server) handleCreateLead(c echo.Context) error {
	if s.Leads == nil {
		return s.writeError(c, ErrLeadsDisabled)
	}

	var req leadRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("Invalid request", nil))
	}

	lead := &models.Lead{
		Name:       strings.TrimSpace(req.Name),
		Phone:      strings.TrimSpace(req.Phone),
		Email:      strings.TrimSpace(req.Email),
		Category:   models.Category(strings.TrimSpace(req.Category)),
		PropertyID: strings.TrimSpace(req.PropertyID),
		Message:    strings.TrimSpace(req.Message),
	}
	if cat, ok := models.ParseCategory(string(lead.Category)); ok && lead.Category != "" {
		lead.Category = cat
	}
	if err := lead.Validate(); err != nil {
		return s.writeError(c, err)
	}

	if err := s.Leads.InsertLead(c.Request().Context(), lead); err != nil {
		return s.writeError(c, err)
	}
	s.logger.WithFields(logrus.Fields{
		"lead_id":     lead.ID,
		"category":    lead.Category,
		"property_id": lead.PropertyID,
	}).Info("lead captured")

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    lead,
	})
}

func (s *Server) handleAdminToken(c echo.Context) error {
	var req struct {
		Secret string `json:"secret"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("Invalid request", nil))
	}

	token, expires, err := s.AuthService.IssueToken(req.Secret)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCreds) {
			return c.JSON(http.StatusUnauthorized, errorBody("Invalid credentials", nil))
		}
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"token":     token,
		"expiresAt": expires,
	})
}

func (s *Server) handlePurgeCache(c echo.Context) error {
	n, err := s.Cache.Purge(c.Request().Context())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"purged":  n,
	})
}

// handleWarmCache refreshes the given categories (?category=a,b), or the ALL
// query when none are named.
func (s *Server) handleWarmCache(c echo.Context) error {
	filters := []models.Filter{{Category: models.CategoryAll}}
	if v := c.QueryParam("category"); v != "" {
		filters = filters[:0]
		for _, raw := range splitCSV(v) {
			cat, ok := models.ParseCategory(raw)
			if !ok {
				return s.writeError(c, &models.ValidationError{Fields: []string{"category"}})
			}
			filters = append(filters, models.Filter{Category: cat})
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Minute)
	defer cancel()
	if err := s.Cache.Warm(ctx, filters...); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"warmed":  len(filters),
	})
}

func (s *Server) handleCacheStats(c echo.Context) error {
	stats, err := s.Cache.Stats(c.Request().Context())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    stats,
		"ttl":     s.Cache.TTL().String(),
	})
}

// ParseFilter reads the query parameters of GET /api/properties. Limit is
// clamped to 1..100 (default 20) and a negative offset becomes 0; every other
// malformed parameter is reported in one ValidationError.
func ParseFilter(c echo.Context) (models.Filter, error) {
	var f models.Filter
	var fields []string

	if cat, ok := models.ParseCategory(c.QueryParam("category")); ok {
		f.Category = cat
	} else {
		fields = append(fields, "category")
	}
	if tt, ok := models.ParseTransactionType(c.QueryParam("transactionType")); ok {
		f.TransactionType = tt
	} else {
		fields = append(fields, "transactionType")
	}
	switch p := models.Possession(strings.ToLower(strings.TrimSpace(c.QueryParam("possession")))); p {
	case models.PossessionUnknown, models.PossessionReady, models.PossessionUnderConstruction:
		f.Possession = p
	default:
		fields = append(fields, "possession")
	}

	f.Search = strings.TrimSpace(c.QueryParam("search"))
	f.Location = strings.TrimSpace(c.QueryParam("location"))
	f.Sort = strings.TrimSpace(c.QueryParam("sort"))

	number := func(name string, dst *float64) {
		v := strings.TrimSpace(c.QueryParam(name))
		if v == "" {
			return
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || n < 0 || math.IsNaN(n) || math.IsInf(n, 0) {
			fields = append(fields, name)
			return
		}
		*dst = n
	}
	number("minPrice", &f.MinPrice)
	number("maxPrice", &f.MaxPrice)
	number("minArea", &f.MinArea)
	number("maxArea", &f.MaxArea)

	for _, raw := range splitCSV(c.QueryParam("bedrooms")) {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fields = append(fields, "bedrooms")
			break
		}
		f.Bedrooms = append(f.Bedrooms, n)
	}
	f.Configurations = splitCSV(c.QueryParam("configuration"))
	f.VerifiedOnly = c.QueryParam("verified") == "true"
	f.FeaturedOnly = c.QueryParam("featured") == "true"

	f.Limit = models.DefaultLimit
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil {
		switch {
		case l < 1:
			f.Limit = 1
		case l > models.MaxLimit:
			f.Limit = models.MaxLimit
		default:
			f.Limit = l
		}
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil && o > 0 {
		f.Offset = o
	}

	if len(fields) > 0 {
		return models.Filter{}, &models.ValidationError{Fields: fields}
	}
	return f, nil
}

// splitCSV splits a comma-separated query parameter into trimmed non-empty strings.
func splitCSV(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

func setCacheHeaders(c echo.Context, from catalog.ServedFrom) {
	h := c.Response().Header()
	if from == catalog.ServedStale {
		h.Set(echo.HeaderCacheControl, cacheControlStale)
	} else {
		h.Set(echo.HeaderCacheControl, cacheControlFresh)
	}
	h.Set("X-Cache", string(from))
}

func errorBody(msg string, fields []string) map[string]interface{} {
	body := map[string]interface{}{
		"success": false,
		"error":   msg,
	}
	if len(fields) > 0 {
		body["fields"] = fields
	}
	return body
}

// writeError maps domain errors onto status codes.
func (s *Server) writeError(c echo.Context, err error) error {
	var ve *models.ValidationError
	var ue *ingest.UpstreamError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, errorBody(ve.Error(), ve.Fields))
	case errors.Is(err, models.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorBody("Not found", nil))
	case errors.Is(err, ErrLeadsDisabled):
		return c.JSON(http.StatusServiceUnavailable, errorBody(err.Error(), nil))
	case errors.As(err, &ue):
		s.logger.WithError(err).WithField("category", ue.Category).Error("catalog source unavailable")
		return c.JSON(http.StatusBadGateway, errorBody("Catalog source unavailable", nil))
	}
	s.logger.WithError(err).WithField("path", c.Path()).Error("request failed")
	return c.JSON(http.StatusInternalServerError, errorBody("Internal Server Error", nil))
}

// handleHTTPError renders errors raised by middleware and routing in the
// same envelope as handler errors.
func (s *Server) handleHTTPError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(he.Code)
			return
		}
		_ = c.JSON(he.Code, errorBody(msg, nil))
		return
	}
	_ = s.writeError(c, err)
}
