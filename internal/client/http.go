package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/david/property-catalog/internal/catalog"
	"github.com/david/property-catalog/internal/models"
)

// APIError is a non-success response from the query endpoint.
type APIError struct {
	StatusCode int
	Message    string
	Fields     []string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("catalog api: status %d", e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if len(e.Fields) > 0 {
		msg += " (" + strings.Join(e.Fields, ", ") + ")"
	}
	return msg
}

// HTTPClient fetches pages from the catalog HTTP API.
type HTTPClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPClient creates a client for baseURL ("http://localhost:8080").
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type pageResponse struct {
	Success    bool              `json:"success"`
	Data       []models.Property `json:"data"`
	Total      int               `json:"total"`
	ServedFrom string            `json:"servedFrom"`
	Pagination struct {
		Limit   int  `json:"limit"`
		Offset  int  `json:"offset"`
		HasMore bool `json:"hasMore"`
	} `json:"pagination"`
	Error  string   `json:"error"`
	Fields []string `json:"fields"`
}

// FetchPage implements PageFetcher.
func (c *HTTPClient) FetchPage(ctx context.Context, filter models.Filter) (catalog.Page, error) {
	u := c.BaseURL + "/api/properties?" + EncodeQuery(filter).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return catalog.Page{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return catalog.Page{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return catalog.Page{}, fmt.Errorf("failed to read body: %w", err)
	}

	var out pageResponse
	if err := json.Unmarshal(body, &out); err != nil {
		if resp.StatusCode >= 300 {
			return catalog.Page{}, &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return catalog.Page{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 300 || !out.Success {
		return catalog.Page{}, &APIError{StatusCode: resp.StatusCode, Message: out.Error, Fields: out.Fields}
	}

	if out.Data == nil {
		out.Data = []models.Property{}
	}
	return catalog.Page{
		Items:      out.Data,
		Total:      out.Total,
		Limit:      out.Pagination.Limit,
		Offset:     out.Pagination.Offset,
		HasMore:    out.Pagination.HasMore,
		ServedFrom: catalog.ServedFrom(out.ServedFrom),
	}, nil
}

// EncodeQuery renders a filter as the flat query parameters the API accepts.
// Zero values are left out.
func EncodeQuery(f models.Filter) url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	num := func(k string, v float64) {
		if v != 0 {
			q.Set(k, strconv.FormatFloat(v, 'f', -1, 64))
		}
	}

	if !f.IsAll() {
		set("category", string(f.Category))
	}
	if f.TransactionType != models.TransactionUnknown {
		set("transactionType", string(f.TransactionType))
	}
	set("search", f.Search)
	set("location", f.Location)
	set("possession", string(f.Possession))
	set("sort", f.Sort)
	num("minPrice", f.MinPrice)
	num("maxPrice", f.MaxPrice)
	num("minArea", f.MinArea)
	num("maxArea", f.MaxArea)
	if len(f.Bedrooms) > 0 {
		parts := make([]string, 0, len(f.Bedrooms))
		for _, b := range f.Bedrooms {
			parts = append(parts, strconv.Itoa(b))
		}
		q.Set("bedrooms", strings.Join(parts, ","))
	}
	if len(f.Configurations) > 0 {
		q.Set("configuration", strings.Join(f.Configurations, ","))
	}
	if f.VerifiedOnly {
		q.Set("verified", "true")
	}
	if f.FeaturedOnly {
		q.Set("featured", "true")
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	return q
}
