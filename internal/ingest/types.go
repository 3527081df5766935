package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/david/property-catalog/internal/models"
)

// FetchedDocument represents the raw result of a fetch operation.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	FetchedAt   time.Time
	Headers     map[string][]string
}

// Fetcher retrieves raw content from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}

// Adapter returns the canonical properties of one category.
type Adapter interface {
	Category() models.Category
	Fetch(ctx context.Context, category models.Category, filter models.Filter) ([]models.Property, error)
}

// SheetPayload is the Catalog Source response body. Rows are positional
// arrays, decoded one at a time so a malformed row only drops itself.
type SheetPayload struct {
	Data  []json.RawMessage `json:"data"`
	Total int               `json:"total"`
}

// StatusError is returned by fetchers for non-success HTTP statuses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// IsNotFound reports whether err carries a 404 from the Catalog Source.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == 404
}

// UpstreamError means the Catalog Source for a category was unreachable or
// returned a body that could not be decoded.
type UpstreamError struct {
	Category   models.Category
	URL        string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := "catalog source"
	if e.Category != "" {
		msg += " " + string(e.Category)
	}
	msg += " failed"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsUpstream reports whether err is, or wraps, an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
