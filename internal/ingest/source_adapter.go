package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/david/property-catalog/internal/models"
)

// Upper bound on a sheet body; a category is a few thousand rows at most.
const maxSheetBytes = 32 << 20

// SheetAdapter fetches one category's sheet from the Catalog Source and
// normalizes its rows.
type SheetAdapter struct {
	cfg     CategoryConfig
	url     string
	fetcher Fetcher
	breaker *CircuitBreaker
	logger  *logrus.Logger
}

// AdapterOptions tunes the per-category circuit breaker.
type AdapterOptions struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// NewSheetAdapter builds the adapter for one registry category.
func NewSheetAdapter(reg *Registry, category models.Category, fetcher Fetcher, opts AdapterOptions, logger *logrus.Logger) (*SheetAdapter, error) {
	cfg, ok := reg.Category(category)
	if !ok {
		return nil, fmt.Errorf("category %q is not in the registry", category)
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &SheetAdapter{
		cfg:     cfg,
		url:     reg.SheetURL(cfg.Sheet),
		fetcher: fetcher,
		breaker: NewCircuitBreaker(string(category), opts.FailureThreshold, opts.ResetTimeout, logger),
		logger:  logger,
	}, nil
}

// NewSheetAdapters builds one adapter per registry category, in registry order.
func NewSheetAdapters(reg *Registry, fetcher Fetcher, opts AdapterOptions, logger *logrus.Logger) ([]Adapter, error) {
	adapters := make([]Adapter, 0, len(reg.Categories))
	for _, c := range reg.Categories {
		a, err := NewSheetAdapter(reg, c.ID, fetcher, opts, logger)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

func (a *SheetAdapter) Category() models.Category { return a.cfg.ID }

// Fetch returns the normalized rows of the category that match the filter's
// transaction type. A missing sheet is an empty category. Every other failure
// is an *UpstreamError so callers can tell empty from failed.
func (a *SheetAdapter) Fetch(ctx context.Context, category models.Category, filter models.Filter) ([]models.Property, error) {
	if category != a.cfg.ID {
		return nil, fmt.Errorf("adapter for %s asked to fetch %s", a.cfg.ID, category)
	}
	if !a.breaker.CanProceed() {
		return nil, &UpstreamError{Category: category, URL: a.url, Err: ErrCircuitOpen}
	}

	rows, err := a.fetchRows(ctx)
	if err != nil {
		if IsNotFound(err) {
			a.breaker.RecordSuccess()
			a.logger.WithFields(logrus.Fields{"category": category, "url": a.url}).Info("catalog sheet missing, treating category as empty")
			return []models.Property{}, nil
		}
		if !errors.Is(err, context.Canceled) {
			a.breaker.RecordFailure()
		}
		ue := &UpstreamError{Category: category, URL: a.url, Err: err}
		var se *StatusError
		if errors.As(err, &se) {
			ue.StatusCode = se.StatusCode
		}
		return nil, ue
	}
	a.breaker.RecordSuccess()

	out := make([]models.Property, 0, len(rows))
	index := 0
	for i, raw := range rows {
		var row []any
		if err := json.Unmarshal(raw, &row); err != nil {
			a.logger.WithFields(logrus.Fields{"category": category, "row": i}).WithError(err).Warn("skipping malformed catalog row")
			continue
		}
		p, ok := Normalize(row, index, a.cfg)
		if !ok {
			continue
		}
		index++
		if !MatchesTransactionType(p, filter.TransactionType) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (a *SheetAdapter) fetchRows(ctx context.Context) ([]json.RawMessage, error) {
	doc, err := a.fetcher.Fetch(ctx, a.url)
	if err != nil {
		return nil, err
	}
	defer doc.Body.Close()

	body, err := io.ReadAll(io.LimitReader(doc.Body, maxSheetBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	var payload SheetPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("catalog body is not JSON (content-type %q): %w", doc.ContentType, err)
	}
	return payload.Data, nil
}

// MatchesTransactionType applies the keyword-derived transaction filter.
// Unknown (or empty) matches everything.
func MatchesTransactionType(p models.Property, tt models.TransactionType) bool {
	if tt == "" || tt == models.TransactionUnknown {
		return true
	}
	return p.TransactionType == tt
}
