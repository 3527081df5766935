package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/david/property-catalog/internal/ingest"
	"github.com/david/property-catalog/internal/models"
)

const defaultParallelism = 5

// PartialAggregationWarning lists the categories left out of an ALL query
// because their adapters failed. It is reported alongside a successful result.
type PartialAggregationWarning struct {
	Failed []models.Category
	Errors map[models.Category]error
}

func (w *PartialAggregationWarning) String() string {
	names := make([]string, 0, len(w.Failed))
	for _, c := range w.Failed {
		names = append(names, string(c))
	}
	return "partial aggregation, failed categories: " + strings.Join(names, ", ")
}

// Result is a filtered, sorted result set. Items is the page when it comes
// from Query and the whole set when it comes from Collect.
type Result struct {
	Items   []models.Property
	Total   int
	Warning *PartialAggregationWarning
}

// Aggregator fans a filter out over the category adapters and merges the results.
type Aggregator struct {
	adapters    map[models.Category]ingest.Adapter
	order       []models.Category
	Parallelism int
	logger      *logrus.Logger
}

// NewAggregator registers the adapters in the order given. A later adapter for
// the same category replaces an earlier one.
func NewAggregator(adapters []ingest.Adapter, logger *logrus.Logger) *Aggregator {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	a := &Aggregator{
		adapters:    make(map[models.Category]ingest.Adapter, len(adapters)),
		Parallelism: defaultParallelism,
		logger:      logger,
	}
	for _, ad := range adapters {
		if _, exists := a.adapters[ad.Category()]; !exists {
			a.order = append(a.order, ad.Category())
		}
		a.adapters[ad.Category()] = ad
	}
	return a
}

// Categories returns the registered categories in registration order.
func (a *Aggregator) Categories() []models.Category {
	return append([]models.Category(nil), a.order...)
}

// Query runs Collect and slices the requested page.
func (a *Aggregator) Query(ctx context.Context, filter models.Filter) (Result, error) {
	f := filter.Normalized()
	res, err := a.Collect(ctx, f)
	if err != nil {
		return Result{}, err
	}
	res.Items = Paginate(res.Items, f.Limit, f.Offset)
	return res, nil
}

// Collect fetches, merges, refines and sorts the whole result set for filter,
// ignoring limit and offset. Total is the post-filter count.
func (a *Aggregator) Collect(ctx context.Context, filter models.Filter) (Result, error) {
	f := filter.Normalized()
	if err := f.Validate(); err != nil {
		return Result{}, err
	}

	var (
		items   []models.Property
		warning *PartialAggregationWarning
	)
	if f.IsAll() {
		merged, w, err := a.fanOut(ctx, f)
		if err != nil {
			return Result{}, err
		}
		items, warning = merged, w
	} else {
		adapter, ok := a.adapters[f.Category]
		if !ok {
			return Result{}, &models.ValidationError{Fields: []string{"category"}}
		}
		fetched, err := adapter.Fetch(ctx, f.Category, f)
		if err != nil {
			return Result{}, err
		}
		items = fetched
	}

	items = Refine(items, f)
	SortProperties(items, f.Sort)
	return Result{Items: items, Total: len(items), Warning: warning}, nil
}

// fanOut queries every adapter concurrently. Each goroutine writes only its own
// slot; the merge happens after all of them settle.
func (a *Aggregator) fanOut(ctx context.Context, f models.Filter) ([]models.Property, *PartialAggregationWarning, error) {
	if len(a.order) == 0 {
		return []models.Property{}, nil, nil
	}

	start := time.Now()
	results := make([][]models.Property, len(a.order))
	errs := make([]error, len(a.order))

	g := new(errgroup.Group)
	if a.Parallelism > 0 {
		g.SetLimit(a.Parallelism)
	}
	for i, category := range a.order {
		adapter := a.adapters[category]
		g.Go(func() error {
			items, err := adapter.Fetch(ctx, category, f)
			results[i] = items
			errs[i] = err
			// Failures are collected per slot so one category cannot cancel the rest
			return nil
		})
	}
	_ = g.Wait()

	var (
		merged  []models.Property
		warning *PartialAggregationWarning
	)
	for i, category := range a.order {
		if errs[i] != nil {
			if warning == nil {
				warning = &PartialAggregationWarning{Errors: make(map[models.Category]error)}
			}
			warning.Failed = append(warning.Failed, category)
			warning.Errors[category] = errs[i]
			continue
		}
		merged = append(merged, results[i]...)
	}

	if warning != nil && len(warning.Failed) == len(a.order) {
		a.logger.WithFields(logrus.Fields{
			"categories": len(a.order),
			"elapsed":    time.Since(start).String(),
		}).Error("every catalog source failed")
		return nil, nil, allFailed(warning)
	}
	if warning != nil {
		sort.Slice(warning.Failed, func(i, j int) bool { return warning.Failed[i] < warning.Failed[j] })
		for _, c := range warning.Failed {
			a.logger.WithFields(logrus.Fields{"category": c}).WithError(warning.Errors[c]).Warn("catalog source failed, omitting category")
		}
		a.logger.WithFields(logrus.Fields{
			"failed":    len(warning.Failed),
			"succeeded": len(a.order) - len(warning.Failed),
		}).Warn(warning.String())
	}

	if merged == nil {
		merged = []models.Property{}
	}
	return merged, warning, nil
}

// allFailed folds every adapter error into one UpstreamError for the ALL query.
func allFailed(w *PartialAggregationWarning) error {
	errs := make([]error, 0, len(w.Failed))
	for _, c := range w.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", c, w.Errors[c]))
	}
	return &ingest.UpstreamError{Category: models.CategoryAll, Err: errors.Join(errs...)}
}
