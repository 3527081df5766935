package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/david/property-catalog/internal/models"
)

// ServedFrom tells the caller where a page came from.
type ServedFrom string

const (
	ServedFresh ServedFrom = "fresh" // fetched from the Catalog Source for this request
	ServedCache ServedFrom = "cache" // unexpired entry
	ServedStale ServedFrom = "stale" // expired entry re-served because the refresh failed
)

const DefaultTTL = 5 * time.Minute

// Collector produces the full result set for a filter. *Aggregator implements it.
type Collector interface {
	Collect(ctx context.Context, filter models.Filter) (Result, error)
}

// Page is one window of a cached result set.
type Page struct {
	Items      []models.Property `json:"items"`
	Total      int               `json:"total"`
	Limit      int               `json:"limit"`
	Offset     int               `json:"offset"`
	HasMore    bool              `json:"hasMore"`
	ServedFrom ServedFrom        `json:"servedFrom"`
	FetchedAt  time.Time         `json:"fetchedAt"`
}

// Options configures a Cache.
type Options struct {
	TTL time.Duration
	// SingleFlight collapses concurrent refreshes of one key into one Collect call.
	SingleFlight bool
	// Now is the clock; tests replace it.
	Now func() time.Time
}

// Stats are counters since process start (or the last Purge for Entries).
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Stale   int64 `json:"stale"`
	Errors  int64 `json:"errors"`
	Entries int   `json:"entries"`
}

// Cache serves pages of aggregated results, refreshing expired entries and
// falling back to the expired copy when the refresh fails.
type Cache struct {
	source Collector
	store  Store
	ttl    time.Duration
	now    func() time.Time
	sf     bool
	group  singleflight.Group
	logger *logrus.Logger

	hits, misses, stale, errs atomic.Int64
}

// NewCache wires a collector to a store. A nil store gets a MemoryStore.
func NewCache(source Collector, store Store, opts Options, logger *logrus.Logger) *Cache {
	if store == nil {
		store = NewMemoryStore(0)
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Cache{
		source: source,
		store:  store,
		ttl:    opts.TTL,
		now:    opts.Now,
		sf:     opts.SingleFlight,
		logger: logger,
	}
}

// TTL returns the configured freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the requested page. Order of preference: an unexpired entry,
// a fresh collection, the expired entry (ServedStale), and finally the error.
func (c *Cache) Get(ctx context.Context, filter models.Filter) (Page, error) {
	f := filter.Normalized()
	if err := f.Validate(); err != nil {
		return Page{}, err
	}
	entry, from, err := c.entry(ctx, f)
	if err != nil {
		return Page{}, err
	}
	return pageOf(entry, f, from), nil
}

// Lookup finds one property by identity through the cached category query.
func (c *Cache) Lookup(ctx context.Context, category models.Category, id string) (models.Property, ServedFrom, error) {
	id = strings.TrimSpace(id)
	var fields []string
	if category == "" || category == models.CategoryAll {
		fields = append(fields, "category")
	}
	if id == "" {
		fields = append(fields, "id")
	}
	if len(fields) > 0 {
		return models.Property{}, "", &models.ValidationError{Fields: fields}
	}

	f := models.Filter{Category: category}.Normalized()
	entry, from, err := c.entry(ctx, f)
	if err != nil {
		return models.Property{}, "", err
	}
	for _, p := range entry.Items {
		if p.ID == id && p.Category == category {
			return p, from, nil
		}
	}
	return models.Property{}, from, fmt.Errorf("property %s/%s: %w", category, id, models.ErrNotFound)
}

// Warm refreshes each filter regardless of TTL. Failures leave the previous
// entry in place and are returned joined.
func (c *Cache) Warm(ctx context.Context, filters ...models.Filter) error {
	var errs []error
	for _, filter := range filters {
		f := filter.Normalized()
		if _, err := c.refresh(ctx, f.CacheKey(), f); err != nil {
			errs = append(errs, fmt.Errorf("warm %s: %w", f.Category, err))
		}
	}
	return errors.Join(errs...)
}

// Purge drops every entry, including the ones kept for stale fallback.
func (c *Cache) Purge(ctx context.Context) (int, error) {
	n, err := c.store.Purge(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	c.logger.WithField("entries", n).Info("catalog cache purged")
	return n, nil
}

func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	n, err := c.store.Len(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Stale:   c.stale.Load(),
		Errors:  c.errs.Load(),
		Entries: n,
	}, nil
}

func (c *Cache) entry(ctx context.Context, f models.Filter) (*Entry, ServedFrom, error) {
	key := f.CacheKey()
	log := c.logger.WithField("category", f.Category)

	cached, err := c.store.Get(ctx, key)
	if err != nil {
		// An unreadable store behaves like an empty one
		log.WithError(err).Warn("cache store read failed")
		cached = nil
	}
	if cached != nil && c.now().Sub(cached.FetchedAt) < c.ttl {
		c.hits.Add(1)
		return cached, ServedCache, nil
	}

	c.misses.Add(1)
	fresh, err := c.refresh(ctx, key, f)
	if err == nil {
		return fresh, ServedFresh, nil
	}
	if cached != nil {
		c.stale.Add(1)
		log.WithFields(logrus.Fields{
			"age": c.now().Sub(cached.FetchedAt).Round(time.Second).String(),
		}).WithError(err).Warn("catalog refresh failed, serving stale entry")
		return cached, ServedStale, nil
	}
	c.errs.Add(1)
	log.WithError(err).Error("catalog refresh failed with nothing cached")
	return nil, "", err
}

// refresh collects and stores a new entry for key.
func (c *Cache) refresh(ctx context.Context, key string, f models.Filter) (*Entry, error) {
	if !c.sf {
		return c.collect(ctx, key, f)
	}
	// The shared call must not die with the first caller's request
	shared := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.collect(shared, key, f)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

func (c *Cache) collect(ctx context.Context, key string, f models.Filter) (*Entry, error) {
	res, err := c.source.Collect(ctx, f)
	if err != nil {
		return nil, err
	}
	entry := &Entry{Items: res.Items, Total: res.Total, FetchedAt: c.now()}
	if entry.Items == nil {
		entry.Items = []models.Property{}
	}
	if err := c.store.Set(ctx, key, entry); err != nil {
		c.logger.WithField("category", f.Category).WithError(err).Warn("cache store write failed")
	}
	return entry, nil
}

func pageOf(e *Entry, f models.Filter, from ServedFrom) Page {
	items := Paginate(e.Items, f.Limit, f.Offset)
	return Page{
		Items:      items,
		Total:      e.Total,
		Limit:      f.Limit,
		Offset:     f.Offset,
		HasMore:    f.Offset+len(items) < e.Total,
		ServedFrom: from,
		FetchedAt:  e.FetchedAt,
	}
}
