package client

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/david/property-catalog/internal/catalog"
	"github.com/david/property-catalog/internal/models"
)

// DefaultDebounce is the quiet period after the last search keystroke.
const DefaultDebounce = 300 * time.Millisecond

// PageFetcher loads one page of the catalog. *HTTPClient implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, filter models.Filter) (catalog.Page, error)
}

// State is the coordinator's fetch state.
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
)

// Snapshot is what a view renders.
type Snapshot struct {
	Filter     models.Filter
	Items      []models.Property // loaded items after refinement and local sort
	Loaded     int               // items accumulated across pages, before refinement
	Total      int
	HasMore    bool
	State      State
	ServedFrom catalog.ServedFrom
	RequestID  uint64
	Pending    bool // a debounced search is waiting to fire
	Err        error
}

// Options configures a Coordinator.
type Options struct {
	Debounce time.Duration
	PageSize int
	// Timeout bounds each fetch. Zero means no bound beyond Close.
	Timeout time.Duration
	// OnChange is called, outside the lock, after every state change.
	OnChange func(Snapshot)
}

// Coordinator owns the browsing filter and the accumulated result list.
//
// Every fetch gets the next request id; a response is applied only if its id
// is still the latest, so a filter change always wins over an older fetch.
// Load-more and refresh are dropped while a fetch is in flight.
type Coordinator struct {
	fetcher  PageFetcher
	debounce time.Duration
	pageSize int
	timeout  time.Duration
	onChange func(Snapshot)
	logger   *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	filter     models.Filter
	items      []models.Property
	total      int
	hasMore    bool
	servedFrom catalog.ServedFrom
	state      State
	err        error
	latestID   uint64
	timer      *time.Timer
	timerGen   uint64
	refinement Refinement
	priceOrder PriceOrder
}

// NewCoordinator creates an idle coordinator for the default ALL query.
// Nothing is fetched until an action or Refresh.
func NewCoordinator(fetcher PageFetcher, opts Options, logger *logrus.Logger) *Coordinator {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.PageSize <= 0 {
		opts.PageSize = models.DefaultLimit
	}
	if opts.PageSize > models.MaxLimit {
		opts.PageSize = models.MaxLimit
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		fetcher:  fetcher,
		debounce: opts.Debounce,
		pageSize: opts.PageSize,
		timeout:  opts.Timeout,
		onChange: opts.OnChange,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		filter:   models.Filter{Category: models.CategoryAll, TransactionType: models.TransactionUnknown, Limit: opts.PageSize},
		state:    StateIdle,
	}
}

// SetSearch records the search text and (re)starts the debounce timer.
// Only the last edit within the window issues a fetch.
func (c *Coordinator) SetSearch(text string) {
	c.mu.Lock()
	c.filter.Search = text
	c.stopTimerLocked()
	gen := c.timerGen
	c.timer = time.AfterFunc(c.debounce, func() { c.fireDebounced(gen) })
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
}

func (c *Coordinator) fireDebounced(gen uint64) {
	c.mu.Lock()
	if gen != c.timerGen || c.ctx.Err() != nil {
		// Superseded by a newer keystroke or an immediate action
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.timerGen++
	snap := c.startFetchLocked(true)
	c.mu.Unlock()
	c.notify(snap)
}

// SetCategory switches the category tab and fetches immediately.
func (c *Coordinator) SetCategory(category models.Category) {
	c.immediate(func(f *models.Filter) { f.Category = category })
}

// SetTransactionType switches buy/lease and fetches immediately.
func (c *Coordinator) SetTransactionType(tt models.TransactionType) {
	c.immediate(func(f *models.Filter) { f.TransactionType = tt })
}

// SetLocation selects a location and fetches immediately.
func (c *Coordinator) SetLocation(location string) {
	c.immediate(func(f *models.Filter) { f.Location = location })
}

// SetSort changes the server-side sort key and fetches immediately.
func (c *Coordinator) SetSort(sortKey string) {
	c.immediate(func(f *models.Filter) { f.Sort = sortKey })
}

// ApplyFilter replaces the whole filter and fetches immediately. Limit and
// offset are owned by the coordinator and ignored.
func (c *Coordinator) ApplyFilter(filter models.Filter) {
	c.immediate(func(f *models.Filter) { *f = filter })
}

func (c *Coordinator) immediate(change func(*models.Filter)) {
	c.mu.Lock()
	c.stopTimerLocked()
	change(&c.filter)
	snap := c.startFetchLocked(true)
	c.mu.Unlock()
	c.notify(snap)
}

// Refresh refetches the first page of the current filter. It is dropped,
// returning false, while a fetch is in flight.
func (c *Coordinator) Refresh() bool {
	c.mu.Lock()
	if c.state == StateFetching {
		c.mu.Unlock()
		return false
	}
	c.stopTimerLocked()
	snap := c.startFetchLocked(true)
	c.mu.Unlock()
	c.notify(snap)
	return true
}

// LoadMore fetches the next page at offset = items loaded so far and appends
// it. It returns false when dropped: a fetch is in flight, a debounced search
// is pending (the loaded items belong to the previous query), or nothing is left.
func (c *Coordinator) LoadMore() bool {
	c.mu.Lock()
	if c.state == StateFetching || c.timer != nil || !c.hasMore {
		c.mu.Unlock()
		return false
	}
	snap := c.startFetchLocked(false)
	c.mu.Unlock()
	c.notify(snap)
	return true
}

// SetRefinement changes the local refinement. No request is made.
func (c *Coordinator) SetRefinement(r Refinement) {
	c.mu.Lock()
	c.refinement = r
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
}

// SetPriceOrder changes the local price sort. No request is made.
func (c *Coordinator) SetPriceOrder(order PriceOrder) {
	c.mu.Lock()
	c.priceOrder = order
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
}

// Snapshot returns the current view state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Wait blocks until every fetch started so far has completed.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close cancels pending work. In-flight responses are discarded.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.stopTimerLocked()
	c.latestID++
	c.state = StateIdle
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	// A timer that already fired but has not taken the lock yet sees the new generation
	c.timerGen++
}

// startFetchLocked issues a request for the current filter. reset starts a
// new result list at offset 0; otherwise the page is appended.
func (c *Coordinator) startFetchLocked(reset bool) Snapshot {
	if reset {
		c.items = nil
		c.total = 0
		c.hasMore = false
	}
	c.latestID++
	id := c.latestID
	c.state = StateFetching
	c.err = nil

	f := c.filter
	f.Limit = c.pageSize
	f.Offset = len(c.items)

	c.wg.Add(1)
	go c.run(id, f, reset)
	return c.snapshotLocked()
}

func (c *Coordinator) run(id uint64, f models.Filter, reset bool) {
	defer c.wg.Done()

	ctx := c.ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	page, err := c.fetcher.FetchPage(ctx, f)

	c.mu.Lock()
	if id != c.latestID {
		c.mu.Unlock()
		c.logger.WithFields(logrus.Fields{"request_id": id, "latest": c.latestIDSafe()}).Debug("discarding stale response")
		return
	}
	c.state = StateIdle
	if err != nil {
		c.err = err
		c.logger.WithFields(logrus.Fields{"request_id": id, "offset": f.Offset}).WithError(err).Warn("catalog fetch failed")
	} else {
		if reset {
			c.items = append([]models.Property(nil), page.Items...)
		} else {
			c.items = append(c.items, page.Items...)
		}
		c.total = page.Total
		c.hasMore = page.HasMore
		c.servedFrom = page.ServedFrom
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
}

func (c *Coordinator) latestIDSafe() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latestID
}

func (c *Coordinator) snapshotLocked() Snapshot {
	items := c.refinement.Apply(c.items)
	SortByPrice(items, c.priceOrder)
	return Snapshot{
		Filter:     c.filter,
		Items:      items,
		Loaded:     len(c.items),
		Total:      c.total,
		HasMore:    c.hasMore,
		State:      c.state,
		ServedFrom: c.servedFrom,
		RequestID:  c.latestID,
		Pending:    c.timer != nil,
		Err:        c.err,
	}
}

func (c *Coordinator) notify(s Snapshot) {
	if c.onChange != nil {
		c.onChange(s)
	}
}
