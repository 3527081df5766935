package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/david/property-catalog/internal/models"
)

// DefaultWarmSchedule refreshes the landing query a little more often than the default TTL.
const DefaultWarmSchedule = "@every 4m"

// Warmer keeps the cache populated on a cron schedule so the common queries
// are served from cache and always have a stale copy to fall back on.
type Warmer struct {
	cron      *cron.Cron
	cache     *Cache
	schedule  string
	filters   []models.Filter
	timeout   time.Duration
	logger    *logrus.Logger
	mu        sync.Mutex
	isRunning bool
}

// NewWarmer creates a warmer. With no filters it warms the default ALL query.
func NewWarmer(cache *Cache, schedule string, filters []models.Filter, logger *logrus.Logger) *Warmer {
	if schedule == "" {
		schedule = DefaultWarmSchedule
	}
	if len(filters) == 0 {
		filters = []models.Filter{{Category: models.CategoryAll}}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Warmer{
		cron:     cron.New(),
		cache:    cache,
		schedule: schedule,
		filters:  filters,
		timeout:  2 * time.Minute,
		logger:   logger,
	}
}

// Start registers the job and starts the scheduler.
func (w *Warmer) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return nil
	}

	if _, err := w.cron.AddFunc(w.schedule, func() { w.Run(context.Background()) }); err != nil {
		return err
	}

	w.cron.Start()
	w.isRunning = true
	w.logger.WithFields(logrus.Fields{
		"schedule": w.schedule,
		"filters":  len(w.filters),
	}).Info("cache warmer started")
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (w *Warmer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		<-w.cron.Stop().Done()
		w.isRunning = false
		w.logger.Info("cache warmer stopped")
	}
}

// Run warms every configured filter once.
func (w *Warmer) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	err := w.cache.Warm(ctx, w.filters...)
	entry := w.logger.WithFields(logrus.Fields{
		"filters": len(w.filters),
		"elapsed": time.Since(start).Round(time.Millisecond).String(),
	})
	if err != nil {
		entry.WithError(err).Warn("cache warm failed")
		return err
	}
	entry.Info("cache warmed")
	return nil
}
