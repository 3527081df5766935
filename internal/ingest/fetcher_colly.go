package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

// CollyFetcher implements the Fetcher interface on top of a Colly collector.
// It is the alternative to RateLimitedFetcher for sources fronted by
// throttling proxies, where Colly's per-domain LimitRule is easier to tune.
type CollyFetcher struct {
	UserAgent         string
	MaxRetries        int
	RequestTimeout    time.Duration
	DomainDelay       time.Duration
	RandomDelayFactor float64
	MaxBodySize       int // bytes, 0 = unlimited
	CacheDir          string
	ParallelThreads   int
	Logger            *logrus.Logger
}

// NewCollyFetcher creates a CollyFetcher from the source fetch config.
func NewCollyFetcher(cfg FetchConfig, logger *logrus.Logger) *CollyFetcher {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	f := &CollyFetcher{
		UserAgent:         userAgent,
		MaxRetries:        3,
		RequestTimeout:    30 * time.Second,
		DomainDelay:       200 * time.Millisecond,
		RandomDelayFactor: 0.5,
		MaxBodySize:       10 * 1024 * 1024, // 10MB
		ParallelThreads:   5, // one in-flight request per category
		Logger:            logger,
	}
	if cfg.MaxRetries > 0 {
		f.MaxRetries = cfg.MaxRetries
	}
	if cfg.TimeoutSeconds > 0 {
		f.RequestTimeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if cfg.RateLimitRPS > 0 {
		f.DomainDelay = time.Duration(float64(time.Second) / cfg.RateLimitRPS)
	}
	return f
}

// buildCollector creates a configured Colly collector bound to ctx.
func (f *CollyFetcher) buildCollector(ctx context.Context) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.UserAgent(f.UserAgent),
		colly.MaxBodySize(f.MaxBodySize),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	}
	if f.CacheDir != "" {
		opts = append(opts, colly.CacheDir(f.CacheDir))
	}

	c := colly.NewCollector(opts...)

	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: f.ParallelThreads,
		Delay:       f.DomainDelay,
		RandomDelay: time.Duration(float64(f.DomainDelay) * f.RandomDelayFactor),
	})
	c.SetRequestTimeout(f.RequestTimeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json")
		r.Headers.Set("Cache-Control", "no-cache")
	})

	return c
}

// Fetch implements the Fetcher interface, returning a FetchedDocument.
func (f *CollyFetcher) Fetch(ctx context.Context, targetURL string) (*FetchedDocument, error) {
	if _, err := url.Parse(targetURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	c := f.buildCollector(ctx)

	var result *FetchedDocument
	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		result = &FetchedDocument{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        io.NopCloser(bytes.NewReader(r.Body)),
			FetchedAt:   time.Now(),
			Headers:     map[string][]string(r.Headers.Clone()),
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		retries, _ := r.Request.Ctx.GetAny("retries").(int)
		if retries < f.MaxRetries && shouldRetry(err, r.StatusCode) && ctx.Err() == nil {
			r.Request.Ctx.Put("retries", retries+1)
			f.Logger.WithFields(logrus.Fields{
				"url":     r.Request.URL.String(),
				"attempt": retries + 1,
				"status":  r.StatusCode,
			}).WithError(err).Warn("colly fetch failed, retrying")
			select {
			case <-ctx.Done():
				fetchErr = ctx.Err()
				return
			case <-time.After(time.Duration(retries+1) * 500 * time.Millisecond):
			}
			if retryErr := r.Request.Retry(); retryErr != nil && result == nil && fetchErr == nil {
				fetchErr = retryErr
			}
			return
		}
		if r.StatusCode != 0 {
			fetchErr = &StatusError{URL: targetURL, StatusCode: r.StatusCode}
			return
		}
		fetchErr = fmt.Errorf("fetch failed after %d retries: %w", retries, err)
	})

	// Synchronous collector: Visit returns once every callback has run
	visitErr := c.Visit(targetURL)

	if result != nil {
		return result, nil
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if visitErr != nil {
		return nil, fmt.Errorf("visit failed: %w", visitErr)
	}
	return nil, fmt.Errorf("no response received for %s", targetURL)
}
