package ingest

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var blockedPrefixStrings = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

var blockedPrefixes = func() []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(blockedPrefixStrings))
	for _, s := range blockedPrefixStrings {
		if p, err := netip.ParsePrefix(s); err == nil {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}()

const userAgent = "property-catalog/1.0 (+catalog-aggregator)"

// RateLimitedFetcher provides rate limiting, retries, and configurable timeouts per domain
type RateLimitedFetcher struct {
	clients       map[string]*http.Client  // per domain
	limiters      map[string]*rate.Limiter // per domain
	defaultConfig FetchConfig
	mu            sync.RWMutex

	// AllowPrivateHosts disables the private-address dial guard. Needed when
	// the Catalog Source runs inside the same network.
	AllowPrivateHosts bool
}

// NewRateLimitedFetcher creates a new rate-limited fetcher with default config
func NewRateLimitedFetcher(defaultConfig FetchConfig) *RateLimitedFetcher {
	if defaultConfig.TimeoutSeconds == 0 {
		defaultConfig.TimeoutSeconds = 30
	}
	if defaultConfig.MaxRetries == 0 {
		defaultConfig.MaxRetries = 3
	}
	if defaultConfig.RateLimitRPS == 0 {
		defaultConfig.RateLimitRPS = 1.0
	}
	if defaultConfig.AcceptLanguage == "" {
		defaultConfig.AcceptLanguage = "en-IN,en;q=0.8"
	}

	return &RateLimitedFetcher{
		clients:       make(map[string]*http.Client),
		limiters:      make(map[string]*rate.Limiter),
		defaultConfig: defaultConfig,
	}
}

// getDomain extracts the domain from a URL
func getDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", rawURL)
	}
	return u.Host, nil
}

// getClient returns or creates an HTTP client and limiter for a domain
func (f *RateLimitedFetcher) getClient(domain string) (*http.Client, *rate.Limiter) {
	f.mu.RLock()
	client, exists := f.clients[domain]
	limiter := f.limiters[domain]
	f.mu.RUnlock()

	if exists {
		return client, limiter
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Double-check after acquiring write lock
	if client, exists := f.clients[domain]; exists {
		return client, f.limiters[domain]
	}

	config := f.defaultConfig
	timeout := time.Duration(config.TimeoutSeconds) * time.Second

	dial := safeDialContext
	if f.AllowPrivateHosts {
		dial = (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dial,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if config.ProxyURL != "" {
		proxyURL, err := url.Parse(config.ProxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	client = &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
	if !f.AllowPrivateHosts {
		client.CheckRedirect = safeCheckRedirect
	}

	// Burst of one request per parallel fan-out slot keeps ALL queries from
	// serializing behind the limiter.
	limiter = rate.NewLimiter(rate.Limit(config.RateLimitRPS), 8)

	f.clients[domain] = client
	f.limiters[domain] = limiter
	return client, limiter
}

// safeDialContext wraps the default dialer to block private IPs
func safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if isPrivateIP(ip.IP) {
			return nil, fmt.Errorf("blocked private IP: %s", ip.IP)
		}
	}

	return d.DialContext(ctx, network, addr)
}

// isPrivateIP checks if an IP is in a private range or loopback/link-local
func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsLinkLocalMulticast() || ip.IsLinkLocalUnicast() || ip.IsMulticast() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}

	if addr, ok := netip.AddrFromSlice(ip); ok {
		for _, prefix := range blockedPrefixes {
			if prefix.Contains(addr.Unmap()) {
				return true
			}
		}
	}
	return false
}

// safeCheckRedirect limits redirects and validates destinations
func safeCheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	if req.URL == nil {
		return fmt.Errorf("invalid redirect URL")
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("redirect scheme blocked")
	}

	host := req.URL.Hostname()
	if host == "" {
		return fmt.Errorf("redirect host missing")
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".local") {
		return fmt.Errorf("redirect to internal host blocked")
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return err
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("redirect to private IP blocked: %s", ip)
		}
	}
	return nil
}

// shouldRetry determines if an error or status code should trigger a retry
func shouldRetry(err error, statusCode int) bool {
	if err != nil {
		if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
			return true
		}
		return false
	}

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Fetch implements the Fetcher interface with rate limiting and retries.
// Non-success statuses come back as *StatusError so callers can tell a
// missing sheet (404) apart from an outage.
func (f *RateLimitedFetcher) Fetch(ctx context.Context, rawURL string) (*FetchedDocument, error) {
	domain, err := getDomain(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	client, limiter := f.getClient(domain)
	config := f.defaultConfig

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 0.5s, 1s, 2s + jitter
			backoff := time.Duration(500*(1<<uint(attempt-1))) * time.Millisecond
			jitter := time.Duration(rand.Intn(100)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}

		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Accept-Language", config.AcceptLanguage)
		req.Header.Set("Cache-Control", "no-cache")

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			if shouldRetry(err, 0) {
				continue
			}
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return &FetchedDocument{
				URL:         rawURL,
				StatusCode:  resp.StatusCode,
				ContentType: resp.Header.Get("Content-Type"),
				Body:        resp.Body,
				FetchedAt:   time.Now(),
				Headers:     resp.Header,
			}, nil
		}

		resp.Body.Close()
		lastErr = &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
		if !shouldRetry(nil, resp.StatusCode) {
			return nil, lastErr
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// NewFetcher builds the fetcher named by kind ("http" or "colly") for the
// Catalog Source. The private-address guard only exists on the http fetcher.
func NewFetcher(kind string, cfg FetchConfig, allowPrivateHosts bool, logger *logrus.Logger) (Fetcher, error) {
	switch kind {
	case "", "http":
		f := NewRateLimitedFetcher(cfg)
		f.AllowPrivateHosts = allowPrivateHosts
		return f, nil
	case "colly":
		return NewCollyFetcher(cfg, logger), nil
	}
	return nil, fmt.Errorf("unknown fetcher %q", kind)
}
