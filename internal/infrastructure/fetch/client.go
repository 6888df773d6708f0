package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/winemarket/backend/internal/domain"
	"github.com/winemarket/backend/internal/infrastructure/cache"
)

const (
	DefaultUserAgent      = "WinemarketOfferBot/1.0 (+https://winemarket.example/bot; price comparison)"
	DefaultAcceptLanguage = "en-US,en;q=0.9,nb;q=0.8,fr;q=0.7"
	DefaultAccept         = "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8"
	DefaultTimeout        = 10 * time.Second
	DefaultMaxRetries     = 2
	DefaultCacheTTL       = 5 * time.Minute
	DefaultBackoffBase    = 1000 * time.Millisecond
	DefaultBackoffMax     = 10000 * time.Millisecond

	maxBodyBytes = 5 << 20
	snippetLimit = 2000
)

// Options tune a single fetch. Zero values fall back to client defaults;
// a negative Retries disables retrying.
type Options struct {
	Timeout time.Duration
	Retries int
}

// Response is a completed HTTP exchange. OK is false for non-2xx statuses.
type Response struct {
	OK          bool
	Status      int
	Text        string
	URL         string // final URL after redirects
	ContentType string
	BotBlocked  bool
}

// Config holds client construction parameters
type Config struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
	MaxRetries     int
	CacheTTL       time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

// Client performs polite GET requests: per-attempt timeouts, bounded retries with
// capped exponential backoff, a per-URL TTL cache and an optional diagnostic recorder.
type Client struct {
	httpClient     *http.Client
	userAgent      string
	acceptLanguage string
	timeout        time.Duration
	maxRetries     int
	backoffBase    time.Duration
	backoffMax     time.Duration
	cacheTTL       time.Duration
	cache          *cache.MemoryCache[*Response]
	logger         *zap.Logger

	recorderMu sync.Mutex
	recorder   domain.FetchRecorder
}

// NewClient creates a fetch client. The underlying http.Client has no cookie jar
// and follows redirects.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	acceptLanguage := cfg.AcceptLanguage
	if acceptLanguage == "" {
		acceptLanguage = DefaultAcceptLanguage
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = DefaultBackoffBase
	}
	backoffMax := cfg.BackoffMax
	if backoffMax <= 0 {
		backoffMax = DefaultBackoffMax
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		httpClient:     httpClient,
		userAgent:      userAgent,
		acceptLanguage: acceptLanguage,
		timeout:        timeout,
		maxRetries:     maxRetries,
		backoffBase:    backoffBase,
		backoffMax:     backoffMax,
		cacheTTL:       cacheTTL,
		cache:          cache.NewMemoryCache[*Response](cacheTTL),
		logger:         logger.Named("fetch"),
	}
}

// Fetch GETs rawURL, retrying only on timeouts and connection resets.
// Other transport errors are returned immediately. HTTP error statuses are
// completed exchanges and never retried.
func (c *Client) Fetch(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	retries := c.maxRetries
	switch {
	case opts.Retries < 0:
		retries = 0
	case opts.Retries > 0:
		retries = opts.Retries
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		resp, err := c.do(ctx, rawURL, timeout)
		if err == nil {
			c.record(rawURL, resp)
			c.logger.Debug("fetched",
				zap.String("url", rawURL),
				zap.Int("status", resp.Status),
				zap.Int("bytes", len(resp.Text)),
				zap.Bool("bot_blocked", resp.BotBlocked),
			)
			return resp, nil
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %s: %w", rawURL, ctx.Err())
		}
		if !isRetryable(err) {
			return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
		}
		lastErr = err

		if attempt == retries {
			break
		}

		delay := c.backoff(attempt)
		c.logger.Warn("retryable fetch error",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", retries+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
		}
	}

	return nil, fmt.Errorf("fetch %s: failed after %d attempts: %w", rawURL, retries+1, lastErr)
}

// FetchCached serves successful responses from the per-URL cache and fetches on miss
func (c *Client) FetchCached(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	if cached, ok := c.cache.Get(rawURL); ok {
		return cached, nil
	}

	resp, err := c.Fetch(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	if resp.OK {
		c.cache.Set(rawURL, resp, c.cacheTTL)
	}
	return resp, nil
}

// ClearCache drops every cached response
func (c *Client) ClearCache() {
	c.cache.Clear()
}

// Close stops the response cache's background sweep
func (c *Client) Close() error {
	c.cache.Close()
	return nil
}

// CacheSize reports the number of cached responses
func (c *Client) CacheSize() int {
	return c.cache.Size()
}

// InstallRecorder sets the diagnostic recorder. The returned release func clears it
// and is safe to call more than once. Only one recorder may be installed at a time.
func (c *Client) InstallRecorder(rec domain.FetchRecorder) (func(), error) {
	c.recorderMu.Lock()
	defer c.recorderMu.Unlock()

	if c.recorder != nil {
		return nil, domain.ErrRecorderBusy
	}
	c.recorder = rec

	var once sync.Once
	release := func() {
		once.Do(func() {
			c.recorderMu.Lock()
			c.recorder = nil
			c.recorderMu.Unlock()
		})
	}
	return release, nil
}

func (c *Client) record(reqURL string, resp *Response) {
	c.recorderMu.Lock()
	rec := c.recorder
	c.recorderMu.Unlock()

	if rec == nil {
		return
	}
	rec(domain.FetchRecord{
		RequestURL:  reqURL,
		Status:      resp.Status,
		ContentType: resp.ContentType,
		FinalURL:    resp.URL,
		ByteLength:  len(resp.Text),
		Snippet:     truncate(resp.Text, snippetLimit),
		BotBlocked:  resp.BotBlocked,
		FetchedAt:   time.Now(),
	})
}

// do executes one attempt bounded by timeout
func (c *Client) do(ctx context.Context, rawURL string, timeout time.Duration) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", DefaultAccept)
	req.Header.Set("Accept-Language", c.acceptLanguage)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	text := string(body)
	return &Response{
		OK:          resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:      resp.StatusCode,
		Text:        text,
		URL:         finalURL,
		ContentType: resp.Header.Get("Content-Type"),
		BotBlocked:  DetectBotBlock(text),
	}, nil
}

// backoff returns min(base·2^attempt, max)
func (c *Client) backoff(attempt int) time.Duration {
	d := c.backoffBase << attempt
	if d <= 0 || d > c.backoffMax {
		d = c.backoffMax
	}
	return d
}

// isRetryable reports timeouts, aborted attempts and connection resets
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
