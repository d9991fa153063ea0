package scraper

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// FetcherConfig controls page fetch behavior.
type FetcherConfig struct {
	UserAgent string
	// Timeout bounds each individual attempt.
	Timeout time.Duration
	// MaxAttempts is the total number of attempts before giving up.
	MaxAttempts int
	// RetryDelay is the fixed wait between attempts. Deliberately not
	// exponential: the interval is an operator-configured politeness knob.
	RetryDelay time.Duration
}

// PageFetcher fetches single pages through a Colly collector, one collector
// clone per attempt so retries are never blocked by visit deduplication.
type PageFetcher struct {
	cfg       FetcherConfig
	base      *colly.Collector
	transport http.RoundTripper
	logger    *zap.Logger
}

// NewPageFetcher builds a PageFetcher.
func NewPageFetcher(cfg FetcherConfig, logger *zap.Logger) *PageFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	base := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	base.IgnoreRobotsTxt = true
	transport := newHTTPTransport()
	base.WithTransport(transport)
	return &PageFetcher{
		cfg:       cfg,
		base:      base,
		transport: transport,
		logger:    logger,
	}
}

// Fetch retrieves url, retrying up to MaxAttempts with a fixed delay between
// attempts. Each attempt has an independent timeout. After the final failure
// it returns a *FetchError carrying the last cause.
func (f *PageFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		body, err := f.fetchOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, &FetchError{URL: url, Attempts: attempt, Err: ctx.Err()}
		}
		if attempt >= f.cfg.MaxAttempts {
			return nil, &FetchError{URL: url, Attempts: attempt, Err: lastErr}
		}
		f.logger.Warn("fetch attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if err := sleepCtx(ctx, f.cfg.RetryDelay); err != nil {
			return nil, &FetchError{URL: url, Attempts: attempt, Err: err}
		}
	}
}

func (f *PageFetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.WithTransport(f.transport)

	var (
		body     []byte
		status   int
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		switch {
		case err != nil:
			return nil, fmt.Errorf("visit %s: %w", url, err)
		case fetchErr != nil:
			return nil, fmt.Errorf("response %s (status %d): %w", url, status, fetchErr)
		case status < 200 || status >= 300:
			return nil, fmt.Errorf("unexpected status %d for %s", status, url)
		default:
			return body, nil
		}
	}
}

// sleepCtx waits for d or until ctx is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
