// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsletter-crawler/internal/crawler"
	"github.com/JakeFAU/newsletter-crawler/internal/metrics"
)

// maxRedirects matches net/http's default; a longer chain is a transport failure.
const maxRedirects = 10

var errTooManyRedirects = fmt.Errorf("stopped after %d redirects", maxRedirects)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	Timeout       time.Duration
	MaxBodyBytes  int
	Interactive   bool
	AutoBlocklist bool
}

// HostBlocker records hosts that answered 403.
type HostBlocker interface {
	AddHost(rawURL string) (string, bool, error)
}

// Waiter spaces out requests to the same host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger used for per-request timing.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// WithPrompter sets the terminal prompter used in interactive mode.
func WithPrompter(p crawler.Prompter) Option {
	return func(f *Fetcher) { f.prompter = p }
}

// WithBlocklist sets the list that receives hosts answering 403.
func WithBlocklist(b HostBlocker) Option {
	return func(f *Fetcher) { f.blocklist = b }
}

// WithLimiter sets a per-host politeness limiter.
func WithLimiter(w Waiter) Option {
	return func(f *Fetcher) { f.limiter = w }
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	counters      *crawler.Counters
	transport     http.RoundTripper
	baseCollector *colly.Collector
	logger        *zap.Logger
	prompter      crawler.Prompter
	blocklist     HostBlocker
	limiter       Waiter
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher that records every attempt in counters.
func New(cfg Config, counters *crawler.Counters, opts ...Option) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	transport := newHTTPTransport()
	c.WithTransport(transport)

	if counters == nil {
		counters = crawler.NewCounters()
	}
	f := &Fetcher{
		cfg:           cfg,
		counters:      counters,
		transport:     transport,
		baseCollector: c,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Counters returns the run counters this fetcher updates.
func (f *Fetcher) Counters() *crawler.Counters {
	return f.counters
}

// Fetch executes a single HTTP GET. Any HTTP status is a response; a transport
// failure returns an error wrapping crawler.ErrEmptyResponse.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.FetchResponse, error) {
	if f.cfg.Interactive && f.prompter != nil {
		ok, err := f.prompter.Confirm(ctx, fmt.Sprintf("ready to request '%s'?", url))
		if err != nil {
			return crawler.FetchResponse{}, fmt.Errorf("confirm request: %w", err)
		}
		if !ok {
			return crawler.FetchResponse{}, fmt.Errorf("request to %s declined: %w", url, crawler.ErrEmptyResponse)
		}
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, url); err != nil {
			return crawler.FetchResponse{}, err
		}
	}

	f.logger.Info("requesting", zap.String("url", url))
	f.counters.Attempt()
	start := time.Now()
	result, err := f.runCollector(ctx, url, start)
	took := time.Since(start)
	if err != nil {
		metrics.ObserveFetch(url, 0, 0, took)
		if ctx.Err() != nil {
			return crawler.FetchResponse{}, err
		}
		f.logger.Warn("request failed", zap.String("url", url), zap.Duration("took", took), zap.Error(err))
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w: %w", url, crawler.ErrEmptyResponse, err)
	}

	f.counters.Succeed()
	result.RequestedURL = url
	metrics.ObserveFetch(url, result.StatusCode, len(result.Body), took)
	f.logger.Info("request complete",
		zap.String("url", url),
		zap.String("final_url", result.URL),
		zap.Int("status", result.StatusCode),
		zap.Duration("took", took),
	)
	if result.StatusCode == http.StatusForbidden {
		f.blockForbidden(url)
	}
	return result, nil
}

func (f *Fetcher) blockForbidden(url string) {
	if !f.cfg.AutoBlocklist || f.blocklist == nil {
		return
	}
	host, added, err := f.blocklist.AddHost(url)
	if err != nil {
		f.logger.Warn("auto-blocklist failed", zap.String("url", url), zap.Error(err))
		return
	}
	if added {
		f.logger.Warn("host answered 403, added to blocklist", zap.String("host", host))
	}
}

func (f *Fetcher) buildCollector(start time.Time, result *crawler.FetchResponse, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.MaxBodySize = f.cfg.MaxBodyBytes
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	collector.SetRedirectHandler(func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return errTooManyRedirects
		}
		return nil
	})

	transport := f.transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	collector.WithTransport(transport)

	f.configureCollectorHooks(collector, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*result = crawler.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

type visitResult struct {
	resp crawler.FetchResponse
	err  error
}

// runCollector visits url on a fresh collector. The collector's callbacks only
// touch goroutine-local state, so an abandoned visit cannot leak into a later one.
func (f *Fetcher) runCollector(ctx context.Context, url string, start time.Time) (crawler.FetchResponse, error) {
	done := make(chan visitResult, 1)
	go func() {
		var (
			result   crawler.FetchResponse
			fetchErr error
		)
		collector := f.buildCollector(start, &result, &fetchErr)
		collector.Context = ctx
		err := collector.Visit(url)
		switch {
		case fetchErr != nil:
			err = fmt.Errorf("colly response failed: %w", fetchErr)
		case err != nil:
			err = fmt.Errorf("colly visit failed: %w", err)
		case result.StatusCode == 0:
			err = errors.New("no response received")
		}
		done <- visitResult{resp: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return crawler.FetchResponse{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case r := <-done:
		return r.resp, r.err
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
