// Package collyfetcher implements the rate-limited upstream Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/onbid-case-resolver/internal/auction"
	"github.com/JakeFAU/onbid-case-resolver/internal/metrics"
)

const (
	defaultStrictTimeout  = 5 * time.Second
	defaultRelaxedTimeout = 7 * time.Second
	defaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// captchaIndicators are matched case-insensitively against every body.
var captchaIndicators = []string{
	"captcha",
	"recaptcha",
	"cloudflare",
	"보안문자",
	"자동차단",
	"access denied",
	"please verify",
	"security check",
}

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	Referer        string
	Strict         bool
	StrictTimeout  time.Duration
	RelaxedTimeout time.Duration
	// Headers are added to every request.
	Headers http.Header
}

// TurnTaker spaces outbound requests.
type TurnTaker interface {
	AwaitTurn(ctx context.Context) error
}

// RetryPolicy decides whether a transport failure is retried.
type RetryPolicy interface {
	MaxAttempts() int
	ShouldRetry(err error, attempt int) bool
	Backoff() time.Duration
}

// Fetcher implements auction.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	limiter       TurnTaker
	retry         RetryPolicy
	transport     http.RoundTripper
	baseCollector *colly.Collector
	logger        *zap.Logger
	sleep         func(ctx context.Context, d time.Duration) error
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// attemptResult is one raw HTTP exchange.
type attemptResult struct {
	url         string
	status      int
	body        []byte
	contentType string
}

// New builds a Fetcher.
func New(cfg Config, limiter TurnTaker, retry RetryPolicy, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	c.DetectCharset = true

	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		limiter:       limiter,
		retry:         retry,
		transport:     transport,
		baseCollector: c,
		logger:        logger.Named("fetcher"),
		sleep:         sleepCtx,
	}
}

// Timeout returns the per-attempt timeout for the configured mode.
func (f *Fetcher) Timeout() time.Duration {
	if f.cfg.Strict {
		if f.cfg.StrictTimeout > 0 {
			return f.cfg.StrictTimeout
		}
		return defaultStrictTimeout
	}
	if f.cfg.RelaxedTimeout > 0 {
		return f.cfg.RelaxedTimeout
	}
	return defaultRelaxedTimeout
}

// Fetch performs one logical GET. Every failure is reported in the outcome.
func (f *Fetcher) Fetch(ctx context.Context, url string) auction.FetchOutcome {
	res, err := f.do(ctx, url)
	if err != nil {
		code := auction.ErrUnknown
		if isTimeout(err) {
			code = auction.ErrTimeout
		}
		metrics.ObserveFetchAttempt(string(code))
		f.logger.Warn("fetch failed", zap.String("url", url), zap.String("error_code", string(code)), zap.Error(err))
		return auction.FetchOutcome{URL: url, Err: code}
	}

	out := classify(res)
	if out.OK() {
		metrics.ObserveFetchAttempt("ok")
		f.logger.Debug("fetched", zap.String("url", out.URL), zap.Int("bytes", len(out.Body)))
	} else {
		metrics.ObserveFetchAttempt(string(out.Err))
		f.logger.Info("upstream rejected request",
			zap.String("url", out.URL),
			zap.Int("status", out.Status),
			zap.String("error_code", string(out.Err)),
		)
	}
	return out
}

// Download retrieves a binary resource through the same rate limit and
// retry discipline. Only a 200 response counts as success.
func (f *Fetcher) Download(ctx context.Context, url string) ([]byte, string, error) {
	res, err := f.do(ctx, url)
	if err != nil {
		return nil, "", err
	}
	if res.status != http.StatusOK {
		return nil, "", fmt.Errorf("download %s: unexpected status %d", url, res.status)
	}
	return res.body, res.contentType, nil
}

// classify maps one exchange to an outcome. 403 wins over body inspection,
// and blocking markers win over every other status.
func classify(res attemptResult) auction.FetchOutcome {
	out := auction.FetchOutcome{URL: res.url, Status: res.status}
	body := string(res.body)
	switch {
	case res.status == http.StatusForbidden:
		out.Err = auction.ErrRemoteHTTP403
	case containsCaptcha(body):
		out.Err = auction.ErrCaptchaDetected
	case res.status == http.StatusOK:
		out.Body = body
	default:
		out.Err = auction.RemoteHTTPCode(res.status)
	}
	return out
}

func containsCaptcha(body string) bool {
	lower := strings.ToLower(body)
	for _, indicator := range captchaIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// do runs the attempt loop. Only transport failures are retried; any HTTP
// response ends the loop.
func (f *Fetcher) do(ctx context.Context, url string) (attemptResult, error) {
	maxAttempts := 1
	if f.retry != nil {
		maxAttempts = f.retry.MaxAttempts()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.AwaitTurn(ctx); err != nil {
				return attemptResult{}, err
			}
		}

		res, err := f.attempt(ctx, url)
		if err == nil {
			return res, nil
		}
		lastErr = err
		metrics.ObserveFetchAttempt("transport_error")
		f.logger.Debug("attempt failed", zap.String("url", url), zap.Int("attempt", attempt), zap.Error(err))

		if f.retry == nil || !f.retry.ShouldRetry(err, attempt) {
			break
		}
		if err := f.sleep(ctx, f.retry.Backoff()); err != nil {
			return attemptResult{}, err
		}
	}
	return attemptResult{}, lastErr
}

func (f *Fetcher) attempt(ctx context.Context, url string) (attemptResult, error) {
	var (
		result   attemptResult
		fetchErr error
	)
	collector := f.buildCollector(&result, &fetchErr)
	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return attemptResult{}, err
	}
	if result.url == "" {
		result.url = url
	}
	return result, nil
}

func (f *Fetcher) buildCollector(result *attemptResult, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = true
	collector.UserAgent = f.cfg.UserAgent
	if collector.UserAgent == "" {
		collector.UserAgent = defaultUserAgent
	}
	collector.SetRequestTimeout(f.Timeout())
	transport := f.transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	collector.WithTransport(transport)

	f.configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *attemptResult, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		f.applyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		contentType := ""
		if r.Headers != nil {
			contentType = r.Headers.Get("Content-Type")
		}
		*result = attemptResult{
			url:         r.Request.URL.String(),
			status:      r.StatusCode,
			body:        append([]byte(nil), r.Body...),
			contentType: contentType,
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		// Status responses are surfaced through OnResponse; keep only
		// failures that never produced one.
		if r != nil && r.StatusCode != 0 {
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func (f *Fetcher) applyHeaders(r *colly.Request) {
	r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	r.Headers.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
	if f.cfg.Referer != "" {
		r.Headers.Set("Referer", f.cfg.Referer)
	}
	for key, values := range f.cfg.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry backoff: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
	}
}
