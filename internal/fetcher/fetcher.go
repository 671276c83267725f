package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/imagespider/imagespider/internal/model"
)

// errTooManyRedirects is installed as the CheckRedirect error so the
// redirect budget surfaces as a distinct classification.
var errTooManyRedirects = errors.New("stopped after too many redirects")

// OutcomeReporter receives the classification of every fetch. The
// politeness controller implements it; tests substitute recorders.
type OutcomeReporter interface {
	RecordOutcome(host string, outcome model.FetchOutcome)
}

// Options controls HTTP fetching behavior.
type Options struct {
	// UserAgent is the identification header. When empty and UserAgents
	// is non-empty, one identity is picked from the pool at construction.
	UserAgent string

	// UserAgents is an identity pool used when UserAgent is empty.
	UserAgents []string

	// HostHeaders carries extra headers per lowercase host, e.g. a
	// session cookie for an archive behind a login.
	HostHeaders map[string]map[string]string

	// Timeout bounds each request, including redirects and body read.
	Timeout time.Duration

	// MaxBodyBytes caps response bodies.
	MaxBodyBytes int64

	// MaxRedirects bounds the redirect chain per request.
	MaxRedirects int

	// RetryAttempts is the total attempt budget for transport failures.
	RetryAttempts int

	// RetryBackoff is the base for exponential backoff between attempts.
	RetryBackoff time.Duration

	// Transport, when set, is used as the egress round tripper. This is
	// the injection point for proxied or otherwise customized egress.
	Transport http.RoundTripper

	// ProxyURL routes egress through the given proxy when Transport is
	// not set.
	ProxyURL string
}

// Fetcher performs single resource retrievals: HTML pages and binary
// images alike. It is stateless with respect to its inputs and safe for
// concurrent use.
type Fetcher struct {
	client        *http.Client
	userAgent     string
	hostHeaders   map[string]map[string]string
	maxBodyBytes  int64
	retryAttempts int
	retryBackoff  time.Duration
	reporter      OutcomeReporter
}

// New constructs a Fetcher. The reporter receives every outcome before
// Fetch returns; a nil reporter disables reporting (tests only — the
// crawl always wires the politeness controller here).
func New(opts Options, reporter OutcomeReporter) (*Fetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 * 1024 * 1024
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 5
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}

	transport := opts.Transport
	if transport == nil {
		var err error
		transport, err = NewTransport(opts.ProxyURL)
		if err != nil {
			return nil, err
		}
	}

	maxRedirects := opts.MaxRedirects
	client := &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}

	userAgent := opts.UserAgent
	if userAgent == "" && len(opts.UserAgents) > 0 {
		userAgent = opts.UserAgents[rand.IntN(len(opts.UserAgents))]
	}

	return &Fetcher{
		client:        client,
		userAgent:     userAgent,
		hostHeaders:   opts.HostHeaders,
		maxBodyBytes:  opts.MaxBodyBytes,
		retryAttempts: opts.RetryAttempts,
		retryBackoff:  opts.RetryBackoff,
		reporter:      reporter,
	}, nil
}

// NewTransport builds the default egress round tripper, optionally
// routed through a proxy. Exposed so other components (robots fetches)
// can share the same egress path.
func NewTransport(proxyURL string) (http.RoundTripper, error) {
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if strings.TrimSpace(proxyURL) != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(parsed)
	}
	return transport, nil
}

// Fetch retrieves a single resource and classifies the result.
//
// Transport failures are retried here with exponential backoff and
// jitter, up to the configured attempt budget; this task-local retry is
// independent of the host-level politeness backoff, which only reacts to
// the final classification. Every outcome is reported to the politeness
// controller before returning.
func (f *Fetcher) Fetch(ctx context.Context, target model.CrawlTarget) model.FetchOutcome {
	outcome := f.fetchWithRetry(ctx, target)
	if f.reporter != nil {
		f.reporter.RecordOutcome(target.Host(), outcome)
	}
	return outcome
}

// Client exposes the underlying HTTP client, e.g. for robots fetches.
func (f *Fetcher) Client() *http.Client {
	return f.client
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, target model.CrawlTarget) model.FetchOutcome {
	var lastErr error
	for attempt := 0; attempt < f.retryAttempts; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying after transport failure",
				"url", target.URL.String(),
				"attempt", attempt+1,
				"error", lastErr,
			)
			if err := sleep(ctx, backoffDelay(f.retryBackoff, attempt)); err != nil {
				return model.NetworkError(model.NetworkTransport, err)
			}
		}

		outcome, err := f.fetchOnce(ctx, target)
		if err == nil {
			return outcome
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return model.NetworkError(model.NetworkTransport, lastErr)
}

// fetchOnce performs one attempt. A non-nil error means a retriable
// transport failure; terminal conditions are encoded in the outcome.
func (f *Fetcher) fetchOnce(ctx context.Context, target model.CrawlTarget) (model.FetchOutcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL.String(), nil)
	if err != nil {
		// Malformed request can never succeed on retry.
		return model.NetworkError(model.NetworkNotFound, err), nil
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,image/*;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range f.hostHeaders[target.Host()] {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, errTooManyRedirects) {
			return model.NetworkError(model.NetworkTooManyRedirects, err), nil
		}
		return model.FetchOutcome{}, err
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only body

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := f.readBody(resp)
		if err != nil {
			return model.FetchOutcome{}, err
		}
		finalURL := target.URL
		if resp.Request != nil && resp.Request.URL != nil {
			finalURL = resp.Request.URL
		}
		return model.Success(body, resp.Header.Get("Content-Type"), finalURL), nil

	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode >= 500:
		// Rate-limiting and availability signals feed host-level backoff.
		return model.Blocked(resp.StatusCode), nil

	default:
		// 404/410 and the remaining 3xx/4xx statuses: terminal for this URL.
		return model.NetworkError(model.NetworkNotFound, fmt.Errorf("HTTP %d", resp.StatusCode)), nil
	}
}

// readBody decodes the response body, honoring Content-Encoding and the
// configured size cap.
func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)
	closers := []io.Closer{}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	limited := io.LimitReader(reader, f.maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", f.maxBodyBytes)
	}
	return body, nil
}

// backoffDelay computes the exponential delay for the given attempt with
// up to 50% jitter, so synchronized retries against one host spread out.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	return d + time.Duration(rand.Int64N(int64(d)/2+1))
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
