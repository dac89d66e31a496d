// =============================================================================
// fetch.go - listing page download
// =============================================================================
//
// Fetcher downloads one page with a bounded, linear retry schedule:
//
//	attempt 1 -> fail -> wait 1*base -> attempt 2 -> fail -> wait 2*base -> ...
//
// Transport errors and non-2xx statuses are retried. The body is decoded
// with a fixed charset because the site's declared encoding is unreliable.
//
// =============================================================================
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"bankier-feed/internal/config"
	"bankier-feed/internal/logger"
)

var (
	// ErrUnexpectedStatus wraps non-2xx responses.
	ErrUnexpectedStatus = errors.New("unexpected status code")
	// ErrBodyTooLarge means the response exceeded MaxBodyBytes.
	ErrBodyTooLarge = errors.New("response body too large")
	// ErrFetchExhausted is returned once every attempt has failed.
	ErrFetchExhausted = errors.New("all fetch attempts failed")
)

// HTTPDoer is the transport the fetcher needs; *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Page is a successfully fetched listing page.
type Page struct {
	URL        string
	StatusCode int
	Raw        []byte // body as received
	Text       string // body decoded with the configured charset
}

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	MaxAttempts  int
	BackoffBase  time.Duration
	Timeout      time.Duration // per attempt
	Headers      map[string]string
	Charset      string
	MaxBodyBytes int64
	Sleep        SleepFunc
}

// FetcherOptionsFromConfig maps run configuration onto fetcher options.
func FetcherOptionsFromConfig(cfg *config.Config) FetcherOptions {
	return FetcherOptions{
		MaxAttempts: cfg.MaxAttempts,
		BackoffBase: cfg.BackoffBase,
		Timeout:     cfg.RequestTimeout,
		Headers:     cfg.Headers,
		Charset:     cfg.Charset,
	}
}

// Fetcher downloads listing pages.
type Fetcher struct {
	client  HTTPDoer
	opts    FetcherOptions
	decoder encoding.Encoding
	log     logger.Logger
}

// NewFetcher validates the charset and fills option defaults.
func NewFetcher(client HTTPDoer, opts FetcherOptions, log logger.Logger) (*Fetcher, error) {
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 << 20
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Charset == "" {
		opts.Charset = "utf-8"
	}
	enc, err := htmlindex.Get(opts.Charset)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", opts.Charset, err)
	}
	return &Fetcher{client: client, opts: opts, decoder: enc, log: log}, nil
}

// -----------------------------------------------------------------------------
// Retry state
// -----------------------------------------------------------------------------

// retryState counts attempts and yields the linear backoff between them.
type retryState struct {
	attempt int // attempts started so far
	max     int
	base    time.Duration
}

// next starts another attempt, reporting false once max is reached.
func (s *retryState) next() bool {
	if s.attempt >= s.max {
		return false
	}
	s.attempt++
	return true
}

// exhausted reports whether the current attempt was the last one.
func (s *retryState) exhausted() bool { return s.attempt >= s.max }

// backoff is the wait after the current failed attempt.
func (s *retryState) backoff() time.Duration {
	return time.Duration(s.attempt) * s.base
}

// -----------------------------------------------------------------------------
// Fetch
// -----------------------------------------------------------------------------

// Fetch downloads url, retrying up to MaxAttempts times. The returned
// error is ErrFetchExhausted (wrapping the last cause) or the context's
// error when ctx ends first.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	state := &retryState{max: f.opts.MaxAttempts, base: f.opts.BackoffBase}
	var lastErr error

	for state.next() {
		f.log.Info("fetching page",
			logger.String("url", url),
			logger.Int("attempt", state.attempt),
			logger.Int("max_attempts", state.max),
		)

		page, err := f.attempt(ctx, url)
		if err == nil {
			f.log.Info("page fetched",
				logger.String("url", url),
				logger.Int("status", page.StatusCode),
				logger.Int("bytes", len(page.Raw)),
			)
			return page, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		lastErr = err
		f.log.Warn("fetch attempt failed", logger.String("url", url), logger.Int("attempt", state.attempt), logger.Error(err))

		if state.exhausted() {
			break
		}
		wait := state.backoff()
		f.log.Info("retrying", logger.String("url", url), logger.Duration("wait", wait))
		if err := f.opts.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	f.log.Error("giving up on page", logger.String("url", url), logger.Int("attempts", state.attempt))
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrFetchExhausted, url, state.attempt, lastErr)
}

// FetchOnce performs a single attempt with no retry.
func (f *Fetcher) FetchOnce(ctx context.Context, url string) (*Page, error) {
	return f.attempt(ctx, url)
}

// attempt is one request under its own Timeout:
//  1. build a GET carrying the configured headers
//  2. reject any non-2xx status (ErrUnexpectedStatus)
//  3. read at most MaxBodyBytes (ErrBodyTooLarge beyond that)
//  4. decode with the fixed charset, keeping the raw bytes alongside
func (f *Fetcher) attempt(ctx context.Context, url string) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range f.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	// One byte past the limit tells a truncated page apart from one that
	// is exactly MaxBodyBytes long.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(raw)) > f.opts.MaxBodyBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, f.opts.MaxBodyBytes)
	}

	text, err := f.decode(raw)
	if err != nil {
		return nil, err
	}
	return &Page{URL: url, StatusCode: resp.StatusCode, Raw: raw, Text: text}, nil
}

// decode converts raw to UTF-8 using the configured charset, ignoring any
// charset the server or the page itself declares.
func (f *Fetcher) decode(raw []byte) (string, error) {
	r := transform.NewReader(bytes.NewReader(raw), f.decoder.NewDecoder())
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decode %s body: %w", f.opts.Charset, err)
	}
	return string(b), nil
}
