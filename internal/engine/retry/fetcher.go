package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pagepack/pagepack/internal/engine/types"
	"github.com/pagepack/pagepack/internal/utils"
)

// Doer sends one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestOptions describe one request. Zero values mean GET with no extra headers.
type RequestOptions struct {
	Method   string
	Header   http.Header
	MaxBytes int64 // Body read limit, defaults to types.MaxPageBytes
}

// RetryEvent is emitted before each wait.
type RetryEvent struct {
	URL        string
	Attempt    int // 1-based number of the attempt that just failed
	MaxRetries int
	Status     int // 0 for transport failures
	Delay      time.Duration
	Message    string
}

// Fetcher performs requests with retries. It holds no per-request state and
// is safe for concurrent use.
type Fetcher struct {
	client    Doer
	backoff   *Backoff
	sleep     func(ctx context.Context, d time.Duration) error
	onRetry   func(RetryEvent)
	userAgent string
	cookie    string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithRandom sets the jitter source, uniform in [0,1).
func WithRandom(rnd func() float64) Option {
	return func(f *Fetcher) { f.backoff = NewBackoff(rnd) }
}

// WithSleep replaces the wait between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

// WithOnRetry registers a callback invoked before every wait.
func WithOnRetry(fn func(RetryEvent)) Option {
	return func(f *Fetcher) { f.onRetry = fn }
}

// WithUserAgent sets the User-Agent sent when the request has none.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithCookie sets a Cookie header sent when the request has none.
func WithCookie(cookie string) Option {
	return func(f *Fetcher) { f.cookie = cookie }
}

// NewFetcher creates a Fetcher sending requests through client.
func NewFetcher(client Doer, opts ...Option) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &Fetcher{
		client:    client,
		backoff:   NewBackoff(nil),
		sleep:     sleepContext,
		userAgent: types.DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch requests url up to p.MaxRetries+1 times and returns Success or
// TerminalFailure. A done context ends the loop immediately with a
// TerminalFailure wrapping ctx.Err().
func (f *Fetcher) Fetch(ctx context.Context, url string, opts RequestOptions, p Policy) Outcome {
	p = p.normalize()

	var last RetryableFailure
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		out := f.attempt(ctx, url, opts, p)

		switch o := out.(type) {
		case Success, TerminalFailure:
			return o
		case RetryableFailure:
			last = o
		}

		if attempt == p.MaxRetries {
			break
		}

		// Transport failures never carry a server hint.
		var header http.Header
		if last.Status != 0 {
			header = last.Header
		}
		delay := f.backoff.Delay(attempt, p, header)

		utils.Debug("Retry: attempt %d/%d for %s failed (status %d), retrying in %v",
			attempt+1, p.MaxRetries+1, url, last.Status, delay)

		if f.onRetry != nil {
			f.onRetry(RetryEvent{
				URL:        url,
				Attempt:    attempt + 1,
				MaxRetries: p.MaxRetries,
				Status:     last.Status,
				Delay:      delay,
				Message:    FriendlyMessage(last.Err),
			})
		}

		if err := f.sleep(ctx, delay); err != nil {
			return TerminalFailure{Status: last.Status, Err: &NetworkError{URL: url, Err: err}}
		}
	}

	return TerminalFailure{Status: last.Status, Err: last.Err}
}

// attempt sends a single request and classifies the result.
func (f *Fetcher) attempt(ctx context.Context, url string, opts RequestOptions, p Policy) Outcome {
	if err := ctx.Err(); err != nil {
		return TerminalFailure{Err: &NetworkError{URL: url, Err: err}}
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return TerminalFailure{Err: &NetworkError{URL: url, Err: err}}
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" && f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if req.Header.Get("Cookie") == "" && f.cookie != "" {
		req.Header.Set("Cookie", f.cookie)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return TerminalFailure{Err: &NetworkError{URL: url, Err: ctxErr}}
		}
		return RetryableFailure{Err: &NetworkError{URL: url, Err: err}}
	}
	defer resp.Body.Close()

	if p.IsRetryable(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*types.KB))
		return RetryableFailure{
			Status: resp.StatusCode,
			Header: resp.Header,
			Err:    &HTTPError{Status: resp.StatusCode, URL: url},
		}
	}

	limit := opts.MaxBytes
	if limit <= 0 {
		limit = types.MaxPageBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return TerminalFailure{Err: &NetworkError{URL: url, Err: ctxErr}}
		}
		// A body cut short is a transport failure, so it is retried.
		return RetryableFailure{Err: &NetworkError{URL: url, Err: fmt.Errorf("read body: %w", err)}}
	}
	if int64(len(body)) > limit {
		return TerminalFailure{Status: resp.StatusCode, Err: &NetworkError{URL: url, Err: ErrBodyTooLarge}}
	}

	return Success{Status: resp.StatusCode, Header: resp.Header, Body: body}
}

func sleepContext(ctx context.Context, d time.Duration) error {
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

// IsCanceled reports whether an outcome ended because its context was done.
func IsCanceled(o Outcome) bool {
	err := AsError(o)
	return err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
