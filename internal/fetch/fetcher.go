// Package fetch retrieves playlist documents and image bytes over HTTP.
//
// Every request is bounded by the client timeout and the caller's context.
// Failures come back as *Error so callers can tell an HTTP status answer from
// a network-level failure.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/abelbrown/signage/internal/screen"
)

// DefaultTimeout bounds every retrieval.
const DefaultTimeout = 20 * time.Second

// maxBodyBytes caps a single response body (images included).
const maxBodyBytes = 32 << 20

const userAgent = "signage/1.0"

// Error is a failed retrieval. StatusCode is zero when the server never
// answered (DNS, connection refused, timeout).
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches screen.ErrFetch.
func (e *Error) Is(target error) bool {
	return target == screen.ErrFetch
}

// Timeout reports whether the request ran out of time.
func (e *Error) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// StatusCode extracts the HTTP status from err, if the server answered.
func StatusCode(err error) (int, bool) {
	var fe *Error
	if errors.As(err, &fe) && fe.StatusCode != 0 {
		return fe.StatusCode, true
	}
	return 0, false
}

// Fetcher performs bounded GET requests.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher with the given HTTP client timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Get retrieves url and returns the whole body. Any status other than 200 is
// an *Error carrying the status code.
//
// The function respects context cancellation and will return early
// if the context is cancelled.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, &Error{URL: url, Err: ctx.Err()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{URL: url, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &Error{URL: url, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, &Error{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(body) > maxBodyBytes {
		return nil, &Error{URL: url, Err: fmt.Errorf("body exceeds %d bytes", maxBodyBytes)}
	}
	return body, nil
}
