package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/zmb3/spotify/v2"

	"github.com/desertthunder/spotlist/internal/executor"
	"github.com/desertthunder/spotlist/internal/matcher"
	"github.com/desertthunder/spotlist/internal/shared"
)

var (
	_ matcher.CatalogSearcher = (*SpotifyService)(nil)
	_ executor.PlaylistStore  = (*SpotifyService)(nil)
)

// StatusError is a rate limit or server failure response, caught before the client tries to decode its body.
type StatusError struct {
	Status     int
	RetryAfter time.Duration // Parsed Retry-After header, zero when absent
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, http.StatusText(e.Status))
}

// statusTransport turns 429 and 5xx responses into a [*StatusError], whatever their body holds.
type statusTransport struct {
	base http.RoundTripper
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < http.StatusInternalServerError {
		return resp, nil
	}

	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()
	return nil, &StatusError{Status: resp.StatusCode, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())}
}

// parseRetryAfter reads a Retry-After value given in seconds or as an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// Classify wraps err from operation op as a [shared.RemoteError].
//
// Rate limiting (429), server errors (5xx), timeouts and network failures are transient; other API
// errors are permanent. Cancellation of the caller's context is returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var re *shared.RemoteError
	if errors.As(err, &re) {
		return err
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return &shared.RemoteError{Op: op, Status: statusErr.Status, Transient: true, RetryAfter: statusErr.RetryAfter, Err: err}
	}

	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		if apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError {
			return shared.Transient(op, apiErr.Status, err)
		}
		return shared.Permanent(op, apiErr.Status, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return shared.Transient(op, 0, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return shared.Transient(op, 0, err)
	}
	return shared.Permanent(op, 0, err)
}
