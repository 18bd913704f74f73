package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrPlaylistCreate     = fmt.Errorf("playlist creation failed")

	// Remote failure classes. A [RemoteError] unwraps to exactly one of these.
	ErrTransient = fmt.Errorf("transient remote error")
	ErrPermanent = fmt.Errorf("permanent remote error")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// RemoteError is a failed call against the remote service, classified as transient (safe to retry) or permanent.
type RemoteError struct {
	Op         string        // Operation name, e.g. "search" or "add_tracks"
	Status     int           // HTTP status when known, 0 otherwise
	Transient  bool          // Whether the call may be retried
	RetryAfter time.Duration // Server supplied delay hint, zero when absent
	Err        error
}

func (e *RemoteError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s failure (status %d): %v", e.Op, kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Op, kind, e.Err)
}

func (e *RemoteError) Unwrap() []error {
	if e.Transient {
		return []error{ErrTransient, e.Err}
	}
	return []error{ErrPermanent, e.Err}
}

// Transient wraps err as a retryable [RemoteError].
func Transient(op string, status int, err error) error {
	return &RemoteError{Op: op, Status: status, Transient: true, Err: err}
}

// Permanent wraps err as a non-retryable [RemoteError].
func Permanent(op string, status int, err error) error {
	return &RemoteError{Op: op, Status: status, Err: err}
}

// IsTransient reports whether err is safe to retry.
//
// Deadline expiry and network timeouts count as transient even when they were not wrapped by a service.
// Cancellation of the caller's context never does.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, ErrPermanent) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// RetryAfter returns the delay hint carried by err, if any.
func RetryAfter(err error) time.Duration {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.RetryAfter
	}
	return 0
}
