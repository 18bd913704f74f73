package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestNormalizeName(t *testing.T) {
	tc := []struct {
		name string
		in   string
		want string
	}{
		{name: "basic normalization", in: "Road Trip", want: "road trip"},
		{name: "extra whitespace", in: "  Road   Trip  ", want: "road trip"},
		{name: "mixed case", in: "RoAd TrIp", want: "road trip"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeName(tt.in); got != tt.want {
				t.Errorf("NormalizeName() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tc := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "Simon & Garfunkel", want: "simon and garfunkel"},
		{in: "Beyoncé", want: "beyonce"},
		{in: "AC/DC", want: "ac dc"},
		{in: "Mr.  Blue-Sky!", want: "mr blue sky"},
	}

	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	tc := []struct {
		in   string
		want string
	}{
		{in: "In the Cage", want: "in the cage"},
		{in: "In the Cage - Live", want: "in the cage"},
		{in: "Blue Monday - 2011 Remaster", want: "blue monday"},
		{in: "Let It Live", want: "let it live"},
		{in: "Live Forever", want: "live forever"},
	}

	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeTitle(tt.in); got != tt.want {
				t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRemoteErrors(t *testing.T) {
	cause := errors.New("boom")

	t.Run("Transient", func(t *testing.T) {
		err := fmt.Errorf("wrapped: %w", Transient("search", 429, cause))
		if !errors.Is(err, ErrTransient) {
			t.Error("expected ErrTransient")
		}
		if !errors.Is(err, cause) {
			t.Error("expected cause to be reachable")
		}
		if !IsTransient(err) {
			t.Error("expected IsTransient to be true")
		}
	})

	t.Run("Permanent", func(t *testing.T) {
		err := Permanent("add_tracks", 400, cause)
		if !errors.Is(err, ErrPermanent) {
			t.Error("expected ErrPermanent")
		}
		if IsTransient(err) {
			t.Error("permanent error must not be transient")
		}
	})

	t.Run("Deadline Is Transient", func(t *testing.T) {
		if !IsTransient(fmt.Errorf("call: %w", context.DeadlineExceeded)) {
			t.Error("deadline exceeded should be transient")
		}
	})

	t.Run("Cancel Is Not Transient", func(t *testing.T) {
		if IsTransient(context.Canceled) {
			t.Error("cancellation should not be transient")
		}
	})

	t.Run("RetryAfter", func(t *testing.T) {
		err := &RemoteError{Op: "search", Transient: true, RetryAfter: 3 * time.Second, Err: cause}
		if got := RetryAfter(fmt.Errorf("x: %w", err)); got != 3*time.Second {
			t.Errorf("expected 3s, got %v", got)
		}
	})
}
