package shared

import (
	"context"
	"errors"
	"testing"
	"time"
)

func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var slept []time.Duration
	orig := sleep
	sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	t.Cleanup(func() { sleep = orig })
	return &slept
}

func TestBackoff(t *testing.T) {
	policy := Backoff{MaxAttempts: 4, Initial: 100 * time.Millisecond, Max: 300 * time.Millisecond, Multiplier: 2}

	t.Run("Delay Grows And Caps", func(t *testing.T) {
		want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
		for i, w := range want {
			if got := policy.Delay(i + 1); got != w {
				t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
			}
		}
	})

	t.Run("Succeeds First Try", func(t *testing.T) {
		slept := stubSleep(t)
		n, err := policy.Do(context.Background(), func(context.Context) error { return nil }, nil)
		if err != nil || n != 1 {
			t.Errorf("expected 1 attempt and no error, got %d, %v", n, err)
		}
		if len(*slept) != 0 {
			t.Errorf("expected no sleeps, got %v", *slept)
		}
	})

	t.Run("Retries Transient Until Success", func(t *testing.T) {
		slept := stubSleep(t)
		calls := 0
		n, err := policy.Do(context.Background(), func(context.Context) error {
			calls++
			if calls < 3 {
				return Transient("add_tracks", 429, errors.New("slow down"))
			}
			return nil
		}, nil)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if n != 3 {
			t.Errorf("expected 3 attempts, got %d", n)
		}
		if len(*slept) != 2 || (*slept)[0] != 100*time.Millisecond || (*slept)[1] != 200*time.Millisecond {
			t.Errorf("unexpected sleeps %v", *slept)
		}
	})

	t.Run("Stops After Max Attempts", func(t *testing.T) {
		stubSleep(t)
		var seen []Attempt
		n, err := policy.Do(context.Background(), func(context.Context) error {
			return Transient("search", 503, errors.New("unavailable"))
		}, func(a Attempt) { seen = append(seen, a) })

		if !errors.Is(err, ErrTransient) {
			t.Errorf("expected transient error, got %v", err)
		}
		if n != 4 {
			t.Errorf("expected 4 attempts, got %d", n)
		}
		if len(seen) != 4 {
			t.Fatalf("expected 4 observed failures, got %d", len(seen))
		}
		if seen[3].Retry || seen[3].Next != 0 {
			t.Errorf("last attempt should not schedule another, got %+v", seen[3])
		}
	})

	t.Run("Permanent Is Not Retried", func(t *testing.T) {
		slept := stubSleep(t)
		n, err := policy.Do(context.Background(), func(context.Context) error {
			return Permanent("add_tracks", 400, errors.New("bad id"))
		}, nil)
		if n != 1 || !errors.Is(err, ErrPermanent) {
			t.Errorf("expected single permanent failure, got %d, %v", n, err)
		}
		if len(*slept) != 0 {
			t.Errorf("expected no sleeps, got %v", *slept)
		}
	})

	t.Run("Honors Retry After Hint", func(t *testing.T) {
		slept := stubSleep(t)
		patient := Backoff{MaxAttempts: 3, Initial: 100 * time.Millisecond, Max: 5 * time.Second}
		calls := 0
		_, _ = patient.Do(context.Background(), func(context.Context) error {
			calls++
			if calls == 1 {
				return &RemoteError{Op: "search", Status: 429, Transient: true, RetryAfter: 2 * time.Second, Err: errors.New("rate limited")}
			}
			return nil
		}, nil)
		if len(*slept) != 1 || (*slept)[0] != 2*time.Second {
			t.Errorf("expected a 2s sleep, got %v", *slept)
		}
	})

	t.Run("Hint Beyond Max Gives Up", func(t *testing.T) {
		slept := stubSleep(t)
		var seen []Attempt
		n, err := policy.Do(context.Background(), func(context.Context) error {
			return &RemoteError{Op: "add_tracks", Status: 429, Transient: true, RetryAfter: time.Hour, Err: errors.New("rate limited")}
		}, func(a Attempt) { seen = append(seen, a) })

		if n != 1 || !errors.Is(err, ErrTransient) {
			t.Errorf("expected one transient failure, got %d, %v", n, err)
		}
		if len(*slept) != 0 {
			t.Errorf("expected no sleeps, got %v", *slept)
		}
		if len(seen) != 1 || seen[0].Retry || seen[0].Next != 0 {
			t.Errorf("expected a final attempt, got %+v", seen)
		}
	})

	t.Run("Zero Delay Still Retries", func(t *testing.T) {
		stubSleep(t)
		var seen []Attempt
		n, _ := Backoff{MaxAttempts: 3}.Do(context.Background(), func(context.Context) error {
			return Transient("search", 503, errors.New("unavailable"))
		}, func(a Attempt) { seen = append(seen, a) })

		if n != 3 || len(seen) != 3 {
			t.Fatalf("expected 3 attempts, got %d (%d observed)", n, len(seen))
		}
		if !seen[0].Retry || !seen[1].Retry || seen[2].Retry {
			t.Errorf("unexpected retry flags %+v", seen)
		}
	})

	t.Run("Cancelled Context Ends Loop", func(t *testing.T) {
		stubSleep(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		n, err := policy.Do(ctx, func(context.Context) error {
			return Transient("search", 429, errors.New("slow down"))
		}, nil)
		if n != 1 || err == nil {
			t.Errorf("expected to stop after first attempt, got %d, %v", n, err)
		}
	})
}
