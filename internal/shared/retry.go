package shared

import (
	"context"
	"time"
)

// Backoff is a bounded exponential retry policy.
//
// Only failures classified by [IsTransient] are retried; anything else ends the loop on the attempt that produced it.
type Backoff struct {
	MaxAttempts int           // Total attempts including the first, at least 1
	Initial     time.Duration // Delay before the second attempt
	Max         time.Duration // Cap applied to every delay; zero means uncapped
	Multiplier  float64       // Growth factor between delays; values below 1 are treated as 2
}

// Attempt describes the state of a retry loop after a failed try.
type Attempt struct {
	Number    int           // 1-based attempt that just failed
	Err       error         // Failure of that attempt
	Transient bool          // Classification of Err
	Retry     bool          // Whether another attempt follows
	Next      time.Duration // Delay before the next attempt, zero when Retry is false
}

// sleep waits for d or until ctx is done; overridden in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Delay returns the wait before attempt n+1 after attempt n failed.
func (b Backoff) Delay(n int) time.Duration {
	mult := b.Multiplier
	if mult < 1 {
		mult = 2
	}
	d := float64(b.Initial)
	for i := 1; i < n; i++ {
		d *= mult
		if b.Max > 0 && d >= float64(b.Max) {
			return b.Max
		}
	}
	if b.Max > 0 && time.Duration(d) > b.Max {
		return b.Max
	}
	return time.Duration(d)
}

// Do runs op until it succeeds, fails permanently, or MaxAttempts is exhausted.
//
// A Retry-After hint longer than the computed delay replaces it, unless it exceeds Max, which gives up at once.
//
// onFailure (may be nil) observes every failed attempt before the loop sleeps or returns.
// Returns the number of attempts made and the last error.
func (b Backoff) Do(ctx context.Context, op func(context.Context) error, onFailure func(Attempt)) (int, error) {
	max := b.MaxAttempts
	if max < 1 {
		max = 1
	}

	var err error
	for n := 1; ; n++ {
		if err = op(ctx); err == nil {
			return n, nil
		}

		a := Attempt{Number: n, Err: err, Transient: IsTransient(err)}
		if a.Transient && n < max {
			a.Next = b.Delay(n)
			a.Retry = true
			if hint := RetryAfter(err); hint > a.Next {
				a.Next = hint
				// A server asking for a longer wait than the policy allows ends the loop.
				if b.Max > 0 && hint > b.Max {
					a.Retry, a.Next = false, 0
				}
			}
		}
		if onFailure != nil {
			onFailure(a)
		}
		if !a.Retry {
			return n, err
		}
		if serr := sleep(ctx, a.Next); serr != nil {
			return n, err
		}
	}
}
