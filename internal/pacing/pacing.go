// Package pacing spaces out sends: randomized gaps between recipients and an
// optional ceiling on the overall send rate.
package pacing

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// Delayer produces the wait inserted between two recipients of a session.
type Delayer interface {
	Next() time.Duration
}

// Range is an inclusive [Min, Max] window with millisecond granularity.
type Range struct {
	Min time.Duration
	Max time.Duration
}

func (r Range) Validate() error {
	if r.Min < 0 {
		return fmt.Errorf("pacing: negative minimum %v", r.Min)
	}
	if r.Min > r.Max {
		return fmt.Errorf("pacing: minimum %v exceeds maximum %v", r.Min, r.Max)
	}
	return nil
}

// Next returns a uniformly distributed whole-millisecond duration in [Min, Max].
func (r Range) Next() time.Duration {
	lo, hi := r.Min.Milliseconds(), r.Max.Milliseconds()
	if hi <= lo {
		return time.Duration(lo) * time.Millisecond
	}
	return time.Duration(lo+rand.Int63n(hi-lo+1)) * time.Millisecond
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%dms", r.Min.Milliseconds(), r.Max.Milliseconds())
}

// Limiter caps how many messages go out per minute. The zero value and a nil
// *Limiter never block.
type Limiter struct {
	l *rate.Limiter
}

func NewLimiter(perMinute int) *Limiter {
	if perMinute <= 0 {
		return &Limiter{}
	}
	return &Limiter{l: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)}
}

func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.l == nil {
		return nil
	}
	return l.l.Wait(ctx)
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
