package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Mesh/internal/clock"
)

type Backoff int

const (
	Fixed Backoff = iota
	Exponential
)

// Policy describes how many times an operation is attempted and how long to
// wait between attempts. Exponential doubles Delay after every failure.
type Policy struct {
	Attempts int
	Delay    time.Duration
	Backoff  Backoff
}

var ErrExhausted = errors.New("retry attempts exhausted")

// DelayBefore returns the wait preceding attempt n (1-based). The first
// attempt never waits.
func (p Policy) DelayBefore(n int) time.Duration {
	if n <= 1 {
		return 0
	}
	if p.Backoff == Fixed {
		return p.Delay
	}
	return p.Delay << (n - 2)
}

// Do runs fn until it succeeds, the attempts run out, or ctx is done.
func (p Policy) Do(ctx context.Context, clk clock.Clock, fn func(attempt int) error) error {
	attempts := max(p.Attempts, 1)
	var last error
	for n := 1; n <= attempts; n++ {
		if d := p.DelayBefore(n); d > 0 {
			if err := sleep(ctx, clk, d); err != nil {
				return err
			}
		}
		if last = fn(n); last == nil {
			return nil
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, last)
}

func sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	done := make(chan struct{})
	t := clk.AfterFunc(d, func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	}
}
