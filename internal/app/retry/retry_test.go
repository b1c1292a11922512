package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Mesh/internal/clock"
)

func TestDelayBefore(t *testing.T) {
	exp := Policy{Attempts: 5, Delay: time.Second, Backoff: Exponential}
	assert.Equal(t, time.Duration(0), exp.DelayBefore(1))
	assert.Equal(t, time.Second, exp.DelayBefore(2))
	assert.Equal(t, 2*time.Second, exp.DelayBefore(3))
	assert.Equal(t, 4*time.Second, exp.DelayBefore(4))
	assert.Equal(t, 8*time.Second, exp.DelayBefore(5))

	fixed := Policy{Attempts: 3, Delay: 500 * time.Millisecond}
	assert.Equal(t, 500*time.Millisecond, fixed.DelayBefore(2))
	assert.Equal(t, 500*time.Millisecond, fixed.DelayBefore(3))
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	p := Policy{Attempts: 5, Delay: time.Millisecond, Backoff: Exponential}
	calls := 0
	err := p.Do(context.Background(), clock.Real{}, func(int) error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhausts(t *testing.T) {
	p := Policy{Attempts: 3, Delay: time.Millisecond}
	boom := errors.New("boom")
	calls := 0
	err := p.Do(context.Background(), clock.Real{}, func(int) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Attempts: 5, Delay: time.Hour}
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := p.Do(ctx, clock.Real{}, func(int) error {
		calls++
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
