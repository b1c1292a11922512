package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/Mesh/internal/clock"
	"github.com/dkeye/Mesh/internal/core/mocks"
	"github.com/dkeye/Mesh/internal/domain"
)

type probe struct {
	clk     *clock.Manual
	timers  *Timers
	reasons []domain.EndReason
}

func newProbe(occupancy OccupancyFunc) *probe {
	p := &probe{clk: clock.NewManual(time.Unix(0, 0))}
	p.timers = New(
		context.Background(),
		Config{Inactivity: 5 * time.Minute, EmptyRoom: 2 * time.Minute, OccupancyPoll: 30 * time.Second},
		p.clk,
		func(f func()) { f() },
		occupancy,
		func(r domain.EndReason) { p.reasons = append(p.reasons, r) },
	)
	p.timers.spawn = func(f func()) { f() }
	return p
}

func TestEmptyRoomFiresExactlyOnce(t *testing.T) {
	p := newProbe(nil)
	p.timers.Start(true)

	p.clk.Advance(2*time.Minute - time.Second)
	assert.Empty(t, p.reasons)

	p.clk.Advance(time.Second)
	assert.Equal(t, []domain.EndReason{domain.ReasonNoParticipants}, p.reasons)

	p.clk.Advance(time.Hour)
	assert.Equal(t, []domain.EndReason{domain.ReasonNoParticipants}, p.reasons)
}

func TestJoinJustBeforeExpiryDisarms(t *testing.T) {
	p := newProbe(nil)
	p.timers.Start(true)

	p.clk.Advance(2*time.Minute - time.Second)
	p.timers.SetAlone(false)
	p.timers.Touch()
	p.clk.Advance(2 * time.Minute)
	assert.Empty(t, p.reasons)
	assert.False(t, p.timers.EmptyArmed())
}

func TestEmptyRoomRearmsWhenAloneAgain(t *testing.T) {
	p := newProbe(nil)
	p.timers.Start(false)
	assert.False(t, p.timers.EmptyArmed())

	p.timers.SetAlone(true)
	p.clk.Advance(time.Minute)
	p.timers.SetAlone(false)
	p.timers.SetAlone(true)
	p.timers.Touch()

	// The countdown restarted at the second SetAlone(true).
	p.clk.Advance(time.Minute + 59*time.Second)
	assert.Empty(t, p.reasons)
	p.clk.Advance(time.Second)
	assert.Equal(t, []domain.EndReason{domain.ReasonNoParticipants}, p.reasons)
}

func TestRepeatedAloneKeepsCountdown(t *testing.T) {
	p := newProbe(nil)
	p.timers.Start(true)
	p.clk.Advance(time.Minute)
	p.timers.SetAlone(true)
	p.clk.Advance(time.Minute)
	assert.Equal(t, []domain.EndReason{domain.ReasonNoParticipants}, p.reasons)
}

func TestInactivityResetByTouch(t *testing.T) {
	p := newProbe(nil)
	p.timers.Start(false)

	p.clk.Advance(4 * time.Minute)
	p.timers.Touch()
	p.clk.Advance(4 * time.Minute)
	assert.Empty(t, p.reasons)

	p.clk.Advance(time.Minute)
	assert.Equal(t, []domain.EndReason{domain.ReasonInactivity}, p.reasons)
	assert.Equal(t, 0, p.clk.Pending())
}

func TestStopCancelsEverything(t *testing.T) {
	p := newProbe(func(context.Context) (bool, error) { return true, nil })
	p.timers.Start(true)
	p.timers.Stop()
	p.timers.Touch()
	p.timers.SetAlone(true)

	p.clk.Advance(time.Hour)
	assert.Empty(t, p.reasons)
	assert.Equal(t, 0, p.clk.Pending())
}

func TestOccupancyPollArmsOnDrift(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStorage(ctrl)
	store.EXPECT().IsSoleActiveParticipant(gomock.Any(), domain.SessionID("s"), domain.ParticipantID("a")).Return(true, nil).MinTimes(1)

	p := newProbe(func(ctx context.Context) (bool, error) {
		return store.IsSoleActiveParticipant(ctx, "s", "a")
	})
	// In-memory roster believes someone else is still here.
	p.timers.Start(false)
	p.timers.Touch()

	p.clk.Advance(30 * time.Second)
	assert.True(t, p.timers.EmptyArmed())

	p.clk.Advance(2 * time.Minute)
	assert.Equal(t, []domain.EndReason{domain.ReasonNoParticipants}, p.reasons)
}

func TestOccupancyPollDisarmsWhenOthersPresent(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStorage(ctrl)
	store.EXPECT().IsSoleActiveParticipant(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil).AnyTimes()

	p := newProbe(func(ctx context.Context) (bool, error) {
		return store.IsSoleActiveParticipant(ctx, "s", "a")
	})
	p.timers.Start(true)
	p.clk.Advance(30 * time.Second)
	assert.False(t, p.timers.EmptyArmed())

	p.clk.Advance(3 * time.Minute)
	assert.Empty(t, p.reasons)
}

func TestOccupancyErrorKeepsState(t *testing.T) {
	p := newProbe(func(context.Context) (bool, error) { return false, errors.New("storage down") })
	p.timers.Start(true)
	p.clk.Advance(30 * time.Second)
	assert.True(t, p.timers.EmptyArmed())

	p.clk.Advance(90 * time.Second)
	assert.Equal(t, []domain.EndReason{domain.ReasonNoParticipants}, p.reasons)
}
