// Package lifecycle ends a local session automatically on inactivity or when
// the participant has been alone for too long.
package lifecycle

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/clock"
	"github.com/dkeye/Mesh/internal/domain"
)

type Config struct {
	Inactivity    time.Duration
	EmptyRoom     time.Duration
	OccupancyPoll time.Duration
}

// OccupancyFunc asks the authoritative roster whether we are alone.
type OccupancyFunc func(ctx context.Context) (alone bool, err error)

// Timers is driven from the coordinator's event loop. Expired callbacks
// re-enter the loop through post; a generation per timer drops callbacks
// that were already queued when the timer got reset or stopped.
type Timers struct {
	ctx       context.Context
	cfg       Config
	clk       clock.Clock
	post      func(func())
	expire    func(domain.EndReason)
	occupancy OccupancyFunc
	spawn     func(func())

	running bool

	inactivity    clock.Timer
	inactivityGen uint64

	empty      clock.Timer
	emptyGen   uint64
	emptyArmed bool

	poll    clock.Timer
	pollGen uint64

	log zerolog.Logger
}

func New(
	ctx context.Context,
	cfg Config,
	clk clock.Clock,
	post func(func()),
	occupancy OccupancyFunc,
	expire func(domain.EndReason),
) *Timers {
	return &Timers{
		ctx:       ctx,
		cfg:       cfg,
		clk:       clk,
		post:      post,
		expire:    expire,
		occupancy: occupancy,
		spawn:     func(f func()) { go f() },
		log:       log.With().Str("module", "lifecycle").Logger(),
	}
}

// Start arms the inactivity timer, the occupancy poll, and the empty-room
// timer when alone is true.
func (t *Timers) Start(alone bool) {
	t.running = true
	t.Touch()
	t.SetAlone(alone)
	t.schedulePoll()
}

// Touch records a local user interaction.
func (t *Timers) Touch() {
	if !t.running {
		return
	}
	if t.inactivity != nil {
		t.inactivity.Stop()
	}
	t.inactivityGen++
	gen := t.inactivityGen
	t.inactivity = t.clk.AfterFunc(t.cfg.Inactivity, func() {
		t.post(func() {
			if !t.running || gen != t.inactivityGen {
				return
			}
			t.log.Info().Dur("after", t.cfg.Inactivity).Msg("inactivity timeout")
			t.fire(domain.ReasonInactivity)
		})
	})
}

// SetAlone arms the empty-room timer when the participant becomes alone and
// disarms it as soon as someone else is present. Re-asserting the current
// state keeps the running countdown.
func (t *Timers) SetAlone(alone bool) {
	if !t.running {
		return
	}
	switch {
	case alone && !t.emptyArmed:
		t.armEmpty()
	case !alone && t.emptyArmed:
		t.disarmEmpty()
	}
}

func (t *Timers) EmptyArmed() bool { return t.emptyArmed }

func (t *Timers) armEmpty() {
	t.emptyArmed = true
	t.emptyGen++
	gen := t.emptyGen
	t.empty = t.clk.AfterFunc(t.cfg.EmptyRoom, func() {
		t.post(func() {
			if !t.running || !t.emptyArmed || gen != t.emptyGen {
				return
			}
			t.log.Info().Dur("after", t.cfg.EmptyRoom).Msg("empty room timeout")
			t.fire(domain.ReasonNoParticipants)
		})
	})
	t.log.Debug().Msg("empty room timer armed")
}

func (t *Timers) disarmEmpty() {
	t.emptyArmed = false
	t.emptyGen++
	if t.empty != nil {
		t.empty.Stop()
		t.empty = nil
	}
	t.log.Debug().Msg("empty room timer disarmed")
}

func (t *Timers) schedulePoll() {
	if t.occupancy == nil {
		return
	}
	t.pollGen++
	gen := t.pollGen
	t.poll = t.clk.AfterFunc(t.cfg.OccupancyPoll, func() {
		t.post(func() {
			if !t.running || gen != t.pollGen {
				return
			}
			t.checkOccupancy(gen)
			t.schedulePoll()
		})
	})
}

func (t *Timers) checkOccupancy(gen uint64) {
	t.spawn(func() {
		alone, err := t.occupancy(t.ctx)
		t.post(func() {
			if !t.running {
				return
			}
			if err != nil {
				t.log.Warn().Err(err).Uint64("poll", gen).Msg("occupancy check failed")
				return
			}
			t.log.Debug().Bool("alone", alone).Msg("occupancy checked")
			t.SetAlone(alone)
		})
	})
}

// Stop disarms everything. Queued expirations become no-ops.
func (t *Timers) Stop() {
	t.running = false
	t.inactivityGen++
	t.emptyGen++
	t.pollGen++
	t.emptyArmed = false
	for _, tm := range []clock.Timer{t.inactivity, t.empty, t.poll} {
		if tm != nil {
			tm.Stop()
		}
	}
	t.inactivity, t.empty, t.poll = nil, nil, nil
}

func (t *Timers) fire(reason domain.EndReason) {
	t.Stop()
	t.expire(reason)
}
