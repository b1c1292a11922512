// Package session is the façade of one local meeting presence. It owns the
// event loop every other subsystem runs on and reconciles the roster from
// signaling events.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/app/lifecycle"
	"github.com/dkeye/Mesh/internal/app/media"
	"github.com/dkeye/Mesh/internal/app/peer"
	"github.com/dkeye/Mesh/internal/app/recording"
	"github.com/dkeye/Mesh/internal/app/retry"
	"github.com/dkeye/Mesh/internal/clock"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

var (
	ErrEnded       = errors.New("session ended")
	ErrNotActive   = errors.New("session not active")
	ErrAlreadyUsed = errors.New("coordinator already entered")
)

const loopQueue = 1024

type State int

const (
	StateIdle State = iota
	StateEntering
	StateActive
	StateLeaving
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEntering:
		return "entering"
	case StateActive:
		return "active"
	case StateLeaving:
		return "leaving"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

type Config struct {
	Session   domain.SessionID
	Self      domain.ParticipantID
	Display   domain.DisplayMeta
	Timers    lifecycle.Config
	Peer      peer.Config
	Subscribe retry.Policy
	Announce  retry.Policy
	Recording recording.Config
	// TeardownTimeout bounds the storage calls made while leaving.
	TeardownTimeout time.Duration
}

// Deps are the collaborators. Reporter may be nil.
type Deps struct {
	Bus      core.Bus
	Storage  core.Storage
	Reporter core.Reporter
	Devices  core.Capturer
	Conns    core.ConnectionFactory
	Clock    clock.Clock
}

// Remote is a roster entry.
type Remote struct {
	ID       domain.ParticipantID
	Display  domain.DisplayMeta
	Media    domain.MediaFlags
	JoinedAt time.Time
	Link     peer.State
	Tracks   int
}

// Result is available once Done is closed.
type Result struct {
	Reason       domain.EndReason
	Duration     time.Duration
	ScreenShared bool
	Recorded     bool
}

type Coordinator struct {
	cfg  Config
	deps Deps

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool

	events  chan func()
	stopped chan struct{}
	done    chan struct{}

	// Loop-owned state.
	state    State
	channel  core.Channel
	media    *media.Controller
	links    *peer.Manager
	timers   *lifecycle.Timers
	recorder *recording.Recorder
	roster   map[domain.ParticipantID]*Remote
	departed map[domain.ParticipantID]struct{}
	joinedAt time.Time

	resultMu sync.Mutex
	result   Result

	log zerolog.Logger
}

func New(cfg Config, deps Deps) *Coordinator {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if cfg.TeardownTimeout <= 0 {
		cfg.TeardownTimeout = 10 * time.Second
	}
	return &Coordinator{
		cfg:      cfg,
		deps:     deps,
		events:   make(chan func(), loopQueue),
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
		roster:   make(map[domain.ParticipantID]*Remote),
		departed: make(map[domain.ParticipantID]struct{}),
		log: log.With().Str("module", "session").
			Str("session", string(cfg.Session)).Str("participant", string(cfg.Self)).Logger(),
	}
}

// Done is closed when the session reached the ended state.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

func (c *Coordinator) Result() Result {
	c.resultMu.Lock()
	defer c.resultMu.Unlock()
	return c.result
}

// Wait blocks until the session ended or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) (Result, error) {
	select {
	case <-c.done:
		return c.Result(), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (c *Coordinator) run() {
	defer close(c.stopped)
	quit := c.ctx.Done()
	for {
		select {
		case fn := <-c.events:
			fn()
			if c.state == StateEnded {
				return
			}
		case <-quit:
			// Caller went away: leave like the user would. Teardown posts
			// its final step, so keep looping.
			quit = nil
			c.terminate(domain.ReasonLeft)
		}
	}
}

// post queues fn on the loop. After the loop stopped it is a no-op.
func (c *Coordinator) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.stopped:
	}
}

// do runs fn on the loop and waits for it.
func (c *Coordinator) do(fn func()) error {
	if !c.started.Load() {
		return ErrNotActive
	}
	finished := make(chan struct{})
	select {
	case c.events <- func() { fn(); close(finished) }:
	case <-c.stopped:
		return ErrEnded
	}
	select {
	case <-finished:
		return nil
	case <-c.stopped:
		select {
		case <-finished:
			return nil
		default:
			return ErrEnded
		}
	}
}

// State is safe to call from any goroutine.
func (c *Coordinator) State() State {
	if !c.started.Load() {
		return StateIdle
	}
	s := StateEnded
	_ = c.do(func() { s = c.state })
	return s
}

// Roster returns the remote participants, ordered by id.
func (c *Coordinator) Roster() []Remote {
	var out []Remote
	_ = c.do(func() {
		out = make([]Remote, 0, len(c.roster))
		for _, r := range c.roster {
			out = append(out, *r)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Links returns the current peer links.
func (c *Coordinator) Links() []peer.LinkInfo {
	var out []peer.LinkInfo
	_ = c.do(func() {
		if c.links != nil {
			out = c.links.Links()
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Remote < out[j].Remote })
	return out
}

// Flags returns the local media flags.
func (c *Coordinator) Flags() domain.MediaFlags {
	var f domain.MediaFlags
	_ = c.do(func() {
		if c.media != nil {
			f = c.media.Flags()
		}
	})
	return f
}

func (c *Coordinator) onRemoteTrack(remote domain.ParticipantID, _ context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	c.log.Info().Str("remote", string(remote)).Str("kind", track.Kind().String()).Str("codec", track.Codec().MimeType).Msg("remote track")
	c.post(func() {
		if r, ok := c.roster[remote]; ok {
			r.Tracks++
		}
	})
}

func (c *Coordinator) onLinkState(li peer.LinkInfo) {
	if r, ok := c.roster[li.Remote]; ok {
		r.Link = li.State
	}
}

func (c *Coordinator) setResult(r Result) {
	c.resultMu.Lock()
	defer c.resultMu.Unlock()
	c.result = r
}
