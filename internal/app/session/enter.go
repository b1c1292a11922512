package session

import (
	"context"
	"errors"

	"github.com/dkeye/Mesh/internal/app/lifecycle"
	"github.com/dkeye/Mesh/internal/app/media"
	"github.com/dkeye/Mesh/internal/app/peer"
	"github.com/dkeye/Mesh/internal/app/recording"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

var subscribedEvents = []domain.EventType{
	domain.EventJoined,
	domain.EventLeft,
	domain.EventOffer,
	domain.EventAnswer,
	domain.EventCandidate,
	domain.EventParticipantUpdate,
	domain.EventSessionEnded,
}

// Enter acquires local media, starts recording, subscribes to the session
// channel and announces presence. It returns once the session is active, or
// a *domain.EntryError. Cancelling ctx later leaves the session.
func (c *Coordinator) Enter(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyUsed
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.state = StateEntering
	c.media = media.NewController(c.ctx, c.cfg.Self, c.deps.Devices, c.post)
	c.recorder = recording.New(c.cfg.Recording, c.deps.Clock, c.cfg.Session, c.cfg.Self)
	go c.run()

	c.log.Info().Msg("entering")
	var err error
	if derr := c.do(func() { err = c.media.Start() }); derr != nil {
		return derr
	}
	if err != nil {
		return c.entryFailed(domain.NewEntryError(err))
	}
	_ = c.do(c.startRecording)

	ch, err := c.subscribe()
	if err != nil {
		return c.entryFailed(&domain.EntryError{Cause: domain.ErrNetworkUnreachable, Err: err})
	}

	var joined domain.Event
	if derr := c.do(func() { joined, err = c.activate(ch) }); derr != nil {
		_ = ch.Close()
		return derr
	}
	if err != nil {
		_ = ch.Close()
		return c.entryFailed(&domain.EntryError{Cause: domain.ErrNetworkUnreachable, Err: err})
	}

	go c.recordJoin()
	go c.announce(ch, joined)
	return nil
}

func (c *Coordinator) startRecording() {
	if err := c.recorder.Start(); err != nil {
		if errors.Is(err, recording.ErrDisabled) {
			c.log.Info().Msg("recording disabled")
			return
		}
		c.log.Warn().Err(err).Msg("recording failed to start, session not recorded")
		return
	}
	c.media.SetRecordingSinks(c.recorder.Sinks())
}

func (c *Coordinator) subscribe() (core.Channel, error) {
	var ch core.Channel
	err := c.cfg.Subscribe.Do(c.ctx, c.deps.Clock, func(attempt int) error {
		var err error
		ch, err = c.deps.Bus.Subscribe(c.ctx, c.cfg.Session, c.cfg.Self)
		if err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("subscribe")
		}
		return err
	})
	return ch, err
}

func (c *Coordinator) activate(ch core.Channel) (domain.Event, error) {
	if err := c.ctx.Err(); err != nil {
		return domain.Event{}, err
	}
	c.channel = ch
	c.links = peer.NewManager(c.ctx, c.cfg.Self, c.cfg.Peer, c.deps.Conns, c.media, ch, c.deps.Clock, c.post)
	c.links.OnStateChange(c.onLinkState)
	c.links.OnDrop(c.onDrop)
	c.links.OnRemoteTrack(c.onRemoteTrack)
	c.media.Attach(ch, c.links)

	c.timers = lifecycle.New(c.ctx, c.cfg.Timers, c.deps.Clock, c.post, c.occupancy, c.terminate)

	for _, t := range subscribedEvents {
		ch.On(t, func(e domain.Event) {
			c.post(func() { c.handle(e) })
		})
	}

	c.state = StateActive
	c.joinedAt = c.deps.Clock.Now()
	c.timers.Start(true)
	go c.watchChannel(ch)

	c.log.Info().Msg("active")
	return domain.Joined(c.cfg.Self, c.cfg.Display, c.media.Flags()), nil
}

func (c *Coordinator) watchChannel(ch core.Channel) {
	select {
	case <-ch.Done():
		c.post(func() {
			if c.channel == ch && c.state == StateActive {
				c.log.Warn().Msg("signaling channel lost")
				c.terminate(domain.ReasonSignalLost)
			}
		})
	case <-c.stopped:
	}
}

// announce is retried on transport failure. Giving up leaves the session
// running; peers that missed it find us through their own announcements.
func (c *Coordinator) announce(ch core.Channel, joined domain.Event) {
	err := c.cfg.Announce.Do(c.ctx, c.deps.Clock, func(attempt int) error {
		err := ch.Publish(c.ctx, joined)
		if err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("announce joined")
		}
		return err
	})
	if err != nil {
		c.log.Error().Err(err).Msg("joined announcement failed, continuing undiscoverable")
		return
	}
	c.log.Info().Msg("joined announced")
}

func (c *Coordinator) recordJoin() {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.TeardownTimeout)
	defer cancel()
	if err := c.deps.Storage.RecordJoin(ctx, c.cfg.Session, c.cfg.Self); err != nil {
		c.log.Warn().Err(err).Msg("record join")
	}
}

func (c *Coordinator) occupancy(ctx context.Context) (bool, error) {
	return c.deps.Storage.IsSoleActiveParticipant(ctx, c.cfg.Session, c.cfg.Self)
}

// entryFailed releases whatever entering acquired and ends the coordinator.
func (c *Coordinator) entryFailed(err *domain.EntryError) error {
	c.log.Error().Err(err).Msg("entry failed")
	_ = c.do(func() {
		c.media.Stop()
		if _, ferr := c.recorder.Finalize(); ferr == nil {
			c.log.Debug().Msg("discarded partial recording")
		}
		c.finish(Result{})
	})
	return err
}
