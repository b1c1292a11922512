// Package app holds the hub side of the signaling transport: session
// channels, the subscription registry and the backpressure policy.
package app

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/metrics"
)

// FrameDecoder extracts the envelope the hub validates before relaying.
type FrameDecoder interface {
	Decode(f core.Frame) (domain.Event, error)
}

type RateLimiter interface {
	Allow(key string) bool
}

type Orchestrator struct {
	Registry *Registry
	Channels core.ChannelFactory
	Policy   Policy
	Limiter  RateLimiter
	Decoder  FrameDecoder

	// membership serializes channel creation and removal.
	membership sync.Mutex
}

// Subscribe attaches a transport endpoint to the session channel.
func (o *Orchestrator) Subscribe(
	session domain.SessionID,
	participant domain.ParticipantID,
	conn core.SignalConnection,
	cancel context.CancelFunc,
) core.ConnID {
	cid := core.ConnID(uuid.NewString())
	sub := core.NewSubscriber(participant, conn)

	o.membership.Lock()
	o.Channels.GetOrCreate(session).AddSubscriber(cid, sub)
	o.membership.Unlock()

	o.Registry.Bind(cid, session, sub, cancel)
	metrics.HubSubscribers.Inc()
	return cid
}

func (o *Orchestrator) Unsubscribe(cid core.ConnID) {
	session, ok := o.Registry.Unbind(cid)
	if !ok {
		return
	}
	o.membership.Lock()
	if ch, ok := o.Channels.Lookup(session); ok {
		ch.RemoveSubscriber(cid)
		o.Channels.Drop(session)
	}
	o.membership.Unlock()
	metrics.HubSubscribers.Dec()
}

// OnFrame relays one published frame to every subscriber of the sender's
// session, sender included.
func (o *Orchestrator) OnFrame(cid core.ConnID, data core.Frame) {
	session, participant, ok := o.Registry.Lookup(cid)
	if !ok {
		return
	}
	logger := log.With().Str("module", "app.orchestrator").Str("session", string(session)).Str("participant", string(participant)).Logger()

	if o.Decoder != nil {
		e, err := o.Decoder.Decode(data)
		if err != nil {
			logger.Warn().Err(err).Msg("undecodable frame")
			metrics.HubFramesRejected.WithLabelValues("decode").Inc()
			return
		}
		if e.From != participant {
			logger.Warn().Str("from", string(e.From)).Str("type", string(e.Type)).Msg("spoofed sender")
			metrics.HubFramesRejected.WithLabelValues("spoofed").Inc()
			return
		}
	}
	if o.Limiter != nil && !o.Limiter.Allow(string(session)+"/"+string(participant)) {
		logger.Warn().Msg("rate limited")
		metrics.HubFramesRejected.WithLabelValues("rate").Inc()
		return
	}

	ch, ok := o.Channels.Lookup(session)
	if !ok {
		return
	}
	res := ch.Broadcast(data)
	metrics.HubFramesRelayed.Inc()
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(ch, slow) {
		case KickSubscriber:
			o.Kick(slow)
		case DropFrame, NoAction:
		}
	}
}

// Kick cancels the subscription. Its transport unsubscribes on exit.
func (o *Orchestrator) Kick(cid core.ConnID) {
	if o.Registry.Cancel(cid) {
		metrics.HubKicked.Inc()
	}
}

// KickParticipant drops every subscription of participant in session.
func (o *Orchestrator) KickParticipant(session domain.SessionID, participant domain.ParticipantID) int {
	n := 0
	for _, snap := range o.Registry.ConnsOfSession(session) {
		if snap.Participant == participant {
			o.Kick(snap.Conn)
			n++
		}
	}
	return n
}
