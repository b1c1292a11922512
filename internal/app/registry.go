package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

type connEntry struct {
	Session     domain.SessionID
	Participant domain.ParticipantID
	Subscriber  core.Subscriber
	Cancel      context.CancelFunc
}

// Registry maps live websocket subscriptions to their session and participant.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[core.ConnID]*connEntry)}
}

func (r *Registry) Bind(
	cid core.ConnID,
	session domain.SessionID,
	sub core.Subscriber,
	cancel context.CancelFunc,
) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[cid] = &connEntry{
		Session:     session,
		Participant: sub.Participant(),
		Subscriber:  sub,
		Cancel:      cancel,
	}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Str("session", string(session)).Str("participant", string(sub.Participant())).Msg("bound subscription")
}

func (r *Registry) Lookup(cid core.ConnID) (domain.SessionID, domain.ParticipantID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	if !ok {
		return "", "", false
	}
	return e.Session, e.Participant, true
}

// Unbind forgets cid and reports the session it belonged to.
func (r *Registry) Unbind(cid core.ConnID) (domain.SessionID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok {
		return "", false
	}
	delete(r.conns, cid)
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("unbound subscription")
	return e.Session, true
}

type regSnap struct {
	Conn        core.ConnID
	Participant domain.ParticipantID
}

func (r *Registry) ConnsOfSession(session domain.SessionID) []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.conns))
	for cid, e := range r.conns {
		if e.Session == session {
			out = append(out, regSnap{Conn: cid, Participant: e.Participant})
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Cancel stops the pumps of cid. The transport unbinds itself on exit.
func (r *Registry) Cancel(cid core.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("canceled subscription")
	return true
}
