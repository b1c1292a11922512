// Package peer owns one connection state machine per remote participant and
// drives offer/answer/candidate exchange over the session channel.
//
// Every exported Manager method must run on the coordinator's event loop.
// Callbacks from pion re-enter the loop through the post function and are
// dropped when their link generation is gone.
package peer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/clock"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/metrics"
)

// maxEarlyCandidates bounds candidates held for an offer that has not arrived.
const maxEarlyCandidates = 128

// Publisher sends events on the session channel without blocking.
type Publisher interface {
	Publish(ctx context.Context, e domain.Event) error
}

// TrackSource yields the outgoing tracks every new link starts with.
type TrackSource interface {
	LocalTracks() []webrtc.TrackLocal
}

type Config struct {
	RecoveryDelay time.Duration
	MaxRecoveries int
}

// LinkInfo is a read-only view of a PeerLink.
type LinkInfo struct {
	ID          string
	Remote      domain.ParticipantID
	Generation  uint64
	Negotiation string
	Offerer     bool
	State       State
}

type link struct {
	LinkInfo
	conn      core.MediaConnection
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	cancel    context.CancelFunc
}

type earlyBatch struct {
	remote domain.ParticipantID
	cands  []webrtc.ICECandidateInit
}

type Manager struct {
	ctx     context.Context
	self    domain.ParticipantID
	cfg     Config
	factory core.ConnectionFactory
	tracks  TrackSource
	pub     Publisher
	clk     clock.Clock
	post    func(func())

	links    map[domain.ParticipantID]*link
	active   map[domain.ParticipantID]bool
	failures map[domain.ParticipantID]int
	recovery map[domain.ParticipantID]clock.Timer
	awaiting map[domain.ParticipantID]clock.Timer
	early    map[string]*earlyBatch
	retired  map[string]struct{}
	gen      uint64

	onState func(LinkInfo)
	onDrop  func(domain.ParticipantID)
	onTrack func(remote domain.ParticipantID, ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)

	log zerolog.Logger
}

func NewManager(
	ctx context.Context,
	self domain.ParticipantID,
	cfg Config,
	factory core.ConnectionFactory,
	tracks TrackSource,
	pub Publisher,
	clk clock.Clock,
	post func(func()),
) *Manager {
	return &Manager{
		ctx:      ctx,
		self:     self,
		cfg:      cfg,
		factory:  factory,
		tracks:   tracks,
		pub:      pub,
		clk:      clk,
		post:     post,
		links:    make(map[domain.ParticipantID]*link),
		active:   make(map[domain.ParticipantID]bool),
		failures: make(map[domain.ParticipantID]int),
		recovery: make(map[domain.ParticipantID]clock.Timer),
		awaiting: make(map[domain.ParticipantID]clock.Timer),
		early:    make(map[string]*earlyBatch),
		retired:  make(map[string]struct{}),
		log:      log.With().Str("module", "peer").Str("participant", string(self)).Logger(),
	}
}

// OnStateChange is called on every link state transition.
func (m *Manager) OnStateChange(fn func(LinkInfo)) { m.onState = fn }

// OnDrop is called when recovery gave up on a participant, or when an
// offerer stayed silent for the whole answer wait after a failure.
func (m *Manager) OnDrop(fn func(domain.ParticipantID)) { m.onDrop = fn }

// OnRemoteTrack is called from pion's goroutine for each incoming track.
func (m *Manager) OnRemoteTrack(fn func(remote domain.ParticipantID, ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	m.onTrack = fn
}

// Connect makes the local participant the offerer toward remote.
func (m *Manager) Connect(remote domain.ParticipantID) {
	m.active[remote] = true
	if l, ok := m.links[remote]; ok {
		m.log.Debug().Str("remote", string(remote)).Str("link", l.ID).Msg("link already exists, skip connect")
		return
	}
	m.offer(remote)
}

func (m *Manager) offer(remote domain.ParticipantID) {
	l, err := m.newLink(remote, true, uuid.NewString())
	if err != nil {
		m.log.Error().Err(err).Str("remote", string(remote)).Msg("create link")
		m.negotiationFailed(remote, true)
		return
	}
	desc, err := l.conn.CreateOffer()
	if err != nil {
		m.log.Error().Err(err).Str("remote", string(remote)).Str("link", l.ID).Msg("create offer")
		m.fail(l)
		return
	}
	m.publish(domain.Offer(m.self, remote, l.Negotiation, toWireDescription(desc)))
	m.log.Info().Str("remote", string(remote)).Str("link", l.ID).Uint64("gen", l.Generation).Msg("offer sent")
}

// HandleOffer answers an offer, resolving glare in favour of the lower id.
func (m *Manager) HandleOffer(e domain.Event) {
	if e.Description == nil || e.Negotiation == "" {
		return
	}
	if _, gone := m.retired[e.Negotiation]; gone {
		m.log.Debug().Str("remote", string(e.From)).Str("negotiation", e.Negotiation).Msg("offer for retired negotiation")
		return
	}
	remote := e.From
	if cur, ok := m.links[remote]; ok {
		switch {
		case cur.Negotiation == e.Negotiation:
			return
		case cur.Offerer && !cur.remoteSet && m.self < remote:
			m.log.Info().Str("remote", string(remote)).Msg("offer collision, keeping ours")
			return
		default:
			m.log.Info().Str("remote", string(remote)).Str("link", cur.ID).Msg("replacing link for new offer")
			m.discard(cur)
		}
	}
	m.active[remote] = true
	m.cancelRecovery(remote)

	l, err := m.newLink(remote, false, e.Negotiation)
	if err != nil {
		m.log.Error().Err(err).Str("remote", string(remote)).Msg("create link")
		m.negotiationFailed(remote, false)
		return
	}
	answer, err := l.conn.ApplyOfferAndCreateAnswer(fromWireDescription(*e.Description))
	if err != nil {
		m.log.Error().Err(err).Str("remote", string(remote)).Str("link", l.ID).Msg("apply offer")
		m.fail(l)
		return
	}
	m.remoteDescriptionSet(l)
	m.publish(domain.Answer(m.self, remote, l.Negotiation, toWireDescription(answer)))
	m.log.Info().Str("remote", string(remote)).Str("link", l.ID).Uint64("gen", l.Generation).Msg("answer sent")
}

func (m *Manager) HandleAnswer(e domain.Event) {
	if e.Description == nil {
		return
	}
	l, ok := m.links[e.From]
	if !ok || l.Negotiation != e.Negotiation || !l.Offerer || l.remoteSet {
		m.log.Debug().Str("remote", string(e.From)).Str("negotiation", e.Negotiation).Msg("stale answer dropped")
		return
	}
	if err := l.conn.ApplyAnswer(fromWireDescription(*e.Description)); err != nil {
		m.log.Error().Err(err).Str("remote", string(e.From)).Str("link", l.ID).Msg("apply answer")
		m.fail(l)
		return
	}
	m.remoteDescriptionSet(l)
}

// HandleCandidate applies a remote candidate, or buffers it until the
// remote description of its negotiation is set.
func (m *Manager) HandleCandidate(e domain.Event) {
	if e.Candidate == nil || e.Negotiation == "" {
		return
	}
	if _, gone := m.retired[e.Negotiation]; gone {
		return
	}
	ci := fromWireCandidate(*e.Candidate)
	if l, ok := m.links[e.From]; ok && l.Negotiation == e.Negotiation {
		if !l.remoteSet {
			l.pending = append(l.pending, ci)
			return
		}
		if err := l.conn.AddICECandidate(ci); err != nil {
			m.log.Warn().Err(err).Str("remote", string(e.From)).Str("link", l.ID).Msg("add candidate")
		}
		return
	}
	b, ok := m.early[e.Negotiation]
	if !ok {
		b = &earlyBatch{remote: e.From}
		m.early[e.Negotiation] = b
	}
	if len(b.cands) >= maxEarlyCandidates {
		return
	}
	b.cands = append(b.cands, ci)
}

// Remove tears down the link to remote and forgets it.
func (m *Manager) Remove(remote domain.ParticipantID) {
	delete(m.active, remote)
	delete(m.failures, remote)
	m.cancelRecovery(remote)
	m.dropEarly(remote)
	if l, ok := m.links[remote]; ok {
		m.discard(l)
	}
}

// CloseAll tears down every link. Used on session end.
func (m *Manager) CloseAll() {
	for remote := range m.active {
		m.Remove(remote)
	}
	for _, l := range m.links {
		m.discard(l)
	}
}

// ReplaceVideoTrack swaps the outgoing video on every live link in place.
// It returns the number of links updated.
func (m *Manager) ReplaceVideoTrack(track webrtc.TrackLocal) int {
	n := 0
	for _, l := range m.links {
		if err := l.conn.ReplaceVideoTrack(track); err != nil {
			m.log.Warn().Err(err).Str("remote", string(l.Remote)).Str("link", l.ID).Msg("replace video track")
			continue
		}
		n++
	}
	return n
}

func (m *Manager) Link(remote domain.ParticipantID) (LinkInfo, bool) {
	l, ok := m.links[remote]
	if !ok {
		return LinkInfo{}, false
	}
	return l.LinkInfo, true
}

func (m *Manager) Links() []LinkInfo {
	out := make([]LinkInfo, 0, len(m.links))
	for _, l := range m.links {
		out = append(out, l.LinkInfo)
	}
	return out
}

func (m *Manager) newLink(remote domain.ParticipantID, offerer bool, negotiation string) (*link, error) {
	conn, err := m.factory.NewConnection(remote)
	if err != nil {
		return nil, err
	}
	m.gen++
	ctx, cancel := context.WithCancel(m.ctx)
	l := &link{
		LinkInfo: LinkInfo{
			ID:          uuid.NewString(),
			Remote:      remote,
			Generation:  m.gen,
			Negotiation: negotiation,
			Offerer:     offerer,
			State:       StateNegotiating,
		},
		conn:   conn,
		cancel: cancel,
	}
	m.links[remote] = l
	m.bind(l)
	metrics.PeerLinks.WithLabelValues(StateNegotiating.String()).Inc()
	if m.onState != nil {
		m.onState(l.LinkInfo)
	}

	if err := conn.Start(ctx); err != nil {
		m.abort(l)
		return nil, err
	}
	for _, t := range m.tracks.LocalTracks() {
		if err := conn.AddLocalTrack(t); err != nil {
			m.abort(l)
			return nil, err
		}
	}
	return l, nil
}

func (m *Manager) bind(l *link) {
	remote, gen, negotiation := l.Remote, l.Generation, l.Negotiation
	l.conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		m.post(func() {
			if !m.current(remote, gen) {
				return
			}
			m.publish(domain.CandidateEvent(m.self, remote, negotiation, toWireCandidate(ci)))
		})
	})
	l.conn.OnStateChange(func(s webrtc.PeerConnectionState) {
		m.post(func() { m.connectionState(remote, gen, s) })
	})
	l.conn.OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if m.onTrack != nil {
			m.onTrack(remote, ctx, track, receiver)
		}
	})
}

func (m *Manager) current(remote domain.ParticipantID, gen uint64) bool {
	l, ok := m.links[remote]
	return ok && l.Generation == gen
}

func (m *Manager) connectionState(remote domain.ParticipantID, gen uint64, s webrtc.PeerConnectionState) {
	l, ok := m.links[remote]
	if !ok || l.Generation != gen {
		m.log.Debug().Str("remote", string(remote)).Uint64("gen", gen).Str("pc_state", s.String()).Msg("state change for stale link")
		return
	}
	next, ok := fromPeerConnection(s)
	if !ok || next == l.State {
		return
	}
	if next == StateFailed {
		m.fail(l)
		return
	}
	m.setState(l, next)
	if next == StateConnected {
		delete(m.failures, remote)
	}
}

func (m *Manager) setState(l *link, s State) {
	metrics.PeerLinks.WithLabelValues(l.State.String()).Dec()
	metrics.PeerLinks.WithLabelValues(s.String()).Inc()
	m.log.Info().Str("remote", string(l.Remote)).Str("link", l.ID).Str("from", l.State.String()).Str("to", s.String()).Msg("link state")
	l.State = s
	if m.onState != nil {
		m.onState(l.LinkInfo)
	}
}

func (m *Manager) remoteDescriptionSet(l *link) {
	l.remoteSet = true
	if b, ok := m.early[l.Negotiation]; ok {
		l.pending = append(b.cands, l.pending...)
		delete(m.early, l.Negotiation)
	}
	m.dropEarly(l.Remote)
	for _, ci := range l.pending {
		if err := l.conn.AddICECandidate(ci); err != nil {
			m.log.Warn().Err(err).Str("remote", string(l.Remote)).Str("link", l.ID).Msg("add buffered candidate")
		}
	}
	l.pending = nil
}

// fail closes the link and schedules a full renegotiation from the offerer
// side.
func (m *Manager) fail(l *link) {
	m.abort(l)
	m.negotiationFailed(l.Remote, l.Offerer)
}

func (m *Manager) abort(l *link) {
	m.setState(l, StateFailed)
	m.discard(l)
}

func (m *Manager) negotiationFailed(remote domain.ParticipantID, offerer bool) {
	if !m.active[remote] {
		return
	}
	m.failures[remote]++
	if m.failures[remote] > m.cfg.MaxRecoveries {
		m.log.Warn().Str("remote", string(remote)).Int("failures", m.failures[remote]).Msg("recovery exhausted, dropping participant")
		m.drop(remote)
		return
	}
	if !offerer {
		m.awaitOffer(remote)
		return
	}
	if _, pending := m.recovery[remote]; pending {
		return
	}
	m.recovery[remote] = m.clk.AfterFunc(m.cfg.RecoveryDelay, func() {
		m.post(func() { m.recover(remote) })
	})
}

// answerWait bounds how long the answering side waits for a fresh offer
// after its link failed: the offerer's whole recovery budget.
func (m *Manager) answerWait() time.Duration {
	return m.cfg.RecoveryDelay * time.Duration(m.cfg.MaxRecoveries+1)
}

func (m *Manager) awaitOffer(remote domain.ParticipantID) {
	if t, ok := m.awaiting[remote]; ok {
		t.Stop()
	}
	m.awaiting[remote] = m.clk.AfterFunc(m.answerWait(), func() {
		m.post(func() { m.offerTimedOut(remote) })
	})
}

func (m *Manager) offerTimedOut(remote domain.ParticipantID) {
	if _, pending := m.awaiting[remote]; !pending {
		return
	}
	delete(m.awaiting, remote)
	if !m.active[remote] {
		return
	}
	if _, ok := m.links[remote]; ok {
		return
	}
	m.log.Warn().Str("remote", string(remote)).Dur("waited", m.answerWait()).Msg("no new offer after failure, dropping participant")
	m.drop(remote)
}

func (m *Manager) drop(remote domain.ParticipantID) {
	metrics.PeerDropped.Inc()
	m.Remove(remote)
	if m.onDrop != nil {
		m.onDrop(remote)
	}
}

func (m *Manager) recover(remote domain.ParticipantID) {
	if _, pending := m.recovery[remote]; !pending {
		return
	}
	delete(m.recovery, remote)
	if !m.active[remote] {
		return
	}
	if _, ok := m.links[remote]; ok {
		return
	}
	metrics.PeerRenegotiations.Inc()
	m.log.Info().Str("remote", string(remote)).Int("attempt", m.failures[remote]).Msg("renegotiating")
	m.offer(remote)
}

func (m *Manager) cancelRecovery(remote domain.ParticipantID) {
	if t, ok := m.recovery[remote]; ok {
		t.Stop()
		delete(m.recovery, remote)
	}
	if t, ok := m.awaiting[remote]; ok {
		t.Stop()
		delete(m.awaiting, remote)
	}
}

func (m *Manager) dropEarly(remote domain.ParticipantID) {
	for id, b := range m.early {
		if b.remote == remote {
			delete(m.early, id)
		}
	}
}

// discard releases the link's connection and retires its negotiation so
// late answers and candidates for it are ignored.
func (m *Manager) discard(l *link) {
	if cur, ok := m.links[l.Remote]; ok && cur == l {
		delete(m.links, l.Remote)
	}
	m.retired[l.Negotiation] = struct{}{}
	if l.State != StateClosed {
		prev := l.State
		l.State = StateClosed
		metrics.PeerLinks.WithLabelValues(prev.String()).Dec()
		if m.onState != nil {
			m.onState(l.LinkInfo)
		}
	}
	if l.cancel != nil {
		l.cancel()
	}
	l.conn.Close()
}

func (m *Manager) publish(e domain.Event) {
	if err := m.pub.Publish(m.ctx, e); err != nil {
		m.log.Warn().Err(err).Str("type", string(e.Type)).Str("to", string(e.To)).Msg("publish")
		return
	}
	metrics.SignalPublished.WithLabelValues(string(e.Type)).Inc()
}
