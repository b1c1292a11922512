// Package peertest provides an in-memory core.MediaConnection for tests.
package peertest

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

var ErrNoRemoteDescription = errors.New("remote description not set")

type Conn struct {
	Remote domain.ParticipantID
	Seq    int

	mu        sync.Mutex
	closed    bool
	remoteSet bool
	tracks    []webrtc.TrackLocal
	video     webrtc.TrackLocal
	applied   []webrtc.ICECandidateInit
	onICE     func(webrtc.ICECandidateInit)
	onState   func(webrtc.PeerConnectionState)
}

func (c *Conn) Start(context.Context) error { return nil }

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Conn) AddLocalTrack(t webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = append(c.tracks, t)
	if t.Kind() == webrtc.RTPCodecTypeVideo {
		c.video = t
	}
	return nil
}

func (c *Conn) ReplaceVideoTrack(t webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.video == nil {
		return errors.New("no video sender")
	}
	c.video = t
	return nil
}

func (c *Conn) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "fake-offer"}, nil
}

func (c *Conn) ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remoteSet = true
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "fake-answer"}, nil
}

func (c *Conn) ApplyAnswer(webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remoteSet = true
	return nil
}

func (c *Conn) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.remoteSet {
		return ErrNoRemoteDescription
	}
	c.applied = append(c.applied, ci)
	return nil
}

func (c *Conn) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

func (c *Conn) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *Conn) OnTrack(func(context.Context, *webrtc.TrackRemote, *webrtc.RTPReceiver)) {}

// EmitCandidate simulates a locally gathered candidate.
func (c *Conn) EmitCandidate(candidate string) {
	c.mu.Lock()
	fn := c.onICE
	c.mu.Unlock()
	if fn != nil {
		fn(webrtc.ICECandidateInit{Candidate: candidate})
	}
}

// SetState simulates a pion connection state change.
func (c *Conn) SetState(s webrtc.PeerConnectionState) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) RemoteSet() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteSet
}

func (c *Conn) VideoTrack() webrtc.TrackLocal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.video
}

func (c *Conn) Tracks() []webrtc.TrackLocal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.TrackLocal(nil), c.tracks...)
}

// Applied returns the candidate strings in the order they were applied.
func (c *Conn) Applied() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.applied))
	for _, ci := range c.applied {
		out = append(out, ci.Candidate)
	}
	return out
}

// Factory hands out Conns and remembers them in creation order.
type Factory struct {
	mu    sync.Mutex
	conns []*Conn
	Err   error
}

func (f *Factory) NewConnection(remote domain.ParticipantID) (core.MediaConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	c := &Conn{Remote: remote, Seq: len(f.conns)}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *Factory) Conns() []*Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Conn(nil), f.conns...)
}

// Last returns the newest connection to remote, or nil.
func (f *Factory) Last(remote domain.ParticipantID) *Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.conns) - 1; i >= 0; i-- {
		if f.conns[i].Remote == remote {
			return f.conns[i]
		}
	}
	return nil
}

// Count returns how many connections to remote were created.
func (f *Factory) Count(remote domain.ParticipantID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.conns {
		if c.Remote == remote {
			n++
		}
	}
	return n
}

// Tracks is a fixed TrackSource.
type Tracks []webrtc.TrackLocal

func (t Tracks) LocalTracks() []webrtc.TrackLocal { return t }

// NewVideoTrack builds a VP8 track usable in tests.
func NewVideoTrack(id string) webrtc.TrackLocal {
	t, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, id, "mesh")
	if err != nil {
		panic(err)
	}
	return t
}

// NewAudioTrack builds an Opus track usable in tests.
func NewAudioTrack(id string) webrtc.TrackLocal {
	t, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, id, "mesh")
	if err != nil {
		panic(err)
	}
	return t
}

// Recorder captures published events.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// OfType filters recorded events.
func (r *Recorder) OfType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
