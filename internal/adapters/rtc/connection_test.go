package rtc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Mesh/internal/domain"
)

func newTrack(t *testing.T, mime, id string) *webrtc.TrackLocalStaticRTP {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: mime}, id, "mesh")
	require.NoError(t, err)
	return track
}

type side struct {
	conn *Connection

	mu     sync.Mutex
	states []webrtc.PeerConnectionState
}

func (s *side) connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.states {
		if st == webrtc.PeerConnectionStateConnected {
			return true
		}
	}
	return false
}

func TestLoopbackNegotiation(t *testing.T) {
	f, err := NewFactory(Config{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mk := func(name string) *side {
		c, err := f.NewConnection(domain.ParticipantID(name))
		require.NoError(t, err)
		s := &side{conn: c.(*Connection)}
		require.NoError(t, s.conn.Start(ctx))
		s.conn.OnStateChange(func(st webrtc.PeerConnectionState) {
			s.mu.Lock()
			s.states = append(s.states, st)
			s.mu.Unlock()
		})
		require.NoError(t, s.conn.AddLocalTrack(newTrack(t, webrtc.MimeTypeVP8, name+"-video")))
		require.NoError(t, s.conn.AddLocalTrack(newTrack(t, webrtc.MimeTypeOpus, name+"-audio")))
		return s
	}
	a, b := mk("a"), mk("b")
	defer a.conn.Close()
	defer b.conn.Close()

	// trickle candidates across once both descriptions are in place
	var (
		mu       sync.Mutex
		ready    bool
		pendingA []webrtc.ICECandidateInit
		pendingB []webrtc.ICECandidateInit
	)
	a.conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		mu.Lock()
		defer mu.Unlock()
		if ready {
			_ = b.conn.AddICECandidate(ci)
			return
		}
		pendingA = append(pendingA, ci)
	})
	b.conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		mu.Lock()
		defer mu.Unlock()
		if ready {
			_ = a.conn.AddICECandidate(ci)
			return
		}
		pendingB = append(pendingB, ci)
	})

	offer, err := a.conn.CreateOffer()
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Type)

	answer, err := b.conn.ApplyOfferAndCreateAnswer(offer)
	require.NoError(t, err)
	require.NoError(t, a.conn.ApplyAnswer(answer))

	mu.Lock()
	ready = true
	for _, ci := range pendingA {
		_ = b.conn.AddICECandidate(ci)
	}
	for _, ci := range pendingB {
		_ = a.conn.AddICECandidate(ci)
	}
	mu.Unlock()

	require.Eventually(t, func() bool { return a.connected() && b.connected() }, 15*time.Second, 20*time.Millisecond)

	// the video sender swaps tracks without renegotiation
	assert.NoError(t, a.conn.ReplaceVideoTrack(newTrack(t, webrtc.MimeTypeVP8, "a-screen")))
}

func TestReplaceWithoutVideoSender(t *testing.T) {
	f, err := NewFactory(Config{})
	require.NoError(t, err)
	c, err := f.NewConnection("bob")
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.AddLocalTrack(newTrack(t, webrtc.MimeTypeOpus, "audio")))
	assert.ErrorIs(t, c.ReplaceVideoTrack(newTrack(t, webrtc.MimeTypeVP8, "video")), ErrNoVideoSender)
}

func TestCloseTwice(t *testing.T) {
	f, err := NewFactory(Config{ICEServers: []string{"stun:stun.l.google.com:19302"}})
	require.NoError(t, err)
	c, err := f.NewConnection("bob")
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	c.Close()
	c.Close()
}
