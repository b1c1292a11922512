package core

import (
	"context"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/pion/webrtc/v4"
)

// MediaConnection is one direct connection to a remote participant.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close stops all underlying media resources. Safe to call twice.
	Close()
	// AddLocalTrack attaches an outgoing track. Must happen before the first offer or answer.
	AddLocalTrack(track webrtc.TrackLocal) error
	// ReplaceVideoTrack swaps the outgoing video track in place, without renegotiation.
	ReplaceVideoTrack(track webrtc.TrackLocal) error
	CreateOffer() (webrtc.SessionDescription, error)
	ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	ApplyAnswer(answer webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate. The remote description must be set.
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnStateChange(func(webrtc.PeerConnectionState))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
}

type ConnectionFactory interface {
	NewConnection(remote domain.ParticipantID) (MediaConnection, error)
}
