package peer

import "github.com/pion/webrtc/v4"

type State int

const (
	StateNegotiating State = iota
	StateConnected
	StateDegraded
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// fromPeerConnection maps a pion connection state onto a link state. ok is
// false for states that do not move the link.
func fromPeerConnection(s webrtc.PeerConnectionState) (State, bool) {
	switch s {
	case webrtc.PeerConnectionStateNew, webrtc.PeerConnectionStateConnecting:
		return StateNegotiating, true
	case webrtc.PeerConnectionStateConnected:
		return StateConnected, true
	case webrtc.PeerConnectionStateDisconnected:
		return StateDegraded, true
	case webrtc.PeerConnectionStateFailed:
		return StateFailed, true
	}
	return 0, false
}
