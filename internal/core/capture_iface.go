package core

import (
	"context"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type SourceKind string

const (
	SourceCamera     SourceKind = "camera"
	SourceMicrophone SourceKind = "microphone"
	SourceScreen     SourceKind = "screen"
)

// CaptureSource is a local device feeding one outgoing track. The track
// object is created once and outlives Stop/Start cycles.
type CaptureSource interface {
	Kind() SourceKind
	Track() webrtc.TrackLocal
	Start(ctx context.Context) error
	Stop()
	Running() bool
	SetEnabled(enabled bool)
	Enabled() bool
	// Ended is closed when the current run stops without Stop being called.
	Ended() <-chan struct{}
	// SetSink receives a copy of every packet written while enabled.
	SetSink(func(*rtp.Packet))
}

type Capturer interface {
	Camera() CaptureSource
	Microphone() CaptureSource
	Screen() CaptureSource
}
