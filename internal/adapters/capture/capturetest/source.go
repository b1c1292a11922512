// Package capturetest provides scriptable capture sources for tests.
package capturetest

import (
	"context"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Mesh/internal/core"
)

type Source struct {
	kind  core.SourceKind
	track webrtc.TrackLocal

	mu       sync.Mutex
	StartErr error
	running  bool
	enabled  bool
	ended    chan struct{}
	sink     func(*rtp.Packet)
	starts   int
}

func NewSource(kind core.SourceKind) *Source {
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
	if kind == core.SourceMicrophone {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
	}
	t, err := webrtc.NewTrackLocalStaticRTP(codec, string(kind), "mesh")
	if err != nil {
		panic(err)
	}
	return &Source{kind: kind, track: t, enabled: true, ended: make(chan struct{})}
}

func (s *Source) Kind() core.SourceKind     { return s.kind }
func (s *Source) Track() webrtc.TrackLocal { return s.track }

func (s *Source) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StartErr != nil {
		return s.StartErr
	}
	s.running = true
	s.ended = make(chan struct{})
	s.starts++
	return nil
}

func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Source) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *Source) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *Source) Ended() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *Source) SetSink(fn func(*rtp.Packet)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = fn
}

// HasSink reports whether a sink is attached.
func (s *Source) HasSink() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink != nil
}

// Emit pushes a packet to the sink as a running source would.
func (s *Source) Emit(p *rtp.Packet) {
	s.mu.Lock()
	fn, on := s.sink, s.running && s.enabled
	s.mu.Unlock()
	if fn != nil && on {
		fn(p)
	}
}

// End simulates the device stopping on its own, e.g. "stop sharing".
func (s *Source) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.ended)
}

func (s *Source) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// Capturer bundles three fake sources.
type Capturer struct {
	Cam, Mic, Scr *Source
}

func NewCapturer() *Capturer {
	return &Capturer{
		Cam: NewSource(core.SourceCamera),
		Mic: NewSource(core.SourceMicrophone),
		Scr: NewSource(core.SourceScreen),
	}
}

func (c *Capturer) Camera() core.CaptureSource     { return c.Cam }
func (c *Capturer) Microphone() core.CaptureSource { return c.Mic }
func (c *Capturer) Screen() core.CaptureSource     { return c.Scr }
