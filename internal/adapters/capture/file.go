// Package capture plays local media files as if they were devices. Camera
// and microphone loop forever; the screen share ends at end of file, the way
// a user stopping a share would.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

const (
	mtu           = 1200
	videoClock    = 90000
	audioClock    = 48000
	oggPageLength = 20 * time.Millisecond
)

var errUnsupported = errors.New("unsupported media container")

// devices tracks which files are open so a second opener sees a busy device.
var devices = struct {
	sync.Mutex
	open map[string]core.SourceKind
}{open: make(map[string]core.SourceKind)}

func acquire(path string, kind core.SourceKind) error {
	devices.Lock()
	defer devices.Unlock()
	if owner, ok := devices.open[path]; ok {
		return fmt.Errorf("%s already used by %s: %w", path, owner, domain.ErrDeviceBusy)
	}
	devices.open[path] = kind
	return nil
}

func release(path string) {
	devices.Lock()
	defer devices.Unlock()
	delete(devices.open, path)
}

// frameReader yields one encoded frame and the media time it covers.
type frameReader interface {
	next() ([]byte, time.Duration, error)
}

type ivfFrames struct {
	r     *ivfreader.IVFReader
	every time.Duration
}

func (f *ivfFrames) next() ([]byte, time.Duration, error) {
	frame, _, err := f.r.ParseNextFrame()
	return frame, f.every, err
}

type oggPages struct {
	r       *oggreader.OggReader
	granule uint64
}

func (o *oggPages) next() ([]byte, time.Duration, error) {
	page, header, err := o.r.ParseNextPage()
	if err != nil {
		return nil, 0, err
	}
	samples := header.GranulePosition - o.granule
	o.granule = header.GranulePosition
	if samples == 0 || samples > audioClock {
		return page, oggPageLength, nil
	}
	return page, time.Duration(samples) * time.Second / audioClock, nil
}

// FileSource implements core.CaptureSource over an IVF (VP8) or Ogg (Opus)
// file.
type FileSource struct {
	kind  core.SourceKind
	path  string
	loop  bool
	track *webrtc.TrackLocalStaticRTP
	clock uint32
	pay   rtp.Payloader

	mu      sync.Mutex
	running bool
	enabled bool
	cancel  context.CancelFunc
	stopped chan struct{}
	ended   chan struct{}
	sink    func(*rtp.Packet)

	log zerolog.Logger
}

func NewFileSource(kind core.SourceKind, path string) (*FileSource, error) {
	s := &FileSource{
		kind:    kind,
		path:    path,
		loop:    kind != core.SourceScreen,
		enabled: true,
		ended:   make(chan struct{}),
		log:     log.With().Str("module", "capture").Str("source", string(kind)).Str("file", path).Logger(),
	}
	var codec webrtc.RTPCodecCapability
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ivf":
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: videoClock}
		s.clock, s.pay = videoClock, &codecs.VP8Payloader{EnablePictureID: true}
	case ".ogg", ".opus":
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audioClock, Channels: 2}
		s.clock, s.pay = audioClock, &codecs.OpusPayloader{}
	default:
		return nil, fmt.Errorf("%s: %w", path, errUnsupported)
	}
	track, err := webrtc.NewTrackLocalStaticRTP(codec, string(kind), "mesh")
	if err != nil {
		return nil, err
	}
	s.track = track
	return s, nil
}

func (s *FileSource) Kind() core.SourceKind    { return s.kind }
func (s *FileSource) Track() webrtc.TrackLocal { return s.track }

// Start opens the file and begins pacing frames onto the track.
func (s *FileSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if s.stopped != nil {
		// a run that ended on its own may still be releasing the file
		<-s.stopped
	}
	f, frames, err := s.open()
	if err != nil {
		return err
	}
	if err := acquire(s.path, s.kind); err != nil {
		_ = f.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.stopped = make(chan struct{})
	s.ended = make(chan struct{})
	go s.play(ctx, f, frames, s.stopped, s.ended)
	s.log.Info().Msg("capture started")
	return nil
}

func (s *FileSource) open() (*os.File, frameReader, error) {
	f, err := os.Open(s.path)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return nil, nil, fmt.Errorf("%s: %w", s.path, domain.ErrDeviceAbsent)
		case errors.Is(err, os.ErrPermission):
			return nil, nil, fmt.Errorf("%s: %w", s.path, domain.ErrPermissionDenied)
		}
		return nil, nil, err
	}
	frames, err := s.reader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%s: %w: %w", s.path, domain.ErrDeviceAbsent, err)
	}
	return f, frames, nil
}

func (s *FileSource) reader(r io.Reader) (frameReader, error) {
	if s.clock == audioClock {
		ogg, _, err := oggreader.NewWith(r)
		if err != nil {
			return nil, err
		}
		return &oggPages{r: ogg}, nil
	}
	ivf, header, err := ivfreader.NewWith(r)
	if err != nil {
		return nil, err
	}
	every := time.Second / 30
	if header.TimebaseDenominator > 0 && header.TimebaseNumerator > 0 {
		every = time.Duration(header.TimebaseNumerator) * time.Second / time.Duration(header.TimebaseDenominator)
	}
	return &ivfFrames{r: ivf, every: every}, nil
}

func (s *FileSource) play(ctx context.Context, f *os.File, frames frameReader, stopped, ended chan struct{}) {
	defer close(stopped)
	defer release(s.path)
	defer func() { _ = f.Close() }()

	packetizer := rtp.NewPacketizer(mtu, 0, rand.Uint32(), s.pay, rtp.NewRandomSequencer(), s.clock)
	wait := time.Duration(0)
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		frame, dur, err := frames.next()
		if errors.Is(err, io.EOF) && s.loop {
			if _, serr := f.Seek(0, io.SeekStart); serr == nil {
				if frames, err = s.reader(f); err == nil {
					wait = 0
					continue
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Warn().Err(err).Msg("read frame")
			}
			s.finish(ended)
			return
		}
		wait = dur

		s.mu.Lock()
		enabled, sink := s.enabled, s.sink
		s.mu.Unlock()
		samples := uint32(dur.Seconds() * float64(s.clock))
		for _, p := range packetizer.Packetize(frame, samples) {
			if !enabled {
				continue
			}
			if err := s.track.WriteRTP(p); err != nil && !errors.Is(err, io.ErrClosedPipe) {
				s.log.Debug().Err(err).Msg("write rtp")
			}
			if sink != nil {
				sink(p)
			}
		}
	}
}

// finish marks a run that stopped on its own.
func (s *FileSource) finish(ended chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended != ended || !s.running {
		return
	}
	s.running = false
	s.cancel()
	close(ended)
	s.log.Info().Msg("capture ended")
}

// Stop halts playback and waits for the file to be released.
func (s *FileSource) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	stopped := s.stopped
	s.mu.Unlock()
	<-stopped
	s.log.Info().Msg("capture stopped")
}

func (s *FileSource) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *FileSource) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *FileSource) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *FileSource) Ended() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *FileSource) SetSink(fn func(*rtp.Packet)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = fn
}

// FileCapturer implements core.Capturer with one file per device.
type FileCapturer struct {
	camera, mic, screen *FileSource
}

func NewFileCapturer(camera, microphone, screen string) (*FileCapturer, error) {
	cam, err := NewFileSource(core.SourceCamera, camera)
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}
	mic, err := NewFileSource(core.SourceMicrophone, microphone)
	if err != nil {
		return nil, fmt.Errorf("microphone: %w", err)
	}
	scr, err := NewFileSource(core.SourceScreen, screen)
	if err != nil {
		return nil, fmt.Errorf("screen: %w", err)
	}
	return &FileCapturer{camera: cam, mic: mic, screen: scr}, nil
}

func (c *FileCapturer) Camera() core.CaptureSource     { return c.camera }
func (c *FileCapturer) Microphone() core.CaptureSource { return c.mic }
func (c *FileCapturer) Screen() core.CaptureSource     { return c.screen }
