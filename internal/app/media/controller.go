// Package media owns the local capture sources and hot-swaps the outgoing
// video between camera and screen on every live link.
package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

var ErrNotStarted = errors.New("media controller not started")

type Publisher interface {
	Publish(ctx context.Context, e domain.Event) error
}

// LinkSwitcher replaces the outgoing video on existing links.
type LinkSwitcher interface {
	ReplaceVideoTrack(track webrtc.TrackLocal) int
}

// Controller must be driven from the coordinator's event loop.
type Controller struct {
	ctx    context.Context
	self   domain.ParticipantID
	camera core.CaptureSource
	mic    core.CaptureSource
	screen core.CaptureSource
	post   func(func())

	pub   Publisher
	links LinkSwitcher

	active       core.CaptureSource
	flags        domain.MediaFlags
	screenShared bool
	started      bool
	videoSink    func(*rtp.Packet)

	log zerolog.Logger
}

func NewController(ctx context.Context, self domain.ParticipantID, devices core.Capturer, post func(func())) *Controller {
	return &Controller{
		ctx:    ctx,
		self:   self,
		camera: devices.Camera(),
		mic:    devices.Microphone(),
		screen: devices.Screen(),
		post:   post,
		active: devices.Camera(),
		log:    log.With().Str("module", "media").Str("participant", string(self)).Logger(),
	}
}

// Attach wires the signaling publisher and the link set once they exist.
func (c *Controller) Attach(pub Publisher, links LinkSwitcher) {
	c.pub = pub
	c.links = links
}

// Start acquires camera and microphone. Errors come back unclassified.
func (c *Controller) Start() error {
	if err := c.camera.Start(c.ctx); err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	if err := c.mic.Start(c.ctx); err != nil {
		c.camera.Stop()
		return fmt.Errorf("microphone: %w", err)
	}
	c.camera.SetEnabled(true)
	c.mic.SetEnabled(true)
	c.active = c.camera
	c.flags = domain.MediaFlags{Video: true, Audio: true}
	c.started = true
	c.log.Info().Msg("capture started")
	return nil
}

// LocalTracks is what every new link starts with.
func (c *Controller) LocalTracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{c.active.Track(), c.mic.Track()}
}

func (c *Controller) Flags() domain.MediaFlags { return c.flags }

// ScreenShared reports whether screen sharing happened at any point.
func (c *Controller) ScreenShared() bool { return c.screenShared }

// SetRecordingSinks routes outgoing packets to the recorder. The video sink
// follows whichever video source is active.
func (c *Controller) SetRecordingSinks(video, audio func(*rtp.Packet)) {
	c.videoSink = video
	c.active.SetSink(video)
	c.mic.SetSink(audio)
}

func (c *Controller) ToggleVideo() domain.MediaFlags {
	c.flags.Video = !c.flags.Video
	c.active.SetEnabled(c.flags.Video)
	c.announce()
	return c.flags
}

func (c *Controller) ToggleAudio() domain.MediaFlags {
	c.flags.Audio = !c.flags.Audio
	c.mic.SetEnabled(c.flags.Audio)
	c.announce()
	return c.flags
}

// ToggleScreenShare switches between camera and screen on every link by
// track replacement. A failure leaves the current source in place.
func (c *Controller) ToggleScreenShare() (domain.MediaFlags, error) {
	if !c.started {
		return c.flags, ErrNotStarted
	}
	next := c.screen
	if c.flags.Screen {
		next = c.camera
	}
	if err := c.switchTo(next); err != nil {
		c.log.Warn().Err(err).Str("source", string(next.Kind())).Msg("switch video source")
		return c.flags, err
	}
	return c.flags, nil
}

func (c *Controller) switchTo(next core.CaptureSource) error {
	prev := c.active
	if next == prev {
		return nil
	}
	if err := next.Start(c.ctx); err != nil {
		return err
	}
	if next == c.screen {
		next.SetEnabled(true)
	} else {
		next.SetEnabled(c.flags.Video)
	}
	prev.SetSink(nil)
	next.SetSink(c.videoSink)

	n := 0
	if c.links != nil {
		n = c.links.ReplaceVideoTrack(next.Track())
	}
	prev.Stop()
	c.active = next

	c.flags.Screen = next == c.screen
	if c.flags.Screen {
		c.screenShared = true
		c.watchScreen(next.Ended())
	}
	c.log.Info().Str("from", string(prev.Kind())).Str("to", string(next.Kind())).Int("links", n).Msg("video source switched")
	c.announce()
	return nil
}

func (c *Controller) watchScreen(ended <-chan struct{}) {
	go func() {
		select {
		case <-ended:
			c.post(func() { c.screenEnded(ended) })
		case <-c.ctx.Done():
		}
	}()
}

func (c *Controller) screenEnded(ended <-chan struct{}) {
	if !c.started || c.active != c.screen || c.screen.Ended() != ended {
		return
	}
	c.log.Info().Msg("screen capture ended, falling back to camera")
	if err := c.switchTo(c.camera); err != nil {
		c.log.Error().Err(err).Msg("camera fallback")
	}
}

// Stop releases every device. The controller is done afterwards.
func (c *Controller) Stop() {
	if !c.started {
		return
	}
	c.started = false
	c.camera.SetSink(nil)
	c.screen.SetSink(nil)
	c.mic.SetSink(nil)
	c.camera.Stop()
	c.screen.Stop()
	c.mic.Stop()
	c.log.Info().Msg("capture stopped")
}

func (c *Controller) announce() {
	if c.pub == nil {
		return
	}
	if err := c.pub.Publish(c.ctx, domain.ParticipantUpdate(c.self, c.flags)); err != nil {
		c.log.Warn().Err(err).Msg("publish participant update")
	}
}
