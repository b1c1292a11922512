package media

import (
	"context"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Mesh/internal/adapters/capture/capturetest"
	"github.com/dkeye/Mesh/internal/app/peer"
	"github.com/dkeye/Mesh/internal/app/peer/peertest"
	"github.com/dkeye/Mesh/internal/clock"
	"github.com/dkeye/Mesh/internal/domain"
)

type fixture struct {
	ctrl    *Controller
	devices *capturetest.Capturer
	links   *peer.Manager
	factory *peertest.Factory
	pub     *peertest.Recorder
	posted  chan func()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &fixture{
		devices: capturetest.NewCapturer(),
		factory: &peertest.Factory{},
		pub:     &peertest.Recorder{},
		posted:  make(chan func(), 8),
	}
	f.ctrl = NewController(ctx, "a", f.devices, func(fn func()) { f.posted <- fn })
	f.links = peer.NewManager(ctx, "a", peer.Config{RecoveryDelay: time.Second, MaxRecoveries: 3},
		f.factory, f.ctrl, f.pub, clock.NewManual(time.Unix(0, 0)), func(fn func()) { fn() })
	f.ctrl.Attach(f.pub, f.links)
	require.NoError(t, f.ctrl.Start())
	return f
}

func (f *fixture) runPosted(t *testing.T) {
	t.Helper()
	select {
	case fn := <-f.posted:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("nothing posted to the loop")
	}
}

func TestStartAcquiresCameraAndMicrophone(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.devices.Cam.Running())
	assert.True(t, f.devices.Mic.Running())
	assert.False(t, f.devices.Scr.Running())
	assert.Equal(t, domain.MediaFlags{Video: true, Audio: true}, f.ctrl.Flags())
	tracks := f.ctrl.LocalTracks()
	require.Len(t, tracks, 2)
	assert.Same(t, f.devices.Cam.Track(), tracks[0])
	assert.Same(t, f.devices.Mic.Track(), tracks[1])
}

func TestStartFailureReleasesCamera(t *testing.T) {
	devices := capturetest.NewCapturer()
	devices.Mic.StartErr = domain.ErrDeviceBusy
	ctrl := NewController(context.Background(), "a", devices, func(fn func()) { fn() })

	err := ctrl.Start()
	assert.ErrorIs(t, err, domain.ErrDeviceBusy)
	assert.False(t, devices.Cam.Running())
}

func TestToggleVideoAndAudioBroadcastFlags(t *testing.T) {
	f := newFixture(t)

	flags := f.ctrl.ToggleVideo()
	assert.False(t, flags.Video)
	assert.False(t, f.devices.Cam.Enabled())

	flags = f.ctrl.ToggleAudio()
	assert.False(t, flags.Audio)
	assert.False(t, f.devices.Mic.Enabled())

	updates := f.pub.OfType(domain.EventParticipantUpdate)
	require.Len(t, updates, 2)
	assert.Equal(t, domain.MediaFlags{Video: false, Audio: true}, *updates[0].Media)
	assert.Equal(t, domain.MediaFlags{}, *updates[1].Media)
	assert.Equal(t, domain.ParticipantID("a"), updates[1].From)
}

func TestScreenShareRoundTripKeepsCameraTrackAndLinks(t *testing.T) {
	f := newFixture(t)
	f.links.Connect("b")
	f.links.Connect("c")
	ids := map[domain.ParticipantID]string{}
	for _, li := range f.links.Links() {
		ids[li.Remote] = li.ID
	}
	camera := f.devices.Cam.Track()

	flags, err := f.ctrl.ToggleScreenShare()
	require.NoError(t, err)
	assert.True(t, flags.Screen)
	assert.False(t, f.devices.Cam.Running())
	assert.True(t, f.devices.Scr.Running())
	for _, c := range f.factory.Conns() {
		assert.Same(t, f.devices.Scr.Track(), c.VideoTrack())
	}

	flags, err = f.ctrl.ToggleScreenShare()
	require.NoError(t, err)
	assert.False(t, flags.Screen)
	assert.True(t, f.devices.Cam.Running())
	assert.False(t, f.devices.Scr.Running())

	require.Len(t, f.factory.Conns(), 2)
	for _, c := range f.factory.Conns() {
		assert.Same(t, camera, c.VideoTrack())
		assert.False(t, c.Closed())
	}
	for _, li := range f.links.Links() {
		assert.Equal(t, ids[li.Remote], li.ID)
	}
	assert.True(t, f.ctrl.ScreenShared())

	updates := f.pub.OfType(domain.EventParticipantUpdate)
	require.Len(t, updates, 2)
	assert.True(t, updates[0].Media.Screen)
	assert.False(t, updates[1].Media.Screen)
}

func TestScreenStartFailureKeepsCamera(t *testing.T) {
	f := newFixture(t)
	f.links.Connect("b")
	f.devices.Scr.StartErr = domain.ErrPermissionDenied

	flags, err := f.ctrl.ToggleScreenShare()
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.False(t, flags.Screen)
	assert.True(t, f.devices.Cam.Running())
	assert.Same(t, f.devices.Cam.Track(), f.factory.Last("b").VideoTrack())
	assert.Empty(t, f.pub.OfType(domain.EventParticipantUpdate))
}

func TestExternalScreenEndFallsBackToCamera(t *testing.T) {
	f := newFixture(t)
	f.links.Connect("b")
	_, err := f.ctrl.ToggleScreenShare()
	require.NoError(t, err)

	f.devices.Scr.End()
	f.runPosted(t)

	assert.False(t, f.ctrl.Flags().Screen)
	assert.True(t, f.devices.Cam.Running())
	assert.Same(t, f.devices.Cam.Track(), f.factory.Last("b").VideoTrack())
	assert.Equal(t, 1, f.factory.Count("b"))
}

func TestRecordingSinkFollowsActiveVideoSource(t *testing.T) {
	f := newFixture(t)
	var video, audio int
	f.ctrl.SetRecordingSinks(func(*rtp.Packet) { video++ }, func(*rtp.Packet) { audio++ })

	f.devices.Cam.Emit(&rtp.Packet{})
	f.devices.Mic.Emit(&rtp.Packet{})
	assert.Equal(t, 1, video)
	assert.Equal(t, 1, audio)

	_, err := f.ctrl.ToggleScreenShare()
	require.NoError(t, err)
	assert.False(t, f.devices.Cam.HasSink())
	f.devices.Scr.Emit(&rtp.Packet{})
	assert.Equal(t, 2, video)
}

func TestStopReleasesDevices(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Stop()
	assert.False(t, f.devices.Cam.Running())
	assert.False(t, f.devices.Mic.Running())
	_, err := f.ctrl.ToggleScreenShare()
	assert.ErrorIs(t, err, ErrNotStarted)
}
