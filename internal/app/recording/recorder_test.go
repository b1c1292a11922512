package recording

import (
	"bytes"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Mesh/internal/clock"
)

func TestChunksSplitAtCapacity(t *testing.T) {
	c := newChunks(4)
	_, _ = c.Write([]byte("abc"))
	_, _ = c.Write([]byte("defghij"))
	assert.Equal(t, 3, c.Count())
	assert.Equal(t, 10, c.Len())
	assert.Equal(t, []byte("abcdefghij"), c.Bytes())
	for _, b := range c.list {
		assert.LessOrEqual(t, len(b), 4)
	}
}

func opusPacket(seq uint16, ts uint32) *rtp.Packet {
	return &rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 111, SequenceNumber: seq, Timestamp: ts},
		Payload: bytes.Repeat([]byte{0xfc}, 40),
	}
}

func TestAudioRecordingProducesArtifact(t *testing.T) {
	clk := clock.NewManual(time.Unix(100, 0))
	r := New(Config{Enabled: true, Track: TrackAudio, ChunkBytes: 32}, clk, "s1", "a")
	require.NoError(t, r.Start())
	video, audio := r.Sinks()
	assert.Nil(t, video)
	require.NotNil(t, audio)

	header := r.buf.Len()
	for i := range 10 {
		audio(opusPacket(uint16(i), uint32(i*960)))
	}
	assert.Greater(t, r.buf.Len(), header)
	assert.Greater(t, r.buf.Count(), 1)

	clk.Advance(42 * time.Second)
	a, err := r.Finalize()
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.EqualValues(t, "s1", a.Session)
	assert.EqualValues(t, "a", a.Participant)
	assert.Equal(t, ContentTypeOgg, a.ContentType)
	assert.Equal(t, len(a.Blob), a.Size)
	assert.Equal(t, 42, a.DurationSeconds())
	assert.True(t, bytes.HasPrefix(a.Blob, []byte("OggS")))

	// Late packets after finalize are dropped.
	audio(opusPacket(99, 99*960))
	assert.False(t, r.Recording())
}

func TestVideoRecordingSelectsIVF(t *testing.T) {
	r := New(Config{Enabled: true, Track: TrackVideo}, clock.NewManual(time.Unix(0, 0)), "s1", "a")
	require.NoError(t, r.Start())
	video, audio := r.Sinks()
	assert.NotNil(t, video)
	assert.Nil(t, audio)

	a, err := r.Finalize()
	require.NoError(t, err)
	assert.Equal(t, ContentTypeIVF, a.ContentType)
	assert.Equal(t, len(a.Blob), a.Size)
}

func TestDisabledRecordingDoesNotStart(t *testing.T) {
	r := New(Config{Enabled: false}, clock.Real{}, "s1", "a")
	assert.ErrorIs(t, r.Start(), ErrDisabled)
	_, err := r.Finalize()
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestUnknownTrackFailsStart(t *testing.T) {
	r := New(Config{Enabled: true, Track: "smell"}, clock.Real{}, "s1", "a")
	assert.Error(t, r.Start())
	assert.False(t, r.Recording())
}
