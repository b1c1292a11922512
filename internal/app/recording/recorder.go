// Package recording accumulates the local outgoing media into in-memory
// chunks and turns them into one artifact at session end.
package recording

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/clock"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/metrics"
)

const (
	TrackVideo = "video"
	TrackAudio = "audio"

	ContentTypeIVF = "video/x-ivf"
	ContentTypeOgg = "audio/ogg"
)

var (
	ErrDisabled     = errors.New("recording disabled")
	ErrNotRecording = errors.New("not recording")
)

type Config struct {
	Enabled    bool
	Track      string
	ChunkBytes int
}

// Recorder is safe for concurrent use: packets arrive on capture goroutines
// while Start and Finalize run on the coordinator loop.
type Recorder struct {
	cfg         Config
	clk         clock.Clock
	session     domain.SessionID
	participant domain.ParticipantID

	mu          sync.Mutex
	writer      media.Writer
	buf         *chunks
	contentType string
	started     time.Time
	writeErrs   int

	log zerolog.Logger
}

func New(cfg Config, clk clock.Clock, session domain.SessionID, participant domain.ParticipantID) *Recorder {
	return &Recorder{
		cfg:         cfg,
		clk:         clk,
		session:     session,
		participant: participant,
		log: log.With().Str("module", "recording").
			Str("session", string(session)).Str("participant", string(participant)).Logger(),
	}
}

// Start opens the container writer for the configured track.
func (r *Recorder) Start() error {
	if !r.cfg.Enabled {
		return ErrDisabled
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer != nil {
		return nil
	}

	buf := newChunks(r.cfg.ChunkBytes)
	var (
		w   media.Writer
		err error
	)
	switch r.cfg.Track {
	case TrackVideo, "":
		w, err = ivfwriter.NewWith(buf)
		r.contentType = ContentTypeIVF
	case TrackAudio:
		w, err = oggwriter.NewWith(buf, 48000, 2)
		r.contentType = ContentTypeOgg
	default:
		return fmt.Errorf("unknown recording track %q", r.cfg.Track)
	}
	if err != nil {
		return fmt.Errorf("open %s writer: %w", r.contentType, err)
	}
	r.writer = w
	r.buf = buf
	r.started = r.clk.Now()
	metrics.RecordingBytes.Add(float64(buf.Len()))
	r.log.Info().Str("content_type", r.contentType).Int("chunk_bytes", buf.size).Msg("recording started")
	return nil
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer != nil
}

// Sinks returns the capture sinks for video and audio. The one not selected
// by the configured track is nil.
func (r *Recorder) Sinks() (video, audio func(*rtp.Packet)) {
	if r.cfg.Track == TrackAudio {
		return nil, r.write
	}
	return r.write, nil
}

func (r *Recorder) write(p *rtp.Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return
	}
	before := r.buf.Len()
	if err := r.writer.WriteRTP(p); err != nil {
		// Log the first few only; a broken stream repeats the same error.
		if r.writeErrs < 3 {
			r.log.Warn().Err(err).Msg("write packet")
		}
		r.writeErrs++
		return
	}
	metrics.RecordingBytes.Add(float64(r.buf.Len() - before))
}

// Finalize closes the writer and returns the artifact. Further packets are
// ignored.
func (r *Recorder) Finalize() (domain.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return domain.Artifact{}, ErrNotRecording
	}
	if err := r.writer.Close(); err != nil {
		r.log.Warn().Err(err).Msg("close writer")
	}
	r.writer = nil

	blob := r.buf.Bytes()
	a := domain.Artifact{
		ID:          uuid.NewString(),
		Session:     r.session,
		Participant: r.participant,
		ContentType: r.contentType,
		Blob:        blob,
		Size:        len(blob),
		Duration:    r.clk.Now().Sub(r.started),
	}
	r.log.Info().
		Int("size", a.Size).
		Int("chunks", r.buf.Count()).
		Dur("duration", a.Duration).
		Msg("recording finalized")
	return a, nil
}
