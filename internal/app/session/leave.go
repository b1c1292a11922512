package session

import (
	"context"

	"github.com/sourcegraph/conc"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/metrics"
)

// terminate moves an active session to leaving. Local resources are released
// on the loop; storage calls and the channel close run off the loop and the
// final transition to ended is posted back.
func (c *Coordinator) terminate(reason domain.EndReason) {
	if c.state != StateActive {
		return
	}
	c.state = StateLeaving
	c.log.Info().Str("reason", string(reason)).Int("roster", len(c.roster)).Msg("leaving")

	c.timers.Stop()
	screenShared := c.media.ScreenShared()
	c.media.Stop()
	artifact, recErr := c.recorder.Finalize()

	if reason.Broadcast() {
		c.publish(domain.SessionEnded(c.cfg.Self, reason))
	}
	c.publish(domain.Left(c.cfg.Self))
	c.links.CloseAll()
	c.roster = make(map[domain.ParticipantID]*Remote)

	res := Result{
		Reason:       reason,
		Duration:     c.deps.Clock.Now().Sub(c.joinedAt),
		ScreenShared: screenShared,
		Recorded:     recErr == nil,
	}
	var upload *domain.Artifact
	if recErr == nil {
		upload = &artifact
	}
	go c.teardown(c.channel, res, upload)
}

func (c *Coordinator) teardown(ch core.Channel, res Result, artifact *domain.Artifact) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), c.cfg.TeardownTimeout)
	defer cancel()
	session, self := c.cfg.Session, c.cfg.Self

	var wg conc.WaitGroup
	if artifact != nil {
		wg.Go(func() {
			if err := c.deps.Storage.UploadRecordingArtifact(ctx, *artifact); err != nil {
				c.log.Warn().Err(err).Int("size", artifact.Size).Msg("recording upload failed")
				return
			}
			c.log.Info().Str("artifact", artifact.ID).Int("size", artifact.Size).Msg("recording uploaded")
		})
	}
	wg.Go(func() {
		seconds := int(res.Duration.Seconds())
		if err := c.deps.Storage.RecordLeave(ctx, session, self, seconds, res.ScreenShared); err != nil {
			c.log.Warn().Err(err).Msg("record leave")
		}
	})
	if res.Reason.Broadcast() {
		wg.Go(func() {
			if err := c.deps.Storage.CompleteSession(ctx, session); err != nil {
				c.log.Warn().Err(err).Msg("complete session")
			}
		})
	}
	wg.Go(func() {
		if err := ch.Close(); err != nil {
			c.log.Warn().Err(err).Msg("close channel")
		}
	})
	wg.Wait()

	metrics.SessionTerminations.WithLabelValues(string(res.Reason)).Inc()
	c.post(func() { c.finish(res) })
}

func (c *Coordinator) finish(res Result) {
	c.state = StateEnded
	c.setResult(res)
	close(c.done)
	c.cancel()
	c.log.Info().Str("reason", string(res.Reason)).Dur("duration", res.Duration).Msg("ended")
}
