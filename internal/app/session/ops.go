package session

import (
	"context"
	"errors"

	"github.com/dkeye/Mesh/internal/domain"
)

var ErrNoReporter = errors.New("reporting not configured")

// Leave ends the local presence with reason left.
func (c *Coordinator) Leave() error {
	var err error
	if derr := c.do(func() {
		if c.state != StateActive {
			err = ErrNotActive
			return
		}
		c.terminate(domain.ReasonLeft)
	}); derr != nil {
		return derr
	}
	return err
}

// EndForAll ends the session for everyone. Only the sole active participant,
// as the storage roster sees it, may do that.
func (c *Coordinator) EndForAll(ctx context.Context) error {
	if c.State() != StateActive {
		return ErrNotActive
	}
	sole, err := c.deps.Storage.IsSoleActiveParticipant(ctx, c.cfg.Session, c.cfg.Self)
	if err != nil {
		return err
	}
	if !sole {
		return domain.ErrNotSoleParticipant
	}
	if derr := c.do(func() {
		if c.state != StateActive {
			err = ErrNotActive
			return
		}
		c.terminate(domain.ReasonEndedForAll)
	}); derr != nil {
		return derr
	}
	return err
}

// Touch records a user interaction.
func (c *Coordinator) Touch() {
	_ = c.do(func() {
		if c.state == StateActive {
			c.timers.Touch()
		}
	})
}

func (c *Coordinator) ToggleVideo() (domain.MediaFlags, error) {
	return c.toggle(func() (domain.MediaFlags, error) { return c.media.ToggleVideo(), nil })
}

func (c *Coordinator) ToggleAudio() (domain.MediaFlags, error) {
	return c.toggle(func() (domain.MediaFlags, error) { return c.media.ToggleAudio(), nil })
}

func (c *Coordinator) ToggleScreenShare() (domain.MediaFlags, error) {
	return c.toggle(c.media.ToggleScreenShare)
}

func (c *Coordinator) toggle(fn func() (domain.MediaFlags, error)) (domain.MediaFlags, error) {
	var (
		flags domain.MediaFlags
		err   error
	)
	if derr := c.do(func() {
		if c.state != StateActive {
			err = ErrNotActive
			return
		}
		c.timers.Touch()
		flags, err = fn()
	}); derr != nil {
		return flags, derr
	}
	return flags, err
}

// Report hands "report this participant" to the reporting collaborator.
func (c *Coordinator) Report(ctx context.Context, target domain.ParticipantID) error {
	c.Touch()
	if c.deps.Reporter == nil {
		return ErrNoReporter
	}
	r := domain.Report{
		Session:     c.cfg.Session,
		Participant: target,
		ReportedBy:  c.cfg.Self,
		At:          c.deps.Clock.Now(),
	}
	if err := c.deps.Reporter.Report(ctx, r); err != nil {
		return err
	}
	c.log.Info().Str("target", string(target)).Msg("participant reported")
	return nil
}
