package session

import (
	"github.com/dkeye/Mesh/internal/domain"
)

func (c *Coordinator) handle(e domain.Event) {
	if c.state != StateActive || !e.AddressedTo(c.cfg.Self) {
		return
	}
	switch e.Type {
	case domain.EventJoined:
		c.onJoined(e)
	case domain.EventLeft:
		c.onLeft(e.From)
	case domain.EventOffer:
		if _, gone := c.departed[e.From]; gone {
			c.log.Debug().Str("remote", string(e.From)).Msg("offer from departed participant")
			return
		}
		c.links.HandleOffer(e)
	case domain.EventAnswer:
		c.links.HandleAnswer(e)
	case domain.EventCandidate:
		c.links.HandleCandidate(e)
	case domain.EventParticipantUpdate:
		if r, ok := c.roster[e.From]; ok && e.Media != nil {
			r.Media = *e.Media
		}
	case domain.EventSessionEnded:
		c.log.Info().Str("ended_by", string(e.EndedBy)).Str("remote_reason", string(e.Reason)).Msg("session ended remotely")
		c.terminate(domain.ReasonRemoteEnded)
	}
}

// onJoined adds the announcer to the roster. A fresh announcement makes us
// the offerer toward the newcomer and gets a reply so it learns about us.
func (c *Coordinator) onJoined(e domain.Event) {
	delete(c.departed, e.From)
	r, present := c.roster[e.From]
	if !present {
		r = &Remote{ID: e.From, JoinedAt: c.deps.Clock.Now()}
		c.roster[e.From] = r
		c.log.Info().Str("remote", string(e.From)).Bool("reply", e.Reply).Int("roster", len(c.roster)).Msg("participant joined")
	}
	if e.Display != nil {
		r.Display = *e.Display
	}
	if e.Media != nil {
		r.Media = *e.Media
	}
	c.timers.SetAlone(false)

	if e.Reply {
		return
	}
	c.publish(domain.JoinedReply(c.cfg.Self, e.From, c.cfg.Display, c.media.Flags()))
	c.links.Connect(e.From)
}

func (c *Coordinator) onLeft(remote domain.ParticipantID) {
	c.departed[remote] = struct{}{}
	c.links.Remove(remote)
	if _, ok := c.roster[remote]; !ok {
		return
	}
	delete(c.roster, remote)
	c.log.Info().Str("remote", string(remote)).Int("roster", len(c.roster)).Msg("participant left")
	c.timers.SetAlone(len(c.roster) == 0)
}

func (c *Coordinator) onDrop(remote domain.ParticipantID) {
	if _, ok := c.roster[remote]; !ok {
		return
	}
	delete(c.roster, remote)
	c.log.Warn().Str("remote", string(remote)).Int("roster", len(c.roster)).Msg("participant dropped after failed recovery")
	c.timers.SetAlone(len(c.roster) == 0)
}

func (c *Coordinator) publish(e domain.Event) {
	if err := c.channel.Publish(c.ctx, e); err != nil {
		c.log.Warn().Err(err).Str("type", string(e.Type)).Msg("publish")
	}
}
