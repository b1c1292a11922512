package core

import (
	"sync"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/rs/zerolog/log"
)

// channelImpl is a threadsafe in-memory session channel.
// It never closes adapter-owned resources.
type channelImpl struct {
	session domain.SessionID
	mu      sync.RWMutex
	byConn  map[ConnID]Subscriber
}

func NewChannelService(session domain.SessionID) ChannelService {
	return &channelImpl{
		session: session,
		byConn:  make(map[ConnID]Subscriber),
	}
}

func (c *channelImpl) Session() domain.SessionID { return c.session }

func (c *channelImpl) SubscriberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byConn)
}

func (c *channelImpl) AddSubscriber(cid ConnID, s Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byConn[cid] = s
	log.Info().Str("module", "core.channel").Str("session", string(c.session)).Str("conn", string(cid)).Str("participant", string(s.Participant())).Msg("subscriber added")
}

func (c *channelImpl) RemoveSubscriber(cid ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byConn[cid]; !ok {
		return
	}
	delete(c.byConn, cid)
	log.Info().Str("module", "core.channel").Str("session", string(c.session)).Str("conn", string(cid)).Msg("subscriber removed")
}

// Broadcast delivers data to every subscriber, the publisher included.
func (c *channelImpl) Broadcast(data Frame) PublishResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := PublishResult{}
	for cid, s := range c.byConn {
		if err := s.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, cid)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.channel").Str("session", string(c.session)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (c *channelImpl) SubscribersSnapshot() []SubscriberDTO {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SubscriberDTO, 0, len(c.byConn))
	for cid, s := range c.byConn {
		out = append(out, SubscriberDTO{Conn: cid, Participant: s.Participant()})
	}
	return out
}
