package app

import (
	"sync"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

type ChannelManagerImpl struct {
	mu       sync.RWMutex
	channels map[domain.SessionID]core.ChannelService
}

func NewChannelManager() core.ChannelFactory {
	return &ChannelManagerImpl{channels: make(map[domain.SessionID]core.ChannelService)}
}

func (f *ChannelManagerImpl) GetOrCreate(session domain.SessionID) core.ChannelService {
	f.mu.RLock()
	ch, ok := f.channels[session]
	f.mu.RUnlock()
	if ok {
		return ch
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok = f.channels[session]; ok {
		return ch
	}
	ch = core.NewChannelService(session)
	f.channels[session] = ch
	return ch
}

func (f *ChannelManagerImpl) Lookup(session domain.SessionID) (core.ChannelService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ch, ok := f.channels[session]
	return ch, ok
}

func (f *ChannelManagerImpl) List() []core.ChannelInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.ChannelInfo, 0, len(f.channels))
	for session, ch := range f.channels {
		out = append(out, core.ChannelInfo{Session: session, SubscriberCount: ch.SubscriberCount()})
	}
	return out
}

// Drop removes the channel if nobody is subscribed anymore.
func (f *ChannelManagerImpl) Drop(session domain.SessionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.channels[session]; ok && ch.SubscriberCount() == 0 {
		delete(f.channels, session)
	}
}
