package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

var ErrClosed = errors.New("signal channel closed")

const memoryQueue = 256

// MemoryBus is an in-process Bus. Frames go through the codec so the wire
// shape is exercised, and each subscriber has its own delivery goroutine,
// which keeps per-sender order.
type MemoryBus struct {
	codec Codec

	mu          sync.Mutex
	sessions      map[domain.SessionID]map[*memoryChannel]struct{}
	failSubscribe int
	failPublish   int
}

func NewMemoryBus(codec Codec) *MemoryBus {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &MemoryBus{
		codec:    codec,
		sessions: make(map[domain.SessionID]map[*memoryChannel]struct{}),
	}
}

// FailSubscribes makes the next n Subscribe calls fail.
func (b *MemoryBus) FailSubscribes(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failSubscribe = n
}

// FailPublishes makes the next n Publish calls on any channel fail.
func (b *MemoryBus) FailPublishes(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failPublish = n
}

// PublishFailuresLeft reports how many of the injected publish failures
// have not been consumed yet.
func (b *MemoryBus) PublishFailuresLeft() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failPublish
}

func (b *MemoryBus) takePublishFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPublish == 0 {
		return false
	}
	b.failPublish--
	return true
}

func (b *MemoryBus) Subscribe(ctx context.Context, session domain.SessionID, self domain.ParticipantID) (core.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSubscribe > 0 {
		b.failSubscribe--
		return nil, fmt.Errorf("subscribe %s: %w", session, domain.ErrNetworkUnreachable)
	}
	ch := &memoryChannel{
		bus:     b,
		session: session,
		self:    self,
		queue:   make(chan core.Frame, memoryQueue),
		done:    make(chan struct{}),
	}
	subs, ok := b.sessions[session]
	if !ok {
		subs = make(map[*memoryChannel]struct{})
		b.sessions[session] = subs
	}
	subs[ch] = struct{}{}
	go ch.run()
	return ch, nil
}

// Subscribers returns how many channels are open on session.
func (b *MemoryBus) Subscribers(session domain.SessionID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions[session])
}

// Disconnect drops participant's channels as a lost connection would.
func (b *MemoryBus) Disconnect(session domain.SessionID, participant domain.ParticipantID) {
	b.mu.Lock()
	var lost []*memoryChannel
	for ch := range b.sessions[session] {
		if ch.self == participant {
			lost = append(lost, ch)
		}
	}
	b.mu.Unlock()
	for _, ch := range lost {
		_ = ch.Close()
	}
}

func (b *MemoryBus) deliver(session domain.SessionID, f core.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.sessions[session] {
		select {
		case ch.queue <- f:
		default:
			log.Warn().Str("module", "signal.memory").Str("session", string(session)).Str("participant", string(ch.self)).Msg("queue full, frame dropped")
		}
	}
}

func (b *MemoryBus) remove(ch *memoryChannel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.sessions[ch.session]; ok {
		delete(subs, ch)
		if len(subs) == 0 {
			delete(b.sessions, ch.session)
		}
	}
}

type memoryChannel struct {
	handlers
	bus     *MemoryBus
	session domain.SessionID
	self    domain.ParticipantID
	queue   chan core.Frame
	done    chan struct{}
	once    sync.Once
}

func (c *memoryChannel) Publish(_ context.Context, e domain.Event) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if c.bus.takePublishFailure() {
		return fmt.Errorf("publish %s: %w", e.Type, domain.ErrNetworkUnreachable)
	}
	f, err := c.bus.codec.Encode(e)
	if err != nil {
		return err
	}
	c.bus.deliver(c.session, f)
	return nil
}

func (c *memoryChannel) Done() <-chan struct{} { return c.done }

func (c *memoryChannel) Close() error {
	c.once.Do(func() {
		c.bus.remove(c)
		close(c.done)
	})
	return nil
}

func (c *memoryChannel) run() {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.queue:
			e, err := c.bus.codec.Decode(f)
			if err != nil {
				log.Warn().Err(err).Str("module", "signal.memory").Msg("decode")
				continue
			}
			c.dispatch(e)
		}
	}
}
