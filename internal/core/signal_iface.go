package core

import (
	"context"

	"github.com/dkeye/Mesh/internal/domain"
)

// Frame is a raw encoded signaling message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Bus opens the per-session signaling channel.
type Bus interface {
	Subscribe(ctx context.Context, session domain.SessionID, self domain.ParticipantID) (Channel, error)
}

// Channel delivers every published event to all subscribers, sender included.
// Events of one type from one sender arrive in publish order.
type Channel interface {
	Publish(ctx context.Context, e domain.Event) error
	On(t domain.EventType, fn func(domain.Event))
	// Done is closed once the channel is lost or closed.
	Done() <-chan struct{}
	Close() error
}
