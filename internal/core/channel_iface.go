package core

import (
	"github.com/dkeye/Mesh/internal/domain"
)

// ConnID identifies one websocket subscription on the hub.
type ConnID string

// Subscriber binds a participant to its transport endpoint.
// This is what a channel stores and fans out to.
type Subscriber interface {
	Participant() domain.ParticipantID
	Signal() SignalConnection
}

// PublishResult reports delivery stats/backpressure to the hub.
type PublishResult struct {
	SendTo  int
	Dropped []ConnID
}

// SubscriberDTO is a read-only view for APIs (no transport fields).
type SubscriberDTO struct {
	Conn        ConnID               `json:"conn"`
	Participant domain.ParticipantID `json:"participant"`
}

// ChannelService is the hub-side fan-out of one session.
// It owns the subscription set but never touches transport resources.
type ChannelService interface {
	Session() domain.SessionID
	SubscriberCount() int
	SubscribersSnapshot() []SubscriberDTO

	AddSubscriber(cid ConnID, s Subscriber)
	RemoveSubscriber(cid ConnID)
	Broadcast(data Frame) PublishResult
}

type ChannelInfo struct {
	Session         domain.SessionID `json:"session"`
	SubscriberCount int              `json:"subscriber_count"`
}

type ChannelFactory interface {
	GetOrCreate(session domain.SessionID) ChannelService
	Lookup(session domain.SessionID) (ChannelService, bool)
	List() []ChannelInfo
	Drop(session domain.SessionID)
}

type subscriber struct {
	participant domain.ParticipantID
	conn        SignalConnection
}

func NewSubscriber(participant domain.ParticipantID, conn SignalConnection) Subscriber {
	return &subscriber{participant: participant, conn: conn}
}

func (s *subscriber) Participant() domain.ParticipantID { return s.participant }
func (s *subscriber) Signal() SignalConnection          { return s.conn }
