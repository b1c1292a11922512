package domain

type EventType string

const (
	EventJoined            EventType = "joined"
	EventLeft              EventType = "left"
	EventOffer             EventType = "offer"
	EventAnswer            EventType = "answer"
	EventCandidate         EventType = "candidate"
	EventParticipantUpdate EventType = "participant_update"
	EventSessionEnded      EventType = "session_ended"
)

type SessionDescription struct {
	Type string `json:"type" msgpack:"type"`
	SDP  string `json:"sdp" msgpack:"sdp"`
}

type Candidate struct {
	Candidate        string  `json:"candidate" msgpack:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty" msgpack:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty" msgpack:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty" msgpack:"usernameFragment,omitempty"`
}

// Event is the single signaling envelope. Which optional fields are set
// depends on Type.
type Event struct {
	Type        EventType           `json:"type" msgpack:"type"`
	From        ParticipantID       `json:"fromId" msgpack:"fromId"`
	To          ParticipantID       `json:"toId,omitempty" msgpack:"toId,omitempty"`
	Negotiation string              `json:"negotiationId,omitempty" msgpack:"negotiationId,omitempty"`
	Description *SessionDescription `json:"description,omitempty" msgpack:"description,omitempty"`
	Candidate   *Candidate          `json:"candidate,omitempty" msgpack:"candidate,omitempty"`
	Display     *DisplayMeta        `json:"displayMeta,omitempty" msgpack:"displayMeta,omitempty"`
	Media       *MediaFlags         `json:"mediaFlags,omitempty" msgpack:"mediaFlags,omitempty"`
	Reply       bool                `json:"reply,omitempty" msgpack:"reply,omitempty"`
	Reason      EndReason           `json:"reason,omitempty" msgpack:"reason,omitempty"`
	EndedBy     ParticipantID       `json:"endedBy,omitempty" msgpack:"endedBy,omitempty"`
}

// AddressedTo reports whether self should look at the event at all.
func (e Event) AddressedTo(self ParticipantID) bool {
	if e.From == self {
		return false
	}
	return e.To == "" || e.To == self
}

func Joined(from ParticipantID, display DisplayMeta, media MediaFlags) Event {
	return Event{Type: EventJoined, From: from, Display: &display, Media: &media}
}

// JoinedReply answers a fresh announcement so the newcomer learns about from.
func JoinedReply(from, to ParticipantID, display DisplayMeta, media MediaFlags) Event {
	e := Joined(from, display, media)
	e.To = to
	e.Reply = true
	return e
}

func Left(from ParticipantID) Event {
	return Event{Type: EventLeft, From: from}
}

func Offer(from, to ParticipantID, negotiation string, desc SessionDescription) Event {
	return Event{Type: EventOffer, From: from, To: to, Negotiation: negotiation, Description: &desc}
}

func Answer(from, to ParticipantID, negotiation string, desc SessionDescription) Event {
	return Event{Type: EventAnswer, From: from, To: to, Negotiation: negotiation, Description: &desc}
}

func CandidateEvent(from, to ParticipantID, negotiation string, c Candidate) Event {
	return Event{Type: EventCandidate, From: from, To: to, Negotiation: negotiation, Candidate: &c}
}

func ParticipantUpdate(from ParticipantID, media MediaFlags) Event {
	return Event{Type: EventParticipantUpdate, From: from, Media: &media}
}

func SessionEnded(from ParticipantID, reason EndReason) Event {
	return Event{Type: EventSessionEnded, From: from, Reason: reason, EndedBy: from}
}
