// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	MaxParticipantIDLen = 36
	MaxDisplayNameLen   = 36
)

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrParticipantIDEmpty = errors.New("participant id empty")
	ErrParticipantIDLong  = errors.New("participant id too long")
)

type ParticipantID string

// DisplayMeta is what other participants render for someone.
type DisplayMeta struct {
	Name string `json:"name" msgpack:"name"`
}

// MediaFlags mirrors the publishing state of a participant.
type MediaFlags struct {
	Video  bool `json:"video" msgpack:"video"`
	Audio  bool `json:"audio" msgpack:"audio"`
	Screen bool `json:"screen" msgpack:"screen"`
}

type Participant struct {
	ID       ParticipantID `json:"id"`
	Display  DisplayMeta   `json:"display"`
	JoinedAt time.Time     `json:"joined_at"`
	Media    MediaFlags    `json:"media"`
}

// NewParticipant builds the local participant. An empty id gets a fresh uuid.
func NewParticipant(id ParticipantID, name string) (*Participant, error) {
	if id == "" {
		id = ParticipantID(uuid.NewString())
	}
	if err := ValidateParticipantID(id); err != nil {
		return nil, err
	}
	p := &Participant{ID: id}
	if err := p.SetDisplayName(name); err != nil {
		return nil, err
	}
	return p, nil
}

func ValidateParticipantID(id ParticipantID) error {
	if len(id) == 0 {
		return ErrParticipantIDEmpty
	}
	if len(id) > MaxParticipantIDLen {
		return ErrParticipantIDLong
	}
	return nil
}

func (p *Participant) SetDisplayName(name string) error {
	if len(name) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	p.Display.Name = name
	return nil
}
