package domain

import "time"

type (
	SessionID   string
	CommunityID string
)

type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

type Session struct {
	ID        SessionID     `json:"id"`
	Community CommunityID   `json:"community_id"`
	Status    SessionStatus `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
}

// EndReason explains why a local session reached the ended state.
type EndReason string

const (
	ReasonLeft           EndReason = "left"
	ReasonInactivity     EndReason = "inactivity"
	ReasonNoParticipants EndReason = "no_participants"
	ReasonEndedForAll    EndReason = "ended_for_all"
	ReasonRemoteEnded    EndReason = "remote_ended"
	ReasonSignalLost     EndReason = "signal_lost"
)

// Broadcast reports whether the reason is announced with session_ended.
func (r EndReason) Broadcast() bool {
	switch r {
	case ReasonInactivity, ReasonNoParticipants, ReasonEndedForAll:
		return true
	}
	return false
}

// Artifact is a finished recording handed to storage.
type Artifact struct {
	ID          string        `json:"id"`
	Session     SessionID     `json:"session_id"`
	Participant ParticipantID `json:"participant_id"`
	ContentType string        `json:"content_type"`
	Blob        []byte        `json:"-"`
	Size        int           `json:"size"`
	Duration    time.Duration `json:"duration"`
}

// DurationSeconds rounds down to whole seconds.
func (a Artifact) DurationSeconds() int { return int(a.Duration / time.Second) }

type Report struct {
	Session     SessionID     `json:"session_id"`
	Participant ParticipantID `json:"participant_id"`
	ReportedBy  ParticipantID `json:"reported_by"`
	At          time.Time     `json:"at"`
}
