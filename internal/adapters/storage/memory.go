// Package storage implements the attendance and artifact collaborator: an
// in-memory repository for the hub and an HTTP client for participants.
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dkeye/Mesh/internal/clock"
	"github.com/dkeye/Mesh/internal/domain"
)

type Attendance struct {
	Participant     domain.ParticipantID `json:"participant_id"`
	JoinedAt        time.Time            `json:"joined_at"`
	LeftAt          *time.Time           `json:"left_at,omitempty"`
	Active          bool                 `json:"active"`
	DurationSeconds int                  `json:"duration_seconds"`
	ScreenShared    bool                 `json:"screen_shared"`
}

// ArtifactMeta describes a stored recording without its blob.
type ArtifactMeta struct {
	ID              string               `json:"id"`
	Participant     domain.ParticipantID `json:"participant_id"`
	ContentType     string               `json:"content_type"`
	Size            int                  `json:"size"`
	DurationSeconds int                  `json:"duration_seconds"`
}

// ReportView is a report together with the recordings of its session.
type ReportView struct {
	domain.Report
	Recordings []ArtifactMeta `json:"recordings"`
}

type InMemoryRepository struct {
	clk clock.Clock

	mu         sync.RWMutex
	sessions   map[domain.SessionID]*domain.Session
	attendance map[domain.SessionID]map[domain.ParticipantID]*Attendance
	artifacts  map[domain.SessionID][]domain.Artifact
	reports    map[domain.SessionID][]domain.Report
}

func NewInMemoryRepository(clk clock.Clock) *InMemoryRepository {
	if clk == nil {
		clk = clock.Real{}
	}
	return &InMemoryRepository{
		clk:        clk,
		sessions:   make(map[domain.SessionID]*domain.Session),
		attendance: make(map[domain.SessionID]map[domain.ParticipantID]*Attendance),
		artifacts:  make(map[domain.SessionID][]domain.Artifact),
		reports:    make(map[domain.SessionID][]domain.Report),
	}
}

// StartSession creates the active session of a community. Only one may be
// active per community.
func (r *InMemoryRepository) StartSession(ctx context.Context, community domain.CommunityID) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.Community == community && s.Status == domain.SessionActive {
			return *s, domain.ErrSessionExists
		}
	}
	s := &domain.Session{
		ID:        domain.SessionID(uuid.NewString()),
		Community: community,
		Status:    domain.SessionActive,
		StartedAt: r.clk.Now(),
	}
	r.sessions[s.ID] = s
	return *s, nil
}

func (r *InMemoryRepository) Session(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return *s, nil
}

// RecordJoin marks participant present. Unknown sessions are opened
// implicitly so ad-hoc meetings work without StartSession.
func (r *InMemoryRepository) RecordJoin(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[session]
	if !ok {
		s = &domain.Session{ID: session, Status: domain.SessionActive, StartedAt: r.clk.Now()}
		r.sessions[session] = s
	}
	if s.Status != domain.SessionActive {
		return domain.ErrSessionNotActive
	}
	byID, ok := r.attendance[session]
	if !ok {
		byID = make(map[domain.ParticipantID]*Attendance)
		r.attendance[session] = byID
	}
	a, ok := byID[participant]
	if !ok {
		a = &Attendance{Participant: participant}
		byID[participant] = a
	}
	a.JoinedAt = r.clk.Now()
	a.LeftAt = nil
	a.Active = true
	return nil
}

func (r *InMemoryRepository) RecordLeave(ctx context.Context, session domain.SessionID, participant domain.ParticipantID, durationSeconds int, screenShared bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attendance[session][participant]
	if !ok {
		return domain.ErrSessionNotFound
	}
	now := r.clk.Now()
	a.LeftAt = &now
	a.Active = false
	a.DurationSeconds += durationSeconds
	a.ScreenShared = a.ScreenShared || screenShared
	return nil
}

// IsSoleActiveParticipant reports whether nobody but participant is active.
func (r *InMemoryRepository) IsSoleActiveParticipant(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, a := range r.attendance[session] {
		if a.Active && id != participant {
			return false, nil
		}
	}
	return true, nil
}

func (r *InMemoryRepository) UploadRecordingArtifact(ctx context.Context, artifact domain.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if artifact.ID == "" {
		artifact.ID = uuid.NewString()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts[artifact.Session] = append(r.artifacts[artifact.Session], artifact)
	return nil
}

func (r *InMemoryRepository) CompleteSession(ctx context.Context, session domain.SessionID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[session]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if s.Status == domain.SessionCompleted {
		return nil
	}
	now := r.clk.Now()
	s.Status = domain.SessionCompleted
	s.EndedAt = &now
	return nil
}

func (r *InMemoryRepository) Report(ctx context.Context, report domain.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if report.At.IsZero() {
		report.At = r.clk.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[report.Session] = append(r.reports[report.Session], report)
	return nil
}

// Reports lists the reports of session with the recordings it holds.
func (r *InMemoryRepository) Reports(ctx context.Context, session domain.SessionID) ([]ReportView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	recs := r.artifactMetas(session)
	out := make([]ReportView, 0, len(r.reports[session]))
	for _, rep := range r.reports[session] {
		out = append(out, ReportView{Report: rep, Recordings: recs})
	}
	return out, nil
}

func (r *InMemoryRepository) Artifacts(ctx context.Context, session domain.SessionID) ([]ArtifactMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.artifactMetas(session), nil
}

// Artifact returns the newest recording of participant in session.
func (r *InMemoryRepository) Artifact(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (domain.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return domain.Artifact{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.artifacts[session]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Participant == participant {
			return list[i], nil
		}
	}
	return domain.Artifact{}, domain.ErrArtifactNotFound
}

func (r *InMemoryRepository) Attendance(ctx context.Context, session domain.SessionID) ([]Attendance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Attendance, 0, len(r.attendance[session]))
	for _, a := range r.attendance[session] {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Participant < out[j].Participant })
	return out, nil
}

func (r *InMemoryRepository) artifactMetas(session domain.SessionID) []ArtifactMeta {
	list := r.artifacts[session]
	out := make([]ArtifactMeta, 0, len(list))
	for _, a := range list {
		out = append(out, ArtifactMeta{
			ID:              a.ID,
			Participant:     a.Participant,
			ContentType:     a.ContentType,
			Size:            a.Size,
			DurationSeconds: a.DurationSeconds(),
		})
	}
	return out
}
