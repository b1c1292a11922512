package core

import (
	"context"

	"github.com/dkeye/Mesh/internal/domain"
)

//go:generate mockgen -destination=mocks/storage_mock.go -package=mocks . Storage

// Storage is the attendance and artifact collaborator.
type Storage interface {
	RecordJoin(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) error
	RecordLeave(ctx context.Context, session domain.SessionID, participant domain.ParticipantID, durationSeconds int, screenShared bool) error
	IsSoleActiveParticipant(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (bool, error)
	UploadRecordingArtifact(ctx context.Context, artifact domain.Artifact) error
	CompleteSession(ctx context.Context, session domain.SessionID) error
}

// Reporter receives "report this participant" triggers. It fetches any
// recording on its own by session id.
type Reporter interface {
	Report(ctx context.Context, report domain.Report) error
}
