package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Mesh/internal/clock"
	"github.com/dkeye/Mesh/internal/domain"
)

func newRepo() (*InMemoryRepository, *clock.Manual) {
	clk := clock.NewManual(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	return NewInMemoryRepository(clk), clk
}

func TestStartSession_OnePerCommunity(t *testing.T) {
	repo, _ := newRepo()
	ctx := context.Background()

	s, err := repo.StartSession(ctx, "chess-club")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, s.Status)

	again, err := repo.StartSession(ctx, "chess-club")
	assert.ErrorIs(t, err, domain.ErrSessionExists)
	assert.Equal(t, s.ID, again.ID)

	_, err = repo.StartSession(ctx, "book-club")
	assert.NoError(t, err)

	require.NoError(t, repo.CompleteSession(ctx, s.ID))
	_, err = repo.StartSession(ctx, "chess-club")
	assert.NoError(t, err)
}

func TestRecordJoin_OpensSessionImplicitly(t *testing.T) {
	repo, _ := newRepo()
	ctx := context.Background()

	require.NoError(t, repo.RecordJoin(ctx, "s1", "alice"))
	s, err := repo.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, s.Status)

	require.NoError(t, repo.CompleteSession(ctx, "s1"))
	assert.ErrorIs(t, repo.RecordJoin(ctx, "s1", "bob"), domain.ErrSessionNotActive)
}

func TestIsSoleActiveParticipant(t *testing.T) {
	repo, clk := newRepo()
	ctx := context.Background()

	require.NoError(t, repo.RecordJoin(ctx, "s1", "alice"))
	sole, err := repo.IsSoleActiveParticipant(ctx, "s1", "alice")
	require.NoError(t, err)
	assert.True(t, sole)

	require.NoError(t, repo.RecordJoin(ctx, "s1", "bob"))
	sole, err = repo.IsSoleActiveParticipant(ctx, "s1", "alice")
	require.NoError(t, err)
	assert.False(t, sole)

	clk.Advance(90 * time.Second)
	require.NoError(t, repo.RecordLeave(ctx, "s1", "bob", 90, true))
	sole, err = repo.IsSoleActiveParticipant(ctx, "s1", "alice")
	require.NoError(t, err)
	assert.True(t, sole)

	att, err := repo.Attendance(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, att, 2)
	assert.Equal(t, domain.ParticipantID("alice"), att[0].Participant)
	assert.True(t, att[0].Active)
	assert.False(t, att[1].Active)
	assert.Equal(t, 90, att[1].DurationSeconds)
	assert.True(t, att[1].ScreenShared)
	require.NotNil(t, att[1].LeftAt)
}

func TestRecordLeave_Unknown(t *testing.T) {
	repo, _ := newRepo()
	assert.ErrorIs(t, repo.RecordLeave(context.Background(), "s1", "ghost", 1, false), domain.ErrSessionNotFound)
}

func TestCompleteSession_Idempotent(t *testing.T) {
	repo, clk := newRepo()
	ctx := context.Background()
	require.NoError(t, repo.RecordJoin(ctx, "s1", "alice"))

	require.NoError(t, repo.CompleteSession(ctx, "s1"))
	first, err := repo.Session(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, first.EndedAt)

	clk.Advance(time.Minute)
	require.NoError(t, repo.CompleteSession(ctx, "s1"))
	second, err := repo.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, *first.EndedAt, *second.EndedAt)

	assert.ErrorIs(t, repo.CompleteSession(ctx, "nope"), domain.ErrSessionNotFound)
}

func TestReports_CarryRecordings(t *testing.T) {
	repo, _ := newRepo()
	ctx := context.Background()

	require.NoError(t, repo.UploadRecordingArtifact(ctx, domain.Artifact{
		Session:     "s1",
		Participant: "bob",
		ContentType: "video/x-ivf",
		Blob:        []byte("old"),
		Size:        3,
		Duration:    10 * time.Second,
	}))
	require.NoError(t, repo.UploadRecordingArtifact(ctx, domain.Artifact{
		ID:          "newest",
		Session:     "s1",
		Participant: "bob",
		ContentType: "video/x-ivf",
		Blob:        []byte("newer"),
		Size:        5,
		Duration:    20 * time.Second,
	}))
	require.NoError(t, repo.Report(ctx, domain.Report{Session: "s1", Participant: "bob", ReportedBy: "alice"}))

	reports, err := repo.Reports(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, domain.ParticipantID("alice"), reports[0].ReportedBy)
	assert.False(t, reports[0].At.IsZero())
	require.Len(t, reports[0].Recordings, 2)
	assert.NotEmpty(t, reports[0].Recordings[0].ID)
	assert.Equal(t, 20, reports[0].Recordings[1].DurationSeconds)

	a, err := repo.Artifact(ctx, "s1", "bob")
	require.NoError(t, err)
	assert.Equal(t, "newest", a.ID)
	assert.Equal(t, []byte("newer"), a.Blob)

	_, err = repo.Artifact(ctx, "s1", "alice")
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)
}

func TestCancelledContext(t *testing.T) {
	repo, _ := newRepo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, repo.RecordJoin(ctx, "s1", "alice"), context.Canceled)
	_, err := repo.IsSoleActiveParticipant(ctx, "s1", "alice")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestErrorCodeRoundTrip(t *testing.T) {
	for code, err := range errorCodes {
		assert.Equal(t, code, ErrorCode(err))
	}
	assert.Equal(t, "internal", ErrorCode(assert.AnError))
}
