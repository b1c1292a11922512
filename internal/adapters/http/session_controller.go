package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/adapters/storage"
	"github.com/dkeye/Mesh/internal/domain"
)

// Repository is what the hub keeps about sessions.
type Repository interface {
	StartSession(ctx context.Context, community domain.CommunityID) (domain.Session, error)
	Session(ctx context.Context, id domain.SessionID) (domain.Session, error)
	RecordJoin(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) error
	RecordLeave(ctx context.Context, session domain.SessionID, participant domain.ParticipantID, durationSeconds int, screenShared bool) error
	IsSoleActiveParticipant(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (bool, error)
	UploadRecordingArtifact(ctx context.Context, artifact domain.Artifact) error
	CompleteSession(ctx context.Context, session domain.SessionID) error
	Report(ctx context.Context, report domain.Report) error
	Reports(ctx context.Context, session domain.SessionID) ([]storage.ReportView, error)
	Attendance(ctx context.Context, session domain.SessionID) ([]storage.Attendance, error)
	Artifact(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (domain.Artifact, error)
}

// Kicker removes a participant from the live signaling channel.
type Kicker interface {
	KickParticipant(session domain.SessionID, participant domain.ParticipantID) int
}

type SessionController struct {
	repo      Repository
	kicker    Kicker
	maxUpload int64
}

func NewSessionController(repo Repository, kicker Kicker, maxUpload int64) *SessionController {
	return &SessionController{repo: repo, kicker: kicker, maxUpload: maxUpload}
}

func fail(ctx *gin.Context, err error) {
	status := storage.StatusOf(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", ctx.FullPath()).Msg("request failed")
	}
	ctx.JSON(status, gin.H{"error": storage.ErrorCode(err), "details": err.Error()})
}

func sessionParam(ctx *gin.Context) domain.SessionID {
	return domain.SessionID(ctx.Param("session"))
}

func (c *SessionController) StartSession(ctx *gin.Context) {
	s, err := c.repo.StartSession(ctx.Request.Context(), domain.CommunityID(ctx.Param("community")))
	if err != nil {
		fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, s)
}

func (c *SessionController) GetSession(ctx *gin.Context) {
	s, err := c.repo.Session(ctx.Request.Context(), sessionParam(ctx))
	if err != nil {
		fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, s)
}

func (c *SessionController) Join(ctx *gin.Context) {
	var req storage.JoinRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if err := c.repo.RecordJoin(ctx.Request.Context(), sessionParam(ctx), req.Participant); err != nil {
		fail(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *SessionController) Leave(ctx *gin.Context) {
	var req storage.LeaveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if req.DurationSeconds < 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "negative duration"})
		return
	}
	err := c.repo.RecordLeave(ctx.Request.Context(), sessionParam(ctx), req.Participant, req.DurationSeconds, req.ScreenShared)
	if err != nil {
		fail(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *SessionController) Sole(ctx *gin.Context) {
	participant := domain.ParticipantID(ctx.Query("participant"))
	if participant == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "participant required"})
		return
	}
	sole, err := c.repo.IsSoleActiveParticipant(ctx.Request.Context(), sessionParam(ctx), participant)
	if err != nil {
		fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, storage.SoleResponse{Sole: sole})
}

func (c *SessionController) Complete(ctx *gin.Context) {
	if err := c.repo.CompleteSession(ctx.Request.Context(), sessionParam(ctx)); err != nil {
		fail(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *SessionController) Attendance(ctx *gin.Context) {
	list, err := c.repo.Attendance(ctx.Request.Context(), sessionParam(ctx))
	if err != nil {
		fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"attendance": list})
}

func (c *SessionController) UploadRecording(ctx *gin.Context) {
	body := http.MaxBytesReader(ctx.Writer, ctx.Request.Body, c.maxUpload)
	blob, err := io.ReadAll(body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			ctx.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "recording too large"})
			return
		}
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body", "details": err.Error()})
		return
	}
	seconds, _ := strconv.Atoi(ctx.GetHeader(storage.HeaderDuration))
	id := ctx.GetHeader(storage.HeaderArtifactID)
	if id == "" {
		id = uuid.NewString()
	}
	a := domain.Artifact{
		ID:          id,
		Session:     sessionParam(ctx),
		Participant: domain.ParticipantID(ctx.Param("participant")),
		ContentType: ctx.ContentType(),
		Blob:        blob,
		Size:        len(blob),
		Duration:    time.Duration(seconds) * time.Second,
	}
	if err := c.repo.UploadRecordingArtifact(ctx.Request.Context(), a); err != nil {
		fail(ctx, err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("session", string(a.Session)).Str("participant", string(a.Participant)).Int("size", a.Size).Msg("recording stored")
	ctx.JSON(http.StatusCreated, gin.H{"id": a.ID, "size": a.Size})
}

func (c *SessionController) DownloadRecording(ctx *gin.Context) {
	a, err := c.repo.Artifact(ctx.Request.Context(), sessionParam(ctx), domain.ParticipantID(ctx.Param("participant")))
	if err != nil {
		fail(ctx, err)
		return
	}
	ctx.Header(storage.HeaderArtifactID, a.ID)
	ctx.Header(storage.HeaderDuration, strconv.Itoa(a.DurationSeconds()))
	ctx.Data(http.StatusOK, a.ContentType, a.Blob)
}

func (c *SessionController) CreateReport(ctx *gin.Context) {
	var req storage.ReportRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	r := domain.Report{Session: sessionParam(ctx), Participant: req.Participant, ReportedBy: req.ReportedBy}
	if err := c.repo.Report(ctx.Request.Context(), r); err != nil {
		fail(ctx, err)
		return
	}
	ctx.Status(http.StatusCreated)
}

func (c *SessionController) ListReports(ctx *gin.Context) {
	list, err := c.repo.Reports(ctx.Request.Context(), sessionParam(ctx))
	if err != nil {
		fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, list)
}

// Kick disconnects every signaling subscription of a participant.
func (c *SessionController) Kick(ctx *gin.Context) {
	n := c.kicker.KickParticipant(sessionParam(ctx), domain.ParticipantID(ctx.Param("participant")))
	if n == 0 {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "not connected"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"kicked": n})
}
