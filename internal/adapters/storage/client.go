package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/Mesh/internal/domain"
)

// Header names of the recording upload.
const (
	HeaderArtifactID = "X-Artifact-Id"
	HeaderDuration   = "X-Duration-Seconds"
)

var errorCodes = map[string]error{
	"session_not_found":  domain.ErrSessionNotFound,
	"session_not_active": domain.ErrSessionNotActive,
	"session_exists":     domain.ErrSessionExists,
	"artifact_not_found": domain.ErrArtifactNotFound,
}

// ErrorCode is the wire name of a repository error, or "internal".
func ErrorCode(err error) string {
	for code, known := range errorCodes {
		if errors.Is(err, known) {
			return code
		}
	}
	return "internal"
}

// StatusOf maps a repository error onto an HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrArtifactNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionExists), errors.Is(err, domain.ErrSessionNotActive):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

type JoinRequest struct {
	Participant domain.ParticipantID `json:"participant_id" binding:"required"`
}

type LeaveRequest struct {
	Participant     domain.ParticipantID `json:"participant_id" binding:"required"`
	DurationSeconds int                  `json:"duration_seconds"`
	ScreenShared    bool                 `json:"screen_shared"`
}

type ReportRequest struct {
	Participant domain.ParticipantID `json:"participant_id" binding:"required"`
	ReportedBy  domain.ParticipantID `json:"reported_by" binding:"required"`
}

type SoleResponse struct {
	Sole bool `json:"sole"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client talks to the hub REST API. It implements core.Storage and
// core.Reporter.
type Client struct {
	base string
	http *http.Client
}

func NewClient(base string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{base: strings.TrimSuffix(base, "/"), http: hc}
}

func (c *Client) sessionURL(session domain.SessionID, rest string) string {
	return c.base + "/api/sessions/" + url.PathEscape(string(session)) + rest
}

func (c *Client) StartSession(ctx context.Context, community domain.CommunityID) (domain.Session, error) {
	var s domain.Session
	u := c.base + "/api/communities/" + url.PathEscape(string(community)) + "/sessions"
	err := c.doJSON(ctx, http.MethodPost, u, nil, &s)
	return s, err
}

func (c *Client) RecordJoin(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) error {
	return c.doJSON(ctx, http.MethodPost, c.sessionURL(session, "/join"), JoinRequest{Participant: participant}, nil)
}

func (c *Client) RecordLeave(ctx context.Context, session domain.SessionID, participant domain.ParticipantID, durationSeconds int, screenShared bool) error {
	body := LeaveRequest{Participant: participant, DurationSeconds: durationSeconds, ScreenShared: screenShared}
	return c.doJSON(ctx, http.MethodPost, c.sessionURL(session, "/leave"), body, nil)
}

func (c *Client) IsSoleActiveParticipant(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (bool, error) {
	var out SoleResponse
	u := c.sessionURL(session, "/sole?participant="+url.QueryEscape(string(participant)))
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &out); err != nil {
		return false, err
	}
	return out.Sole, nil
}

func (c *Client) CompleteSession(ctx context.Context, session domain.SessionID) error {
	return c.doJSON(ctx, http.MethodPost, c.sessionURL(session, "/complete"), nil, nil)
}

func (c *Client) UploadRecordingArtifact(ctx context.Context, a domain.Artifact) error {
	u := c.sessionURL(a.Session, "/recordings/"+url.PathEscape(string(a.Participant)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(a.Blob))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", a.ContentType)
	req.Header.Set(HeaderArtifactID, a.ID)
	req.Header.Set(HeaderDuration, strconv.Itoa(a.DurationSeconds()))
	return c.send(req, nil)
}

func (c *Client) Report(ctx context.Context, r domain.Report) error {
	body := ReportRequest{Participant: r.Participant, ReportedBy: r.ReportedBy}
	return c.doJSON(ctx, http.MethodPost, c.sessionURL(r.Session, "/reports"), body, nil)
}

func (c *Client) Reports(ctx context.Context, session domain.SessionID) ([]ReportView, error) {
	var out []ReportView
	err := c.doJSON(ctx, http.MethodGet, c.sessionURL(session, "/reports"), nil, &out)
	return out, err
}

func (c *Client) doJSON(ctx context.Context, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if known, ok := errorCodes[e.Error]; ok {
			return known
		}
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
