package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Mesh/internal/adapters/signal"
	"github.com/dkeye/Mesh/internal/adapters/storage"
	"github.com/dkeye/Mesh/internal/app"
	"github.com/dkeye/Mesh/internal/clock"
	"github.com/dkeye/Mesh/internal/config"
	"github.com/dkeye/Mesh/internal/domain"
)

type hub struct {
	srv  *httptest.Server
	repo *storage.InMemoryRepository
	orch *app.Orchestrator
}

func newHub(t *testing.T, limit int) *hub {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	codec := signal.JSONCodec{}
	orch := &app.Orchestrator{
		Registry: app.NewRegistry(),
		Channels: app.NewChannelManager(),
		Policy:   app.SimplePolicy{},
		Limiter:  signal.NewRateLimiter(limit, time.Minute, clock.Real{}),
		Decoder:  codec,
	}
	repo := storage.NewInMemoryRepository(nil)
	signals := signal.NewSignalWSController(orch, signal.ServerConfig{Codec: codec, PingPeriod: time.Second})
	router := SetupRouter(ctx, testHubConfig(), signals, NewSessionController(repo, orch, 1<<20))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &hub{srv: srv, repo: repo, orch: orch}
}

func testHubConfig() config.HubConfig {
	return config.HubConfig{Mode: "test", Secret: "test-secret"}
}

func recv(t *testing.T, ch <-chan domain.Event) domain.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return domain.Event{}
	}
}

func collect(ch interface {
	On(domain.EventType, func(domain.Event))
}, t domain.EventType) <-chan domain.Event {
	out := make(chan domain.Event, 16)
	ch.On(t, func(e domain.Event) { out <- e })
	return out
}

func TestStorageClientAgainstHub(t *testing.T) {
	h := newHub(t, 0)
	ctx := context.Background()
	client := storage.NewClient(h.srv.URL, nil)

	s, err := client.StartSession(ctx, "chess")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, s.Status)

	_, err = client.StartSession(ctx, "chess")
	assert.ErrorIs(t, err, domain.ErrSessionExists)

	require.NoError(t, client.RecordJoin(ctx, s.ID, "alice"))
	sole, err := client.IsSoleActiveParticipant(ctx, s.ID, "alice")
	require.NoError(t, err)
	assert.True(t, sole)

	require.NoError(t, client.RecordJoin(ctx, s.ID, "bob"))
	sole, err = client.IsSoleActiveParticipant(ctx, s.ID, "alice")
	require.NoError(t, err)
	assert.False(t, sole)

	require.NoError(t, client.UploadRecordingArtifact(ctx, domain.Artifact{
		ID:          "rec-1",
		Session:     s.ID,
		Participant: "bob",
		ContentType: "audio/ogg",
		Blob:        []byte("OggS-payload"),
		Size:        12,
		Duration:    42 * time.Second,
	}))
	require.NoError(t, client.RecordLeave(ctx, s.ID, "bob", 42, false))
	require.NoError(t, client.Report(ctx, domain.Report{Session: s.ID, Participant: "bob", ReportedBy: "alice"}))

	reports, err := client.Reports(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, domain.ParticipantID("bob"), reports[0].Participant)
	require.Len(t, reports[0].Recordings, 1)
	assert.Equal(t, "rec-1", reports[0].Recordings[0].ID)
	assert.Equal(t, 42, reports[0].Recordings[0].DurationSeconds)
	assert.Equal(t, "audio/ogg", reports[0].Recordings[0].ContentType)

	stored, err := h.repo.Artifact(ctx, s.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, []byte("OggS-payload"), stored.Blob)

	require.NoError(t, client.CompleteSession(ctx, s.ID))
	assert.ErrorIs(t, client.RecordJoin(ctx, s.ID, "carol"), domain.ErrSessionNotActive)
	assert.ErrorIs(t, client.CompleteSession(ctx, "missing"), domain.ErrSessionNotFound)
}

func TestDownloadRecording(t *testing.T) {
	h := newHub(t, 0)
	require.NoError(t, h.repo.UploadRecordingArtifact(context.Background(), domain.Artifact{
		ID: "r", Session: "s1", Participant: "bob", ContentType: "video/x-ivf", Blob: []byte("DKIF"), Size: 4,
	}))

	resp, err := http.Get(h.srv.URL + "/api/sessions/s1/recordings/bob")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/x-ivf", resp.Header.Get("Content-Type"))
	assert.Equal(t, "r", resp.Header.Get(storage.HeaderArtifactID))

	missing, err := http.Get(h.srv.URL + "/api/sessions/s1/recordings/alice")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestSignalRelayOverWebsocket(t *testing.T) {
	h := newHub(t, 0)
	ctx := context.Background()
	bus := signal.NewWSBus(signal.ClientConfig{HubURL: h.srv.URL}, signal.JSONCodec{})

	alice, err := bus.Subscribe(ctx, "s1", "alice")
	require.NoError(t, err)
	defer alice.Close()
	aliceJoined := collect(alice, domain.EventJoined)

	bob, err := bus.Subscribe(ctx, "s1", "bob")
	require.NoError(t, err)
	defer bob.Close()
	bobJoined := collect(bob, domain.EventJoined)

	require.Eventually(t, func() bool { return h.orch.Registry.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bob.Publish(ctx, domain.Joined("bob", domain.DisplayMeta{Name: "Bob"}, domain.MediaFlags{Audio: true})))

	got := recv(t, aliceJoined)
	assert.Equal(t, domain.ParticipantID("bob"), got.From)
	require.NotNil(t, got.Display)
	assert.Equal(t, "Bob", got.Display.Name)

	// the sender receives its own publication
	echo := recv(t, bobJoined)
	assert.Equal(t, domain.ParticipantID("bob"), echo.From)
}

func TestSignalRejectsSpoofedSender(t *testing.T) {
	h := newHub(t, 0)
	ctx := context.Background()
	bus := signal.NewWSBus(signal.ClientConfig{HubURL: h.srv.URL}, signal.JSONCodec{})

	alice, err := bus.Subscribe(ctx, "s1", "alice")
	require.NoError(t, err)
	defer alice.Close()
	left := collect(alice, domain.EventLeft)

	mallory, err := bus.Subscribe(ctx, "s1", "mallory")
	require.NoError(t, err)
	defer mallory.Close()
	require.Eventually(t, func() bool { return h.orch.Registry.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, mallory.Publish(ctx, domain.Left("bob")))
	require.NoError(t, mallory.Publish(ctx, domain.Left("mallory")))

	got := recv(t, left)
	assert.Equal(t, domain.ParticipantID("mallory"), got.From)
}

func TestSignalRateLimit(t *testing.T) {
	h := newHub(t, 2)
	ctx := context.Background()
	bus := signal.NewWSBus(signal.ClientConfig{HubURL: h.srv.URL}, signal.JSONCodec{})

	alice, err := bus.Subscribe(ctx, "s1", "alice")
	require.NoError(t, err)
	defer alice.Close()
	joined := collect(alice, domain.EventJoined)
	require.Eventually(t, func() bool { return h.orch.Registry.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	for i := 0; i < 4; i++ {
		require.NoError(t, alice.Publish(ctx, domain.Joined("alice", domain.DisplayMeta{}, domain.MediaFlags{})))
	}
	recv(t, joined)
	recv(t, joined)
	select {
	case e := <-joined:
		t.Fatalf("unexpected event past the limit: %+v", e)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSignalRejectsCodecMismatch(t *testing.T) {
	h := newHub(t, 0)
	addr, err := signal.SignalURL(h.srv.URL, "s1", "alice", "msgpack")
	require.NoError(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(addr, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestKickClosesSubscription(t *testing.T) {
	h := newHub(t, 0)
	ctx := context.Background()
	bus := signal.NewWSBus(signal.ClientConfig{HubURL: h.srv.URL}, signal.JSONCodec{})

	bob, err := bus.Subscribe(ctx, "s1", "bob")
	require.NoError(t, err)
	defer bob.Close()
	require.Eventually(t, func() bool { return h.orch.Registry.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodDelete, h.srv.URL+"/api/sessions/s1/participants/bob", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case <-bob.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("kicked channel still open")
	}
	require.Eventually(t, func() bool { return h.orch.Registry.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
