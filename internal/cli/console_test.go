package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Mesh/internal/app/peer"
	"github.com/dkeye/Mesh/internal/app/session"
	"github.com/dkeye/Mesh/internal/config"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/output"
)

type fakeSession struct {
	mu      sync.Mutex
	flags   domain.MediaFlags
	touches int
	reports []domain.ParticipantID
	sole    bool
	done    chan struct{}
	once    sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{flags: domain.MediaFlags{Video: true, Audio: true}, done: make(chan struct{})}
}

func (f *fakeSession) toggle(fn func(*domain.MediaFlags)) (domain.MediaFlags, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.flags)
	return f.flags, nil
}

func (f *fakeSession) ToggleVideo() (domain.MediaFlags, error) {
	return f.toggle(func(m *domain.MediaFlags) { m.Video = !m.Video })
}

func (f *fakeSession) ToggleAudio() (domain.MediaFlags, error) {
	return f.toggle(func(m *domain.MediaFlags) { m.Audio = !m.Audio })
}

func (f *fakeSession) ToggleScreenShare() (domain.MediaFlags, error) {
	return f.toggle(func(m *domain.MediaFlags) { m.Screen = !m.Screen })
}

func (f *fakeSession) Flags() domain.MediaFlags {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags
}

func (f *fakeSession) Roster() []session.Remote {
	return []session.Remote{{
		ID:       "bob",
		Display:  domain.DisplayMeta{Name: "Bob"},
		Media:    domain.MediaFlags{Audio: true},
		JoinedAt: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
		Link:     peer.StateConnected,
		Tracks:   2,
	}}
}

func (f *fakeSession) Touch() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touches++
}

func (f *fakeSession) Leave() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

func (f *fakeSession) EndForAll(context.Context) error {
	if !f.sole {
		return domain.ErrNotSoleParticipant
	}
	return f.Leave()
}

func (f *fakeSession) Report(_ context.Context, target domain.ParticipantID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, target)
	return nil
}

func (f *fakeSession) Done() <-chan struct{} { return f.done }

func runConsole(t *testing.T, s *fakeSession, input string) string {
	t.Helper()
	var out bytes.Buffer
	c := NewConsole(s, output.NewFormatter(&out))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Run(ctx, strings.NewReader(input)))
	return out.String()
}

func TestConsoleTogglesAndLeaves(t *testing.T) {
	s := newFakeSession()
	out := runConsole(t, s, "video\nscreen\nleave\n")

	assert.Contains(t, out, "video off  audio on  screen off")
	assert.Contains(t, out, "video off  audio on  screen on")
	assert.False(t, s.Flags().Video)
	select {
	case <-s.Done():
	default:
		t.Fatal("leave did not end the session")
	}
}

func TestConsoleRosterAndReport(t *testing.T) {
	s := newFakeSession()
	out := runConsole(t, s, "roster\nreport bob\nreport\nleave\n")

	assert.Contains(t, out, "Bob")
	assert.Contains(t, out, "audio")
	assert.Contains(t, out, "reported bob")
	assert.Contains(t, out, "usage: report <participant>")
	assert.Equal(t, []domain.ParticipantID{"bob"}, s.reports)
	assert.Equal(t, 4, s.touches)
}

func TestConsoleEndRequiresSole(t *testing.T) {
	s := newFakeSession()
	out := runConsole(t, s, "end\nbogus\nleave\n")
	assert.Contains(t, out, "only the last participant can end the session")
	assert.Contains(t, out, "unknown command bogus")

	s = newFakeSession()
	s.sole = true
	runConsole(t, s, "end\n")
	<-s.Done()
}

// blockingReader never returns, like an idle terminal.
type blockingReader struct{ ch chan struct{} }

func (b blockingReader) Read([]byte) (int, error) {
	<-b.ch
	return 0, io.EOF
}

func TestConsoleEndOfInputKeepsSession(t *testing.T) {
	s := newFakeSession()
	var out bytes.Buffer
	c := NewConsole(s, output.NewFormatter(&out))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx, strings.NewReader("")) }()

	select {
	case <-errCh:
		t.Fatal("console returned at end of input")
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	require.NoError(t, <-errCh)

	// a session ending elsewhere stops the console too
	s = newFakeSession()
	c = NewConsole(s, output.NewFormatter(&out))
	stuck := blockingReader{ch: make(chan struct{})}
	defer close(stuck.ch)
	go func() { errCh <- c.Run(context.Background(), stuck) }()
	_ = s.Leave()
	require.NoError(t, <-errCh)
}

func TestSessionConfigFromDefaults(t *testing.T) {
	cfg := config.Default()
	self, err := domain.NewParticipant("alice", "Alice")
	require.NoError(t, err)

	sc := sessionConfig(cfg, "s-1", self)
	assert.Equal(t, domain.SessionID("s-1"), sc.Session)
	assert.Equal(t, "Alice", sc.Display.Name)
	assert.Equal(t, 5*time.Minute, sc.Timers.Inactivity)
	assert.Equal(t, 2*time.Minute, sc.Timers.EmptyRoom)
	// the first try plus five retries
	assert.Equal(t, 6, sc.Subscribe.Attempts)
	assert.Equal(t, time.Second, sc.Subscribe.Delay)
	assert.Equal(t, 4, sc.Announce.Attempts)
	assert.Equal(t, "video", sc.Recording.Track)
	assert.Equal(t, 10*time.Second, sc.TeardownTimeout)
}

func TestRootCommandWiring(t *testing.T) {
	cfg := config.Default()
	root := NewRootCmd(&Dependencies{Config: cfg})

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"start", "join", "reports", "version"}, names)

	root.SetArgs([]string{"--hub", "http://hub:9000", "join", "--help"})
	root.SetOut(io.Discard)
	require.NoError(t, root.Execute())
	assert.Equal(t, "http://hub:9000", cfg.Participant.HubURL)
}

func TestVersionCommand(t *testing.T) {
	root := NewRootCmd(&Dependencies{Config: config.Default()})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "mesh dev, commit none")
}
