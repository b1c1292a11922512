package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsMatchPolicy(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 5*time.Minute, cfg.Session.InactivityTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Session.EmptyRoomTimeout)
	assert.Equal(t, 30*time.Second, cfg.Session.OccupancyPoll)
	assert.Equal(t, 2*time.Second, cfg.Peer.RecoveryDelay)
	assert.Equal(t, 5, cfg.Retry.SubscribeRetries)
	assert.Equal(t, 3, cfg.Retry.AnnounceRetries)
	assert.Equal(t, time.Second, cfg.Retry.Unit)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICE.Servers)
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing-for-test")
	t.Setenv("MESH_SESSION_EMPTY_ROOM_TIMEOUT", "45s")
	t.Setenv("MESH_SIGNAL_CODEC", "msgpack")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Session.EmptyRoomTimeout)
	assert.Equal(t, "msgpack", cfg.Signal.Codec)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Signal.Codec = "xml"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Retry.SubscribeRetries = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Retry.AnnounceRetries = 0
	assert.NoError(t, cfg.Validate(), "zero retries still makes one attempt")

	cfg = Default()
	cfg.Recording.Track = "both"
	assert.Error(t, cfg.Validate())
}
