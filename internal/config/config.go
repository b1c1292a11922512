package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel    string            `mapstructure:"log_level"`
	Hub         HubConfig         `mapstructure:"hub"`
	Signal      SignalConfig      `mapstructure:"signal"`
	Session     SessionConfig     `mapstructure:"session"`
	Peer        PeerConfig        `mapstructure:"peer"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Recording   RecordingConfig   `mapstructure:"recording"`
	Media       MediaConfig       `mapstructure:"media"`
	ICE         ICEConfig         `mapstructure:"ice"`
	Participant ParticipantConfig `mapstructure:"participant"`
}

type HubConfig struct {
	Mode           string   `mapstructure:"mode"`
	Port           int      `mapstructure:"port"`
	Secret         string   `mapstructure:"secret"`
	AllowOrigins   []string `mapstructure:"allow_origins"`
	MaxUploadBytes int64    `mapstructure:"max_upload_bytes"`
}

type SignalConfig struct {
	Codec        string        `mapstructure:"codec"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

type SessionConfig struct {
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`
	EmptyRoomTimeout  time.Duration `mapstructure:"empty_room_timeout"`
	OccupancyPoll     time.Duration `mapstructure:"occupancy_poll"`
	TeardownTimeout   time.Duration `mapstructure:"teardown_timeout"`
}

type PeerConfig struct {
	RecoveryDelay time.Duration `mapstructure:"recovery_delay"`
	MaxRecoveries int           `mapstructure:"max_recoveries"`
}

// RetryConfig retry counts exclude the first attempt.
type RetryConfig struct {
	Unit             time.Duration `mapstructure:"unit"`
	SubscribeRetries int           `mapstructure:"subscribe_retries"`
	AnnounceRetries  int           `mapstructure:"announce_retries"`
	AnnounceDelay    time.Duration `mapstructure:"announce_delay"`
}

type RecordingConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Track      string `mapstructure:"track"`
	ChunkBytes int    `mapstructure:"chunk_bytes"`
}

type MediaConfig struct {
	CameraFile     string `mapstructure:"camera_file"`
	MicrophoneFile string `mapstructure:"microphone_file"`
	ScreenFile     string `mapstructure:"screen_file"`
}

type ICEConfig struct {
	Servers []string `mapstructure:"servers"`
	PortMin uint16   `mapstructure:"port_min"`
	PortMax uint16   `mapstructure:"port_max"`
}

type ParticipantConfig struct {
	HubURL      string `mapstructure:"hub_url"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("hub.mode", "release")
	v.SetDefault("hub.port", 8080)
	v.SetDefault("hub.secret", "")
	v.SetDefault("hub.allow_origins", []string{"http://localhost:3000"})
	v.SetDefault("hub.max_upload_bytes", 256<<20)

	v.SetDefault("signal.codec", "json")
	v.SetDefault("signal.read_limit", 32768)
	v.SetDefault("signal.ping_period", "54s")
	v.SetDefault("signal.send_buffer", 32)
	v.SetDefault("signal.rate_limit", 50)
	v.SetDefault("signal.rate_interval", "1s")

	v.SetDefault("session.inactivity_timeout", "5m")
	v.SetDefault("session.empty_room_timeout", "2m")
	v.SetDefault("session.occupancy_poll", "30s")
	v.SetDefault("session.teardown_timeout", "10s")

	v.SetDefault("peer.recovery_delay", "2s")
	v.SetDefault("peer.max_recoveries", 3)

	v.SetDefault("retry.unit", "1s")
	v.SetDefault("retry.subscribe_retries", 5)
	v.SetDefault("retry.announce_retries", 3)
	v.SetDefault("retry.announce_delay", "500ms")

	v.SetDefault("recording.enabled", true)
	v.SetDefault("recording.track", "video")
	v.SetDefault("recording.chunk_bytes", 64*1024)

	v.SetDefault("media.camera_file", "media/camera.ivf")
	v.SetDefault("media.microphone_file", "media/microphone.ogg")
	v.SetDefault("media.screen_file", "media/screen.ivf")

	v.SetDefault("ice.servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("ice.port_min", 0)
	v.SetDefault("ice.port_max", 0)

	v.SetDefault("participant.hub_url", "http://localhost:8080")
	v.SetDefault("participant.metrics_addr", "")
}

// Default returns the built-in configuration without touching disk or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return &cfg
}

// Load reads config/config.<CONFIG_ENV>.yaml over the defaults. MESH_*
// environment variables override both, e.g. MESH_SESSION_INACTIVITY_TIMEOUT.
func Load() (*Config, error) {
	v, err := load()
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Watch loads the config like Load and applies the log level again every
// time the file changes on disk.
func Watch() (*Config, error) {
	v, err := load()
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if v.ConfigFileUsed() == "" {
		return cfg, nil
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(v)
		if err != nil {
			log.Error().Err(err).Str("module", "config").Str("file", e.Name).Msg("reload failed")
			return
		}
		ApplyLogLevel(next.LogLevel)
		log.Info().Str("module", "config").Str("file", e.Name).Str("log_level", next.LogLevel).Msg("config reloaded")
	})
	v.WatchConfig()
	return cfg, nil
}

func load() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.SetEnvPrefix("MESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
		v.SetConfigFile("")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Session.InactivityTimeout <= 0 || c.Session.EmptyRoomTimeout <= 0 || c.Session.OccupancyPoll <= 0 {
		return fmt.Errorf("session timers must be positive")
	}
	if c.Peer.RecoveryDelay <= 0 {
		return fmt.Errorf("peer.recovery_delay must be positive")
	}
	if c.Retry.SubscribeRetries < 0 || c.Retry.AnnounceRetries < 0 {
		return fmt.Errorf("retry counts must not be negative")
	}
	switch c.Signal.Codec {
	case "json", "msgpack":
	default:
		return fmt.Errorf("unknown signal.codec %q", c.Signal.Codec)
	}
	switch c.Recording.Track {
	case "video", "audio":
	default:
		return fmt.Errorf("unknown recording.track %q", c.Recording.Track)
	}
	return nil
}

// ApplyLogLevel sets the zerolog global level, keeping the current one on
// unknown input.
func ApplyLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		log.Warn().Str("module", "config").Str("log_level", level).Msg("unknown log level")
		return
	}
	zerolog.SetGlobalLevel(lvl)
}
