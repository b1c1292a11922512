package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Mesh/internal/adapters/capture"
	"github.com/dkeye/Mesh/internal/adapters/rtc"
	"github.com/dkeye/Mesh/internal/adapters/signal"
	"github.com/dkeye/Mesh/internal/adapters/storage"
	"github.com/dkeye/Mesh/internal/app/lifecycle"
	"github.com/dkeye/Mesh/internal/app/peer"
	"github.com/dkeye/Mesh/internal/app/recording"
	"github.com/dkeye/Mesh/internal/app/retry"
	"github.com/dkeye/Mesh/internal/app/session"
	"github.com/dkeye/Mesh/internal/clock"
	"github.com/dkeye/Mesh/internal/config"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/output"
)

type joinOptions struct {
	session string
	id      string
	name    string
}

func NewJoinCmd(deps *Dependencies) *cobra.Command {
	var opts joinOptions

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a session and publish local media",
		Long:  "Join a session with the configured media files as camera, microphone and screen.\nType help once joined; Ctrl+C leaves.",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(cmd.OutOrStdout())
			return runJoin(cmd, deps.Config, opts, formatter)
		},
	}

	cmd.Flags().StringVarP(&opts.session, "session", "s", "", "Session id")
	cmd.Flags().StringVarP(&opts.id, "participant", "p", "", "Participant id (random when empty)")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "Display name")
	cmd.Flags().StringVar(&deps.Config.Signal.Codec, "codec", deps.Config.Signal.Codec, "Signaling codec the hub speaks (json or msgpack)")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runJoin(cmd *cobra.Command, cfg *config.Config, opts joinOptions, formatter *output.Formatter) error {
	ctx := cmd.Context()
	self, err := domain.NewParticipant(domain.ParticipantID(opts.id), opts.name)
	if err != nil {
		return err
	}
	coord, err := newCoordinator(cfg, domain.SessionID(opts.session), self)
	if err != nil {
		return err
	}
	if err := coord.Enter(ctx); err != nil {
		return err
	}
	formatter.Joined(domain.SessionID(opts.session), self.ID)
	formatter.Flags(coord.Flags())

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		<-coord.Done()
		stop()
	}()

	g, gctx := errgroup.WithContext(runCtx)
	if cfg.Participant.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.Participant.MetricsAddr) })
	}
	g.Go(func() error {
		return NewConsole(coord, formatter).Run(gctx, cmd.InOrStdin())
	})
	err = g.Wait()
	if err != nil {
		// the coordinator leaves on its own once ctx is cancelled
		_ = coord.Leave()
	}
	<-coord.Done()
	formatter.Ended(coord.Result())
	return err
}

func newCoordinator(cfg *config.Config, id domain.SessionID, self *domain.Participant) (*session.Coordinator, error) {
	codec, err := signal.CodecByName(cfg.Signal.Codec)
	if err != nil {
		return nil, err
	}
	devices, err := capture.NewFileCapturer(cfg.Media.CameraFile, cfg.Media.MicrophoneFile, cfg.Media.ScreenFile)
	if err != nil {
		return nil, err
	}
	conns, err := rtc.NewFactory(rtc.Config{
		ICEServers: cfg.ICE.Servers,
		PortMin:    cfg.ICE.PortMin,
		PortMax:    cfg.ICE.PortMax,
	})
	if err != nil {
		return nil, err
	}
	bus := signal.NewWSBus(signal.ClientConfig{
		HubURL:     cfg.Participant.HubURL,
		ReadLimit:  cfg.Signal.ReadLimit,
		PingPeriod: cfg.Signal.PingPeriod,
		SendBuffer: cfg.Signal.SendBuffer,
	}, codec)
	store := storage.NewClient(cfg.Participant.HubURL, nil)

	return session.New(sessionConfig(cfg, id, self), session.Deps{
		Bus:      bus,
		Storage:  store,
		Reporter: store,
		Devices:  devices,
		Conns:    conns,
		Clock:    clock.Real{},
	}), nil
}

func sessionConfig(cfg *config.Config, id domain.SessionID, self *domain.Participant) session.Config {
	return session.Config{
		Session: id,
		Self:    self.ID,
		Display: self.Display,
		Timers: lifecycle.Config{
			Inactivity:    cfg.Session.InactivityTimeout,
			EmptyRoom:     cfg.Session.EmptyRoomTimeout,
			OccupancyPoll: cfg.Session.OccupancyPoll,
		},
		Peer: peer.Config{
			RecoveryDelay: cfg.Peer.RecoveryDelay,
			MaxRecoveries: cfg.Peer.MaxRecoveries,
		},
		Subscribe: retry.Policy{
			Attempts: cfg.Retry.SubscribeRetries + 1,
			Delay:    cfg.Retry.Unit,
			Backoff:  retry.Exponential,
		},
		Announce: retry.Policy{
			Attempts: cfg.Retry.AnnounceRetries + 1,
			Delay:    cfg.Retry.AnnounceDelay,
			Backoff:  retry.Fixed,
		},
		Recording: recording.Config{
			Enabled:    cfg.Recording.Enabled,
			Track:      cfg.Recording.Track,
			ChunkBytes: cfg.Recording.ChunkBytes,
		},
		TeardownTimeout: cfg.Session.TeardownTimeout,
	}
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("module", "cli").Str("addr", addr).Msg("metrics listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
