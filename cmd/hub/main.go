package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Mesh/internal/adapters/http"
	sig "github.com/dkeye/Mesh/internal/adapters/signal"
	"github.com/dkeye/Mesh/internal/adapters/storage"
	"github.com/dkeye/Mesh/internal/app"
	"github.com/dkeye/Mesh/internal/clock"
	"github.com/dkeye/Mesh/internal/config"
	"github.com/dkeye/Mesh/internal/version"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Watch can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Watch()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.ApplyLogLevel(cfg.LogLevel)

	codec, err := sig.CodecByName(cfg.Signal.Codec)
	if err != nil {
		log.Fatal().Err(err).Msg("signal codec")
	}

	orch := &app.Orchestrator{
		Registry: app.NewRegistry(),
		Channels: app.NewChannelManager(),
		Policy:   app.SimplePolicy{},
		Limiter:  sig.NewRateLimiter(cfg.Signal.RateLimit, cfg.Signal.RateInterval, clock.Real{}),
		Decoder:  codec,
	}
	signals := sig.NewSignalWSController(orch, sig.ServerConfig{
		Codec:      codec,
		ReadLimit:  cfg.Signal.ReadLimit,
		PingPeriod: cfg.Signal.PingPeriod,
		SendBuffer: cfg.Signal.SendBuffer,
	})
	repo := storage.NewInMemoryRepository(clock.Real{})
	sessions := router.NewSessionController(repo, orch, cfg.Hub.MaxUploadBytes)

	r := router.SetupRouter(ctx, cfg.Hub, signals, sessions)
	addr := fmt.Sprintf(":%d", cfg.Hub.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("codec", codec.Name()).Str("version", version.Version).Msg("Mesh hub started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}
