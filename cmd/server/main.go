package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/config"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/logging"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/relay"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/room"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/server"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/version"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logging.Init(zerolog.InfoLevel)

	cfg, err := config.LoadServer()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}

	registry := room.NewRegistry(room.WithMaxAge(cfg.RoomMaxAge))
	hub := relay.NewHub(registry,
		relay.WithCompletionGrace(cfg.CompletionGrace),
		relay.WithSweepInterval(cfg.SweepInterval),
	)
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.NewRouter(cfg, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("version", version.Version).Msg("signaling server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	<-hub.Done()
	log.Info().Msg("server exited gracefully")
}
