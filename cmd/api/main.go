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

	"github.com/pranavch/cashdesk/internal/api"
	"github.com/pranavch/cashdesk/internal/config"
	"github.com/pranavch/cashdesk/internal/notify"
	"github.com/pranavch/cashdesk/internal/service"
	"github.com/pranavch/cashdesk/internal/store/postgres"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	store, err := postgres.NewStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	// Fail loudly on a partially provisioned schema instead of degrading
	// at first use.
	if err := store.Probe(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Schema probe failed")
	}
	log.Info().Msg("Connected to database")

	hub := notify.NewHub()

	settler := service.NewSettlementCoordinator(store, hub)
	returns := service.NewReturnService(store, store, store, settler, hub)
	assignments := service.NewAssignmentService(store, store, hub)
	queries := service.NewQueryService(store, store, store, store)

	handler := api.NewHandler(assignments, returns, queries)
	wsHandler := api.NewWSHandler(hub, cfg.CORSOrigins)
	router := api.NewRouter(handler, wsHandler)

	// No server-wide read/write timeouts: /ws holds connections open for
	// the lifetime of a subscriber.
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
