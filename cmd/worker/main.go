package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"capture-worker-go/internal/api"
	"capture-worker-go/internal/config"
	"capture-worker-go/internal/logging"
	"capture-worker-go/internal/services"
	"capture-worker-go/internal/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := config.Load()
	if err := cfg.ApplyFlags(os.Args[0], os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if err := cfg.LoadLabels(); err != nil {
		log.Error().Err(err).Msg("Failed to load labels")
		return 1
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return 1
	}

	closeLog, err := logging.Setup(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to set up logging")
		return 1
	}
	defer closeLog()

	log.Info().
		Str("worker_id", cfg.WorkerID).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Dur("recording_time", cfg.RecordingTime).
		Strs("labels", cfg.Labels).
		Msg("Starting capture worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		// A second signal terminates immediately
		stop()
	}()

	container, err := services.NewServiceContainer(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize services")
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := container.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Service shutdown failed")
		}
	}()

	w := worker.New(cfg, container)

	if cfg.APIEnabled {
		server := api.NewServer(cfg, w)
		go func() {
			if err := server.Start(); err != nil {
				log.Error().Err(err).Msg("Status API failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Status API forced to shutdown")
			}
		}()
	}

	if _, err := w.Run(ctx); err != nil {
		if errors.Is(err, worker.ErrLowDisk) {
			return 0
		}
		log.Error().Err(err).Msg("Recording failed")
		return 1
	}

	log.Info().Msg("Capture worker stopped")
	return 0
}
