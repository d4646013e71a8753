package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"capture-worker-go/internal/config"
	"capture-worker-go/internal/logging"
	"capture-worker-go/internal/services/health"
	"capture-worker-go/internal/services/messaging"
	"capture-worker-go/internal/services/registry"
	"capture-worker-go/internal/services/registry/sqlstore"
	"capture-worker-go/internal/services/session"
)

// Registry hands out session IDs and stores summaries
type Registry interface {
	session.Registry
	Close() error
}

// ServiceContainer holds the services that outlive a single recording
type ServiceContainer struct {
	Config      *config.Config
	Registry    Registry
	Messaging   *messaging.Service
	Controller  *messaging.Controller
	Accelerator *health.Accelerator
	Health      *health.Reporter
	Disk        *health.Disk
}

// NewServiceContainer connects the registry, NATS and the accelerator health
// check. NATS is optional: the container is still usable without it.
func NewServiceContainer(cfg *config.Config) (*ServiceContainer, error) {
	reg, err := openRegistry(cfg)
	if err != nil {
		return nil, err
	}

	sc := &ServiceContainer{
		Config:      cfg,
		Registry:    reg,
		Accelerator: health.NewAccelerator(cfg.AcceleratorGRPCURL, cfg.AcceleratorService),
		Disk:        health.NewDisk(),
	}
	sc.Health = health.NewReporter(cfg.DataDir, sc.Accelerator, logging.NewServiceLogger(cfg, "health"))

	if cfg.NatsEnabled {
		msg, err := messaging.NewService(cfg)
		if err != nil {
			reg.Close()
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		sc.Messaging = msg

		sc.Controller = messaging.NewController(msg, cfg.ControlSubject, messaging.SensorWidth, messaging.SensorHeight)
	}

	return sc, nil
}

func openRegistry(cfg *config.Config) (Registry, error) {
	if cfg.RegistryDSN == "" {
		log.Info().Str("dir", cfg.DataDir).Msg("Using file session registry")
		return registry.NewFileStore(cfg.DataDir), nil
	}

	store, err := sqlstore.Open(cfg.RegistryDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open session registry: %w", err)
	}
	log.Info().Msg("Using SQL session registry")
	return store, nil
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	var errs []error

	if sc.Messaging != nil {
		if err := sc.Messaging.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("nats: %w", err))
		}
	}

	if sc.Accelerator != nil {
		if err := sc.Accelerator.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("accelerator: %w", err))
		}
	}

	if sc.Registry != nil {
		if err := sc.Registry.Close(); err != nil {
			errs = append(errs, fmt.Errorf("registry: %w", err))
		}
	}

	return errors.Join(errs...)
}
