package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Accelerator status values written to the health log
const (
	StatusDisabled    = "disabled"
	StatusUnavailable = "unavailable"
)

// Accelerator checks the liveness of the accelerator host through the
// standard gRPC health service
type Accelerator struct {
	mu        sync.Mutex
	client    healthpb.HealthClient
	conn      *grpc.ClientConn
	grpcURL   string
	service   string
	isHealthy bool
}

// NewAccelerator creates a checker for grpcURL. An empty URL disables the
// check. Connection failures are not fatal and are retried on every check.
func NewAccelerator(grpcURL, service string) *Accelerator {
	a := &Accelerator{
		grpcURL: grpcURL,
		service: service,
	}
	if grpcURL == "" {
		return a
	}

	log.Info().Str("url", grpcURL).Msg("Initializing accelerator health check")
	if err := a.connect(); err != nil {
		log.Warn().Err(err).Msg("Accelerator not available, will retry later")
	}
	return a
}

func (a *Accelerator) connect() error {
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}

	conn, err := grpc.NewClient(a.grpcURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to accelerator: %w", err)
	}

	a.client = healthpb.NewHealthClient(conn)
	a.conn = conn
	return nil
}

// Status returns the serving status reported by the accelerator
func (a *Accelerator) Status(ctx context.Context) string {
	if a == nil || a.grpcURL == "" {
		return StatusDisabled
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		if err := a.connect(); err != nil {
			return StatusUnavailable
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	resp, err := a.client.Check(ctx, &healthpb.HealthCheckRequest{Service: a.service})
	if err != nil {
		if a.isHealthy {
			log.Warn().Err(err).Str("url", a.grpcURL).Msg("Accelerator health check failed")
		}
		a.isHealthy = false
		return StatusUnavailable
	}

	a.isHealthy = resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	return resp.GetStatus().String()
}

// IsHealthy reports the result of the last check
func (a *Accelerator) IsHealthy() bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isHealthy
}

// Shutdown closes the gRPC connection
func (a *Accelerator) Shutdown(ctx context.Context) error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		log.Info().Msg("Shutting down accelerator connection")
		err := a.conn.Close()
		a.conn = nil
		return err
	}
	return nil
}
