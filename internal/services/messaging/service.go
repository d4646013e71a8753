package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"capture-worker-go/internal/config"
	"capture-worker-go/internal/models"
)

type Service struct {
	conn *nats.Conn
	cfg  *config.Config
}

func NewService(cfg *config.Config) (*Service, error) {
	opts := []nats.Option{
		nats.Name("capture-worker-" + cfg.WorkerID),
		nats.Timeout(cfg.NatsConnectTimeout),
		nats.ReconnectWait(cfg.NatsReconnectWait),
		nats.MaxReconnects(cfg.NatsMaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.NatsURL, opts...)
	if err != nil {
		return nil, err
	}

	log.Info().Str("url", cfg.NatsURL).Msg("NATS connection established")

	return &Service{
		conn: conn,
		cfg:  cfg,
	}, nil
}

func (s *Service) Publish(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return s.conn.Publish(subject, payload)
}

func (s *Service) Subscribe(subject string, handler func([]byte)) (*nats.Subscription, error) {
	return s.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishTrack sends the report of a finalized track
func (s *Service) PublishTrack(ctx context.Context, report models.TrackReport) error {
	return s.Publish(s.cfg.TrackReportSubject, report)
}

// PublishSummary sends the summary of a closed session
func (s *Service) PublishSummary(ctx context.Context, summary models.SessionSummary) error {
	if err := s.Publish(s.cfg.SummarySubject, summary); err != nil {
		return err
	}
	// Summaries are sent right before exit
	return s.conn.FlushTimeout(s.cfg.NatsDrainTimeout)
}

func (s *Service) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

func (s *Service) Shutdown(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}

	// Try graceful drain with timeout, fallback to immediate close
	if err := s.conn.Drain(); err != nil {
		log.Warn().Err(err).Msg("Failed to drain NATS connection gracefully, closing immediately")
		s.conn.Close()
		return nil
	}

	deadline := time.Now().Add(s.cfg.NatsDrainTimeout)
	for !s.conn.IsClosed() {
		if time.Now().After(deadline) || ctx.Err() != nil {
			log.Warn().Msg("NATS drain timed out, closing immediately")
			s.conn.Close()
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}
