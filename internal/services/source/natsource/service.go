package natsource

import (
	"fmt"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"capture-worker-go/internal/helpers"
	"capture-worker-go/internal/services/source"
)

// Subscriber delivers raw messages of a subject
type Subscriber interface {
	Subscribe(subject string, handler func([]byte)) (*nats.Subscription, error)
}

// Service feeds a paired source from the frame and track subjects
type Service struct {
	pair         *source.Pair
	sub          Subscriber
	frameSubject string
	trackSubject string
	labels       []string
	logger       zerolog.Logger

	subs    []*nats.Subscription
	invalid atomic.Int64
}

func NewService(pair *source.Pair, sub Subscriber, frameSubject, trackSubject string, labels []string, logger zerolog.Logger) *Service {
	return &Service{
		pair:         pair,
		sub:          sub,
		frameSubject: frameSubject,
		trackSubject: trackSubject,
		labels:       labels,
		logger:       logger,
	}
}

// Start subscribes to both subjects
func (s *Service) Start() error {
	frames, err := s.sub.Subscribe(s.frameSubject, s.handleFrame)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.frameSubject, err)
	}
	s.subs = append(s.subs, frames)

	tracks, err := s.sub.Subscribe(s.trackSubject, s.handleTracks)
	if err != nil {
		s.Stop()
		return fmt.Errorf("failed to subscribe to %s: %w", s.trackSubject, err)
	}
	s.subs = append(s.subs, tracks)

	s.logger.Info().
		Str("frame_subject", s.frameSubject).
		Str("track_subject", s.trackSubject).
		Msg("Subscribed to camera host")
	return nil
}

func (s *Service) handleFrame(data []byte) {
	msg, err := source.DecodeFrameMessage(data)
	if err != nil {
		s.reject(err)
		return
	}

	frame, err := helpers.DecodeFrame(msg.Data, msg.Width, msg.Height, msg.Sequence, msg.Timestamp)
	if err != nil {
		s.reject(err)
		return
	}
	s.pair.PutFrame(frame)
}

func (s *Service) handleTracks(data []byte) {
	list, err := source.DecodeTrackList(data, s.labels)
	if err != nil {
		s.reject(err)
		return
	}
	s.pair.PutTracks(list)
}

func (s *Service) reject(err error) {
	// Log the first failure and then every 100th
	if n := s.invalid.Add(1); n == 1 || n%100 == 0 {
		s.logger.Warn().Err(err).Int64("invalid_messages", n).Msg("Dropped invalid message")
	}
}

// Stop removes the subscriptions
func (s *Service) Stop() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Debug().Err(err).Str("subject", sub.Subject).Msg("Failed to unsubscribe")
		}
	}
	s.subs = nil
}

// Invalid returns the number of dropped messages
func (s *Service) Invalid() int64 {
	return s.invalid.Load()
}
