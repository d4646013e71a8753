package session

import (
	"context"
	"errors"

	"capture-worker-go/internal/models"
)

// MultiSink fans a track report out to several sinks. Every sink is called
// even when an earlier one fails.
type MultiSink []TrackSink

func (m MultiSink) PublishTrack(ctx context.Context, report models.TrackReport) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.PublishTrack(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SinkFunc adapts a function to TrackSink
type SinkFunc func(ctx context.Context, report models.TrackReport) error

func (f SinkFunc) PublishTrack(ctx context.Context, report models.TrackReport) error {
	return f(ctx, report)
}
