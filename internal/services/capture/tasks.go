package capture

import (
	"context"
	"fmt"

	"capture-worker-go/internal/models"
	"capture-worker-go/internal/services/metadata"
)

// Names of the periodic jobs
const (
	JobFullFrame = "full"
	JobHealthLog = "log"
)

// FrameSaver persists a whole frame
type FrameSaver interface {
	SaveFrame(ctx context.Context, frame *models.Frame, kind models.FrameKind, tracks []models.Track, sess *models.Session) (string, error)
}

// HealthSampler reads one health sample
type HealthSampler interface {
	Sample(ctx context.Context) models.HealthSample
}

// FullFrameTask saves the most recent frame handed over by the loop. It does
// nothing until the first frame has arrived.
func FullFrameTask(saver FrameSaver, sess *models.Session) func(ctx context.Context, input any) error {
	return func(ctx context.Context, input any) error {
		frame, ok := input.(*models.Frame)
		if !ok || frame == nil {
			return nil
		}
		if _, err := saver.SaveFrame(ctx, frame, models.FrameKindFull, nil, sess); err != nil {
			return fmt.Errorf("full frame job: %w", err)
		}
		return nil
	}
}

// HealthLogTask appends one health sample to the session health log
func HealthLogTask(sampler HealthSampler, sess *models.Session) func(ctx context.Context, input any) error {
	table := metadata.NewTable(sess.HealthLogPath(), metadata.HealthHeader)
	return func(ctx context.Context, _ any) error {
		sample := sampler.Sample(ctx)
		if err := table.Append(metadata.HealthRow(sess.ID, sample)); err != nil {
			return fmt.Errorf("health log job: %w", err)
		}
		return nil
	}
}
