package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"capture-worker-go/internal/config"
	"capture-worker-go/internal/logging"
	"capture-worker-go/internal/models"
	"capture-worker-go/internal/services"
	"capture-worker-go/internal/services/archive"
	"capture-worker-go/internal/services/capture"
	"capture-worker-go/internal/services/dispatcher"
	"capture-worker-go/internal/services/scheduler"
	"capture-worker-go/internal/services/session"
	"capture-worker-go/internal/services/source"
	"capture-worker-go/internal/services/source/natsource"
	"capture-worker-go/internal/services/storage"
)

// ErrLowDisk is returned when the startup disk check fails. No session is
// opened in that case.
var ErrLowDisk = errors.New("free disk space below minimum")

// Worker runs one recording session on top of the service container
type Worker struct {
	config   *config.Config
	services *services.ServiceContainer
	logger   zerolog.Logger

	mu        sync.RWMutex
	pair      *source.Pair
	feed      *natsource.Service
	session   *session.Session
	capture   *capture.Service
	dispatch  *dispatcher.Service
	scheduler *scheduler.Service
}

func New(cfg *config.Config, sc *services.ServiceContainer) *Worker {
	return &Worker{
		config:   cfg,
		services: sc,
		logger:   logging.NewServiceLogger(cfg, "worker"),
	}
}

// Run records until a stop condition holds, then publishes the summary and
// archives the session directory when configured
func (w *Worker) Run(ctx context.Context) (models.SessionSummary, error) {
	cfg := w.config

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return models.SessionSummary{}, fmt.Errorf("failed to create data directory: %w", err)
	}
	free, err := w.services.Disk.FreeMB(cfg.DataDir)
	if err != nil {
		return models.SessionSummary{}, fmt.Errorf("failed to read free disk space: %w", err)
	}
	if free < cfg.MinDiskSpaceMB {
		w.logger.Warn().
			Float64("free_mb", free).
			Float64("min_mb", cfg.MinDiskSpaceMB).
			Msg("Shut down without recording, not enough free disk space")
		return models.SessionSummary{}, ErrLowDisk
	}

	pair := source.NewPair(cfg.SourceQueueSize)
	if cfg.SourceMaxSkew > 0 {
		pair.MaxSkew = cfg.SourceMaxSkew
	}
	w.mu.Lock()
	w.pair = pair
	w.mu.Unlock()

	if w.services.Messaging != nil {
		feed := natsource.NewService(pair, w.services.Messaging, cfg.FrameSubject, cfg.TrackSubject, cfg.Labels,
			logging.NewServiceLogger(cfg, "source"))
		if err := feed.Start(); err != nil {
			return models.SessionSummary{}, fmt.Errorf("failed to start frame source: %w", err)
		}
		defer feed.Stop()

		w.mu.Lock()
		w.feed = feed
		w.mu.Unlock()
	} else {
		w.logger.Warn().Msg("NATS disabled, no frames will arrive")
	}

	if len(cfg.AFRange) == 2 && w.services.Controller != nil {
		if err := w.services.Controller.SetFocusRange(ctx, cfg.AFRange[0], cfg.AFRange[1]); err != nil {
			w.logger.Warn().Err(err).Msg("Failed to set auto focus range")
		} else {
			w.logger.Info().Ints("af_range_cm", cfg.AFRange).Msg("Auto focus range set")
		}
	}

	sess, err := w.openSession(ctx)
	if err != nil {
		return models.SessionSummary{}, err
	}
	logger := logging.WithSession(w.logger, sess.Meta().ID)

	svc, err := w.build(sess, pair, logger)
	if err != nil {
		if _, cerr := sess.Close(context.WithoutCancel(ctx), models.StopReasonError); cerr != nil {
			logger.Error().Err(cerr).Msg("Failed to close session")
		}
		return models.SessionSummary{}, err
	}

	logger.Info().
		Str("dir", sess.Meta().Dir).
		Dur("recording_time", cfg.RecordingTime).
		Str("crop_mode", string(cfg.CropMode)).
		Str("full_frames", string(cfg.FullFrameMode)).
		Msg("🎬 Recording started")

	summary, err := svc.Run(ctx, capture.StopConditions{
		Duration:  cfg.RecordingTime,
		MinDiskMB: cfg.MinDiskSpaceMB,
		DiskPath:  cfg.DataDir,
	}, w.onTick(logger))
	if err != nil {
		return summary, err
	}

	logger.Info().
		Str("stop_reason", string(summary.StopReason)).
		Float64("minutes", summary.Duration.Minutes()).
		Int("crops", summary.Crops).
		Int("ids", summary.TrackIDs).
		Float64("disk_free_mb", summary.DiskFreeMB).
		Msg("✅ Recording finished")

	w.finish(ctx, sess, summary, logger)
	return summary, nil
}

func (w *Worker) openSession(ctx context.Context) (*session.Session, error) {
	cfg := w.config

	var sinks session.MultiSink
	if w.services.Messaging != nil {
		sinks = append(sinks, w.services.Messaging)
	}

	sess, err := session.Open(ctx, w.services.Registry, session.Options{
		Root:       cfg.DataDir,
		Labels:     cfg.Labels,
		FullFrames: cfg.FullFrameMode != models.FullFrameOff,
		Overlays:   cfg.SaveOverlayFrames,
	}, sinks, w.services.Disk, logging.NewServiceLogger(cfg, "session"))
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	w.mu.Lock()
	w.session = sess
	w.mu.Unlock()
	return sess, nil
}

func (w *Worker) build(sess *session.Session, pair *source.Pair, logger zerolog.Logger) (*capture.Service, error) {
	cfg := w.config
	meta := sess.Meta()

	backend := storage.NewService(cfg.CropMode, cfg.JPEGQuality, models.OverlayStyleFor(cfg.FourK), logger)
	dispatch := dispatcher.NewService(backend, meta, sess, logger)
	sched := scheduler.NewService(logger)

	if cfg.FullFrameMode == models.FullFrameFrequency {
		if err := sched.Schedule(capture.JobFullFrame, cfg.FullFrameInterval, capture.FullFrameTask(backend, meta), nil); err != nil {
			sched.ShutdownAndDrain()
			return nil, fmt.Errorf("failed to schedule full frame job: %w", err)
		}
	}
	if cfg.SaveLogs {
		if err := sched.Schedule(capture.JobHealthLog, cfg.HealthLogInterval, capture.HealthLogTask(w.services.Health, meta), nil); err != nil {
			sched.ShutdownAndDrain()
			return nil, fmt.Errorf("failed to schedule health log job: %w", err)
		}
	}

	var exposure capture.ExposureController
	if cfg.BBoxAERegion && w.services.Controller != nil {
		exposure = w.services.Controller
	}

	svc := capture.NewService(capture.Options{
		Interval:              cfg.CaptureInterval,
		LostFramesTillRemoval: cfg.LostFramesTillRemoval,
		FullFrameMode:         cfg.FullFrameMode,
		SaveOverlays:          cfg.SaveOverlayFrames,
		ExposureFromTracks:    cfg.BBoxAERegion,
	}, pair, dispatch, sched, sess, w.services.Disk, exposure, logger)

	w.mu.Lock()
	w.capture = svc
	w.dispatch = dispatch
	w.scheduler = sched
	w.mu.Unlock()
	return svc, nil
}

func (w *Worker) onTick(logger zerolog.Logger) func(capture.Tick) {
	return func(t capture.Tick) {
		level := zerolog.DebugLevel
		if len(t.Finalized) > 0 {
			level = zerolog.InfoLevel
		}
		logger.WithLevel(level).Int("tick", t.N).
			Bool("sample", t.HasSample).
			Int("tracks", t.Tracks).
			Int("crops", t.Crops).
			Ints64("finalized", t.Finalized).
			Float64("disk_free_mb", t.DiskFreeMB).
			Msg("Tick")
	}
}

// finish runs the post recording steps. They must complete after an
// interrupt as well, so ctx cancellation is ignored.
func (w *Worker) finish(ctx context.Context, sess *session.Session, summary models.SessionSummary, logger zerolog.Logger) {
	ctx = context.WithoutCancel(ctx)

	if w.services.Messaging != nil {
		if err := w.services.Messaging.PublishSummary(ctx, summary); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish session summary")
		}
	}

	if w.config.ZipData {
		path, err := archive.NewService(logger).Archive(ctx, sess.Meta().Dir)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to archive session directory")
			return
		}
		logger.Info().Str("archive", path).Msg("📦 Session archived")
	}
}

// Running reports whether the capture loop is active
func (w *Worker) Running() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.capture != nil && w.capture.Status().Running
}

func (w *Worker) SessionStats() (session.Stats, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.session == nil {
		return session.Stats{}, false
	}
	return w.session.Stats(), true
}

func (w *Worker) CaptureStatus() capture.Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.capture == nil {
		return capture.Status{}
	}
	return w.capture.Status()
}

func (w *Worker) DispatcherStats() dispatcher.Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.dispatch == nil {
		return dispatcher.Stats{}
	}
	return w.dispatch.Stats()
}

func (w *Worker) JobStats() []scheduler.JobStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.scheduler == nil {
		return nil
	}
	return w.scheduler.Stats()
}

func (w *Worker) SourceStats() source.Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.pair == nil {
		return source.Stats{}
	}
	st := w.pair.Stats()
	if w.feed != nil {
		st.InvalidMessages = w.feed.Invalid()
	}
	return st
}

func (w *Worker) Sample(ctx context.Context) models.HealthSample {
	return w.services.Health.Sample(ctx)
}
