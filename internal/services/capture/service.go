package capture

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"capture-worker-go/internal/models"
	"capture-worker-go/internal/services/source"
	"capture-worker-go/internal/services/tracking"
)

// Source yields synchronized samples without blocking
type Source interface {
	Next() (models.Sample, error)
}

// Dispatcher runs persistence jobs
type Dispatcher interface {
	DispatchCropSave(ctx context.Context, frame *models.Frame, track models.Track, tickTime time.Time) error
	DispatchFullFrameSave(ctx context.Context, frame *models.Frame, tickTime time.Time) error
	DispatchOverlaySave(ctx context.Context, frame *models.Frame, tracks []models.Track, tickTime time.Time) error
	Drain()
}

// Scheduler runs periodic jobs next to the capture loop
type Scheduler interface {
	Reschedule(name string, input any) error
	ShutdownAndDrain()
}

// Session receives finalized tracks and is closed exactly once when the
// loop stops
type Session interface {
	FinalizeTrack(ctx context.Context, id int64) error
	Close(ctx context.Context, reason models.StopReason) (models.SessionSummary, error)
}

// DiskProbe reports free disk space in MB
type DiskProbe interface {
	FreeMB(path string) (float64, error)
}

// ExposureController moves the camera auto exposure region onto a box
type ExposureController interface {
	SetExposureRegion(ctx context.Context, bbox models.BBox) error
}

// StopConditions end the capture loop. They are evaluated once before the
// first tick and then once per tick, after its persistence work and before
// sleeping.
type StopConditions struct {
	Duration  time.Duration
	MinDiskMB float64
	DiskPath  string
}

// Options selects what is persisted on each tick
type Options struct {
	Interval              time.Duration
	LostFramesTillRemoval int
	FullFrameMode         models.FullFrameMode
	SaveOverlays          bool
	ExposureFromTracks    bool
}

// Tick describes one finished loop iteration
type Tick struct {
	N          int
	Time       time.Time
	HasSample  bool
	Tracks     int
	Crops      int
	Finalized  []int64
	DiskFreeMB float64
}

// Status is a live view of the capture loop
type Status struct {
	Running    bool      `json:"running"`
	Ticks      int64     `json:"ticks"`
	EmptyTicks int64     `json:"empty_ticks"`
	LastTick   time.Time `json:"last_tick"`
	DiskFreeMB float64   `json:"disk_free_mb"`
	Tracked    int       `json:"tracked_ids"`
}

// Service is the capture orchestrator. It owns the tracker and drives one
// tick per interval until a stop condition holds.
type Service struct {
	opts      Options
	source    Source
	dispatch  Dispatcher
	scheduler Scheduler
	session   Session
	disk      DiskProbe
	exposure  ExposureController
	tracker   *tracking.Tracker
	logger    zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	running    atomic.Bool
	ticks      atomic.Int64
	emptyTicks atomic.Int64
	lastTick   atomic.Int64
	diskFree   atomic.Uint64
	tracked    atomic.Int64
}

// NewService wires the orchestrator. scheduler and exposure may be nil.
func NewService(opts Options, src Source, dispatch Dispatcher, scheduler Scheduler, sess Session, disk DiskProbe, exposure ExposureController, logger zerolog.Logger) *Service {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	return &Service{
		opts:      opts,
		source:    src,
		dispatch:  dispatch,
		scheduler: scheduler,
		session:   sess,
		disk:      disk,
		exposure:  exposure,
		tracker:   tracking.NewTracker(opts.LostFramesTillRemoval),
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run drives the capture loop until the recording time is over, free disk
// space drops below the floor or ctx is cancelled. Shutdown always stops the
// periodic jobs first, then drains persistence jobs, then closes the session.
// onTick may be nil.
func (s *Service) Run(ctx context.Context, stop StopConditions, onTick func(Tick)) (models.SessionSummary, error) {
	s.running.Store(true)
	defer s.running.Store(false)

	start := s.now()
	reason := s.loop(ctx, start, stop, onTick)

	s.logger.Info().
		Str("stop_reason", string(reason)).
		Int64("ticks", s.ticks.Load()).
		Msg("Capture loop stopped, shutting down")
	return s.shutdown(ctx, reason)
}

func (s *Service) loop(ctx context.Context, start time.Time, stop StopConditions, onTick func(Tick)) models.StopReason {
	// Disk may already be below the floor before the first tick
	if _, reason, done := s.evaluate(start, s.now(), stop); done {
		return reason
	}

	for n := 0; ; n++ {
		if ctx.Err() != nil {
			return models.StopReasonInterrupt
		}

		tick := s.tick(ctx, n, s.now())

		// Checked before sleeping: the recording time is compared with the
		// start of the next tick
		free, reason, done := s.evaluate(start, s.now().Add(s.opts.Interval), stop)
		tick.DiskFreeMB = free
		if onTick != nil {
			onTick(tick)
		}
		if done {
			return reason
		}

		if err := s.sleep(ctx, s.opts.Interval); err != nil {
			return models.StopReasonInterrupt
		}
	}
}

// evaluate checks the stop conditions once. at is the instant compared with
// the recording time.
func (s *Service) evaluate(start, at time.Time, stop StopConditions) (float64, models.StopReason, bool) {
	free, err := s.disk.FreeMB(stop.DiskPath)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read free disk space")
	} else {
		s.diskFree.Store(uint64(max(free, 0)))
	}

	if at.Sub(start) >= stop.Duration {
		return free, models.StopReasonDuration, true
	}
	if err == nil && free < stop.MinDiskMB {
		s.logger.Warn().
			Float64("disk_free_mb", free).
			Float64("min_disk_mb", stop.MinDiskMB).
			Msg("Free disk space below threshold")
		return free, models.StopReasonDiskSpace, true
	}
	return free, "", false
}

// tick processes at most one sample
func (s *Service) tick(ctx context.Context, n int, tickTime time.Time) Tick {
	t := Tick{N: n, Time: tickTime}
	s.ticks.Add(1)
	s.lastTick.Store(tickTime.UnixNano())

	sample, err := s.source.Next()
	if err != nil {
		if !errors.Is(err, source.ErrUnavailable) {
			s.logger.Warn().Err(err).Msg("Failed to read sample")
		}
		s.emptyTicks.Add(1)
		return t
	}
	t.HasSample = true
	t.Tracks = len(sample.Tracks)

	frame := sample.Frame
	if s.scheduler != nil && s.opts.FullFrameMode == models.FullFrameFrequency {
		if err := s.scheduler.Reschedule(JobFullFrame, frame.Clone()); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to hand frame to full frame job")
		}
	}

	last := len(sample.Tracks) - 1
	for i, track := range sample.Tracks {
		if track.Status != models.TrackStatusTracked {
			continue
		}

		// The dispatcher logs failures; the loop moves on
		if err := s.dispatch.DispatchCropSave(ctx, frame, track, tickTime); err == nil {
			t.Crops++
		}

		if i != last {
			continue
		}
		s.handleLastTrack(ctx, frame, track, sample.Tracks, tickTime)
	}

	ids := make([]int64, 0, len(sample.Tracks))
	for _, track := range sample.Tracks {
		ids = append(ids, track.ID)
	}
	t.Finalized = s.tracker.Update(ids)
	s.tracked.Store(int64(s.tracker.Len()))

	for _, id := range t.Finalized {
		if err := s.session.FinalizeTrack(ctx, id); err != nil {
			s.logger.Error().Err(err).Int64("track_id", id).Msg("Failed to finalize track")
		}
	}
	return t
}

// handleLastTrack runs the actions bound to the last track of a tick
func (s *Service) handleLastTrack(ctx context.Context, frame *models.Frame, track models.Track, tracks []models.Track, tickTime time.Time) {
	if s.opts.ExposureFromTracks && s.exposure != nil {
		if err := s.exposure.SetExposureRegion(ctx, track.Detection.BBox); err != nil {
			s.logger.Debug().Err(err).Int64("track_id", track.ID).Msg("Failed to set exposure region")
		}
	}
	if s.opts.FullFrameMode == models.FullFrameDetection {
		if err := s.dispatch.DispatchFullFrameSave(ctx, frame, tickTime); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to dispatch full frame save")
		}
	}
	if s.opts.SaveOverlays {
		if err := s.dispatch.DispatchOverlaySave(ctx, frame, tracks, tickTime); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to dispatch overlay save")
		}
	}
}

func (s *Service) shutdown(ctx context.Context, reason models.StopReason) (models.SessionSummary, error) {
	if s.scheduler != nil {
		s.scheduler.ShutdownAndDrain()
	}
	s.dispatch.Drain()

	// Closing must complete even after an interrupt
	summary, err := s.session.Close(context.WithoutCancel(ctx), reason)
	if err != nil {
		return summary, fmt.Errorf("failed to close session: %w", err)
	}
	return summary, nil
}

// Status returns a snapshot of the loop counters
func (s *Service) Status() Status {
	st := Status{
		Running:    s.running.Load(),
		Ticks:      s.ticks.Load(),
		EmptyTicks: s.emptyTicks.Load(),
		DiskFreeMB: float64(s.diskFree.Load()),
		Tracked:    int(s.tracked.Load()),
	}
	if ns := s.lastTick.Load(); ns != 0 {
		st.LastTick = time.Unix(0, ns)
	}
	return st
}
