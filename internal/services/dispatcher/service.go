package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"capture-worker-go/internal/models"
)

// ErrClosed is returned for dispatches issued after Drain has started
var ErrClosed = errors.New("dispatcher is draining")

// Backend persists crops and frames to storage
type Backend interface {
	SaveCrop(ctx context.Context, frame *models.Frame, track models.Track, sess *models.Session) (models.CropRecord, error)
	SaveFrame(ctx context.Context, frame *models.Frame, kind models.FrameKind, tracks []models.Track, sess *models.Session) (string, error)
}

// CropRecorder receives every successfully saved crop
type CropRecorder interface {
	RecordCrop(rec models.CropRecord)
}

// Stats is a snapshot of dispatcher counters
type Stats struct {
	Dispatched int64 `json:"dispatched"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	InFlight   int   `json:"in_flight"`
}

// Service runs persistence jobs. Crop saves run in the caller's goroutine,
// full frame and overlay saves run in their own goroutine on a private
// snapshot of the frame.
type Service struct {
	backend  Backend
	session  *models.Session
	recorder CropRecorder
	logger   zerolog.Logger

	mu       sync.Mutex
	closed   bool
	nextID   uint64
	inflight map[uint64]models.FrameKind
	wg       sync.WaitGroup

	dispatched atomic.Int64
	completed  atomic.Int64
	failed     atomic.Int64
}

// NewService creates a dispatcher bound to one session
func NewService(backend Backend, sess *models.Session, recorder CropRecorder, logger zerolog.Logger) *Service {
	return &Service{
		backend:  backend,
		session:  sess,
		recorder: recorder,
		logger:   logger,
		inflight: make(map[uint64]models.FrameKind),
	}
}

// DispatchCropSave saves the crop and its metadata row synchronously
func (s *Service) DispatchCropSave(ctx context.Context, frame *models.Frame, track models.Track, tickTime time.Time) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	s.dispatched.Add(1)
	rec, err := s.backend.SaveCrop(ctx, frame, track, s.session)
	if err != nil {
		s.failed.Add(1)
		s.logger.Error().
			Err(err).
			Int64("track_id", track.ID).
			Str("label", track.Detection.Label).
			Time("tick_time", tickTime).
			Msg("Failed to save crop")
		return fmt.Errorf("save crop for track %d: %w", track.ID, err)
	}

	s.completed.Add(1)
	if s.recorder != nil {
		s.recorder.RecordCrop(rec)
	}
	return nil
}

// DispatchFullFrameSave saves a copy of the frame in the background
func (s *Service) DispatchFullFrameSave(ctx context.Context, frame *models.Frame, tickTime time.Time) error {
	return s.dispatch(ctx, models.FrameKindFull, frame.Clone(), nil, tickTime)
}

// DispatchOverlaySave draws the track list onto a copy of the frame and
// saves it in the background
func (s *Service) DispatchOverlaySave(ctx context.Context, frame *models.Frame, tracks []models.Track, tickTime time.Time) error {
	return s.dispatch(ctx, models.FrameKindOverlay, frame.Clone(), models.CloneTracks(tracks), tickTime)
}

func (s *Service) dispatch(ctx context.Context, kind models.FrameKind, snapshot *models.Frame, tracks []models.Track, tickTime time.Time) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.nextID++
	id := s.nextID
	s.inflight[id] = kind
	s.wg.Add(1)
	s.mu.Unlock()

	s.dispatched.Add(1)

	// In-flight jobs are never cancelled
	jobCtx := context.WithoutCancel(ctx)
	go s.run(jobCtx, id, kind, snapshot, tracks, tickTime)
	return nil
}

func (s *Service) run(ctx context.Context, id uint64, kind models.FrameKind, snapshot *models.Frame, tracks []models.Track, tickTime time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.failed.Add(1)
			s.logger.Error().
				Interface("panic", r).
				Str("kind", string(kind)).
				Time("tick_time", tickTime).
				Msg("Persistence job panic recovered")
		}

		s.mu.Lock()
		delete(s.inflight, id)
		s.mu.Unlock()
		s.wg.Done()
	}()

	path, err := s.backend.SaveFrame(ctx, snapshot, kind, tracks, s.session)
	if err != nil {
		s.failed.Add(1)
		ev := s.logger.Error().
			Err(err).
			Str("kind", string(kind)).
			Time("tick_time", tickTime)
		if len(tracks) > 0 {
			ev = ev.Int64("track_id", tracks[len(tracks)-1].ID)
		}
		ev.Msg("Failed to save frame")
		return
	}

	s.completed.Add(1)
	s.logger.Debug().
		Str("kind", string(kind)).
		Str("path", path).
		Msg("Frame saved")
}

// Drain refuses new jobs and blocks until every dispatched job has finished
func (s *Service) Drain() {
	s.mu.Lock()
	s.closed = true
	pending := len(s.inflight)
	s.mu.Unlock()

	if pending > 0 {
		s.logger.Info().Int("pending_jobs", pending).Msg("Waiting for persistence jobs to finish")
	}
	s.wg.Wait()
}

// InFlight returns the number of running background jobs
func (s *Service) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Stats returns a snapshot of the dispatcher counters
func (s *Service) Stats() Stats {
	return Stats{
		Dispatched: s.dispatched.Load(),
		Completed:  s.completed.Load(),
		Failed:     s.failed.Load(),
		InFlight:   s.InFlight(),
	}
}
