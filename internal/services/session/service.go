package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"capture-worker-go/internal/models"
)

// ErrClosed is returned by Close on a session that was already closed
var ErrClosed = errors.New("session already closed")

// Registry hands out session IDs and stores session summaries
type Registry interface {
	NextID(ctx context.Context) (int64, error)
	WriteSummary(ctx context.Context, summary models.SessionSummary) error
}

// TrackSink receives the report of every finalized track
type TrackSink interface {
	PublishTrack(ctx context.Context, report models.TrackReport) error
}

// DiskProbe reports free disk space in MB for a path
type DiskProbe interface {
	FreeMB(path string) (float64, error)
}

// Options describes the output layout of a new session
type Options struct {
	Root       string
	Labels     []string
	FullFrames bool
	Overlays   bool
}

// Stats is a live view of session counters
type Stats struct {
	SessionID  int64     `json:"rec_id"`
	Start      time.Time `json:"start"`
	Dir        string    `json:"dir"`
	Crops      int       `json:"num_crops"`
	TrackIDs   int       `json:"num_ids"`
	OpenTracks int       `json:"open_tracks"`
	Closed     bool      `json:"closed"`
}

// Session owns one recording interval: its identity, output directory,
// per-track aggregates and the final summary record
type Session struct {
	meta     *models.Session
	registry Registry
	sink     TrackSink
	disk     DiskProbe
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	crops    int
	seen     map[int64]struct{}
	open     map[int64]*models.TrackReport
	closed   bool
	summary  models.SessionSummary
	reportMu sync.Mutex
}

// Open reserves a new session ID, creates the output directories and
// returns the open session. sink may be nil.
func Open(ctx context.Context, registry Registry, opts Options, sink TrackSink, disk DiskProbe, logger zerolog.Logger) (*Session, error) {
	return open(ctx, registry, opts, sink, disk, logger, time.Now)
}

func open(ctx context.Context, registry Registry, opts Options, sink TrackSink, disk DiskProbe, logger zerolog.Logger, now func() time.Time) (*Session, error) {
	id, err := registry.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to assign session ID: %w", err)
	}

	start := now()
	meta := &models.Session{
		ID:     id,
		Start:  start,
		Root:   opts.Root,
		Labels: append([]string(nil), opts.Labels...),
	}
	meta.Dir = filepath.Join(opts.Root, start.Format(time.DateOnly), meta.StartFormat())

	dirs := []string{meta.Dir}
	for _, label := range opts.Labels {
		dirs = append(dirs, meta.CropDir(label))
	}
	if opts.FullFrames {
		dirs = append(dirs, meta.FrameDir(models.FrameKindFull))
	}
	if opts.Overlays {
		dirs = append(dirs, meta.FrameDir(models.FrameKindOverlay))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
	}

	s := &Session{
		meta:     meta,
		registry: registry,
		sink:     sink,
		disk:     disk,
		logger:   logger.With().Int64("session_id", id).Logger(),
		now:      now,
		seen:     make(map[int64]struct{}),
		open:     make(map[int64]*models.TrackReport),
	}

	s.logger.Info().Str("dir", meta.Dir).Msg("Session opened")
	return s, nil
}

// Meta returns the immutable session description
func (s *Session) Meta() *models.Session {
	return s.meta
}

// RecordCrop adds a saved crop to the session counters and its track aggregate
func (s *Session) RecordCrop(rec models.CropRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.crops++
	s.seen[rec.TrackID] = struct{}{}

	report, ok := s.open[rec.TrackID]
	if !ok {
		report = &models.TrackReport{
			SessionID: s.meta.ID,
			TrackID:   rec.TrackID,
			FirstSeen: rec.Timestamp,
		}
		s.open[rec.TrackID] = report
	}
	report.Crops++
	report.LastSeen = rec.Timestamp
	report.CropPaths = append(report.CropPaths, rec.Path)
	if rec.Confidence >= report.BestConfidence {
		report.BestConfidence = rec.Confidence
		report.Label = rec.Label
	}
}

// FinalizeTrack flushes the aggregate of a track that left the scene.
// Tracks without saved crops have nothing to flush.
func (s *Session) FinalizeTrack(ctx context.Context, id int64) error {
	s.mu.Lock()
	report, ok := s.open[id]
	delete(s.open, id)
	s.mu.Unlock()

	if !ok {
		s.logger.Debug().Int64("track_id", id).Msg("Finalized track without crops")
		return nil
	}
	return s.flush(ctx, *report)
}

func (s *Session) flush(ctx context.Context, report models.TrackReport) error {
	if err := s.appendReport(report); err != nil {
		return err
	}
	if s.sink != nil {
		if err := s.sink.PublishTrack(ctx, report); err != nil {
			return fmt.Errorf("failed to publish track %d: %w", report.TrackID, err)
		}
	}

	s.logger.Info().
		Int64("track_id", report.TrackID).
		Str("label", report.Label).
		Int("crops", report.Crops).
		Msg("Track finalized")
	return nil
}

func (s *Session) appendReport(report models.TrackReport) error {
	line, err := json.Marshal(report)
	if err != nil {
		return err
	}

	s.reportMu.Lock()
	defer s.reportMu.Unlock()

	f, err := os.OpenFile(s.meta.TrackReportPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open track report: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write track report: %w", err)
	}
	return nil
}

// Close flushes tracks that are still open, computes the summary and writes
// it to the registry. Only the first call has an effect.
func (s *Session) Close(ctx context.Context, reason models.StopReason) (models.SessionSummary, error) {
	s.mu.Lock()
	if s.closed {
		summary := s.summary
		s.mu.Unlock()
		return summary, ErrClosed
	}
	s.closed = true

	pending := make([]models.TrackReport, 0, len(s.open))
	for id, report := range s.open {
		pending = append(pending, *report)
		delete(s.open, id)
	}
	s.mu.Unlock()

	for _, report := range pending {
		if err := s.flush(ctx, report); err != nil {
			s.logger.Error().Err(err).Int64("track_id", report.TrackID).Msg("Failed to flush open track")
		}
	}

	end := s.now()
	s.mu.Lock()
	summary := models.SessionSummary{
		SessionID:  s.meta.ID,
		Start:      s.meta.Start,
		End:        end,
		Duration:   end.Sub(s.meta.Start),
		Crops:      s.crops,
		TrackIDs:   len(s.seen),
		StopReason: reason,
		Dir:        s.meta.Dir,
	}
	s.mu.Unlock()

	if s.disk != nil {
		free, err := s.disk.FreeMB(s.meta.Root)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to read free disk space")
		} else {
			summary.DiskFreeMB = free
		}
	}

	s.mu.Lock()
	s.summary = summary
	s.mu.Unlock()

	if err := s.registry.WriteSummary(ctx, summary); err != nil {
		return summary, fmt.Errorf("failed to write session summary: %w", err)
	}

	s.logger.Info().
		Dur("duration", summary.Duration).
		Int("crops", summary.Crops).
		Int("track_ids", summary.TrackIDs).
		Float64("disk_free_mb", summary.DiskFreeMB).
		Str("stop_reason", string(reason)).
		Msg("Session closed")
	return summary, nil
}

// Stats returns the live session counters
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		SessionID:  s.meta.ID,
		Start:      s.meta.Start,
		Dir:        s.meta.Dir,
		Crops:      s.crops,
		TrackIDs:   len(s.seen),
		OpenTracks: len(s.open),
		Closed:     s.closed,
	}
}
