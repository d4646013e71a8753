package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"capture-worker-go/internal/helpers"
	"capture-worker-go/internal/models"
	"capture-worker-go/internal/services/metadata"
)

// timestampFormat keeps file names unique and sortable down to microseconds
const timestampFormat = "2006-01-02_15-04-05.000000"

// Service is the disk persistence backend. Crops and frames are written as
// JPEG files inside the session directory and every crop gets one row in the
// session metadata table.
type Service struct {
	cropMode models.CropMode
	quality  int
	overlay  models.OverlayStyle
	logger   zerolog.Logger
	now      func() time.Time

	mu     sync.Mutex
	tables map[string]*metadata.Table
	seq    atomic.Uint64
}

// NewService creates a backend with the given crop geometry, JPEG quality
// and overlay style
func NewService(cropMode models.CropMode, quality int, overlay models.OverlayStyle, logger zerolog.Logger) *Service {
	if quality <= 0 || quality > 100 {
		quality = helpers.HighQuality
	}
	return &Service{
		cropMode: cropMode,
		quality:  quality,
		overlay:  overlay,
		logger:   logger,
		now:      time.Now,
		tables:   make(map[string]*metadata.Table),
	}
}

// table returns the metadata table of a session, creating it on first use
func (s *Service) table(sess *models.Session) *metadata.Table {
	path := sess.MetadataPath()

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[path]
	if !ok {
		t = metadata.NewTable(path, metadata.CropHeader)
		s.tables[path] = t
	}
	return t
}

// SaveCrop cuts the track's box out of the frame, writes it to
// crop/<label>/ and appends one metadata row
func (s *Service) SaveCrop(ctx context.Context, frame *models.Frame, track models.Track, sess *models.Session) (models.CropRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.CropRecord{}, err
	}

	det := track.Detection
	rect := s.cropMode.Rect(det.BBox, frame.Width, frame.Height)
	data, err := helpers.CropJPEG(frame, rect, s.quality)
	if err != nil {
		return models.CropRecord{}, fmt.Errorf("failed to crop track %d: %w", track.ID, err)
	}

	ts := s.now()
	name := fmt.Sprintf("%s_%s_%d_crop.jpg", sess.StartFormat(), ts.Format(timestampFormat), track.ID)
	path := filepath.Join(sess.CropDir(det.Label), name)
	if err := helpers.WriteFile(path, data); err != nil {
		return models.CropRecord{}, err
	}

	rec := models.CropRecord{
		SessionID:  sess.ID,
		Timestamp:  ts,
		Label:      det.Label,
		Confidence: det.Confidence,
		TrackID:    track.ID,
		BBox:       det.BBox,
		Path:       path,
	}
	if err := s.table(sess).Append(metadata.CropRow(rec)); err != nil {
		return rec, fmt.Errorf("failed to append crop metadata: %w", err)
	}

	s.logger.Debug().
		Int64("track_id", track.ID).
		Str("label", det.Label).
		Str("path", path).
		Msg("Crop saved")
	return rec, nil
}

// SaveFrame writes the whole frame to full/ or overlay/. Overlay frames get
// the tracks drawn on top.
func (s *Service) SaveFrame(ctx context.Context, frame *models.Frame, kind models.FrameKind, tracks []models.Track, sess *models.Session) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var overlay []models.Track
	if kind == models.FrameKindOverlay {
		overlay = tracks
	}

	data, err := helpers.FrameJPEG(frame, overlay, s.overlay, s.quality)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s frame: %w", kind, err)
	}

	name := fmt.Sprintf("%s_%s_%d_%s.jpg", sess.StartFormat(), s.now().Format(timestampFormat), s.seq.Add(1), kind)
	path := filepath.Join(sess.FrameDir(kind), name)
	if err := helpers.WriteFile(path, data); err != nil {
		return "", err
	}

	s.logger.Debug().Str("kind", string(kind)).Str("path", path).Msg("Frame saved")
	return path, nil
}
