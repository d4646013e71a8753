package models

import (
	"image"
	"time"
)

// TrackStatus is the state the external tracker assigns to a tracklet each tick
type TrackStatus string

const (
	TrackStatusNew     TrackStatus = "NEW"
	TrackStatusTracked TrackStatus = "TRACKED"
	TrackStatusLost    TrackStatus = "LOST"
	TrackStatusRemoved TrackStatus = "REMOVED"
)

// String returns the string representation of TrackStatus
func (s TrackStatus) String() string {
	return string(s)
}

// IsValid checks if the track status is one the tracker can report
func (s TrackStatus) IsValid() bool {
	switch s {
	case TrackStatusNew, TrackStatusTracked, TrackStatusLost, TrackStatusRemoved:
		return true
	default:
		return false
	}
}

// BBox represents a bounding box in relative coordinates (0.0-1.0) as
// reported by the detection model
type BBox struct {
	XMin float64 `json:"x_min"`
	YMin float64 `json:"y_min"`
	XMax float64 `json:"x_max"`
	YMax float64 `json:"y_max"`
}

// Norm converts the relative box into pixel coordinates of a width x height
// frame. Coordinates are clipped to the frame first.
func (b BBox) Norm(width, height int) image.Rectangle {
	return image.Rect(
		int(clip01(b.XMin)*float64(width)),
		int(clip01(b.YMin)*float64(height)),
		int(clip01(b.XMax)*float64(width)),
		int(clip01(b.YMax)*float64(height)),
	)
}

// Square expands the shorter side of a pixel box so the box becomes 1:1.
// The box grows on both sides of its center and is shifted back inside the
// frame when it would cross a margin. The side never exceeds the shorter
// frame dimension.
func Square(r image.Rectangle, width, height int) image.Rectangle {
	side := max(r.Dx(), r.Dy())
	side = min(side, width, height)
	if side <= 0 {
		return r
	}

	cx := r.Min.X + r.Dx()/2
	cy := r.Min.Y + r.Dy()/2
	x0 := cx - side/2
	y0 := cy - side/2

	// Shift inward at frame margins
	x0 = max(0, min(x0, width-side))
	y0 = max(0, min(y0, height-side))

	return image.Rect(x0, y0, x0+side, y0+side)
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Detection is the model output a tracklet was derived from
type Detection struct {
	Label      string  `json:"label"`
	LabelIndex int     `json:"label_index"`
	Confidence float32 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// Track represents one tracklet of the tracker output for a single tick
type Track struct {
	ID        int64       `json:"id"`
	Status    TrackStatus `json:"status"`
	Detection Detection   `json:"detection"`
}

// CropRecord is one row of the session metadata table
type CropRecord struct {
	SessionID  int64     `json:"rec_id"`
	Timestamp  time.Time `json:"timestamp"`
	Label      string    `json:"label"`
	Confidence float32   `json:"confidence"`
	TrackID    int64     `json:"track_id"`
	BBox       BBox      `json:"bbox"`
	Path       string    `json:"file_path"`
}

// TrackReport is the aggregated output of a track, flushed once when the
// track is finalized
type TrackReport struct {
	SessionID      int64     `json:"rec_id"`
	TrackID        int64     `json:"track_id"`
	Label          string    `json:"label"`
	Crops          int       `json:"crops"`
	BestConfidence float32   `json:"best_confidence"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
	CropPaths      []string  `json:"crop_paths"`
}
