package models

import (
	"image"
	"time"
)

// Frame is a high resolution BGR24 frame delivered by the source
type Frame struct {
	Data      []byte    `json:"-"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// Clone returns a deep copy of the frame. Persistence jobs always receive a
// clone so the live buffer can be reused by the next tick.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	c := *f
	c.Data = make([]byte, len(f.Data))
	copy(c.Data, f.Data)
	return &c
}

// Valid reports whether the pixel buffer matches the frame dimensions
func (f *Frame) Valid() bool {
	return f != nil && f.Width > 0 && f.Height > 0 && len(f.Data) == f.Width*f.Height*3
}

// TrackList is the tracker output for one frame
type TrackList struct {
	Tracks    []Track   `json:"tracklets"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// Sample is a synchronized frame and tracker output pair
type Sample struct {
	Frame  *Frame
	Tracks []Track
}

// CloneTracks returns a copy of the track list
func CloneTracks(tracks []Track) []Track {
	if tracks == nil {
		return nil
	}
	out := make([]Track, len(tracks))
	copy(out, tracks)
	return out
}

// FrameKind selects which full frame variant is persisted
type FrameKind string

const (
	FrameKindFull    FrameKind = "full"
	FrameKindOverlay FrameKind = "overlay"
)

// FullFrameMode selects when full frames are saved
type FullFrameMode string

const (
	FullFrameOff       FullFrameMode = ""
	FullFrameDetection FullFrameMode = "det"
	FullFrameFrequency FullFrameMode = "freq"
)

// CropMode selects the crop geometry
type CropMode string

const (
	CropSquare CropMode = "square"
	CropTight  CropMode = "tight"
)

// Rect returns the pixel crop rectangle of b in a width x height frame
func (m CropMode) Rect(b BBox, width, height int) image.Rectangle {
	r := b.Norm(width, height)
	if m == CropSquare {
		return Square(r, width, height)
	}
	return r
}

// OverlayText is one text line drawn below a box on overlay frames
type OverlayText struct {
	Scale   float64
	OffsetY int // pixels below the bottom edge of the box
}

// OverlayStyle sizes boxes and text on overlay frames
type OverlayStyle struct {
	Thickness  int
	Label      OverlayText
	Confidence OverlayText
	ID         OverlayText
}

// OverlayStyleFor returns the overlay style for 1080p or 4K HQ frames
func OverlayStyleFor(fourK bool) OverlayStyle {
	if fourK {
		return OverlayStyle{
			Thickness:  3,
			Label:      OverlayText{Scale: 1.7, OffsetY: 48},
			Confidence: OverlayText{Scale: 1.6, OffsetY: 98},
			ID:         OverlayText{Scale: 2, OffsetY: 164},
		}
	}
	return OverlayStyle{
		Thickness:  2,
		Label:      OverlayText{Scale: 0.9, OffsetY: 28},
		Confidence: OverlayText{Scale: 0.8, OffsetY: 55},
		ID:         OverlayText{Scale: 1.1, OffsetY: 92},
	}
}
