package source

import (
	"errors"
	"sync"
	"time"

	"capture-worker-go/internal/models"
)

// ErrUnavailable is returned when no synchronized sample is ready
var ErrUnavailable = errors.New("no synchronized sample available")

// DefaultMaxSkew is the largest timestamp difference accepted between a
// frame and a track list that carry no sequence numbers
const DefaultMaxSkew = 200 * time.Millisecond

// Source yields synchronized frame/track samples without blocking
type Source interface {
	Next() (models.Sample, error)
}

// Pair aligns a frame queue with a track-list queue. Items are matched by
// sequence number when both sides carry one and by timestamp otherwise.
// The older side of a mismatched pair is discarded.
type Pair struct {
	Frames  *Queue[*models.Frame]
	Tracks  *Queue[models.TrackList]
	MaxSkew time.Duration

	mu           sync.Mutex
	frame        *models.Frame
	tracks       *models.TrackList
	skippedFrame int64
	skippedList  int64
}

// NewPair creates a paired source with queues of the given size
func NewPair(size int) *Pair {
	return &Pair{
		Frames:  NewQueue[*models.Frame](size),
		Tracks:  NewQueue[models.TrackList](size),
		MaxSkew: DefaultMaxSkew,
	}
}

// PutFrame enqueues a frame
func (p *Pair) PutFrame(f *models.Frame) {
	p.Frames.Put(f)
}

// PutTracks enqueues a track list
func (p *Pair) PutTracks(l models.TrackList) {
	p.Tracks.Put(l)
}

// Next returns the oldest aligned sample or ErrUnavailable
func (p *Pair) Next() (models.Sample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.frame == nil {
			f, ok := p.Frames.Get()
			if !ok {
				return models.Sample{}, ErrUnavailable
			}
			p.frame = f
		}
		if p.tracks == nil {
			l, ok := p.Tracks.Get()
			if !ok {
				return models.Sample{}, ErrUnavailable
			}
			p.tracks = &l
		}

		switch p.compare(p.frame, p.tracks) {
		case 0:
			sample := models.Sample{Frame: p.frame, Tracks: p.tracks.Tracks}
			p.frame, p.tracks = nil, nil
			return sample, nil
		case -1:
			p.frame = nil
			p.skippedFrame++
		default:
			p.tracks = nil
			p.skippedList++
		}
	}
}

// compare returns 0 when f and l belong together, -1 when the frame is
// older and 1 when the track list is older
func (p *Pair) compare(f *models.Frame, l *models.TrackList) int {
	if f.Sequence != 0 && l.Sequence != 0 {
		switch {
		case f.Sequence < l.Sequence:
			return -1
		case f.Sequence > l.Sequence:
			return 1
		}
		return 0
	}

	skew := p.MaxSkew
	if skew <= 0 {
		skew = DefaultMaxSkew
	}
	d := f.Timestamp.Sub(l.Timestamp)
	switch {
	case d < -skew:
		return -1
	case d > skew:
		return 1
	}
	return 0
}

// Skipped returns the number of frames and track lists discarded during alignment
func (p *Pair) Skipped() (frames, lists int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.skippedFrame, p.skippedList
}

// Stats counts frames and track lists lost before reaching the capture loop
type Stats struct {
	SkippedFrames   int64 `json:"skipped_frames"`
	SkippedLists    int64 `json:"skipped_lists"`
	DroppedFrames   int64 `json:"dropped_frames"`
	DroppedLists    int64 `json:"dropped_lists"`
	InvalidMessages int64 `json:"invalid_messages"`
}

// Stats returns alignment skips and queue overflow drops. InvalidMessages
// is filled in by the feeder.
func (p *Pair) Stats() Stats {
	frames, lists := p.Skipped()
	return Stats{
		SkippedFrames: frames,
		SkippedLists:  lists,
		DroppedFrames: p.Frames.Dropped(),
		DroppedLists:  p.Tracks.Dropped(),
	}
}
