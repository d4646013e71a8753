package source

import (
	"errors"
	"testing"
	"time"

	"capture-worker-go/internal/models"
)

func TestQueueDropsOldest(t *testing.T) {
	q := NewQueue[int](3)
	for i := 1; i <= 5; i++ {
		q.Put(i)
	}

	if q.Len() != 3 {
		t.Fatalf("len = %d, want 3", q.Len())
	}
	if q.Dropped() != 2 {
		t.Errorf("dropped = %d, want 2", q.Dropped())
	}
	for _, want := range []int{3, 4, 5} {
		got, ok := q.Get()
		if !ok || got != want {
			t.Fatalf("get = %d,%v want %d", got, ok, want)
		}
	}
	if q.Has() {
		t.Error("queue should be empty")
	}
	if _, ok := q.Get(); ok {
		t.Error("get on empty queue returned a value")
	}
}

func TestPairUnavailable(t *testing.T) {
	p := NewPair(4)
	if _, err := p.Next(); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}

	p.PutFrame(&models.Frame{Sequence: 1})
	if _, err := p.Next(); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("frame without tracks: err = %v", err)
	}

	p.PutTracks(models.TrackList{Sequence: 1, Tracks: []models.Track{{ID: 9}}})
	s, err := p.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if s.Frame.Sequence != 1 || len(s.Tracks) != 1 || s.Tracks[0].ID != 9 {
		t.Errorf("unexpected sample %+v", s)
	}
}

func TestPairAlignsBySequence(t *testing.T) {
	p := NewPair(4)
	p.PutFrame(&models.Frame{Sequence: 1})
	p.PutFrame(&models.Frame{Sequence: 2})
	p.PutFrame(&models.Frame{Sequence: 3})
	p.PutTracks(models.TrackList{Sequence: 2})
	p.PutTracks(models.TrackList{Sequence: 3})

	for _, want := range []int64{2, 3} {
		s, err := p.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if s.Frame.Sequence != want {
			t.Errorf("frame sequence = %d, want %d", s.Frame.Sequence, want)
		}
	}

	frames, lists := p.Skipped()
	if frames != 1 || lists != 0 {
		t.Errorf("skipped = %d/%d, want 1/0", frames, lists)
	}
}

func TestPairAlignsByTimestamp(t *testing.T) {
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	p := NewPair(4)
	p.PutTracks(models.TrackList{Timestamp: base})
	p.PutTracks(models.TrackList{Timestamp: base.Add(time.Second)})
	p.PutFrame(&models.Frame{Timestamp: base.Add(time.Second + 10*time.Millisecond)})

	s, err := p.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !s.Frame.Timestamp.Equal(base.Add(time.Second + 10*time.Millisecond)) {
		t.Errorf("paired wrong frame")
	}
	if _, lists := p.Skipped(); lists != 1 {
		t.Errorf("skipped lists = %d, want 1", lists)
	}
}

func TestPairStats(t *testing.T) {
	p := NewPair(2)
	for seq := int64(1); seq <= 3; seq++ {
		p.PutFrame(&models.Frame{Sequence: seq})
	}
	p.PutTracks(models.TrackList{Sequence: 3})

	if _, err := p.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}

	st := p.Stats()
	if st.DroppedFrames != 1 || st.DroppedLists != 0 {
		t.Errorf("dropped = %d/%d, want 1/0", st.DroppedFrames, st.DroppedLists)
	}
	if st.SkippedFrames != 1 || st.SkippedLists != 0 {
		t.Errorf("skipped = %d/%d, want 1/0", st.SkippedFrames, st.SkippedLists)
	}
}
