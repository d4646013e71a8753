package tracking

// DefaultLostFramesTillRemoval is the number of consecutive ticks a track
// may be absent before it is finalized
const DefaultLostFramesTillRemoval = 3

// Tracker keeps a lost-frame counter per track ID and decides which tracks
// are gone for good. It is owned by the capture loop and is not safe for
// concurrent use.
type Tracker struct {
	threshold  int
	lostFrames map[int64]int
}

// NewTracker creates a tracker with the given removal threshold.
// A threshold below 1 falls back to DefaultLostFramesTillRemoval.
func NewTracker(threshold int) *Tracker {
	if threshold < 1 {
		threshold = DefaultLostFramesTillRemoval
	}
	return &Tracker{
		threshold:  threshold,
		lostFrames: make(map[int64]int),
	}
}

// Update feeds the IDs reported in the current tick and returns the IDs that
// reached the threshold with this call. Returned IDs are forgotten; the
// order of the result is unspecified.
func (t *Tracker) Update(activeIDs []int64) []int64 {
	active := make(map[int64]struct{}, len(activeIDs))
	for _, id := range activeIDs {
		active[id] = struct{}{}
	}

	var removed []int64
	for id := range t.lostFrames {
		if _, ok := active[id]; ok {
			t.lostFrames[id] = 0
			continue
		}

		t.lostFrames[id]++
		if t.lostFrames[id] >= t.threshold {
			removed = append(removed, id)
			delete(t.lostFrames, id)
		}
	}

	// First sighting only registers the ID
	for id := range active {
		if _, ok := t.lostFrames[id]; !ok {
			t.lostFrames[id] = 0
		}
	}

	return removed
}

// Known reports whether the ID currently has a counter
func (t *Tracker) Known(id int64) bool {
	_, ok := t.lostFrames[id]
	return ok
}

// LostFrames returns the current counter for the ID
func (t *Tracker) LostFrames(id int64) int {
	return t.lostFrames[id]
}

// Len returns the number of tracks with a counter
func (t *Tracker) Len() int {
	return len(t.lostFrames)
}

// Threshold returns the configured removal threshold
func (t *Tracker) Threshold() int {
	return t.threshold
}
