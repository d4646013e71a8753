package source

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"capture-worker-go/internal/models"
)

// FrameMessage is a frame as sent by the camera host. Data holds JPEG
// bytes or raw BGR24 pixels.
type FrameMessage struct {
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Data      []byte    `json:"data"`
}

// TrackMessage is the tracker output for one frame
type TrackMessage struct {
	Sequence  int64          `json:"sequence"`
	Timestamp time.Time      `json:"timestamp"`
	Tracks    []models.Track `json:"tracks"`
}

// DecodeFrameMessage parses a frame envelope
func DecodeFrameMessage(data []byte) (FrameMessage, error) {
	var msg FrameMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("invalid frame message: %w", err)
	}
	if len(msg.Data) == 0 {
		return msg, fmt.Errorf("frame message %d carries no image", msg.Sequence)
	}
	return msg, nil
}

// DecodeTrackList parses a tracker message. Detections that carry only a
// label index get their label from labels. An explicit label must be one of
// labels since it names the crop directory.
func DecodeTrackList(data []byte, labels []string) (models.TrackList, error) {
	var msg TrackMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return models.TrackList{}, fmt.Errorf("invalid track message: %w", err)
	}

	for i := range msg.Tracks {
		t := &msg.Tracks[i]
		if !t.Status.IsValid() {
			return models.TrackList{}, fmt.Errorf("track %d has invalid status %q", t.ID, t.Status)
		}
		if t.Detection.Label != "" {
			if !slices.Contains(labels, t.Detection.Label) {
				return models.TrackList{}, fmt.Errorf("track %d has unknown label %q", t.ID, t.Detection.Label)
			}
			continue
		}
		idx := t.Detection.LabelIndex
		if idx < 0 || idx >= len(labels) {
			return models.TrackList{}, fmt.Errorf("track %d has unknown label index %d", t.ID, idx)
		}
		t.Detection.Label = labels[idx]
	}

	return models.TrackList{
		Tracks:    msg.Tracks,
		Sequence:  msg.Sequence,
		Timestamp: msg.Timestamp,
	}, nil
}
