package models

import (
	"fmt"
	"path/filepath"
	"time"
)

// StartFormat is the timestamp layout used for session directory and file names
const StartFormat = "2006-01-02_15-04-05"

// Session identifies one recording interval. It is created once at startup
// and never mutated afterwards.
type Session struct {
	ID     int64     `json:"rec_id"`
	Start  time.Time `json:"start"`
	Root   string    `json:"root"`
	Dir    string    `json:"dir"`
	Labels []string  `json:"labels"`
}

// StartFormat returns the formatted start timestamp used in file names
func (s *Session) StartFormat() string {
	return s.Start.Format(StartFormat)
}

// CropDir returns the directory holding crops of one object class
func (s *Session) CropDir(label string) string {
	return filepath.Join(s.Dir, "crop", label)
}

// FrameDir returns the directory holding full frames of the given kind
func (s *Session) FrameDir(kind FrameKind) string {
	return filepath.Join(s.Dir, string(kind))
}

// MetadataPath returns the crop metadata table path
func (s *Session) MetadataPath() string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s_metadata.csv", s.StartFormat()))
}

// HealthLogPath returns the periodic health log path
func (s *Session) HealthLogPath() string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s_info_log.csv", s.StartFormat()))
}

// TrackReportPath returns the finalized track report path
func (s *Session) TrackReportPath() string {
	return filepath.Join(s.Dir, "tracks.jsonl")
}

// StopReason describes why the capture loop ended
type StopReason string

const (
	StopReasonDuration  StopReason = "duration"
	StopReasonDiskSpace StopReason = "disk_space"
	StopReasonInterrupt StopReason = "interrupt"
	StopReasonError     StopReason = "error"
)

// SessionSummary is the single record written when a session closes
type SessionSummary struct {
	SessionID  int64         `json:"rec_id"`
	Start      time.Time     `json:"start"`
	End        time.Time     `json:"end"`
	Duration   time.Duration `json:"duration"`
	Crops      int           `json:"num_crops"`
	TrackIDs   int           `json:"num_ids"`
	DiskFreeMB float64       `json:"disk_free_mb"`
	StopReason StopReason    `json:"stop_reason"`
	Dir        string        `json:"dir"`
}

// HealthSample is a single reading of host and accelerator health
type HealthSample struct {
	Timestamp         time.Time          `json:"timestamp"`
	Temperatures      map[string]float64 `json:"temperatures"`
	CPUTemp           float64            `json:"cpu_temp"`
	AcceleratorStatus string             `json:"accelerator_status"`
	MemAvailableMB    float64            `json:"mem_available_mb"`
	CPUUsedPercent    float64            `json:"cpu_used_percent"`
	DiskFreeMB        float64            `json:"disk_free_mb"`
}
