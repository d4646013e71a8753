package metadata

import (
	"fmt"
	"strconv"
	"time"

	"capture-worker-go/internal/models"
)

// CropHeader is the column layout of the crop metadata table
var CropHeader = []string{
	"rec_ID", "timestamp", "label", "confidence", "track_ID",
	"x_min", "y_min", "x_max", "y_max", "file_path",
}

// CropRow formats a crop record for the metadata table
func CropRow(rec models.CropRecord) []string {
	return []string{
		strconv.FormatInt(rec.SessionID, 10),
		rec.Timestamp.Format("2006-01-02_15-04-05.000000"),
		rec.Label,
		strconv.FormatFloat(float64(rec.Confidence), 'f', 2, 32),
		strconv.FormatInt(rec.TrackID, 10),
		formatCoord(rec.BBox.XMin),
		formatCoord(rec.BBox.YMin),
		formatCoord(rec.BBox.XMax),
		formatCoord(rec.BBox.YMax),
		rec.Path,
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// RecordHeader is the column layout of the recording log
var RecordHeader = []string{
	"rec_ID", "record_start_date", "record_start_time", "record_end_time",
	"record_time_min", "num_crops", "num_IDs", "disk_free_gb", "stop_reason",
}

// RecordRow formats a session summary for the recording log
func RecordRow(s models.SessionSummary) []string {
	return []string{
		strconv.FormatInt(s.SessionID, 10),
		s.Start.Format(time.DateOnly),
		s.Start.Format("15:04:05"),
		s.End.Format("15:04:05"),
		strconv.FormatFloat(s.Duration.Minutes(), 'f', 2, 64),
		strconv.Itoa(s.Crops),
		strconv.Itoa(s.TrackIDs),
		strconv.FormatFloat(s.DiskFreeMB/1024, 'f', 1, 64),
		string(s.StopReason),
	}
}

// HealthHeader is the column layout of the periodic health log
var HealthHeader = []string{
	"rec_ID", "timestamp", "cpu_temp", "accelerator_status",
	"mem_available_mb", "cpu_used_percent", "disk_free_mb",
}

// HealthRow formats a health sample for the health log
func HealthRow(sessionID int64, h models.HealthSample) []string {
	return []string{
		strconv.FormatInt(sessionID, 10),
		h.Timestamp.Format("2006-01-02_15-04-05"),
		fmt.Sprintf("%.1f", h.CPUTemp),
		h.AcceleratorStatus,
		fmt.Sprintf("%.0f", h.MemAvailableMB),
		fmt.Sprintf("%.1f", h.CPUUsedPercent),
		fmt.Sprintf("%.0f", h.DiskFreeMB),
	}
}
