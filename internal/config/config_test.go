package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"capture-worker-go/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.RecordingTime != 2*time.Minute {
		t.Errorf("RecordingTime = %s, expected 2m", cfg.RecordingTime)
	}
	if cfg.MinDiskSpaceMB != 100 {
		t.Errorf("MinDiskSpaceMB = %v, expected 100", cfg.MinDiskSpaceMB)
	}
	if cfg.CaptureInterval != time.Second || cfg.FullFrameInterval != time.Minute || cfg.HealthLogInterval != 30*time.Second {
		t.Errorf("unexpected intervals %s %s %s", cfg.CaptureInterval, cfg.FullFrameInterval, cfg.HealthLogInterval)
	}
	if cfg.LostFramesTillRemoval != 3 {
		t.Errorf("LostFramesTillRemoval = %d, expected 3", cfg.LostFramesTillRemoval)
	}
	if cfg.CropMode != models.CropSquare {
		t.Errorf("CropMode = %q, expected square", cfg.CropMode)
	}
	if cfg.SourceQueueSize != 4 {
		t.Errorf("SourceQueueSize = %d, expected 4", cfg.SourceQueueSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("REC_TIME", "5m")
	t.Setenv("LABELS", "bee, fly,,wasp")
	t.Setenv("AF_RANGE", "14,20")
	t.Setenv("SAVE_FULL_FRAMES", "freq")
	t.Setenv("MIN_DISKSPACE_MB", "250.5")
	t.Setenv("LOST_FRAMES_TILL_REMOVAL", "not-a-number")

	cfg := Load()

	if cfg.RecordingTime != 5*time.Minute {
		t.Errorf("RecordingTime = %s", cfg.RecordingTime)
	}
	if strings.Join(cfg.Labels, "|") != "bee|fly|wasp" {
		t.Errorf("Labels = %v", cfg.Labels)
	}
	if len(cfg.AFRange) != 2 || cfg.AFRange[0] != 14 || cfg.AFRange[1] != 20 {
		t.Errorf("AFRange = %v", cfg.AFRange)
	}
	if cfg.FullFrameMode != models.FullFrameFrequency {
		t.Errorf("FullFrameMode = %q", cfg.FullFrameMode)
	}
	if cfg.MinDiskSpaceMB != 250.5 {
		t.Errorf("MinDiskSpaceMB = %v", cfg.MinDiskSpaceMB)
	}
	if cfg.LostFramesTillRemoval != 3 {
		t.Errorf("invalid integer should fall back to default, got %d", cfg.LostFramesTillRemoval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errStr string
	}{
		{"recording too short", func(c *Config) { c.RecordingTime = 30 * time.Second }, "1-720"},
		{"recording too long", func(c *Config) { c.RecordingTime = 721 * time.Minute }, "1-720"},
		{"bad crop mode", func(c *Config) { c.CropMode = "round" }, "crop mode"},
		{"bad full frame mode", func(c *Config) { c.FullFrameMode = "all" }, "full frame mode"},
		{"reversed focus range", func(c *Config) { c.AFRange = []int{20, 14} }, "auto focus"},
		{"no labels", func(c *Config) { c.Labels = nil }, "labels"},
		{"label with path", func(c *Config) { c.Labels = []string{"bee", "../tmp"} }, "invalid label"},
		{"parent dir label", func(c *Config) { c.Labels = []string{".."} }, "invalid label"},
		{"zero threshold", func(c *Config) { c.LostFramesTillRemoval = 0 }, "LOST_FRAMES_TILL_REMOVAL"},
		{"bad quality", func(c *Config) { c.JPEGQuality = 101 }, "JPEG_QUALITY"},
	}

	for _, tt := range tests {
		cfg := Load()
		tt.modify(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
			continue
		}
		if !strings.Contains(err.Error(), tt.errStr) {
			t.Errorf("%s: error %q does not mention %q", tt.name, err, tt.errStr)
		}
	}
}

func TestLoadLabelsFromModelConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yolov5.json")
	body := `{"nn_config": {"NN_specific_metadata": {"classes": 2}}, "mappings": {"labels": ["hoverfly", "wasp"]}}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Load()
	cfg.ModelConfigPath = path
	if err := cfg.LoadLabels(); err != nil {
		t.Fatalf("LoadLabels: %v", err)
	}
	if strings.Join(cfg.Labels, "|") != "hoverfly|wasp" {
		t.Errorf("Labels = %v", cfg.Labels)
	}

	cfg.ModelConfigPath = filepath.Join(t.TempDir(), "missing.json")
	if err := cfg.LoadLabels(); err == nil {
		t.Error("expected error for missing model config")
	}
}
