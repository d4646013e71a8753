package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"capture-worker-go/internal/models"
)

type Config struct {
	// Application
	Version     string
	Environment string
	WorkerID    string
	Port        int
	LogLevel    string
	APIEnabled  bool

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// Recording
	DataDir               string
	RecordingTime         time.Duration
	MinDiskSpaceMB        float64
	CaptureInterval       time.Duration
	FullFrameInterval     time.Duration
	HealthLogInterval     time.Duration
	LostFramesTillRemoval int

	// Model labels, listed directly or read from the model config JSON
	Labels          []string
	ModelConfigPath string

	// Capture options (overridable by command line flags)
	CropMode          models.CropMode
	FullFrameMode     models.FullFrameMode
	SaveOverlayFrames bool
	SaveLogs          bool
	ZipData           bool
	BBoxAERegion      bool
	AFRange           []int // cm, min and max
	FourK             bool  // 4K HQ frames, larger overlay text
	JPEGQuality       int
	LogFileName       string

	// Frame/track source
	SourceQueueSize int
	SourceMaxSkew   time.Duration

	// Session registry: empty uses last_rec_id.txt + record_log.csv in DataDir
	RegistryDSN string

	// NATS (frame/track transport, control, reports)
	// Default: nats://localhost:4222 (works with Docker Compose setup)
	// Docker: Use nats://nats:4222 if running worker in Docker
	NatsEnabled        bool
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int
	NatsDrainTimeout   time.Duration // For graceful shutdown

	FrameSubject       string
	TrackSubject       string
	ControlSubject     string
	TrackReportSubject string
	SummarySubject     string

	// Accelerator health over gRPC
	AcceleratorGRPCURL string
	AcceleratorService string

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		WorkerID:    getEnv("WORKER_ID", "capture-1"),
		Port:        getEnvInt("PORT", 8000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		APIEnabled:  getEnvBool("API_ENABLED", false),

		// Logdy (lightweight web log viewer)
		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		// Recording
		DataDir:               getEnv("DATA_DIR", "data"),
		RecordingTime:         getEnvDuration("REC_TIME", 2*time.Minute),
		MinDiskSpaceMB:        getEnvFloat("MIN_DISKSPACE_MB", 100),
		CaptureInterval:       getEnvDuration("CAPTURE_INTERVAL", time.Second),
		FullFrameInterval:     getEnvDuration("FULL_FRAME_INTERVAL", 60*time.Second),
		HealthLogInterval:     getEnvDuration("HEALTH_LOG_INTERVAL", 30*time.Second),
		LostFramesTillRemoval: getEnvInt("LOST_FRAMES_TILL_REMOVAL", 3),

		Labels:          getEnvList("LABELS", []string{"insect"}),
		ModelConfigPath: getEnv("MODEL_CONFIG", ""),

		// Capture options
		CropMode:          models.CropMode(getEnv("CROP_MODE", string(models.CropSquare))),
		FullFrameMode:     models.FullFrameMode(getEnv("SAVE_FULL_FRAMES", "")),
		SaveOverlayFrames: getEnvBool("SAVE_OVERLAY_FRAMES", false),
		SaveLogs:          getEnvBool("SAVE_LOGS", false),
		ZipData:           getEnvBool("ZIP_DATA", false),
		BBoxAERegion:      getEnvBool("BBOX_AE_REGION", false),
		AFRange:           getEnvInts("AF_RANGE"),
		FourK:             getEnvBool("FOUR_K", false),
		JPEGQuality:       getEnvInt("JPEG_QUALITY", 95),
		LogFileName:       getEnv("LOG_FILE", "capture_worker_log.log"),

		// Frame/track source
		SourceQueueSize: getEnvInt("SOURCE_QUEUE_SIZE", 4),
		SourceMaxSkew:   getEnvDuration("SOURCE_MAX_SKEW", 200*time.Millisecond),

		RegistryDSN: getEnv("REGISTRY_DSN", ""),

		// NATS (configured for Docker Compose setup)
		NatsEnabled:        getEnvBool("NATS_ENABLED", true),
		NatsURL:            getNatsURL(),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited
		NatsDrainTimeout:   getEnvDuration("NATS_DRAIN_TIMEOUT", 5*time.Second),

		FrameSubject:       getEnv("FRAME_SUBJECT", "capture.frames"),
		TrackSubject:       getEnv("TRACK_SUBJECT", "capture.tracks"),
		ControlSubject:     getEnv("CONTROL_SUBJECT", "capture.control"),
		TrackReportSubject: getEnv("TRACK_REPORT_SUBJECT", "capture.track_reports"),
		SummarySubject:     getEnv("SUMMARY_SUBJECT", "capture.sessions"),

		AcceleratorGRPCURL: getEnv("ACCELERATOR_GRPC_URL", ""),
		AcceleratorService: getEnv("ACCELERATOR_HEALTH_SERVICE", ""),

		// Graceful Shutdown
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// LoadLabels replaces Labels with the label mapping of the model config
// JSON when one is configured
func (c *Config) LoadLabels() error {
	if c.ModelConfigPath == "" {
		return nil
	}

	data, err := os.ReadFile(c.ModelConfigPath)
	if err != nil {
		return fmt.Errorf("failed to read model config: %w", err)
	}

	var model struct {
		Mappings struct {
			Labels []string `json:"labels"`
		} `json:"mappings"`
	}
	if err := json.Unmarshal(data, &model); err != nil {
		return fmt.Errorf("failed to parse model config %s: %w", c.ModelConfigPath, err)
	}
	c.Labels = model.Mappings.Labels
	return nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("DATA_DIR must not be empty"))
	}
	if c.RecordingTime < time.Minute || c.RecordingTime > 720*time.Minute {
		errs = append(errs, fmt.Errorf("recording time %s outside 1-720 minutes", c.RecordingTime))
	}
	if c.MinDiskSpaceMB < 0 {
		errs = append(errs, errors.New("MIN_DISKSPACE_MB must not be negative"))
	}
	if c.CaptureInterval <= 0 {
		errs = append(errs, errors.New("CAPTURE_INTERVAL must be positive"))
	}
	if c.FullFrameMode == models.FullFrameFrequency && c.FullFrameInterval <= 0 {
		errs = append(errs, errors.New("FULL_FRAME_INTERVAL must be positive"))
	}
	if c.SaveLogs && c.HealthLogInterval <= 0 {
		errs = append(errs, errors.New("HEALTH_LOG_INTERVAL must be positive"))
	}
	if c.LostFramesTillRemoval < 1 {
		errs = append(errs, errors.New("LOST_FRAMES_TILL_REMOVAL must be at least 1"))
	}
	if len(c.Labels) == 0 {
		errs = append(errs, errors.New("no labels configured (set LABELS or MODEL_CONFIG)"))
	}
	for _, label := range c.Labels {
		// Labels name the crop directories
		if label == "." || label == ".." || strings.ContainsAny(label, `/\`) {
			errs = append(errs, fmt.Errorf("invalid label %q, labels must be plain directory names", label))
		}
	}

	switch c.CropMode {
	case models.CropSquare, models.CropTight:
	default:
		errs = append(errs, fmt.Errorf("invalid crop mode %q (square or tight)", c.CropMode))
	}
	switch c.FullFrameMode {
	case models.FullFrameOff, models.FullFrameDetection, models.FullFrameFrequency:
	default:
		errs = append(errs, fmt.Errorf("invalid full frame mode %q (det or freq)", c.FullFrameMode))
	}

	if len(c.AFRange) != 0 {
		if len(c.AFRange) != 2 || c.AFRange[0] <= 0 || c.AFRange[1] <= c.AFRange[0] {
			errs = append(errs, fmt.Errorf("invalid auto focus range %v (0 < min < max)", c.AFRange))
		}
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("JPEG_QUALITY %d outside 1-100", c.JPEGQuality))
	}
	if c.SourceQueueSize < 1 {
		errs = append(errs, errors.New("SOURCE_QUEUE_SIZE must be at least 1"))
	}
	if c.APIEnabled && (c.Port <= 0 || c.Port > 65535) {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvList parses a comma separated list
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvInts parses a comma separated list of integers, ignoring the
// whole value when one item is not a number
func getEnvInts(key string) []int {
	var out []int
	for _, item := range getEnvList(key, nil) {
		n, err := strconv.Atoi(item)
		if err != nil {
			return nil
		}
		out = append(out, n)
	}
	return out
}

// Helper functions for Docker environment detection
func isRunningInDocker() bool {
	// Check for Docker-specific environment indicators
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}

	// Check for .dockerenv file
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	return false
}

// getNatsURL returns the appropriate NATS URL based on environment
func getNatsURL() string {
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		return envURL
	}

	// If running in Docker, use service name; otherwise use localhost
	if isRunningInDocker() {
		return "nats://nats:4222"
	}

	return "nats://localhost:4222"
}
