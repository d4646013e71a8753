package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"capture-worker-go/internal/models"
)

// ApplyFlags overrides the environment configuration with the command line
// options. Only flags that are actually passed change the config.
func (c *Config) ApplyFlags(name string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	minutes := fs.Int("min", int(c.RecordingTime/time.Minute), "recording time in minutes (1-720)")
	fourK := fs.Bool("4k", c.FourK, "use 4K resolution for HQ frames")
	crop := fs.String("crop", string(c.CropMode), "crop mode: square or tight")
	full := fs.String("full", string(c.FullFrameMode), "save full frames: det (with detections) or freq (every FULL_FRAME_INTERVAL)")
	overlay := fs.Bool("overlay", c.SaveOverlayFrames, "save frames with the tracks drawn on top")
	saveLogs := fs.Bool("log", c.SaveLogs, "write the periodic health log")
	zipData := fs.Bool("zip", c.ZipData, "archive the session directory when recording ends")
	ae := fs.Bool("ae", c.BBoxAERegion, "set the auto exposure region from the tracked box")
	af := fs.String("af", "", "auto focus range in cm, as min,max")

	if err := fs.Parse(args); err != nil {
		return err
	}

	var err error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "min":
			c.RecordingTime = time.Duration(*minutes) * time.Minute
		case "4k":
			c.FourK = *fourK
		case "crop":
			c.CropMode = models.CropMode(*crop)
		case "full":
			c.FullFrameMode = models.FullFrameMode(*full)
		case "overlay":
			c.SaveOverlayFrames = *overlay
		case "log":
			c.SaveLogs = *saveLogs
		case "zip":
			c.ZipData = *zipData
		case "ae":
			c.BBoxAERegion = *ae
		case "af":
			c.AFRange, err = parseRange(*af)
		}
	})
	return err
}

func parseRange(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid range %q, expected min,max", s)
	}
	out := make([]int, 0, 2)
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid range %q: %w", s, err)
		}
		out = append(out, n)
	}
	return out, nil
}
