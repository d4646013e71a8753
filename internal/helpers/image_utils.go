package helpers

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"capture-worker-go/internal/models"
)

// HighQuality is the JPEG quality used when none is configured
const HighQuality = 95

var (
	overlayBoxColor  = color.RGBA{R: 0, G: 0, B: 255, A: 0}
	overlayTextColor = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

// isJPEGData checks if the byte slice contains JPEG data by checking magic bytes
func isJPEGData(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	// JPEG magic bytes: FF D8
	return data[0] == 0xFF && data[1] == 0xD8
}

// DecodeFrame turns a transport payload into a BGR frame. JPEG payloads are
// decoded, anything else is treated as raw BGR with the given dimensions
// (guessed from the length when they do not match).
func DecodeFrame(data []byte, width, height int, seq int64, ts time.Time) (*models.Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty frame data")
	}

	if isJPEGData(data) {
		mat, err := gocv.IMDecode(data, gocv.IMReadColor)
		if err != nil {
			return nil, fmt.Errorf("failed to decode JPEG frame: %w", err)
		}
		defer mat.Close()
		if mat.Empty() {
			return nil, fmt.Errorf("decoded JPEG frame is empty")
		}

		return &models.Frame{
			Data:      mat.ToBytes(),
			Width:     mat.Cols(),
			Height:    mat.Rows(),
			Sequence:  seq,
			Timestamp: ts,
		}, nil
	}

	if width <= 0 || height <= 0 || width*height*3 != len(data) {
		w, h, ok := guessDimensionsFromLength(len(data))
		if !ok {
			return nil, fmt.Errorf("unable to infer frame dimensions from BGR length=%d", len(data))
		}
		width, height = w, h
	}

	return &models.Frame{
		Data:      data,
		Width:     width,
		Height:    height,
		Sequence:  seq,
		Timestamp: ts,
	}, nil
}

// guessDimensionsFromLength tries to infer width/height from BGR byte length
func guessDimensionsFromLength(totalBytes int) (int, int, bool) {
	if totalBytes%3 != 0 {
		return 0, 0, false
	}
	pixels := totalBytes / 3

	// Common resolutions to try (width x height)
	common := [][2]int{
		{3840, 2160}, {1920, 1080}, {1280, 720}, {640, 480}, {320, 320},
	}
	for _, wh := range common {
		if wh[0]*wh[1] == pixels {
			return wh[0], wh[1], true
		}
	}
	return 0, 0, false
}

// FrameToMat wraps a frame in a Mat. The caller must close the result.
func FrameToMat(f *models.Frame) (gocv.Mat, error) {
	if !f.Valid() {
		return gocv.NewMat(), fmt.Errorf("invalid frame %dx%d with %d bytes", f.Width, f.Height, len(f.Data))
	}
	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create Mat from BGR data: %w", err)
	}
	return mat, nil
}

// EncodeJPEG encodes a Mat as JPEG
func EncodeJPEG(mat gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	defer buf.Close()

	// GetBytes points into native memory released by Close
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// CropJPEG cuts rect out of the frame and encodes it as JPEG
func CropJPEG(f *models.Frame, rect image.Rectangle, quality int) ([]byte, error) {
	rect = rect.Intersect(image.Rect(0, 0, f.Width, f.Height))
	if rect.Empty() {
		return nil, fmt.Errorf("empty crop rectangle %v on frame %dx%d", rect, f.Width, f.Height)
	}

	mat, err := FrameToMat(f)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	region := mat.Region(rect)
	defer region.Close()

	return EncodeJPEG(region, quality)
}

// FrameJPEG encodes the whole frame, optionally with the tracks drawn on top
func FrameJPEG(f *models.Frame, tracks []models.Track, style models.OverlayStyle, quality int) ([]byte, error) {
	mat, err := FrameToMat(f)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	if len(tracks) == 0 {
		return EncodeJPEG(mat, quality)
	}

	// Draw on a copy so the frame buffer stays untouched
	canvas := mat.Clone()
	defer canvas.Close()
	DrawTracks(&canvas, tracks, style)

	return EncodeJPEG(canvas, quality)
}

// DrawTracks draws the box of every track with label, confidence and track
// ID below it
func DrawTracks(mat *gocv.Mat, tracks []models.Track, style models.OverlayStyle) {
	w, h := mat.Cols(), mat.Rows()
	for _, t := range tracks {
		rect := t.Detection.BBox.Norm(w, h)
		gocv.Rectangle(mat, rect, overlayBoxColor, style.Thickness)

		lines := []struct {
			text string
			opt  models.OverlayText
		}{
			{t.Detection.Label, style.Label},
			{strconv.FormatFloat(float64(t.Detection.Confidence), 'f', 2, 32), style.Confidence},
			{"ID:" + strconv.FormatInt(t.ID, 10), style.ID},
		}
		for _, l := range lines {
			gocv.PutText(mat, l.text, image.Pt(rect.Min.X, rect.Max.Y+l.opt.OffsetY),
				gocv.FontHersheySimplex, l.opt.Scale, overlayTextColor, style.Thickness)
		}
	}
}

// WriteFile writes data to path through a temporary file so readers never
// observe a partial image
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(path), err)
	}

	log.Debug().Str("path", path).Int("size", len(data)).Msg("📸 Image written")
	return nil
}
