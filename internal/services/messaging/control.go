package messaging

import (
	"context"
	"fmt"

	"capture-worker-go/internal/models"
)

// Publisher sends a JSON encoded message on a subject
type Publisher interface {
	Publish(subject string, data interface{}) error
}

// Control message types understood by the camera host
const (
	ControlExposureRegion = "ae_region"
	ControlFocusRange     = "af_range"
)

// ControlMessage is a camera control command
type ControlMessage struct {
	Type   string `json:"type"`
	X      int    `json:"x,omitempty"`
	Y      int    `json:"y,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	MinCM  int    `json:"min_cm,omitempty"`
	MaxCM  int    `json:"max_cm,omitempty"`
}

// Full sensor resolution. Control regions are given in sensor pixels
// whatever the preview size.
const (
	SensorWidth  = 3840
	SensorHeight = 2160
)

// Controller sends auto exposure and auto focus commands to the camera
type Controller struct {
	pub          Publisher
	subject      string
	sensorWidth  int
	sensorHeight int
}

// NewController creates a controller for a sensor of the given resolution
func NewController(pub Publisher, subject string, sensorWidth, sensorHeight int) *Controller {
	return &Controller{
		pub:          pub,
		subject:      subject,
		sensorWidth:  sensorWidth,
		sensorHeight: sensorHeight,
	}
}

// ExposureRegion converts a relative box into the sensor region message
func (c *Controller) ExposureRegion(bbox models.BBox) ControlMessage {
	r := bbox.Norm(c.sensorWidth, c.sensorHeight)
	return ControlMessage{
		Type:   ControlExposureRegion,
		X:      r.Min.X,
		Y:      r.Min.Y,
		Width:  max(r.Dx(), 1),
		Height: max(r.Dy(), 1),
	}
}

// SetExposureRegion moves the auto exposure region onto bbox
func (c *Controller) SetExposureRegion(ctx context.Context, bbox models.BBox) error {
	return c.send(c.ExposureRegion(bbox))
}

// SetFocusRange restricts auto focus to the given distance range in cm
func (c *Controller) SetFocusRange(ctx context.Context, minCM, maxCM int) error {
	if minCM <= 0 || maxCM <= minCM {
		return fmt.Errorf("invalid focus range %d-%d cm", minCM, maxCM)
	}
	return c.send(ControlMessage{Type: ControlFocusRange, MinCM: minCM, MaxCM: maxCM})
}

func (c *Controller) send(msg ControlMessage) error {
	if err := c.pub.Publish(c.subject, msg); err != nil {
		return fmt.Errorf("failed to send %s control: %w", msg.Type, err)
	}
	return nil
}
