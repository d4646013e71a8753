package messaging

import (
	"context"
	"testing"

	"capture-worker-go/internal/models"
)

type fakePublisher struct {
	subjects []string
	messages []ControlMessage
}

func (p *fakePublisher) Publish(subject string, data interface{}) error {
	p.subjects = append(p.subjects, subject)
	p.messages = append(p.messages, data.(ControlMessage))
	return nil
}

func TestExposureRegion(t *testing.T) {
	pub := &fakePublisher{}
	c := NewController(pub, "capture.control", 3840, 2160)

	if err := c.SetExposureRegion(context.Background(), models.BBox{XMin: 0.25, YMin: 0.5, XMax: 0.5, YMax: 0.75}); err != nil {
		t.Fatal(err)
	}

	want := ControlMessage{Type: ControlExposureRegion, X: 960, Y: 1080, Width: 960, Height: 540}
	if len(pub.messages) != 1 || pub.messages[0] != want {
		t.Errorf("messages = %+v, want %+v", pub.messages, want)
	}
	if pub.subjects[0] != "capture.control" {
		t.Errorf("subject = %s", pub.subjects[0])
	}
}

func TestExposureRegionNeverEmpty(t *testing.T) {
	c := NewController(&fakePublisher{}, "ctl", 3840, 2160)
	msg := c.ExposureRegion(models.BBox{XMin: 1.2, YMin: 1.2, XMax: 1.5, YMax: 1.5})
	if msg.Width < 1 || msg.Height < 1 {
		t.Errorf("region %+v has zero size", msg)
	}
}

func TestFocusRange(t *testing.T) {
	pub := &fakePublisher{}
	c := NewController(pub, "ctl", 3840, 2160)

	if err := c.SetFocusRange(context.Background(), 14, 20); err != nil {
		t.Fatal(err)
	}
	if err := c.SetFocusRange(context.Background(), 20, 14); err == nil {
		t.Error("expected error for reversed range")
	}
	if len(pub.messages) != 1 || pub.messages[0].MinCM != 14 || pub.messages[0].MaxCM != 20 {
		t.Errorf("messages = %+v", pub.messages)
	}
}
