package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"capture-worker-go/internal/models"
)

type fakeRegistry struct {
	mu        sync.Mutex
	last      int64
	summaries []models.SessionSummary
	err       error
}

func (r *fakeRegistry) NextID(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last++
	return r.last, nil
}

func (r *fakeRegistry) WriteSummary(ctx context.Context, summary models.SessionSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.summaries = append(r.summaries, summary)
	return nil
}

type fakeSink struct {
	mu      sync.Mutex
	reports []models.TrackReport
}

func (s *fakeSink) PublishTrack(ctx context.Context, report models.TrackReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

type fixedDisk float64

func (d fixedDisk) FreeMB(string) (float64, error) { return float64(d), nil }

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func openTestSession(t *testing.T, reg *fakeRegistry, sink TrackSink, opts Options) (*Session, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	if opts.Root == "" {
		opts.Root = t.TempDir()
	}
	s, err := open(context.Background(), reg, opts, sink, fixedDisk(2048), zerolog.Nop(), c.now)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s, c
}

func crop(trackID int64, label string, conf float32, ts time.Time) models.CropRecord {
	return models.CropRecord{
		TrackID:    trackID,
		Label:      label,
		Confidence: conf,
		Timestamp:  ts,
		Path:       filepath.Join("crop", label, "x.jpg"),
	}
}

func TestOpenCreatesLayout(t *testing.T) {
	root := t.TempDir()
	s, _ := openTestSession(t, &fakeRegistry{last: 6}, nil, Options{
		Root:       root,
		Labels:     []string{"bee", "fly"},
		FullFrames: true,
	})

	meta := s.Meta()
	if meta.ID != 7 {
		t.Fatalf("session ID = %d, want 7", meta.ID)
	}
	wantDir := filepath.Join(root, "2024-06-01", "2024-06-01_10-00-00")
	if meta.Dir != wantDir {
		t.Fatalf("dir = %s, want %s", meta.Dir, wantDir)
	}

	for _, dir := range []string{
		meta.CropDir("bee"),
		meta.CropDir("fly"),
		meta.FrameDir(models.FrameKindFull),
	} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s", dir)
		}
	}
	if _, err := os.Stat(meta.FrameDir(models.FrameKindOverlay)); !os.IsNotExist(err) {
		t.Errorf("overlay directory should not exist when overlays are disabled")
	}
}

func TestCloseWritesSummaryOnce(t *testing.T) {
	reg := &fakeRegistry{}
	s, c := openTestSession(t, reg, nil, Options{Labels: []string{"bee"}})

	ts := c.t
	s.RecordCrop(crop(1, "bee", 0.5, ts))
	s.RecordCrop(crop(1, "bee", 0.7, ts.Add(time.Second)))
	s.RecordCrop(crop(2, "bee", 0.9, ts.Add(2*time.Second)))

	c.t = c.t.Add(90 * time.Second)
	summary, err := s.Close(context.Background(), models.StopReasonDuration)
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	if summary.Crops != 3 || summary.TrackIDs != 2 {
		t.Errorf("crops=%d ids=%d, want 3 and 2", summary.Crops, summary.TrackIDs)
	}
	if summary.Duration != 90*time.Second {
		t.Errorf("duration = %s", summary.Duration)
	}
	if summary.DiskFreeMB != 2048 {
		t.Errorf("disk free = %v", summary.DiskFreeMB)
	}

	again, err := s.Close(context.Background(), models.StopReasonInterrupt)
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("second close err = %v, want ErrClosed", err)
	}
	if again.StopReason != models.StopReasonDuration {
		t.Errorf("second close returned a different summary")
	}
	if len(reg.summaries) != 1 {
		t.Fatalf("summaries written = %d, want 1", len(reg.summaries))
	}
}

func TestCloseReportsRegistryFailure(t *testing.T) {
	reg := &fakeRegistry{err: errors.New("disk full")}
	s, _ := openTestSession(t, reg, nil, Options{})

	if _, err := s.Close(context.Background(), models.StopReasonDuration); err == nil {
		t.Fatal("expected registry error")
	}
}

func TestFinalizeTrackFlushesAggregate(t *testing.T) {
	sink := &fakeSink{}
	s, c := openTestSession(t, &fakeRegistry{}, sink, Options{Labels: []string{"bee", "fly"}})

	s.RecordCrop(crop(4, "fly", 0.6, c.t))
	s.RecordCrop(crop(4, "bee", 0.8, c.t.Add(time.Second)))
	s.RecordCrop(crop(4, "fly", 0.7, c.t.Add(2*time.Second)))

	if err := s.FinalizeTrack(context.Background(), 4); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	// second finalize has nothing left to flush
	if err := s.FinalizeTrack(context.Background(), 4); err != nil {
		t.Fatalf("finalize again: %v", err)
	}

	if len(sink.reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(sink.reports))
	}
	r := sink.reports[0]
	if r.Crops != 3 || r.Label != "bee" || r.BestConfidence != 0.8 {
		t.Errorf("unexpected report %+v", r)
	}
	if !r.FirstSeen.Equal(c.t) || !r.LastSeen.Equal(c.t.Add(2*time.Second)) {
		t.Errorf("first/last seen = %s/%s", r.FirstSeen, r.LastSeen)
	}

	f, err := os.Open(s.Meta().TrackReportPath())
	if err != nil {
		t.Fatalf("open track report: %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var got models.TrackReport
		if err := json.Unmarshal(scanner.Bytes(), &got); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		lines++
	}
	if lines != 1 {
		t.Errorf("track report lines = %d, want 1", lines)
	}
}

func TestCloseFlushesOpenTracks(t *testing.T) {
	sink := &fakeSink{}
	s, c := openTestSession(t, &fakeRegistry{}, sink, Options{Labels: []string{"bee"}})

	s.RecordCrop(crop(1, "bee", 0.5, c.t))
	s.RecordCrop(crop(2, "bee", 0.5, c.t))
	if err := s.FinalizeTrack(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Close(context.Background(), models.StopReasonInterrupt); err != nil {
		t.Fatal(err)
	}
	if len(sink.reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(sink.reports))
	}
	if st := s.Stats(); !st.Closed || st.OpenTracks != 0 {
		t.Errorf("stats after close = %+v", st)
	}
}

func TestMultiSinkCallsEverySink(t *testing.T) {
	var calls int
	failing := SinkFunc(func(context.Context, models.TrackReport) error {
		calls++
		return errors.New("nats down")
	})
	ok := &fakeSink{}

	err := MultiSink{failing, nil, ok}.PublishTrack(context.Background(), models.TrackReport{TrackID: 1})
	if err == nil {
		t.Fatal("expected joined error")
	}
	if calls != 1 || len(ok.reports) != 1 {
		t.Errorf("calls=%d reports=%d", calls, len(ok.reports))
	}
}
