package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"capture-worker-go/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNextIDIsMonotonic(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for expected := int64(1); expected <= 3; expected++ {
		id, err := store.NextID(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if id != expected {
			t.Errorf("NextID() = %d, expected %d", id, expected)
		}
	}
}

func TestNextIDSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	ctx := context.Background()

	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.NextID(ctx); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	store, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	id, err := store.NextID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id != 2 {
		t.Errorf("NextID() after reopen = %d, expected 2", id)
	}
}

func TestWriteSummary(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.NextID(ctx)
	if err != nil {
		t.Fatal(err)
	}

	reserved, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now().Add(-time.Minute)
	summary := models.SessionSummary{
		SessionID:  id,
		Start:      start,
		End:        start.Add(time.Minute),
		Duration:   time.Minute,
		Crops:      9,
		TrackIDs:   4,
		DiskFreeMB: 512,
		StopReason: models.StopReasonDiskSpace,
		Dir:        "/data/x",
	}
	if err := store.WriteSummary(ctx, summary); err != nil {
		t.Fatal(err)
	}

	rec, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Crops != 9 || rec.TrackIDs != 4 || rec.StopReason != "disk_space" || rec.EndedAt == nil {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.DurationSec != 60 {
		t.Errorf("DurationSec = %v, expected 60", rec.DurationSec)
	}
	if rec.CreatedAt.IsZero() || !rec.CreatedAt.Equal(reserved.CreatedAt) {
		t.Errorf("CreatedAt = %v, expected reservation time %v", rec.CreatedAt, reserved.CreatedAt)
	}
}

func TestWriteSummaryKeepsZeroCounters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.WriteSummary(ctx, models.SessionSummary{SessionID: 5, Crops: 3}); err != nil {
		t.Fatal(err)
	}
	if err := store.WriteSummary(ctx, models.SessionSummary{SessionID: 5, StopReason: models.StopReasonInterrupt}); err != nil {
		t.Fatal(err)
	}

	rec, err := store.Get(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Crops != 0 || rec.StopReason != "interrupt" {
		t.Errorf("unexpected record: %+v", rec)
	}
}
