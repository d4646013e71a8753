package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
)

func writeTree(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"2024-06-01_10-00-00_metadata.csv": "rec_ID\n1\n",
		"crop/bee/a.jpg":                   "jpeg-a",
		"full/b.jpg":                       "jpeg-b",
	}
	for name, body := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestArchive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "2024-06-01_10-00-00")
	writeTree(t, dir)

	s := NewService(zerolog.Nop())
	path, err := s.Archive(context.Background(), dir)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if path != dir+".zip" {
		t.Errorf("path = %s", path)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("session directory still exists")
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer r.Close()

	found := map[string]string{}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if f.Method != zip.Store {
			t.Errorf("%s stored with method %d", f.Name, f.Method)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		body, _ := io.ReadAll(rc)
		rc.Close()
		found[f.Name] = string(body)
	}
	if found["crop/bee/a.jpg"] != "jpeg-a" || found["full/b.jpg"] != "jpeg-b" {
		t.Errorf("unexpected entries %v", found)
	}

	// second call is a no-op
	again, err := s.Archive(context.Background(), dir)
	if err != nil || again != path {
		t.Errorf("second archive = %s, %v", again, err)
	}
}

func TestArchiveCancelledKeepsDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "session")
	writeTree(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewService(zerolog.Nop()).Archive(ctx, dir); err == nil {
		t.Fatal("expected cancellation error")
	}
	if _, err := os.Stat(filepath.Join(dir, "crop", "bee", "a.jpg")); err != nil {
		t.Errorf("session data lost: %v", err)
	}
	for _, p := range []string{dir + ".zip", dir + ".zip.tmp"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should not exist", p)
		}
	}
}

func TestArchiveMissingDirectory(t *testing.T) {
	if _, err := NewService(zerolog.Nop()).Archive(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
