package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"capture-worker-go/internal/models"
	"capture-worker-go/internal/services/metadata"
)

const (
	lastIDFile    = "last_rec_id.txt"
	recordLogFile = "record_log.csv"
)

// FileStore keeps the last recording ID in a text file and appends session
// summaries to a CSV recording log. It assumes a single writer process.
type FileStore struct {
	dir       string
	recordLog *metadata.Table
}

// NewFileStore creates a store rooted at dir
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		dir:       dir,
		recordLog: metadata.NewTable(filepath.Join(dir, recordLogFile), metadata.RecordHeader),
	}
}

// NextID reads the last recording ID, increments it and persists the new
// value. A missing file starts the sequence at 1.
func (s *FileStore) NextID(ctx context.Context) (int64, error) {
	path := filepath.Join(s.dir, lastIDFile)

	var last int64
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return 0, fmt.Errorf("failed to read last recording ID: %w", err)
	default:
		last, err = strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt last recording ID in %s: %w", path, err)
		}
	}

	next := last + 1
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(next, 10)), 0644); err != nil {
		return 0, fmt.Errorf("failed to write recording ID: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, fmt.Errorf("failed to persist recording ID: %w", err)
	}
	return next, nil
}

// WriteSummary appends one row to the recording log
func (s *FileStore) WriteSummary(ctx context.Context, summary models.SessionSummary) error {
	return s.recordLog.Append(metadata.RecordRow(summary))
}

// Summaries returns all rows of the recording log
func (s *FileStore) Summaries() ([][]string, error) {
	return s.recordLog.ReadAll()
}

// Close is a no-op
func (s *FileStore) Close() error {
	return nil
}
