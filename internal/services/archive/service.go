package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
)

// Service packs a finished session directory into an uncompressed zip file
// next to it and removes the directory afterwards
type Service struct {
	logger zerolog.Logger
}

func NewService(logger zerolog.Logger) *Service {
	return &Service{logger: logger}
}

// Archive writes <dir>.zip and deletes dir. The archive is built in a
// temporary file and renamed into place, so an interrupted run leaves the
// directory untouched. Archiving an already archived directory is a no-op.
func (s *Service) Archive(ctx context.Context, dir string) (string, error) {
	dir = filepath.Clean(dir)
	target := dir + ".zip"

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if _, err := os.Stat(target); err == nil {
			return target, nil
		}
		return "", fmt.Errorf("nothing to archive at %s", dir)
	}

	tmp := target + ".tmp"
	if err := s.write(ctx, dir, tmp); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to move archive into place: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return target, fmt.Errorf("archive written but failed to remove %s: %w", dir, err)
	}

	s.logger.Info().Str("archive", target).Msg("Session directory archived")
	return target, nil
}

func (s *Service) write(ctx context.Context, dir, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		return addEntry(zw, dir, p, d)
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("failed to archive %s: %w", dir, err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return f.Sync()
}

func addEntry(zw *zip.Writer, root, p string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return err
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(rel)
	if d.IsDir() {
		hdr.Name += "/"
		_, err := zw.CreateHeader(hdr)
		return err
	}
	// images are already compressed
	hdr.Method = zip.Store

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	src, err := os.Open(p)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(w, src)
	return err
}
