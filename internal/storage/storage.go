// Package storage persists composited photo files on disk and derives
// thumbnails for gallery views.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auditlens/backend/internal/config"
)

// ErrFileNotFound is returned when a stored file is missing from disk.
var ErrFileNotFound = errors.New("file not found")

// Thumbnail bounding box; aspect ratio is preserved.
const (
	thumbnailWidth  = 400
	thumbnailHeight = 400
)

// Store manages composited photo files under a single uploads directory.
// Filenames are generated here; callers never choose paths.
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore creates the uploads directory if needed and returns a store.
func NewStore(cfg *config.Config, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	logger.Info("Photo storage ready", zap.String("dir", cfg.UploadDir))
	return &Store{dir: cfg.UploadDir, logger: logger}, nil
}

// NewFilename returns a fresh unique filename for a composited artifact.
func (s *Store) NewFilename() string {
	return "photo-" + uuid.NewString() + ".jpg"
}

// Save writes the artifact bytes under the given filename.
func (s *Store) Save(filename string, data []byte) error {
	path := filepath.Join(s.dir, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.logger.Error("Failed to save photo file", zap.String("filename", filename), zap.Error(err))
		return fmt.Errorf("failed to save photo file: %w", err)
	}
	s.logger.Debug("Saved photo file", zap.String("filename", filename), zap.Int("bytes", len(data)))
	return nil
}

// Path resolves a stored filename to its on-disk path, verifying existence.
// The filename is flattened to its base to keep lookups inside the uploads
// directory.
func (s *Store) Path(filename string) (string, error) {
	path := filepath.Join(s.dir, filepath.Base(filename))
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrFileNotFound
		}
		return "", fmt.Errorf("failed to stat photo file: %w", err)
	}
	return path, nil
}

// Remove deletes a stored file. A missing file is not an error; removal is
// used for cleanup after failed inserts and for photo deletion.
func (s *Store) Remove(filename string) error {
	path := filepath.Join(s.dir, filepath.Base(filename))
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("Failed to remove photo file", zap.String("filename", filename), zap.Error(err))
		return fmt.Errorf("failed to remove photo file: %w", err)
	}
	return nil
}

// Thumbnail loads a stored artifact and returns a JPEG scaled to fit the
// thumbnail bounding box.
func (s *Store) Thumbnail(filename string) ([]byte, error) {
	path, err := s.Path(filename)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open photo file: %w", err)
	}

	thumb := imaging.Fit(img, thumbnailWidth, thumbnailHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
