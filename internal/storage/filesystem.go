package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"avatarmail/internal/domain"
)

// AudioDir is the sub-directory under the storage root holding sample files.
const AudioDir = "audio_files"

// FileStorage stores audio samples as plain files under <root>/audio_files.
type FileStorage struct {
	dir    string
	logger *zap.Logger
}

func NewFileStorage(root string, logger *zap.Logger) *FileStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStorage{
		dir:    filepath.Join(root, AudioDir),
		logger: logger.Named("storage"),
	}
}

// URLFor returns the path a file name maps to. It never touches the disk.
func (s *FileStorage) URLFor(fileName string) string {
	return filepath.Join(s.dir, fileName)
}

// Save writes data atomically, overwriting any existing file of the same name.
func (s *FileStorage) Save(fileName string, data []byte) error {
	if err := validateFileName(fileName); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWriteFailure, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", domain.ErrWriteFailure, s.dir, err)
	}

	path := s.URLFor(fileName)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: %s: %v", domain.ErrWriteFailure, fileName, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: %s: %v", domain.ErrWriteFailure, fileName, err)
	}

	s.logger.Debug("saved audio file", zap.String("file", fileName), zap.Int("bytes", len(data)))
	return nil
}

// Load reads a stored sample.
func (s *FileStorage) Load(fileName string) ([]byte, error) {
	if err := validateFileName(fileName); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	data, err := os.ReadFile(s.URLFor(fileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, fileName)
		}
		return nil, fmt.Errorf("read %s: %w", fileName, err)
	}
	return data, nil
}

// Delete removes a stored sample. A missing file yields domain.ErrNotFound.
func (s *FileStorage) Delete(fileName string) error {
	if err := validateFileName(fileName); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	if err := os.Remove(s.URLFor(fileName)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, fileName)
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrDeleteFailure, fileName, err)
	}

	s.logger.Debug("deleted audio file", zap.String("file", fileName))
	return nil
}

// Exists reports whether a regular file is stored under fileName.
func (s *FileStorage) Exists(fileName string) bool {
	if validateFileName(fileName) != nil {
		return false
	}
	info, err := os.Stat(s.URLFor(fileName))
	return err == nil && info.Mode().IsRegular()
}

func validateFileName(fileName string) error {
	trimmed := strings.TrimSpace(fileName)
	if trimmed == "" {
		return errors.New("empty file name")
	}
	if trimmed != filepath.Base(trimmed) || trimmed == "." || trimmed == ".." {
		return fmt.Errorf("invalid file name %q", fileName)
	}
	return nil
}
