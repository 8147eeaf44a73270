package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ducminhle1904/tradeguard/internal/logger"
)

// FileStore keeps one JSON file per key. Writes go to a temp file that is
// renamed over the target, and the previous version is kept as a backup.
type FileStore struct {
	dir    string
	logger *logger.Logger
	mutex  sync.Mutex
}

// NewFileStore creates dir if needed and returns a store rooted there
func NewFileStore(dir string, log *logger.Logger) (*FileStore, error) {
	if dir == "" {
		dir = "state"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &FileStore{dir: dir, logger: log}, nil
}

func (s *FileStore) path(key string) string {
	name := strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(key)
	return filepath.Join(s.dir, name+".json")
}

// Get reads the file for key
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read state file: %w", err)
	}
	return data, true, nil
}

// Set atomically replaces the file for key
func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	target := s.path(key)
	if prev, err := os.ReadFile(target); err == nil {
		backup := strings.TrimSuffix(target, ".json") + "_backup.json"
		if err := os.WriteFile(backup, prev, 0644); err != nil {
			s.logger.LogWarning("State Backup", "Failed to create backup: %v", err)
		}
	}

	tempFile := target + ".tmp"
	if err := os.WriteFile(tempFile, value, 0644); err != nil {
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := os.Rename(tempFile, target); err != nil {
		return fmt.Errorf("failed to move state file: %w", err)
	}
	return nil
}

// Close is a no-op for files
func (s *FileStore) Close() error {
	return nil
}
