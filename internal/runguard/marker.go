package runguard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// MarkerStore abstracts the stop marker so tests can avoid the filesystem.
type MarkerStore interface {
	Exists(path string) (bool, error)
	Create(path string, body []byte) error
	Delete(path string) error
}

// FileMarkers stores stop markers as regular files.
type FileMarkers struct{}

func (FileMarkers) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat stop marker: %w", err)
	}
}

func (FileMarkers) Create(path string, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create stop marker directory: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write stop marker: %w", err)
	}
	return nil
}

func (FileMarkers) Delete(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stop marker: %w", err)
	}
	return nil
}
