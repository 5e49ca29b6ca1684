// Package document persists a single JSON record on disk with atomic
// substitution, so concurrent readers never observe a torn write.
package document

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

var (
	// ErrNotExist indicates that the record has never been persisted.
	ErrNotExist = errors.New("document: does not exist")

	errEmptyPath = errors.New("document: path is required")
)

const fileMode = 0o644

// FileConfig configures a file-backed record.
type FileConfig struct {
	// Path is the location of the JSON record.
	Path string
	// UseLock enables an advisory file lock around each read-modify-write
	// cycle. Required for multi-process deployments sharing one record;
	// a single process is already serialized by the owning store.
	UseLock bool
}

// File is a single JSON record on durable storage.
type File struct {
	path string
	lock *flock.Flock
}

// NewFile validates the configuration and returns a File. The parent
// directory is created if missing; the record itself is not.
func NewFile(cfg FileConfig) (*File, error) {
	if cfg.Path == "" {
		return nil, errEmptyPath
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("document: create directory: %w", err)
		}
	}
	record := &File{path: cfg.Path}
	if cfg.UseLock {
		record.lock = flock.New(cfg.Path + ".lock")
	}
	return record, nil
}

// Path reports the record location.
func (f *File) Path() string {
	return f.path
}

// Lock acquires the advisory file lock when one is configured.
func (f *File) Lock() error {
	if f.lock == nil {
		return nil
	}
	return f.lock.Lock()
}

// Unlock releases the advisory file lock when one is configured.
func (f *File) Unlock() error {
	if f.lock == nil {
		return nil
	}
	return f.lock.Unlock()
}

// Load reads the current record bytes. ErrNotExist is returned when the
// record has never been persisted.
func (f *File) Load() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("document: read %s: %w", f.path, err)
	}
	return data, nil
}

// Save replaces the record atomically: the bytes are written to a
// temporary file in the same directory, synced, and renamed over the
// record path.
func (f *File) Save(data []byte) error {
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("document: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("document: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("document: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("document: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, fileMode); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("document: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("document: rename temp file: %w", err)
	}
	return nil
}
