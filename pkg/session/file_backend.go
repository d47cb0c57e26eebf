package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// storeFileName is the file holding all persisted keys.
const storeFileName = "session.json"

// FileBackend implements Store using a single JSON document.
// Storage layout:
//
//	~/.travelintel/
//	  └── session.json   # {"authToken": "...", "user": "{...}"}
//
// Writes go to a temporary file that is renamed over session.json, so a crash
// mid-write leaves the previous document intact.
type FileBackend struct {
	baseDir string
	mu      sync.RWMutex
	closed  bool
}

// NewFileBackend creates a new file-based storage backend.
// If baseDir is empty, uses ~/.travelintel.
func NewFileBackend(baseDir string) (*FileBackend, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".travelintel")
	}

	// Ensure base directory exists
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	return &FileBackend{
		baseDir: baseDir,
	}, nil
}

// Path returns the location of the backing file.
func (f *FileBackend) Path() string {
	return filepath.Join(f.baseDir, storeFileName)
}

// Get returns the value stored under key.
func (f *FileBackend) Get(ctx context.Context, key string) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return "", ErrStorageClosed
	}

	data, err := f.loadUnlocked()
	if err != nil {
		return "", err
	}

	value, ok := data[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return value, nil
}

// Set stores value under key.
func (f *FileBackend) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrStorageClosed
	}

	data, err := f.loadUnlocked()
	if err != nil {
		return err
	}

	data[key] = value
	return f.writeUnlocked(data)
}

// Delete removes keys.
func (f *FileBackend) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrStorageClosed
	}

	data, err := f.loadUnlocked()
	if err != nil {
		// An unreadable document is replaced rather than left behind.
		data = make(map[string]string)
	}

	changed := err != nil
	for _, key := range keys {
		if _, ok := data[key]; ok {
			delete(data, key)
			changed = true
		}
	}

	if !changed {
		return nil
	}
	return f.writeUnlocked(data)
}

// Ping checks that the base directory is still accessible.
func (f *FileBackend) Ping(ctx context.Context) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return ErrStorageClosed
	}

	if _, err := os.Stat(f.baseDir); err != nil {
		return fmt.Errorf("stat base directory: %w", err)
	}
	return nil
}

// Close releases any resources held by the backend.
func (f *FileBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	return nil
}

// loadUnlocked reads the document. Caller must hold a lock.
func (f *FileBackend) loadUnlocked() (map[string]string, error) {
	data := make(map[string]string)

	raw, err := os.ReadFile(f.Path()) // #nosec G304 - fixed file name under configured directory
	if err != nil {
		if os.IsNotExist(err) {
			return data, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}

	if len(raw) == 0 {
		return data, nil
	}

	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	return data, nil
}

// writeUnlocked replaces the document atomically. Caller must hold the write lock.
func (f *FileBackend) writeUnlocked(data map[string]string) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session file: %w", err)
	}

	tmp, err := os.CreateTemp(f.baseDir, storeFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod session file: %w", err)
	}

	if err := os.Rename(tmpPath, f.Path()); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}
