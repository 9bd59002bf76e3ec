package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File is a handle on the persisted configuration that serializes
// writers. The Control API and the reconciler both go through the same
// File, so concurrent mutations cannot interleave into a corrupt file.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile creates a handle for the config file at path. The file itself
// may not exist yet.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the underlying file path.
func (f *File) Path() string {
	return f.path
}

// Load reads and parses the current contents.
func (f *File) Load() (*Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Load(f.path)
}

// Save writes the configuration atomically: the new contents go to a
// temporary file in the same directory which is then renamed over the
// target, so readers only ever observe a complete file.
func (f *File) Save(cfg *Service) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(cfg)
}

// Mutate loads the configuration, applies fn and saves the result, all
// under the writer lock. Returning an error from fn aborts without
// touching the file.
func (f *File) Mutate(fn func(*Service) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cfg, err := Load(f.path)
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return f.save(cfg)
}

// Fingerprint returns a digest of the file contents. The reconciler
// polls it to detect changes; a missing file hashes to a fixed value so
// deletion is observed as a change too.
func (f *File) Fingerprint() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return "absent", nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)), nil
}

// save writes atomically. Caller holds f.mu.
func (f *File) save(cfg *Service) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp config: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}
