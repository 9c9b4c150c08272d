package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	server "lorule-online/server"
)

// ErrCorruptState marks a persisted file that exists but cannot be parsed.
// Startup treats it as fatal: data integrity over availability.
var ErrCorruptState = errors.New("corrupt state file")

// HadronStore persists the full hadron mapping as one human-editable JSON
// file, key = hadron id.
type HadronStore struct {
	path string
}

// NewHadronStore points the store at its backing file.
func NewHadronStore(path string) *HadronStore {
	return &HadronStore{path: path}
}

// Path returns the backing file location.
func (s *HadronStore) Path() string {
	return s.path
}

// Load reads the persisted mapping. A missing file is not an error; it
// yields an empty mapping. A file that exists but does not parse, or that
// contains a malformed hadron, is reported as ErrCorruptState.
func (s *HadronStore) Load() (map[string]server.Hadron, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]server.Hadron{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read hadron file %s: %w", s.path, err)
	}

	var state map[string]server.Hadron
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse hadron file %s: %w: %v", s.path, ErrCorruptState, err)
	}

	for id, hadron := range state {
		if hadron.ID != id {
			return nil, fmt.Errorf("hadron file %s: key %q does not match id %q: %w", s.path, id, hadron.ID, ErrCorruptState)
		}
	}
	if state == nil {
		state = map[string]server.Hadron{}
	}
	return state, nil
}

// Save atomically rewrites the persisted mapping: write to a temp file in
// the same directory, then rename over the target.
func (s *HadronStore) Save(state map[string]server.Hadron) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal hadron state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp hadron file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace hadron file: %w", err)
	}
	return nil
}
