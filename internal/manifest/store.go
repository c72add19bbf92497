package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the manifest file within a project's output directory.
const FileName = "clips.json"

// Store persists one project's manifest. Writes go through a temp file
// and rename so a crash mid-write never leaves a torn manifest behind.
type Store struct {
	path string
}

// NewStore returns a store for the manifest inside outputDir.
func NewStore(outputDir string) *Store {
	return &Store{path: filepath.Join(outputDir, FileName)}
}

// Path returns the manifest file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the manifest, returning a fresh one when none exists yet.
func (s *Store) Load() (*Manifest, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("read manifest %s: %w", s.path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", s.path, err)
	}
	if m.Version > Version {
		return nil, fmt.Errorf("manifest %s has version %d, newer than supported %d", s.path, m.Version, Version)
	}
	if m.Clips == nil {
		m.Clips = make(map[string]map[string]*ClipRecord)
	}
	if m.Plan == nil {
		m.Plan = make(map[string]*ChunkPlan)
	}
	return &m, nil
}

// Save durably writes the manifest.
func (s *Store) Save(m *Manifest) error {
	m.Version = Version

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create manifest dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".clips-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp manifest: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace manifest %s: %w", s.path, err)
	}
	return nil
}
