// Package store persists the application record as a YAML file.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrInvalidVersion is returned by ParseVersion for malformed input
var ErrInvalidVersion = errors.New("invalid version")

// Record is the persisted application record
type Record struct {
	VersionMajor int `yaml:"version_major" json:"version_major"`
	VersionMinor int `yaml:"version_minor" json:"version_minor"`
	VersionBuild int `yaml:"version_build" json:"version_build"`
}

// Version formats the record version as MAJOR.MINOR.BUILD
func (r Record) Version() string {
	return fmt.Sprintf("%d.%d.%d", r.VersionMajor, r.VersionMinor, r.VersionBuild)
}

// SetVersion copies the version fields from v
func (r *Record) SetVersion(v Record) {
	r.VersionMajor = v.VersionMajor
	r.VersionMinor = v.VersionMinor
	r.VersionBuild = v.VersionBuild
}

// ParseVersion parses MAJOR.MINOR.BUILD (a leading "v" is accepted)
func ParseVersion(s string) (Record, error) {
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(s), "v"), ".")
	if len(parts) != 3 {
		return Record{}, fmt.Errorf("%w %q: expected MAJOR.MINOR.BUILD", ErrInvalidVersion, s)
	}

	var nums [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return Record{}, fmt.Errorf("%w %q: component %d is not a non-negative integer", ErrInvalidVersion, s, i)
		}
		nums[i] = n
	}

	return Record{VersionMajor: nums[0], VersionMinor: nums[1], VersionBuild: nums[2]}, nil
}

// Store reads and writes a Record at a fixed path
type Store struct {
	path string
	mu   sync.Mutex
}

// New creates a store backed by path. The file is not touched until used.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path
func (s *Store) Path() string {
	return s.path
}

// Load reads the record. A missing file yields the zero record.
func (s *Store) Load() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Save writes the record atomically, creating parent directories as needed
func (s *Store) Save(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(r)
}

// Update applies fn to the current record and saves the result.
// Nothing is written when fn fails.
func (s *Store) Update(fn func(*Record) error) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.loadLocked()
	if err != nil {
		return Record{}, err
	}
	if err := fn(&r); err != nil {
		return Record{}, err
	}
	if err := s.saveLocked(r); err != nil {
		return Record{}, err
	}
	return r, nil
}

func (s *Store) loadLocked() (Record, error) {
	var r Record

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return r, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	if err := yaml.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return r, nil
}

func (s *Store) saveLocked(r Record) error {
	data, err := yaml.Marshal(&r)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", s.path, err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save %s: %w", s.path, err)
	}
	return nil
}
