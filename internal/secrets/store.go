// Package secrets resolves named secrets from the process environment or an
// optional local plaintext file, and owns calendar credential persistence.
// Secret values are never logged.
package secrets

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store looks up named secrets. Environment variables win over file entries.
type Store struct {
	mu   sync.RWMutex
	file map[string]string
}

// NewStore creates a store backed by the environment plus an optional
// secrets file (flat YAML, `NAME: value`). An empty path means env only.
func NewStore(filePath string) (*Store, error) {
	s := &Store{file: map[string]string{}}
	if filePath == "" {
		return s, nil
	}

	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.file); err != nil {
		return nil, fmt.Errorf("failed to parse secrets file: %w", err)
	}
	return s, nil
}

// Get returns the named secret and whether it is present.
func (s *Store) Get(name string) (string, bool) {
	if v := os.Getenv(name); v != "" {
		return v, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.file[name]
	return v, ok && v != ""
}

// MustGet returns the named secret or an error naming the missing variable
// (but never its value).
func (s *Store) MustGet(name string) (string, error) {
	v, ok := s.Get(name)
	if !ok {
		return "", fmt.Errorf("secret %s is not configured", name)
	}
	return v, nil
}
