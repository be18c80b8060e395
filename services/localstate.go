package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalTokenStore persists the bearer token across agent restarts, the way a
// browser keeps auth_token in localStorage. Logout must always remove it,
// whatever the backend said.
type LocalTokenStore struct {
	path string
}

func NewLocalTokenStore(path string) *LocalTokenStore {
	return &LocalTokenStore{path: path}
}

func (s *LocalTokenStore) Path() string { return s.path }

func (s *LocalTokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create state dir: %v", err)
	}
	if err := os.WriteFile(s.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("failed to persist token: %v", err)
	}
	return nil
}

// Load returns the persisted token, or "" when none exists.
func (s *LocalTokenStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token: %v", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *LocalTokenStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token: %v", err)
	}
	return nil
}
