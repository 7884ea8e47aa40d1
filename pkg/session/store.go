package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"wxrss/pkg/logger"
)

// Store is the interface for persisting and loading sessions.
type Store interface {
	// Load returns the persisted session, or nil when none exists. A
	// missing or unreadable record is not an error; it means "no session".
	Load() (*Session, error)

	// Save persists the session, replacing any previous one.
	Save(s *Session) error

	// Clear removes the persisted session.
	Clear() error
}

// FileStore persists the session as a JSON file:
// {"token": ..., "cookies": {...}, "fakeid": ..., "is_logged_in": ...}.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger logger.Logger
}

// NewFileStore creates a file-backed session store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger.GetLogger(),
	}
}

// Load reads the session file. A missing or corrupt file yields (nil, nil).
func (f *FileStore) Load() (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		f.logger.WithError(err).WithField("path", f.path).Warn("failed to read session file, treating as no session")
		return nil, nil
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		f.logger.WithError(err).WithField("path", f.path).Warn("corrupt session file, treating as no session")
		return nil, nil
	}

	if s.Token == "" || len(s.Cookies) == 0 || !s.IsLoggedIn {
		return nil, nil
	}

	return &s, nil
}

// Save writes the session file, creating parent directories as needed.
func (f *FileStore) Save(s *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s == nil {
		return fmt.Errorf("cannot save nil session")
	}

	dir := filepath.Dir(f.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create session directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	f.logger.WithField("path", f.path).Debug("session saved")
	return nil
}

// Clear removes the session file.
func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
