// Package session keeps the local state of the background heartbeat: a lock
// file that allows one heartbeat per host, and a record of the last run.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockFile  = "heartbeat.lock"
	stateFile = "heartbeat.json"
)

// ErrLocked means another process on this host holds the heartbeat lock.
var ErrLocked = errors.New("heartbeat lock held by another process")

// State is the record of the last heartbeat run.
type State struct {
	Outcome            string    `json:"outcome"`
	Resource           string    `json:"resource"`
	StartedAt          time.Time `json:"startedAt"`
	FinishedAt         time.Time `json:"finishedAt"`
	ExpirationDateTime time.Time `json:"expirationDateTime"`
	Error              string    `json:"error,omitempty"`
}

// Manager handles the session files in one directory.
type Manager struct {
	dir string
}

// NewManager creates a Manager. An empty dir selects the user cache directory.
func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("could not get user cache directory: %w", err)
		}
		dir = filepath.Join(cacheDir, "onedrive-gateway")
	}
	return &Manager{dir: dir}, nil
}

// Dir returns the directory holding the session files.
func (m *Manager) Dir() string { return m.dir }

// TryLock takes the host-wide heartbeat lock without waiting. The returned
// function releases it.
func (m *Manager) TryLock() (func(), error) {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return nil, fmt.Errorf("creating session directory '%s': %w", m.dir, err)
	}
	lock := flock.New(filepath.Join(m.dir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring heartbeat lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}
	return func() { _ = lock.Unlock() }, nil
}

// Save records the outcome of a run.
func (m *Manager) Save(state *State) error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("creating session directory '%s': %w", m.dir, err)
	}
	path := filepath.Join(m.dir, stateFile)

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquiring state file lock: %w", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling heartbeat state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing heartbeat state: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load returns the last recorded run, or nil if there is none.
func (m *Manager) Load() (*State, error) {
	path := filepath.Join(m.dir, stateFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading heartbeat state '%s': %w", path, err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshalling heartbeat state: %w", err)
	}
	return &state, nil
}
