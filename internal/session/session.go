// Package session holds the repository selection shared by the git operations.
package session

import (
	"sync"
	"time"
)

// Reference is the currently selected repository. Validated is true once the
// path passed the repository check; a set path is always validated.
type Reference struct {
	Path       string    `json:"path"`
	Validated  bool      `json:"validated"`
	SelectedAt time.Time `json:"selected_at"`
}

// Session stores the selected repository for one host process. It is safe for
// concurrent use.
type Session struct {
	mutex   sync.RWMutex
	current Reference
	changes int64
}

// New creates an empty session with no repository selected
func New() *Session {
	return &Session{}
}

// Select records path as the current repository. Callers must only select
// paths that passed validation.
func (s *Session) Select(path string) Reference {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.current = Reference{Path: path, Validated: true, SelectedAt: time.Now()}
	s.changes++
	return s.current
}

// CurrentPath returns the selected path and whether one is set
func (s *Session) CurrentPath() (string, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.current.Path, s.current.Path != ""
}

// Reference returns a copy of the current selection
func (s *Session) Reference() Reference {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.current
}

// Changes returns how many times a repository has been selected
func (s *Session) Changes() int64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.changes
}
