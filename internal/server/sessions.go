package server

import (
	"errors"
	"sort"
	"sync"

	"github.com/MeKo-Tech/docframe/internal/review"
	"github.com/gofrs/uuid"
)

// ErrSessionLimit is returned when the server already holds its maximum number of
// sessions.
var ErrSessionLimit = errors.New("session limit reached")

// sessionRegistry owns the open review sessions.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*review.Session
	max      int
}

func newSessionRegistry(maxSessions int) *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*review.Session), max: maxSessions}
}

// newSessionID returns a random session identifier.
func newSessionID() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (r *sessionRegistry) add(s *review.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) >= r.max {
		return ErrSessionLimit
	}
	r.sessions[s.ID()] = s
	activeSessions.Set(float64(len(r.sessions)))
	return nil
}

func (r *sessionRegistry) get(id string) (*review.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// remove unregisters and closes the session.
func (r *sessionRegistry) remove(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	activeSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	if ok {
		s.Close()
	}
	return ok
}

func (r *sessionRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *sessionRegistry) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *sessionRegistry) closeAll() {
	for _, id := range r.ids() {
		r.remove(id)
	}
}
