package tracker

import (
	"sync"
	"time"
)

// SessionStore is the process-wide map of userID to session state. Each key is
// owned by exactly one in-flight task at a time (a user appears in at most one
// batch per cycle); the mutex covers map structure, not per-session ordering.
type SessionStore struct {
	sessions    map[string]Session
	mutex       sync.RWMutex
	idleTimeout time.Duration
}

func newSessionStore(idleTimeout time.Duration) *SessionStore {
	return &SessionStore{
		sessions:    make(map[string]Session),
		idleTimeout: idleTimeout,
	}
}

func (s *SessionStore) get(userID string) Session {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.sessions[userID]
}

func (s *SessionStore) put(userID string, session Session) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.sessions[userID] = session
}

// touch refreshes the idle clock for a user without mutating session state.
func (s *SessionStore) touch(userID string, now time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	session, exists := s.sessions[userID]
	if !exists {
		return
	}
	session.lastSeen = now
	s.sessions[userID] = session
}

func (s *SessionStore) delete(userID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.sessions, userID)
}

func (s *SessionStore) cleanup(now time.Time) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cutoff := now.Add(-s.idleTimeout)
	removed := 0
	for userID, session := range s.sessions {
		if session.lastSeen.Before(cutoff) {
			delete(s.sessions, userID)
			removed++
		}
	}
	return removed
}

func (s *SessionStore) size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.sessions)
}
