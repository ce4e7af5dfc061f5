package extraction

import (
	"sync"

	"github.com/medex/medex/internal/domain/result"
)

// Session holds a user's most recent extraction together with the note it
// came from. A new extraction replaces the previous session wholesale.
type Session struct {
	Result     *result.Result
	SourceText string
}

// SessionStore keeps one session per user in memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Replace installs the user's new session, discarding any previous one.
func (s *SessionStore) Replace(userID string, res *result.Result, sourceText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = &Session{Result: res, SourceText: sourceText}
}

// Current returns the user's session, or nil when no extraction has run yet.
func (s *SessionStore) Current(userID string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[userID]
}

// Clear removes the user's session.
func (s *SessionStore) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}
