package identity

import (
	"sync"
	"time"
)

// SessionTTL is how long a sign-in lasts.
const SessionTTL = 24 * time.Hour

// Session represents an authenticated session.
type Session struct {
	AccountID   string
	Email       string
	DisplayName string
	Role        string
	CreatedAt   time.Time
}

// SessionStore is an in-memory session store keyed by random tokens.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

// Create stores a new session and returns the token.
// PRE: sess.AccountID is non-empty
// POST: Session is stored with CreatedAt set, token is returned
func (ss *SessionStore) Create(sess Session) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", err
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	sess.CreatedAt = ss.now()
	ss.sessions[token] = sess
	return token, nil
}

// Get retrieves a session by token.
// POST: Returns the session if present and younger than SessionTTL; expired sessions are dropped
func (ss *SessionStore) Get(token string) (Session, bool) {
	if token == "" {
		return Session{}, false
	}
	ss.mu.RLock()
	sess, ok := ss.sessions[token]
	ss.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	if ss.now().Sub(sess.CreatedAt) > SessionTTL {
		ss.Delete(token)
		return Session{}, false
	}
	return sess, true
}

// Delete removes a session by token.
func (ss *SessionStore) Delete(token string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.sessions, token)
}
