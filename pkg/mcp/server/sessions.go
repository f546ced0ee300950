package server

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// outboundBuffer is the number of stream messages queued per session
const outboundBuffer = 16

// Session is one client session. Sessions created by GET /sse carry a
// stream; sessions created by initialize on POST /mcp only carry an id.
type Session struct {
	ID        string
	CreatedAt time.Time

	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession() *Session {
	return &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		outbound:  make(chan []byte, outboundBuffer),
		done:      make(chan struct{}),
	}
}

// Push queues msg for the session stream. It blocks while the queue is
// full, until ctx ends or the session closes.
func (s *Session) Push(ctx context.Context, msg []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.outbound <- msg:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// SessionStore is a concurrent map of live sessions. Entries are removed
// only by Delete or CloseAll; there is no idle expiry.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty store
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Create registers a session with a fresh uuid
func (st *SessionStore) Create() *Session {
	s := newSession()
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

// Get looks a session up by id
func (st *SessionStore) Get(id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidSessionID
	}
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete closes and removes a session
func (st *SessionStore) Delete(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidSessionID
	}
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.close()
	return nil
}

// Count returns the number of live sessions
func (st *SessionStore) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// CloseAll closes and removes every session
func (st *SessionStore) CloseAll() {
	st.mu.Lock()
	sessions := st.sessions
	st.sessions = make(map[string]*Session)
	st.mu.Unlock()
	for _, s := range sessions {
		s.close()
	}
}
