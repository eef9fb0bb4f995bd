package mcpd

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// session is the server-held state behind one Mcp-Session-Id token. Validity
// is always recomputed from lastAccess; there is no explicit active flag.
type session struct {
	id         string
	createdAt  time.Time
	lastAccess time.Time

	// stream is the attached push channel in SSE mode, nil in sync mode.
	stream *eventStream
}

// SessionManager owns the mapping from session token to session state. All
// mutation goes through its methods; the backing map is never exposed. A
// background sweeper evicts sessions whose idle time exceeds the timeout so
// abandoned sessions cannot accumulate.
type SessionManager struct {
	timeout       time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session

	done   chan struct{}
	closed chan struct{}
}

// NewSessionManager creates a session manager whose sessions expire after
// timeout of idleness, and starts the background sweeper. A zero or negative
// sweepInterval defaults to one minute. The manager must be released with
// Shutdown when no longer needed.
func NewSessionManager(timeout, sweepInterval time.Duration, logger *slog.Logger) *SessionManager {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &SessionManager{
		timeout:       timeout,
		sweepInterval: sweepInterval,
		logger:        logger,
		sessions:      make(map[string]*session),
		done:          make(chan struct{}),
		closed:        make(chan struct{}),
	}

	go m.sweep()

	return m
}

// Create mints a fresh session and returns its token. Tokens are random
// UUIDs; collisions are not handled because they do not occur in practice.
func (m *SessionManager) Create() string {
	id := uuid.New().String()
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[id] = &session{id: id, createdAt: now, lastAccess: now}
	return id
}

// Validate reports whether id names a live session, extending its expiry on
// success. The check and the touch are one atomic operation: a session that
// validates cannot expire between the check and the caller's use of it. An
// expired session found here is removed on the spot.
func (m *SessionManager) Validate(id string) bool {
	if id == "" {
		return false
	}

	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return false
	}

	if now.Sub(sess.lastAccess) > m.timeout {
		delete(m.sessions, id)
		if sess.stream != nil {
			sess.stream.close()
		}
		return false
	}

	sess.lastAccess = now
	return true
}

// Remove deletes the session and closes its attached stream if any. Removing
// an unknown id is a no-op.
func (m *SessionManager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return
	}

	delete(m.sessions, id)
	if sess.stream != nil {
		sess.stream.close()
	}
}

// Len returns the number of live sessions, expired or not.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions)
}

// attach binds a push stream to the session so removal and shutdown can close
// it. It reports false when the session no longer exists.
func (m *SessionManager) attach(id string, stream *eventStream) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return false
	}

	sess.stream = stream
	return true
}

// lookupStream returns the stream attached to the session, if any.
func (m *SessionManager) lookupStream(id string) *eventStream {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil
	}
	return sess.stream
}

// Shutdown stops the sweeper, closes every attached stream, and clears all
// sessions. The caller is guaranteed to call this method only once.
func (m *SessionManager) Shutdown() {
	close(m.done)
	<-m.closed

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sess := range m.sessions {
		if sess.stream != nil {
			sess.stream.close()
		}
	}
	m.sessions = make(map[string]*session)
}

// sweep periodically evicts sessions whose idle time exceeds the timeout.
// Eviction failures must not stop the sweeper, so stream closing is fully
// contained in eventStream.close.
func (m *SessionManager) sweep() {
	defer close(m.closed)

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

func (m *SessionManager) evictExpired() {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, sess := range m.sessions {
		if now.Sub(sess.lastAccess) <= m.timeout {
			continue
		}
		delete(m.sessions, id)
		if sess.stream != nil {
			sess.stream.close()
		}
		m.logger.Debug("evicted idle session", slog.String("sessionID", id))
	}
}
