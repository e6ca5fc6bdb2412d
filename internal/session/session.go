package session

import (
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a session id is unknown
var ErrNotFound = errors.New("session not found")

// Session is the durable per-player identity. It outlives any single
// websocket connection: the connection id is rebound on every (re)connect
// and empty while the player is disconnected.
type Session struct {
	ID       string
	RoomID   string
	Username string
	ConnID   string
	JoinedAt time.Time
}

// Manager owns the session table. Rooms and games refer to sessions by id
// only; this is the single place a session may be created or deleted.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byConn   map[string]string // connID -> sessionID
	clock    quartz.Clock
	logger   *log.Logger
}

// NewManager creates an empty session manager
func NewManager(logger *log.Logger, clock quartz.Clock) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		byConn:   make(map[string]string),
		clock:    clock,
		logger:   logger.WithPrefix("sessions"),
	}
}

// Create mints a new opaque session identity for a player in a room
func (m *Manager) Create(roomID, username string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.sessions[id] = &Session{
		ID:       id,
		RoomID:   roomID,
		Username: username,
		JoinedAt: m.clock.Now(),
	}

	m.logger.Info("Created session", "session", id, "room", roomID, "username", username)
	return id
}

// Exists reports whether a session id is known
func (m *Manager) Exists(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[id]
	return ok
}

// Get returns a copy of the session, or ErrNotFound
func (m *Manager) Get(id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return *s, nil
}

// Username returns the username for a session, empty if unknown
func (m *Manager) Username(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.sessions[id]; ok {
		return s.Username
	}
	return ""
}

// BindConnection associates a transport connection with a session. Called on
// every successful (re)connect; last write wins, and any previously bound
// connection is no longer trusted for delivery.
func (m *Manager) BindConnection(sessionID, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}

	if s.ConnID != "" {
		delete(m.byConn, s.ConnID)
	}
	s.ConnID = connID
	if connID != "" {
		m.byConn[connID] = sessionID
	}

	m.logger.Debug("Bound connection", "session", sessionID, "conn", connID)
	return nil
}

// ConnectionID returns the connection currently representing a session.
// ok is false when the session is unknown or disconnected.
func (m *Manager) ConnectionID(sessionID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok || s.ConnID == "" {
		return "", false
	}
	return s.ConnID, true
}

// ByConnection is the reverse lookup used on abrupt disconnect: it maps a
// transport connection back to the room and session it represents.
func (m *Manager) ByConnection(connID string) (roomID, sessionID string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessionID, ok = m.byConn[connID]
	if !ok {
		return "", "", false
	}
	s, ok := m.sessions[sessionID]
	if !ok {
		return "", "", false
	}
	return s.RoomID, sessionID, true
}

// Delete removes a session on explicit leave. Irreversible.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return
	}
	if s.ConnID != "" {
		delete(m.byConn, s.ConnID)
	}
	delete(m.sessions, id)
	m.logger.Info("Deleted session", "session", id, "room", s.RoomID)
}
