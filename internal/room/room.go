package room

import (
	"errors"
	"sync"

	"github.com/charmbracelet/log"
)

// ErrNotFound is returned when a room id is unknown
var ErrNotFound = errors.New("room not found")

// Room is one independent game instance and its membership. Connected holds
// session ids ordered by first join; that order is the turn order for picking
// and host succession. Everyone records the first-join sequence of every
// session that ever joined, so a rejoin can be told apart from a first join
// and restored to its original turn position.
type Room struct {
	ID        string
	Connected []string
	Everyone  map[string]int
	HostID    string
	nextSeq   int
}

// View is a read-only snapshot of a room handed out to callers
type View struct {
	ID        string
	Connected []string
	HostID    string
}

// LeaveResult reports the bookkeeping a departure caused. NewHost and
// NewPicker are non-empty only when succession actually happened; Empty
// marks the room as eligible for disposal.
type LeaveResult struct {
	NewHost   string
	NewPicker string
	Empty     bool
}

// Manager owns the room table and all membership mutations
type Manager struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	logger *log.Logger
}

// NewManager creates an empty room manager
func NewManager(logger *log.Logger) *Manager {
	return &Manager{
		rooms:  make(map[string]*Room),
		logger: logger.WithPrefix("rooms"),
	}
}

// IsValidRoom reports whether a room exists
func (m *Manager) IsValidRoom(roomID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[roomID]
	return ok
}

// Join adds a session to a room, creating the room on first join. The first
// joiner becomes host. Joining is idempotent, and a session returning after a
// disconnect is reinserted at its original turn position: the connected order
// is always a subsequence of first-join order.
func (m *Manager) Join(roomID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		r = &Room{
			ID:       roomID,
			Everyone: make(map[string]int),
		}
		m.rooms[roomID] = r
		m.logger.Info("Created room", "room", roomID)
	}

	for _, id := range r.Connected {
		if id == sessionID {
			// Already connected, nothing to do
			return
		}
	}

	seq, rejoin := r.Everyone[sessionID]
	if !rejoin {
		seq = r.nextSeq
		r.nextSeq++
		r.Everyone[sessionID] = seq
	}

	pos := len(r.Connected)
	for i, id := range r.Connected {
		if r.Everyone[id] > seq {
			pos = i
			break
		}
	}
	r.Connected = append(r.Connected, "")
	copy(r.Connected[pos+1:], r.Connected[pos:])
	r.Connected[pos] = sessionID

	if r.HostID == "" {
		r.HostID = sessionID
		m.logger.Info("Assigned host", "room", roomID, "session", sessionID)
	}

	m.logger.Info("Session joined room", "room", roomID, "session", sessionID, "connected", len(r.Connected))
}

// Leave removes a session from the connected set only; the session identity
// itself belongs to the session manager. Host succession goes to the
// earliest-joined remaining member. currentPicker is the active picker if a
// game is in progress (empty otherwise); when the departing session was the
// picker, the result carries the re-elected picker for the caller to apply.
func (m *Manager) Leave(roomID, sessionID, currentPicker string) (LeaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return LeaveResult{}, ErrNotFound
	}

	found := false
	for i, id := range r.Connected {
		if id == sessionID {
			r.Connected = append(r.Connected[:i], r.Connected[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return LeaveResult{}, nil
	}

	var res LeaveResult
	if len(r.Connected) == 0 {
		delete(m.rooms, roomID)
		res.Empty = true
		m.logger.Info("Room empty, disposing", "room", roomID)
		return res, nil
	}

	if r.HostID == sessionID {
		r.HostID = r.Connected[0]
		res.NewHost = r.HostID
		m.logger.Info("Host left, promoted successor", "room", roomID, "host", r.HostID)
	}
	if currentPicker == sessionID {
		res.NewPicker = r.Connected[0]
		m.logger.Info("Picker left, re-elected", "room", roomID, "picker", res.NewPicker)
	}

	m.logger.Info("Session left room", "room", roomID, "session", sessionID, "connected", len(r.Connected))
	return res, nil
}

// IsHost reports whether a session is the current host of a room
func (m *Manager) IsHost(roomID, sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[roomID]
	return ok && r.HostID == sessionID && sessionID != ""
}

// Get returns a snapshot of a room, or ErrNotFound
func (m *Manager) Get(roomID string) (View, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return View{}, ErrNotFound
	}
	connected := make([]string, len(r.Connected))
	copy(connected, r.Connected)
	return View{ID: r.ID, Connected: connected, HostID: r.HostID}, nil
}

// Members returns the connected session ids in join order
func (m *Manager) Members(roomID string) []string {
	v, err := m.Get(roomID)
	if err != nil {
		return nil
	}
	return v.Connected
}

// MemberIndex returns a session's position in join order, -1 if absent
func (m *Manager) MemberIndex(roomID, sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return -1
	}
	for i, id := range r.Connected {
		if id == sessionID {
			return i
		}
	}
	return -1
}

// IsConnected reports whether a session is currently in the room
func (m *Manager) IsConnected(roomID, sessionID string) bool {
	return m.MemberIndex(roomID, sessionID) >= 0
}

// HasJoinedBefore reports whether a session has ever joined the room
func (m *Manager) HasJoinedBefore(roomID, sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return false
	}
	_, ever := r.Everyone[sessionID]
	return ever
}
