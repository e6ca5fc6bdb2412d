package server

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/quizbuzz/quizbuzz/internal/session"
)

const sessionCookieName = "session_id"

// registerAPI mounts the session and room HTTP endpoints. Clients call these
// before opening the websocket: mint a session, get a room code, then connect.
func (s *Server) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("/api/valid_room", s.handleValidRoom)
	mux.HandleFunc("/api/create_session", s.handleCreateSession)
	mux.HandleFunc("/api/get_session", s.handleGetSession)
	mux.HandleFunc("/api/create_room_id", s.handleCreateRoomID)
	mux.HandleFunc("/api/is_host", s.handleIsHost)
}

func writeJSON(w http.ResponseWriter, logger *log.Logger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to write JSON response", "error", err)
	}
}

// handleValidRoom reports whether a room code refers to a live room
func (s *Server) handleValidRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")
	writeJSON(w, s.logger, s.rooms.IsValidRoom(roomID))
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	RoomID    string `json:"room_id"`
	Reconnect bool   `json:"reconnect"`
}

// handleCreateSession mints a session for a player entering a room and sets
// it as an httponly cookie. A request arriving with a still-live session
// cookie is a reconnect: the existing identity is returned unchanged.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if existing, err := s.sessions.Get(cookie.Value); err == nil {
			writeJSON(w, s.logger, sessionResponse{
				SessionID: existing.ID,
				RoomID:    existing.RoomID,
				Reconnect: true,
			})
			return
		}
	}

	roomID := r.URL.Query().Get("room_id")
	username := r.URL.Query().Get("username")
	if roomID == "" || username == "" {
		http.Error(w, "room_id and username required", http.StatusBadRequest)
		return
	}

	sessionID := s.sessions.Create(roomID, username)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		HttpOnly: true,
		Path:     "/",
	})
	writeJSON(w, s.logger, sessionResponse{
		SessionID: sessionID,
		RoomID:    roomID,
		Reconnect: false,
	})
}

// handleGetSession resolves the session cookie. A stale cookie is cleared so
// the client starts over cleanly.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil {
		if existing, getErr := s.sessions.Get(cookie.Value); getErr == nil {
			writeJSON(w, s.logger, sessionResponse{
				SessionID: existing.ID,
				RoomID:    existing.RoomID,
				Reconnect: true,
			})
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		MaxAge:   -1,
	})
	writeJSON(w, s.logger, sessionResponse{})
}

// handleCreateRoomID allocates a room code not colliding with a live room
func (s *Server) handleCreateRoomID(w http.ResponseWriter, _ *http.Request) {
	roomID := s.codes.GenerateUnused(s.rooms.IsValidRoom)
	writeJSON(w, s.logger, map[string]string{"room_id": roomID})
}

// handleIsHost reports whether the given session is its room's host
func (s *Server) handleIsHost(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		if err == session.ErrNotFound {
			writeJSON(w, s.logger, map[string]bool{"is_host": false})
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, s.logger, map[string]bool{"is_host": s.rooms.IsHost(sess.RoomID, sessionID)})
}
