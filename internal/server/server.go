package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/quizbuzz/quizbuzz/internal/protocol"
	"github.com/quizbuzz/quizbuzz/internal/room"
	"github.com/quizbuzz/quizbuzz/internal/roomcode"
	"github.com/quizbuzz/quizbuzz/internal/session"
)

// Server is the WebSocket and HTTP front end. It owns the live connection
// table and routes outbound messages by connection id; all game semantics
// live behind the orchestrator.
type Server struct {
	addr         string
	upgrader     websocket.Upgrader
	conns        map[string]*Conn
	register     chan *Conn
	unregister   chan *Conn
	sessions     *session.Manager
	rooms        *room.Manager
	codes        *roomcode.Generator
	orchestrator *Orchestrator
	logger       *log.Logger
	mu           sync.RWMutex
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewServer creates a server listening on addr
func NewServer(addr string, logger *log.Logger, sessions *session.Manager,
	rooms *room.Manager, codes *roomcode.Generator) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// For development, allow all origins
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns:      make(map[string]*Conn),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		sessions:   sessions,
		rooms:      rooms,
		codes:      codes,
		logger:     logger.WithPrefix("server"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetOrchestrator wires the event router. Must be called before Start; the
// orchestrator needs the server as its Sender, hence the late binding.
func (s *Server) SetOrchestrator(o *Orchestrator) {
	s.orchestrator = o
}

// Start starts the server and blocks serving requests
func (s *Server) Start() error {
	go s.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	s.registerAPI(mux)

	s.logger.Info("Starting server", "addr", s.addr)
	return http.ListenAndServe(s.addr, mux)
}

// Stop stops the server and closes every live connection
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	return nil
}

// run handles connection lifecycle
func (s *Server) run() {
	for {
		select {
		case conn := <-s.register:
			s.mu.Lock()
			s.conns[conn.ID()] = conn
			total := len(s.conns)
			s.mu.Unlock()
			s.logger.Info("Client connected", "conn", conn.ID(), "total", total)

		case conn := <-s.unregister:
			s.mu.Lock()
			_, ok := s.conns[conn.ID()]
			if ok {
				delete(s.conns, conn.ID())
				_ = conn.Close()
			}
			total := len(s.conns)
			s.mu.Unlock()

			if ok {
				// Room bookkeeping happens after the connection is gone from
				// the table so no broadcast is attempted on the dead socket.
				s.orchestrator.HandleDisconnect(conn.ID())
			}
			s.logger.Info("Client disconnected", "conn", conn.ID(), "total", total)

		case <-s.ctx.Done():
			return
		}
	}
}

// Send implements Sender by routing to the live connection table
func (s *Server) Send(connID string, msg *protocol.Message) error {
	s.mu.RLock()
	conn, ok := s.conns[connID]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("connection not found: %s", connID)
	}
	return conn.SendMessage(msg)
}

// handleWebSocket upgrades a client. The session id travels as a query
// parameter; a connection that cannot prove a known session is refused
// before the upgrade.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		if cookie, err := r.Cookie(sessionCookieName); err == nil {
			sessionID = cookie.Value
		}
	}
	if !s.sessions.Exists(sessionID) {
		s.logger.Warn("Rejected connection with unknown session", "session", sessionID)
		http.Error(w, "unknown session", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConn(conn, sessionID, s.orchestrator, s.logger)
	if err := s.orchestrator.HandleConnect(sessionID, client.ID()); err != nil {
		s.logger.Error("Failed to bind connection", "session", sessionID, "error", err)
		_ = client.Close()
		return
	}

	select {
	case s.register <- client:
	case <-s.ctx.Done():
		_ = client.Close()
		return
	}
	client.Start()

	go func() {
		<-client.ctx.Done()
		// run() is gone once the server stops; don't block on its channel
		select {
		case s.unregister <- client:
		case <-s.ctx.Done():
		}
	}()
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}
