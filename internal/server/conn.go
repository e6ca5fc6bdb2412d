package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quizbuzz/quizbuzz/internal/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var ErrConnClosed = websocket.ErrCloseSent

// Conn wraps one WebSocket connection to a client. Every Conn carries a
// transport id for routing and the session id it authenticated with.
type Conn struct {
	id           string
	sessionID    string
	conn         *websocket.Conn
	send         chan *protocol.Message
	orchestrator *Orchestrator
	logger       *log.Logger
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// NewConn creates a connection wrapper for an upgraded socket
func NewConn(conn *websocket.Conn, sessionID string, orchestrator *Orchestrator, logger *log.Logger) *Conn {
	ctx, cancel := context.WithCancel(context.Background())

	return &Conn{
		id:           uuid.NewString(),
		sessionID:    sessionID,
		conn:         conn,
		send:         make(chan *protocol.Message, 256),
		orchestrator: orchestrator,
		logger:       logger.WithPrefix("conn"),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// ID returns the transport id for this connection
func (c *Conn) ID() string {
	return c.id
}

// SessionID returns the session this connection authenticated with
func (c *Conn) SessionID() string {
	return c.sessionID
}

// Start begins handling the connection
func (c *Conn) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// SendMessage queues a message for delivery to the client
func (c *Conn) SendMessage(msg *protocol.Message) error {
	defer func() {
		if r := recover(); r != nil {
			// Channel was closed, expected during shutdown
			c.logger.Debug("Attempted to send message on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close()
		return ErrConnClosed
	}
}

// readPump handles incoming messages from the client
func (c *Conn) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg protocol.Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleMessage dispatches one inbound event to the orchestrator
func (c *Conn) handleMessage(msg *protocol.Message) {
	c.logger.Debug("Received message", "type", msg.Type, "session", c.sessionID)

	switch msg.Type {
	case protocol.EventJoinRoom, protocol.EventRejoinRoom:
		var data protocol.JoinRoomData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse join room data")
			return
		}
		c.orchestrator.HandleJoinRoom(c.id, data)

	case protocol.EventLeaveRoom:
		var data protocol.LeaveRoomData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse leave room data")
			return
		}
		c.orchestrator.HandleLeaveRoom(c.id, data)

	case protocol.EventStartGame:
		var data protocol.StartGameData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse start game data")
			return
		}
		c.orchestrator.HandleStartGame(c.ctx, c.id, data)

	case protocol.EventBoardChoice:
		var data protocol.BoardChoiceData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse board choice data")
			return
		}
		c.orchestrator.HandleBoardChoice(c.id, data)

	case protocol.EventBuzzIn:
		var data protocol.BuzzInData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse buzz in data")
			return
		}
		c.orchestrator.HandleBuzzIn(c.id, data)

	default:
		c.sendError("unknown_event_type", "Unknown event type: "+msg.Type.String())
	}
}

// sendError sends an error message to the client
func (c *Conn) sendError(code, message string) {
	errorMsg, err := protocol.NewMessage(protocol.EventError, protocol.ErrorData{
		Code:    code,
		Message: message,
	})
	if err != nil {
		c.logger.Error("Failed to create error message", "error", err)
		return
	}

	_ = c.SendMessage(errorMsg)
}
