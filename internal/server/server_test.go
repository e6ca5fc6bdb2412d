package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizbuzz/quizbuzz/internal/game"
	"github.com/quizbuzz/quizbuzz/internal/protocol"
	"github.com/quizbuzz/quizbuzz/internal/room"
	"github.com/quizbuzz/quizbuzz/internal/roomcode"
	"github.com/quizbuzz/quizbuzz/internal/session"
)

func findFreePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port
}

// startTestServer boots the full stack on a free port and waits for it to
// accept requests.
func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	logger := log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
	clock := quartz.NewReal()
	sessions := session.NewManager(logger, clock)
	rooms := room.NewManager(logger)
	games := game.NewManager(logger, clock, rooms, stubGenerator{})
	codes := roomcode.NewGenerator(roomcode.DefaultLength, nil)

	addr := fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	srv := NewServer(addr, logger, sessions, rooms, codes)
	srv.SetOrchestrator(NewOrchestrator(logger, clock, sessions, rooms, games, testTimings, srv))

	go func() { _ = srv.Start() }()
	t.Cleanup(func() { _ = srv.Stop() })

	baseURL := "http://" + addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/health")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	return srv, addr
}

func getJSON(t *testing.T, url string, out interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestServerIntegration(t *testing.T) {
	_, addr := startTestServer(t)
	baseURL := "http://" + addr

	// Allocate a room code and mint a session for it
	var created map[string]string
	getJSON(t, baseURL+"/api/create_room_id", &created)
	roomID := created["room_id"]
	require.Len(t, roomID, roomcode.DefaultLength)

	var valid bool
	getJSON(t, baseURL+"/api/valid_room?room_id="+roomID, &valid)
	assert.False(t, valid, "room does not exist until someone joins")

	var sess sessionResponse
	getJSON(t, baseURL+"/api/create_session?room_id="+roomID+"&username=alice", &sess)
	require.NotEmpty(t, sess.SessionID)
	assert.Equal(t, roomID, sess.RoomID)
	assert.False(t, sess.Reconnect)

	// Connect and join the room
	wsURL := "ws://" + addr + "/ws?session_id=" + sess.SessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	joinData, err := json.Marshal(protocol.JoinRoomData{RoomID: roomID, SessionID: sess.SessionID})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(protocol.Message{
		Type:      protocol.EventJoinRoom,
		Data:      joinData,
		Timestamp: time.Now(),
	}))

	// The join produces a status event and a membership refresh
	deadline := time.Now().Add(5 * time.Second)
	var players []string
	for time.Now().Before(deadline) && players == nil {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg protocol.Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == protocol.EventPlayers {
			require.NoError(t, json.Unmarshal(msg.Data, &players))
		}
	}
	assert.Equal(t, []string{"alice"}, players)

	// The room is live now and the first joiner is host
	getJSON(t, baseURL+"/api/valid_room?room_id="+roomID, &valid)
	assert.True(t, valid)

	var host map[string]bool
	getJSON(t, baseURL+"/api/is_host?session_id="+sess.SessionID, &host)
	assert.True(t, host["is_host"])
}

func TestStopClosesLiveConnections(t *testing.T) {
	srv, addr := startTestServer(t)
	baseURL := "http://" + addr

	var created map[string]string
	getJSON(t, baseURL+"/api/create_room_id", &created)
	var sess sessionResponse
	getJSON(t, baseURL+"/api/create_session?room_id="+created["room_id"]+"&username=alice", &sess)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws?session_id="+sess.SessionID, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.NoError(t, srv.Stop())

	// Stop tears the socket down from the server side; a read must fail
	// promptly rather than sit out its deadline.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	var nerr net.Error
	if errors.As(err, &nerr) {
		assert.False(t, nerr.Timeout(), "server left the connection open")
	}
}

func TestServerRejectsUnknownSession(t *testing.T) {
	_, addr := startTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws?session_id=nope", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIsHostUnknownSession(t *testing.T) {
	_, addr := startTestServer(t)

	var host map[string]bool
	getJSON(t, "http://"+addr+"/api/is_host?session_id=nope", &host)
	assert.False(t, host["is_host"])
}
