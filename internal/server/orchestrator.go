package server

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/quizbuzz/quizbuzz/internal/game"
	"github.com/quizbuzz/quizbuzz/internal/protocol"
	"github.com/quizbuzz/quizbuzz/internal/room"
	"github.com/quizbuzz/quizbuzz/internal/session"
	"github.com/quizbuzz/quizbuzz/internal/timer"
)

// Timings are the countdown durations for one clue round
type Timings struct {
	PickDelay    time.Duration // highlight shown on the chosen cell
	BuzzWindow   time.Duration // window to buzz in on a revealed clue
	AnswerWindow time.Duration // exclusive window for the buzz winner
}

// Sender delivers an outbound message to one transport connection. The
// websocket server implements it; tests substitute a recorder.
type Sender interface {
	Send(connID string, msg *protocol.Message) error
}

// outbound is one computed send: a targeted connection or a whole room
type outbound struct {
	connID string // set for a targeted send
	roomID string // set for a room broadcast
	msg    *protocol.Message
}

// Orchestrator routes inbound player actions through the managers in the
// correct order and fans the resulting state out to the room. Handlers first
// mutate, then compute the outbound set, then emit: observers never see a
// broadcast ahead of the state change it reports.
type Orchestrator struct {
	sessions *session.Manager
	rooms    *room.Manager
	games    *game.Manager
	timings  Timings
	clock    quartz.Clock
	sender   Sender
	logger   *log.Logger
}

// NewOrchestrator wires the three managers to a transport sender
func NewOrchestrator(logger *log.Logger, clock quartz.Clock, sessions *session.Manager,
	rooms *room.Manager, games *game.Manager, timings Timings, sender Sender) *Orchestrator {
	return &Orchestrator{
		sessions: sessions,
		rooms:    rooms,
		games:    games,
		timings:  timings,
		clock:    clock,
		sender:   sender,
		logger:   logger.WithPrefix("orchestrator"),
	}
}

// flush resolves room broadcasts to member connections and performs the
// sends, in order.
func (o *Orchestrator) flush(msgs []outbound) {
	for _, out := range msgs {
		if out.msg == nil {
			continue
		}
		if out.connID != "" {
			if err := o.sender.Send(out.connID, out.msg); err != nil {
				o.logger.Debug("Targeted send failed", "conn", out.connID, "type", out.msg.Type, "error", err)
			}
			continue
		}
		for _, sid := range o.rooms.Members(out.roomID) {
			connID, ok := o.sessions.ConnectionID(sid)
			if !ok {
				continue
			}
			if err := o.sender.Send(connID, out.msg); err != nil {
				o.logger.Debug("Broadcast send failed", "room", out.roomID, "type", out.msg.Type, "error", err)
			}
		}
	}
}

func broadcast(roomID string, eventType protocol.EventType, data interface{}) outbound {
	msg, err := protocol.NewMessage(eventType, data)
	if err != nil {
		return outbound{}
	}
	return outbound{roomID: roomID, msg: msg}
}

func targeted(connID string, eventType protocol.EventType, data interface{}) outbound {
	msg, err := protocol.NewMessage(eventType, data)
	if err != nil {
		return outbound{}
	}
	return outbound{connID: connID, msg: msg}
}

// HandleConnect binds a transport connection to its session. A connection
// that cannot establish a session identity is refused.
func (o *Orchestrator) HandleConnect(sessionID, connID string) error {
	if err := o.sessions.BindConnection(sessionID, connID); err != nil {
		return err
	}
	o.logger.Info("Connection bound", "session", sessionID, "conn", connID)
	return nil
}

// HandleDisconnect performs room-leave bookkeeping for an abruptly dropped
// connection. The session itself survives for a later reconnect.
func (o *Orchestrator) HandleDisconnect(connID string) {
	roomID, sessionID, ok := o.sessions.ByConnection(connID)
	if !ok {
		return
	}
	_ = o.sessions.BindConnection(sessionID, "")
	o.flush(o.leaveRoom(roomID, sessionID))
	o.logger.Info("Connection dropped", "session", sessionID, "room", roomID)
}

// leaveRoom removes a session from a room and computes every broadcast the
// departure causes. All mutation (membership, host, picker) happens before
// any message is emitted, so no observer sees a stale picker or host.
func (o *Orchestrator) leaveRoom(roomID, sessionID string) []outbound {
	currentPicker := o.games.Picker(roomID)
	res, err := o.rooms.Leave(roomID, sessionID, currentPicker)
	if err != nil {
		return nil
	}
	if res.Empty {
		o.games.Dispose(roomID)
		return nil
	}
	if res.NewPicker != "" {
		o.games.SetPicker(roomID, res.NewPicker)
	}

	var out []outbound
	if res.NewHost != "" {
		if connID, ok := o.sessions.ConnectionID(res.NewHost); ok {
			out = append(out, targeted(connID, protocol.EventHost, nil))
		}
	}
	if res.NewPicker != "" {
		out = append(out, o.pickerMessages(roomID, res.NewPicker)...)
	}
	out = append(out, o.playersMessage(roomID))
	return out
}

// playersMessage builds the full membership refresh, usernames in join order
func (o *Orchestrator) playersMessage(roomID string) outbound {
	members := o.rooms.Members(roomID)
	usernames := make([]string, 0, len(members))
	for _, sid := range members {
		usernames = append(usernames, o.sessions.Username(sid))
	}
	return broadcast(roomID, protocol.EventPlayers, usernames)
}

// cashMessage builds the balance refresh, aligned with join order
func (o *Orchestrator) cashMessage(roomID string) outbound {
	cash := o.games.PlayerCash(roomID)
	members := o.rooms.Members(roomID)
	data := protocol.PlayerCashData{
		Usernames: make([]string, 0, len(members)),
		Cash:      make([]int, 0, len(members)),
	}
	for _, sid := range members {
		data.Usernames = append(data.Usernames, o.sessions.Username(sid))
		data.Cash = append(data.Cash, cash[sid])
	}
	return broadcast(roomID, protocol.EventPlayerCash, data)
}

// pickerMessages identifies whose turn it is: a boolean to the picker's own
// connection and the picker's join-order index to the whole room.
func (o *Orchestrator) pickerMessages(roomID, pickerID string) []outbound {
	var out []outbound
	if connID, ok := o.sessions.ConnectionID(pickerID); ok {
		out = append(out, targeted(connID, protocol.EventPicker, true))
	}
	out = append(out, broadcast(roomID, protocol.EventPickerIndex, o.rooms.MemberIndex(roomID, pickerID)))
	return out
}

// HandleJoinRoom adds a session to a room. Rejoining with a live session id
// is idempotent: membership size and turn order are unchanged.
func (o *Orchestrator) HandleJoinRoom(connID string, data protocol.JoinRoomData) {
	if !o.sessions.Exists(data.SessionID) {
		o.flush([]outbound{targeted(connID, protocol.EventError, protocol.ErrorData{
			Code: "unknown_session", Message: "session not found",
		})})
		return
	}

	rejoin := o.rooms.HasJoinedBefore(data.RoomID, data.SessionID)
	o.rooms.Join(data.RoomID, data.SessionID)

	out := []outbound{
		broadcast(data.RoomID, protocol.EventJoinRoomStatus, protocol.JoinRoomStatusData{Status: "success"}),
		o.playersMessage(data.RoomID),
	}

	// A reconnecting player mid-game needs the current view restored
	if phase := o.games.GameState(data.RoomID); rejoin && phase != game.PhaseLobby {
		out = append(out, targeted(connID, protocol.EventGameState, phase))
		if info, ok := o.games.BoardInfo(data.RoomID); ok {
			out = append(out, targeted(connID, protocol.EventBoardData, boardDataFromGame(info)))
		}
		if picker := o.games.Picker(data.RoomID); picker != "" {
			out = append(out, targeted(connID, protocol.EventPickerIndex, o.rooms.MemberIndex(data.RoomID, picker)))
		}
	}

	o.flush(out)
	o.logger.Info("Session joined", "room", data.RoomID, "session", data.SessionID, "rejoin", rejoin)
}

// HandleLeaveRoom is an explicit leave: room bookkeeping plus irreversible
// session deletion.
func (o *Orchestrator) HandleLeaveRoom(_ string, data protocol.LeaveRoomData) {
	out := o.leaveRoom(data.RoomID, data.SessionID)
	o.sessions.Delete(data.SessionID)
	o.flush(out)
}

// HandleStartGame is host-only: it generates the board, seeds balances, and
// opens play on the board with the first joiner as picker. A start request
// for a room whose game has already left the lobby is a silent no-op: no
// phase broadcast ever fires for a rejected start.
func (o *Orchestrator) HandleStartGame(ctx context.Context, connID string, data protocol.StartGameData) {
	if !o.rooms.IsHost(data.RoomID, data.SessionID) {
		return
	}
	if o.games.GameState(data.RoomID) != game.PhaseLobby {
		return
	}

	o.flush([]outbound{broadcast(data.RoomID, protocol.EventGameState, game.PhaseGenerating)})

	members := o.rooms.Members(data.RoomID)
	if err := o.games.InitGame(ctx, data.RoomID, members, data.NumCategories, data.NumClues); err != nil {
		if errors.Is(err, game.ErrAlreadyStarted) {
			// Lost a start race with a concurrent request; the winner
			// drives the broadcasts.
			return
		}
		o.logger.Error("Game init failed", "room", data.RoomID, "error", err)
		o.flush([]outbound{
			broadcast(data.RoomID, protocol.EventGameState, game.PhaseLobby),
			targeted(connID, protocol.EventError, protocol.ErrorData{
				Code: "generation_failed", Message: "board generation failed",
			}),
		})
		return
	}
	if !o.games.StartGame(data.RoomID) {
		return
	}

	out := []outbound{broadcast(data.RoomID, protocol.EventGameState, game.PhaseBoard)}
	if info, ok := o.games.BoardInfo(data.RoomID); ok {
		out = append(out, broadcast(data.RoomID, protocol.EventBoardData, boardDataFromGame(info)))
	}
	out = append(out, o.cashMessage(data.RoomID))
	out = append(out, o.pickerMessages(data.RoomID, o.games.Picker(data.RoomID))...)
	o.flush(out)
}

// HandleBoardChoice processes the picker's cell choice. The highlight is
// broadcast immediately; the clue text and the buzz-in countdown only become
// visible after the fixed highlight delay, so every client observes the
// selection before the race window opens.
func (o *Orchestrator) HandleBoardChoice(_ string, data protocol.BoardChoiceData) {
	clue, ok := o.games.Pick(data.SessionID, data.RoomID, data.CategoryIdx, data.ClueIdx)
	if !ok {
		return
	}

	var category string
	if titles := o.games.Categories(data.RoomID); data.CategoryIdx < len(titles) {
		category = titles[data.CategoryIdx]
	}

	o.flush([]outbound{broadcast(data.RoomID, protocol.EventPicking, protocol.PickingData{
		CategoryIdx: data.CategoryIdx,
		ClueIdx:     data.ClueIdx,
		Duration:    seconds(o.timings.PickDelay),
	})})

	go o.revealAfterHighlight(data.RoomID, category, clue)
}

// revealAfterHighlight waits out the highlight, reveals the clue, and runs
// the buzz-in countdown to adjudication or expiry.
func (o *Orchestrator) revealAfterHighlight(roomID, category string, clue game.Clue) {
	t := o.clock.NewTimer(o.timings.PickDelay)
	<-t.C

	if !o.games.StartBuzzWindow(roomID, o.timings.BuzzWindow) {
		// Room or game vanished during the highlight
		return
	}

	o.flush([]outbound{
		broadcast(roomID, protocol.EventGameState, game.PhaseClue),
		broadcast(roomID, protocol.EventClue, protocol.ClueData{
			Category: category,
			Value:    clue.Value,
			Clue:     clue.Text,
			Duration: seconds(o.timings.BuzzWindow),
		}),
	})

	timer.Run(o.clock, o.timings.BuzzWindow, o.games.BuzzChecker(roomID), func() {
		o.finishClue(roomID)
	})
}

// HandleBuzzIn enters a session into the buzz race. Acceptance is a single
// atomic check-and-set inside the game manager; everything after it runs
// only for the one winner.
func (o *Orchestrator) HandleBuzzIn(_ string, data protocol.BuzzInData) {
	if !o.games.HandleBuzzIn(data.SessionID, data.RoomID) {
		return
	}

	o.games.PauseBuzzTimer(data.RoomID)

	out := []outbound{
		broadcast(data.RoomID, protocol.EventPaused, nil),
		broadcast(data.RoomID, protocol.EventSomeoneAnswering, protocol.SomeoneAnsweringData{
			Who: o.rooms.MemberIndex(data.RoomID, data.SessionID),
		}),
	}
	if o.games.BeginAnswering(data.RoomID, o.timings.AnswerWindow) {
		if connID, ok := o.sessions.ConnectionID(data.SessionID); ok {
			out = append(out, targeted(connID, protocol.EventAnswering, protocol.AnsweringData{
				Duration: seconds(o.timings.AnswerWindow),
			}))
		}
		go timer.Run(o.clock, o.timings.AnswerWindow, o.games.AnswerChecker(data.RoomID), func() {
			o.finishClue(data.RoomID)
		})
	}
	o.flush(out)
}

// finishClue closes the current round and announces the next board state
// and picker. Reached on buzz-window expiry with no winner, or when the
// answer window elapses.
func (o *Orchestrator) finishClue(roomID string) {
	phase, ok := o.games.FinishClue(roomID)
	if !ok {
		return
	}

	out := []outbound{broadcast(roomID, protocol.EventGameState, phase)}
	out = append(out, o.cashMessage(roomID))
	if phase == game.PhaseBoard {
		if info, infoOK := o.games.BoardInfo(roomID); infoOK {
			out = append(out, broadcast(roomID, protocol.EventBoardData, boardDataFromGame(info)))
		}
		if picker := o.games.Picker(roomID); picker != "" {
			out = append(out, o.pickerMessages(roomID, picker)...)
		}
	}
	o.flush(out)
}

// boardDataFromGame converts the game projection to the wire shape
func boardDataFromGame(info []game.CategoryInfo) protocol.BoardData {
	categories := make([]protocol.BoardCategory, len(info))
	for i, cat := range info {
		cells := make([]protocol.BoardCell, len(cat.Cells))
		for j, cell := range cat.Cells {
			cells[j] = protocol.BoardCell{Value: cell.Value, Claimed: cell.Claimed}
		}
		categories[i] = protocol.BoardCategory{Title: cat.Title, Cells: cells}
	}
	return protocol.BoardData{Categories: categories}
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}
