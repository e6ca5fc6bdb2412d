package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/quizbuzz/quizbuzz/internal/room"
	"github.com/quizbuzz/quizbuzz/internal/timer"
)

// ErrAlreadyStarted is returned by InitGame when the room's game has left
// the lobby. Callers treat it as a precondition violation, not a failure.
var ErrAlreadyStarted = errors.New("game already started")

// Phase is the game state machine tag:
// lobby -> generating -> board -> picking -> clue -> answering -> board (loop) | finished
type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseGenerating Phase = "generating"
	PhaseBoard      Phase = "board"
	PhasePicking    Phase = "picking"
	PhaseClue       Phase = "clue"
	PhaseAnswering  Phase = "answering"
	PhaseFinished   Phase = "finished"
)

// Generator produces board content. Implementations live outside the game
// core (LLM-backed or a built-in bank); the game only needs the result shape.
type Generator interface {
	GenerateBoard(ctx context.Context, numCategories, numClues int) (*Board, error)
}

// Revealed identifies the currently-revealed cell
type Revealed struct {
	CategoryIdx int
	ClueIdx     int
}

// instance is the per-room game state. All fields are guarded by mu; the
// buzz-in check-and-set relies on that mutex being the only path to the
// winner field, so concurrent buzzes serialize into a strict total order
// with exactly one accepted.
type instance struct {
	mu       sync.Mutex
	roomID   string
	phase    Phase
	board    *Board
	players  []string // session ids in join order at init
	cash     map[string]int
	picker   string
	revealed *Revealed
	buzz     *timer.State
	answer   *timer.State
}

// Manager owns one game instance per room and the transitions between
// phases. Mutating operations silently reject on precondition violations:
// callers get a false/zero return and must treat it as a no-op.
type Manager struct {
	mu     sync.RWMutex
	games  map[string]*instance
	gen    Generator
	rooms  *room.Manager
	clock  quartz.Clock
	logger *log.Logger
}

// NewManager creates a game manager. Room membership is read from rooms;
// games never mutate it.
func NewManager(logger *log.Logger, clock quartz.Clock, rooms *room.Manager, gen Generator) *Manager {
	return &Manager{
		games:  make(map[string]*instance),
		gen:    gen,
		rooms:  rooms,
		clock:  clock,
		logger: logger.WithPrefix("game"),
	}
}

func (m *Manager) game(roomID string) *instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.games[roomID]
}

// InitGame requests board content and seeds a zero cash balance for every
// currently-connected session, in join order. The room sits in the
// generating phase for the duration of the content request.
func (m *Manager) InitGame(ctx context.Context, roomID string, members []string, numCategories, numClues int) error {
	m.mu.Lock()
	g, ok := m.games[roomID]
	if !ok {
		g = &instance{roomID: roomID, phase: PhaseLobby, cash: make(map[string]int)}
		m.games[roomID] = g
	}
	m.mu.Unlock()

	g.mu.Lock()
	if g.phase != PhaseLobby {
		g.mu.Unlock()
		return fmt.Errorf("room %s: %w", roomID, ErrAlreadyStarted)
	}
	g.phase = PhaseGenerating
	g.players = append([]string(nil), members...)
	for _, id := range members {
		g.cash[id] = 0
	}
	g.mu.Unlock()

	board, err := m.gen.GenerateBoard(ctx, numCategories, numClues)
	if err != nil {
		g.mu.Lock()
		g.phase = PhaseLobby
		g.mu.Unlock()
		return fmt.Errorf("board generation failed: %w", err)
	}

	g.mu.Lock()
	g.board = board
	g.mu.Unlock()

	m.logger.Info("Game initialized", "room", roomID,
		"categories", numCategories, "clues", numClues, "players", len(members))
	return nil
}

// StartGame selects the initial picker (first in join order) and moves the
// room onto the board.
func (m *Manager) StartGame(roomID string) bool {
	g := m.game(roomID)
	if g == nil {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhaseGenerating || g.board == nil || len(g.players) == 0 {
		return false
	}
	g.picker = g.players[0]
	g.phase = PhaseBoard

	m.logger.Info("Game started", "room", roomID, "picker", g.picker)
	return true
}

// Pick claims a cell for the current picker and moves the room into the
// picking highlight. Any other caller, an out-of-range index, or an
// already-claimed cell is a silent no-op (ok=false).
func (m *Manager) Pick(sessionID, roomID string, categoryIdx, clueIdx int) (Clue, bool) {
	g := m.game(roomID)
	if g == nil {
		return Clue{}, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhaseBoard || sessionID != g.picker {
		return Clue{}, false
	}
	cell := g.board.Cell(categoryIdx, clueIdx)
	if cell == nil || cell.Claimed {
		return Clue{}, false
	}

	cell.Claimed = true
	g.revealed = &Revealed{CategoryIdx: categoryIdx, ClueIdx: clueIdx}
	g.phase = PhasePicking

	m.logger.Info("Cell picked", "room", roomID, "picker", sessionID,
		"category", categoryIdx, "clue", clueIdx, "value", cell.Value)
	return *cell, true
}

// StartBuzzWindow opens the buzz-in countdown for the revealed clue and
// moves the room into the clue phase. Valid only from the picking highlight.
func (m *Manager) StartBuzzWindow(roomID string, duration time.Duration) bool {
	g := m.game(roomID)
	if g == nil {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhasePicking || g.revealed == nil {
		return false
	}
	g.buzz = timer.NewState(m.clock.Now(), duration)
	g.phase = PhaseClue
	return true
}

// HandleBuzzIn adjudicates the buzz race. A buzz is accepted iff the room is
// in the clue phase, the session is connected and not the picker, and no
// buzz has been accepted yet for this clue. The check and the winner write
// happen under one lock so at most one buzz ever wins, however many arrive
// concurrently.
func (m *Manager) HandleBuzzIn(sessionID, roomID string) bool {
	g := m.game(roomID)
	if g == nil {
		return false
	}
	if !m.rooms.IsConnected(roomID, sessionID) {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhaseClue || g.buzz == nil || !g.buzz.Active {
		return false
	}
	if sessionID == g.picker || g.buzz.Winner != "" {
		return false
	}

	g.buzz.Winner = sessionID
	m.logger.Info("Buzz accepted", "room", roomID, "session", sessionID)
	return true
}

// PauseBuzzTimer freezes the buzz countdown once a buzz has been accepted,
// so the next checker wake-up stops the loop without firing completion.
func (m *Manager) PauseBuzzTimer(roomID string) {
	g := m.game(roomID)
	if g == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.buzz != nil {
		g.buzz.Pause(m.clock.Now())
	}
}

// BuzzChecker returns the countdown checker for a room's buzz window. A
// vanished room or an already-resolved round stops the countdown silently;
// only a natural expiry reports zero remaining so completion fires.
func (m *Manager) BuzzChecker(roomID string) timer.CheckFunc {
	return func(now time.Time) (bool, time.Duration) {
		g := m.game(roomID)
		if g == nil {
			return false, -1
		}

		g.mu.Lock()
		defer g.mu.Unlock()

		if g.phase != PhaseClue || g.buzz == nil {
			return false, -1
		}
		if g.buzz.Winner != "" || g.buzz.Paused() {
			return false, -1
		}
		if g.buzz.Expired(now) {
			g.buzz.Active = false
			return false, 0
		}
		return true, g.buzz.Remaining(now)
	}
}

// BeginAnswering gives the buzz winner an exclusive answer window. Valid
// only while a clue is up with an accepted buzz.
func (m *Manager) BeginAnswering(roomID string, duration time.Duration) bool {
	g := m.game(roomID)
	if g == nil {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhaseClue || g.buzz == nil || g.buzz.Winner == "" {
		return false
	}
	g.answer = timer.NewState(m.clock.Now(), duration)
	g.phase = PhaseAnswering
	return true
}

// AnswerChecker returns the countdown checker for a room's answer window
func (m *Manager) AnswerChecker(roomID string) timer.CheckFunc {
	return func(now time.Time) (bool, time.Duration) {
		g := m.game(roomID)
		if g == nil {
			return false, -1
		}

		g.mu.Lock()
		defer g.mu.Unlock()

		if g.phase != PhaseAnswering || g.answer == nil {
			return false, -1
		}
		if g.answer.Expired(now) {
			g.answer.Active = false
			return false, 0
		}
		return true, g.answer.Remaining(now)
	}
}

// FinishClue ends the current clue round and returns the room to the board
// (or finished, once every cell is claimed). When the round had a buzz
// winner who is still connected the pick rotates to them for the next cell;
// a winner who left during the round keeps the pick with the current picker,
// who is always a connected member. Correctness grading of the submitted
// answer is an extension point; the round simply closes when the answer
// window elapses.
func (m *Manager) FinishClue(roomID string) (Phase, bool) {
	g := m.game(roomID)
	if g == nil {
		return "", false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhaseClue && g.phase != PhaseAnswering {
		return g.phase, false
	}
	if g.buzz != nil && g.buzz.Winner != "" && m.rooms.IsConnected(roomID, g.buzz.Winner) {
		g.picker = g.buzz.Winner
	}
	g.revealed = nil
	g.buzz = nil
	g.answer = nil

	if g.board.Exhausted() {
		g.phase = PhaseFinished
		m.logger.Info("Board exhausted, game finished", "room", roomID)
	} else {
		g.phase = PhaseBoard
	}
	return g.phase, true
}

// SetPicker re-elects the picker, used when the active picker leaves
func (m *Manager) SetPicker(roomID, sessionID string) {
	g := m.game(roomID)
	if g == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.picker = sessionID
}

// Picker returns the session currently entitled to pick, empty if no game
func (m *Manager) Picker(roomID string) string {
	g := m.game(roomID)
	if g == nil {
		return ""
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.picker
}

// GameState returns the current phase tag. Rooms without a game report the
// lobby phase.
func (m *Manager) GameState(roomID string) Phase {
	g := m.game(roomID)
	if g == nil {
		return PhaseLobby
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// BoardInfo returns the client-visible board projection
func (m *Manager) BoardInfo(roomID string) ([]CategoryInfo, bool) {
	g := m.game(roomID)
	if g == nil {
		return nil, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.board == nil {
		return nil, false
	}
	return g.board.Info(), true
}

// Categories returns the category titles for a room's board
func (m *Manager) Categories(roomID string) []string {
	g := m.game(roomID)
	if g == nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.board == nil {
		return nil
	}
	return g.board.Titles()
}

// PlayerCash returns a copy of the per-session cash ledger
func (m *Manager) PlayerCash(roomID string) map[string]int {
	g := m.game(roomID)
	if g == nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]int, len(g.cash))
	for id, amount := range g.cash {
		out[id] = amount
	}
	return out
}

// Dispose drops a room's game state. In-flight countdown checkers observe
// the missing game and terminate silently.
func (m *Manager) Dispose(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.games[roomID]; ok {
		delete(m.games, roomID)
		m.logger.Info("Disposed game", "room", roomID)
	}
}
