package protocol

import (
	"encoding/json"
	"time"
)

// EventType identifies the type of event carried by a Message
type EventType string

const (
	// Client -> Server
	EventJoinRoom    EventType = "join_room"
	EventRejoinRoom  EventType = "rejoin_room"
	EventLeaveRoom   EventType = "leave_room"
	EventStartGame   EventType = "start_game"
	EventBoardChoice EventType = "board_choice"
	EventBuzzIn      EventType = "buzz_in"

	// Server -> Client
	EventJoinRoomStatus   EventType = "join_room_status"
	EventPlayers          EventType = "players"
	EventGameState        EventType = "game_state"
	EventBoardData        EventType = "board_data"
	EventPicker           EventType = "picker"
	EventPickerIndex      EventType = "picker_index"
	EventHost             EventType = "host"
	EventPicking          EventType = "picking"
	EventClue             EventType = "clue"
	EventPaused           EventType = "paused"
	EventSomeoneAnswering EventType = "someone_answering"
	EventAnswering        EventType = "answering"
	EventPlayerCash       EventType = "player_cash"
	EventError            EventType = "error"
)

func (t EventType) String() string {
	return string(t)
}

// Message is the base wire envelope for all events in both directions
type Message struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(eventType EventType, data interface{}) (*Message, error) {
	var raw json.RawMessage
	if data != nil {
		dataBytes, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = dataBytes
	}

	return &Message{
		Type:      eventType,
		Data:      raw,
		Timestamp: time.Now(),
	}, nil
}

// Client -> Server payloads

type JoinRoomData struct {
	RoomID    string `json:"room_id"`
	SessionID string `json:"session_id"`
}

type LeaveRoomData struct {
	RoomID    string `json:"room_id"`
	SessionID string `json:"session_id"`
}

type StartGameData struct {
	RoomID        string `json:"room_id"`
	SessionID     string `json:"session_id"`
	NumCategories int    `json:"num_categories"`
	NumClues      int    `json:"num_clues"`
}

type BoardChoiceData struct {
	RoomID      string `json:"room_id"`
	SessionID   string `json:"session_id"`
	CategoryIdx int    `json:"category_idx"`
	ClueIdx     int    `json:"clue_idx"`
}

type BuzzInData struct {
	RoomID    string `json:"room_id"`
	SessionID string `json:"session_id"`
}

// Server -> Client payloads

type JoinRoomStatusData struct {
	Status string `json:"status"`
}

// BoardCell is one clue slot as visible to clients: its value and whether it
// has already been claimed. Clue text and answers never travel in board data.
type BoardCell struct {
	Value   int  `json:"value"`
	Claimed bool `json:"claimed"`
}

type BoardCategory struct {
	Title string      `json:"title"`
	Cells []BoardCell `json:"cells"`
}

type BoardData struct {
	Categories []BoardCategory `json:"categories"`
}

type PickingData struct {
	CategoryIdx int `json:"category_idx"`
	ClueIdx     int `json:"clue_idx"`
	Duration    int `json:"duration"` // seconds the highlight is shown
}

type ClueData struct {
	Category string `json:"category"`
	Value    int    `json:"value"`
	Clue     string `json:"clue"`
	Duration int    `json:"duration"` // seconds the buzz-in window stays open
}

type SomeoneAnsweringData struct {
	Who int `json:"who"` // index of the buzz winner in join order
}

type AnsweringData struct {
	Duration int `json:"duration"` // seconds the answer window stays open
}

type PlayerCashData struct {
	Usernames []string `json:"usernames"`
	Cash      []int    `json:"cash"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
