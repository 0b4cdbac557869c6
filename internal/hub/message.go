package hub

import (
	"encoding/json"
	"strings"

	"quiz-arena/internal/domain"
)

// Topics group clients. A room topic receives that room's broadcast events and
// row changes; a lobby topic receives presence and matchmaking changes for one user.
const (
	roomTopicPrefix  = "room:"
	lobbyTopicPrefix = "lobby:"
)

func RoomTopic(roomID string) string  { return roomTopicPrefix + roomID }
func LobbyTopic(userID string) string { return lobbyTopicPrefix + userID }

func roomOfTopic(topic string) (string, bool) {
	return strings.CutPrefix(topic, roomTopicPrefix)
}

func userOfTopic(topic string) (string, bool) {
	return strings.CutPrefix(topic, lobbyTopicPrefix)
}

// HubMessage is what clients queue into the hub loop.
type HubMessage struct {
	Type    string // "register", "unregister", "command"
	Topic   string
	UserID  string
	Client  *Client
	RawData []byte // command body
}

// Command is an inbound websocket frame.
type Command struct {
	Type       string         `json:"type"` // heartbeat, sync, select, answer
	QuestionID string         `json:"question_id,omitempty"`
	Answer     *domain.Answer `json:"answer,omitempty"`
}

// Outbound frame types.
const (
	OutSessionState = "session_state"
	OutEvent        = "event"
	OutChange       = "change"
	OutAnswerResult = "answer_result"
	OutError        = "error"
)

// Envelope is an outbound websocket frame.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// ChangeHint tells a client which table moved; clients re-fetch through the API.
type ChangeHint struct {
	Table string `json:"table"`
	Op    string `json:"op"`
}

type errorBody struct {
	Message string `json:"message"`
}

func decodeCommand(raw []byte) (Command, error) {
	var cmd Command
	err := json.Unmarshal(raw, &cmd)
	return cmd, err
}
