// Package realtime is the per-room ephemeral broadcast channel. Events are hints for
// connected clients to re-render; they are never durable and never replayed.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"quiz-arena/internal/domain"
)

type EventType string

const (
	// EventGameUpdate carries a full domain.RoomState snapshot that replaces the
	// receiver's view.
	EventGameUpdate EventType = "game_update"
	// EventQuestionSelected carries a QuestionSelected payload.
	EventQuestionSelected EventType = "question_selected"
	// EventAnswerSubmitted carries a domain.AnswerResult payload.
	EventAnswerSubmitted EventType = "answer_submitted"
)

// Event is one broadcast on a room channel.
type Event struct {
	Type     EventType       `json:"type"`
	RoomID   string          `json:"room_id"`
	SenderID string          `json:"sender_id,omitempty"`
	Payload  json.RawMessage `json:"payload"`
	SentAt   time.Time       `json:"sent_at"`
}

// QuestionSelected announces the question the current player opened.
type QuestionSelected struct {
	QuestionID string           `json:"question_id"`
	SelectedBy string           `json:"selected_by"`
	Cell       domain.BoardCell `json:"cell"`
	Deadline   time.Time        `json:"deadline"`
}

// NewEvent marshals payload into an event for roomID.
func NewEvent(t EventType, roomID, senderID string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{Type: t, RoomID: roomID, SenderID: senderID, Payload: raw, SentAt: time.Now().UTC()}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s event has no payload", e.Type)
	}
	return json.Unmarshal(e.Payload, v)
}
