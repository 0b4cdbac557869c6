package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// DefaultAnswerTimeout is the per-question countdown before a timeout is synthesized.
const DefaultAnswerTimeout = 30 * time.Second

// QuestionOption is one multiple-choice option; exactly one is flagged correct.
type QuestionOption struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question is a read-only row of the question bank.
type Question struct {
	ID        string                               `gorm:"type:uuid;primaryKey" json:"id"`
	Category  string                               `gorm:"type:varchar(100);not null;index" json:"category"`
	Prompt    string                               `gorm:"type:text;not null" json:"prompt"`
	Options   datatypes.JSONType[[]QuestionOption] `gorm:"type:jsonb;not null" json:"-"`
	Points    int                                  `gorm:"not null" json:"points"`
	CreatedAt time.Time                            `json:"created_at"`
}

func (Question) TableName() string { return "questions" }

var ErrOptionOutOfRange = errors.New("option index out of range")

// Evaluate scores an answer. Only a correct option index earns the question's points.
func (q Question) Evaluate(a Answer) (AnswerOutcome, int, error) {
	switch a.Kind {
	case AnswerTimeout:
		return OutcomeTimeout, 0, nil
	case AnswerSkip:
		return OutcomeSkip, 0, nil
	case AnswerPass:
		return OutcomePass, 0, nil
	case AnswerOption:
		opts := q.Options.Data()
		if a.Option < 0 || a.Option >= len(opts) {
			return "", 0, fmt.Errorf("%w: %d of %d", ErrOptionOutOfRange, a.Option, len(opts))
		}
		if opts[a.Option].Correct {
			return OutcomeCorrect, q.Points, nil
		}
		return OutcomeIncorrect, 0, nil
	}
	return "", 0, fmt.Errorf("unknown answer kind %q", a.Kind)
}

// BoardCell is the client view of a board question; the correct flag is never exposed.
type BoardCell struct {
	QuestionID string   `json:"question_id"`
	Category   string   `json:"category"`
	Points     int      `json:"points"`
	Prompt     string   `json:"prompt,omitempty"`
	Options    []string `json:"options,omitempty"`
	IsAnswered bool     `json:"is_answered"`
	AnsweredBy *string  `json:"answered_by,omitempty"`
}

type AnswerKind string

const (
	AnswerOption  AnswerKind = "option"
	AnswerTimeout AnswerKind = "timeout"
	AnswerSkip    AnswerKind = "skip"
	AnswerPass    AnswerKind = "pass"
)

// Answer is either a chosen option index or a forfeit. On the wire it is a number
// or one of the strings "timeout", "skip", "pass".
type Answer struct {
	Kind   AnswerKind
	Option int
}

func OptionAnswer(index int) Answer { return Answer{Kind: AnswerOption, Option: index} }

func (a Answer) String() string {
	if a.Kind == AnswerOption {
		return fmt.Sprintf("option:%d", a.Option)
	}
	return string(a.Kind)
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Kind == AnswerOption {
		return json.Marshal(a.Option)
	}
	return json.Marshal(string(a.Kind))
}

func (a *Answer) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		switch kind := AnswerKind(s); kind {
		case AnswerTimeout, AnswerSkip, AnswerPass:
			*a = Answer{Kind: kind}
			return nil
		}
		return fmt.Errorf("unknown answer %q", s)
	}
	var idx int
	if err := json.Unmarshal(b, &idx); err != nil {
		return fmt.Errorf("answer must be an option index or one of timeout, skip, pass: %w", err)
	}
	*a = OptionAnswer(idx)
	return nil
}

type AnswerOutcome string

const (
	OutcomeCorrect   AnswerOutcome = "correct"
	OutcomeIncorrect AnswerOutcome = "incorrect"
	OutcomeTimeout   AnswerOutcome = "timeout"
	OutcomeSkip      AnswerOutcome = "skip"
	OutcomePass      AnswerOutcome = "pass"
)

// RoomQuestion is the answered-question ledger row. Once IsAnswered is true it stays true.
type RoomQuestion struct {
	RoomID     string         `gorm:"type:uuid;primaryKey" json:"room_id"`
	QuestionID string         `gorm:"type:uuid;primaryKey" json:"question_id"`
	SelectedBy string         `gorm:"type:uuid;not null" json:"selected_by"`
	SelectedAt time.Time      `gorm:"not null" json:"selected_at"`
	IsAnswered bool           `gorm:"not null" json:"is_answered"`
	AnsweredBy *string        `gorm:"type:uuid" json:"answered_by,omitempty"`
	Outcome    *AnswerOutcome `gorm:"type:varchar(20)" json:"outcome,omitempty"`
	AnsweredAt *time.Time     `json:"answered_at,omitempty"`
}

func (RoomQuestion) TableName() string { return "game_room_questions" }

// AnswerResult is what a submission produced.
type AnswerResult struct {
	RoomID        string        `json:"room_id"`
	QuestionID    string        `json:"question_id"`
	UserID        string        `json:"user_id"`
	Answer        Answer        `json:"answer"`
	Outcome       AnswerOutcome `json:"outcome"`
	PointsAwarded int           `json:"points_awarded"`
	Score         int           `json:"score"`
	NextTurn      *string       `json:"next_turn_user_id,omitempty"`
	RoomFinished  bool          `json:"room_finished"`
}
