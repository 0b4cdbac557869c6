package domain

import (
	"sort"
	"time"

	"gorm.io/datatypes"
)

type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomPlaying  RoomStatus = "playing"
	RoomFinished RoomStatus = "finished"
)

const (
	MinPlayersToStart = 2
	MaxRoomPlayers    = 8
)

// CanTransition enforces waiting -> playing -> finished. A waiting room may also be
// closed straight to finished when everyone leaves before it starts.
func (s RoomStatus) CanTransition(to RoomStatus) bool {
	switch s {
	case RoomWaiting:
		return to == RoomPlaying || to == RoomFinished
	case RoomPlaying:
		return to == RoomFinished
	}
	return false
}

// GameRoom is the authoritative record of one match.
type GameRoom struct {
	ID                 string                         `gorm:"type:uuid;primaryKey" json:"id"`
	RoomCode           string                         `gorm:"type:varchar(12);uniqueIndex;not null" json:"room_code"`
	HostUserID         string                         `gorm:"type:uuid;not null" json:"host_user_id"`
	Status             RoomStatus                     `gorm:"type:varchar(20);not null;index" json:"status"`
	MaxPlayers         int                            `gorm:"not null" json:"max_players"`
	CurrentPlayerCount int                            `gorm:"not null" json:"current_player_count"`
	GameConfig         datatypes.JSONType[GameConfig] `gorm:"type:jsonb;not null" json:"game_config"`
	CurrentTurnUserID  *string                        `gorm:"type:uuid" json:"current_turn_user_id"`
	CreatedAt          time.Time                      `gorm:"not null" json:"created_at"`
	StartedAt          *time.Time                     `json:"started_at,omitempty"`
	FinishedAt         *time.Time                     `json:"finished_at,omitempty"`
	UpdatedAt          time.Time                      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (GameRoom) TableName() string { return "game_rooms" }

// IsTurnOf reports whether userID currently holds the turn.
func (r GameRoom) IsTurnOf(userID string) bool {
	return r.CurrentTurnUserID != nil && *r.CurrentTurnUserID == userID
}

// HasSeat reports whether one more active player fits.
func (r GameRoom) HasSeat() bool { return r.CurrentPlayerCount < r.MaxPlayers }

// GameRoomPlayer is one participant row; there is exactly one per (room_id, user_id).
type GameRoomPlayer struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID     string    `gorm:"type:uuid;not null;uniqueIndex:uq_room_player" json:"room_id"`
	UserID     string    `gorm:"type:uuid;not null;uniqueIndex:uq_room_player" json:"user_id"`
	PlayerName string    `gorm:"type:varchar(100);not null" json:"player_name"`
	Score      int       `gorm:"not null;default:0" json:"score"`
	IsHost     bool      `gorm:"not null" json:"is_host"`
	IsActive   bool      `gorm:"not null" json:"is_active"`
	JoinedAt   time.Time `gorm:"not null" json:"joined_at"`
}

func (GameRoomPlayer) TableName() string { return "game_room_players" }

// SortByJoinOrder orders players the way turns rotate.
func SortByJoinOrder(players []GameRoomPlayer) {
	sort.SliceStable(players, func(i, j int) bool {
		if players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].ID < players[j].ID
		}
		return players[i].JoinedAt.Before(players[j].JoinedAt)
	})
}

// FirstActive returns the earliest-joined active player. players must be in join order.
func FirstActive(players []GameRoomPlayer) (GameRoomPlayer, bool) {
	for _, p := range players {
		if p.IsActive {
			return p, true
		}
	}
	return GameRoomPlayer{}, false
}

// NextTurn returns the active player after current in join order, wrapping around.
// current may belong to a player who is no longer active; rotation continues from
// that player's seat. players must be in join order.
func NextTurn(players []GameRoomPlayer, current string) (string, bool) {
	n := len(players)
	idx := -1
	for i, p := range players {
		if p.UserID == current {
			idx = i
			break
		}
	}
	if idx < 0 {
		p, ok := FirstActive(players)
		return p.UserID, ok
	}
	for step := 1; step <= n; step++ {
		p := players[(idx+step)%n]
		if p.IsActive {
			return p.UserID, true
		}
	}
	return "", false
}

// CountActive counts players with is_active set.
func CountActive(players []GameRoomPlayer) int {
	n := 0
	for _, p := range players {
		if p.IsActive {
			n++
		}
	}
	return n
}

// RoomState is the full snapshot clients reconcile against.
type RoomState struct {
	Room      GameRoom         `json:"room"`
	Players   []GameRoomPlayer `json:"players"`
	Questions []RoomQuestion   `json:"questions"`
}

// Player finds userID's row in the snapshot.
func (s RoomState) Player(userID string) (GameRoomPlayer, bool) {
	for _, p := range s.Players {
		if p.UserID == userID {
			return p, true
		}
	}
	return GameRoomPlayer{}, false
}

// InProgress returns the selected but unanswered question, if any.
func (s RoomState) InProgress() (RoomQuestion, bool) {
	for _, q := range s.Questions {
		if !q.IsAnswered {
			return q, true
		}
	}
	return RoomQuestion{}, false
}

// AnsweredCount counts consumed board cells.
func (s RoomState) AnsweredCount() int {
	n := 0
	for _, q := range s.Questions {
		if q.IsAnswered {
			n++
		}
	}
	return n
}
