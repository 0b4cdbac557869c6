package domain

import (
	"time"

	"gorm.io/datatypes"
)

type MatchStatus string

const (
	MatchPending  MatchStatus = "pending"
	MatchAccepted MatchStatus = "accepted"
	MatchDeclined MatchStatus = "declined"
	MatchExpired  MatchStatus = "expired"
)

// DefaultMatchRequestTTL bounds how long a challenge stays answerable.
const DefaultMatchRequestTTL = 5 * time.Minute

// MatchRequest is a 1:1 challenge from requester to target.
// It is mutated exactly once by the target, or expired by the sweeper.
type MatchRequest struct {
	ID          string                         `gorm:"type:uuid;primaryKey" json:"id"`
	RequesterID string                         `gorm:"type:uuid;not null;index" json:"requester_id"`
	TargetID    string                         `gorm:"type:uuid;not null;index" json:"target_id"`
	Status      MatchStatus                    `gorm:"type:varchar(20);not null" json:"status"`
	GameConfig  datatypes.JSONType[GameConfig] `gorm:"type:jsonb;not null" json:"game_config"`
	RoomID      *string                        `gorm:"type:uuid" json:"room_id,omitempty"`
	CreatedAt   time.Time                      `gorm:"not null" json:"created_at"`
	ExpiresAt   time.Time                      `gorm:"not null;index" json:"expires_at"`
	RespondedAt *time.Time                     `json:"responded_at,omitempty"`
}

func (MatchRequest) TableName() string { return "matchmaking_requests" }

// IsOpen reports whether the request can still be answered at now.
// Expired rows count as declined for every reader even before the sweeper runs.
func (r MatchRequest) IsOpen(now time.Time) bool {
	return r.Status == MatchPending && now.Before(r.ExpiresAt)
}

// Involves reports whether userID is one of the two parties.
func (r MatchRequest) Involves(userID string) bool {
	return r.RequesterID == userID || r.TargetID == userID
}
