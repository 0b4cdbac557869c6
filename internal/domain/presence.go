package domain

import "time"

// PresenceStatus is the coarse connectivity state a user advertises.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceWaiting PresenceStatus = "waiting"
	PresenceInGame  PresenceStatus = "in_game"
	PresenceOffline PresenceStatus = "offline"
)

// DefaultPresenceWindow is how recent last_seen must be for a record to count as online.
const DefaultPresenceWindow = 60 * time.Second

func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceOnline, PresenceWaiting, PresenceInGame, PresenceOffline:
		return true
	}
	return false
}

// Presence is one row of the presence table. It is written only by the user it represents.
type Presence struct {
	UserID      string         `gorm:"type:uuid;primaryKey" json:"user_id"`
	DisplayName string         `gorm:"type:varchar(100);not null" json:"display_name"`
	Status      PresenceStatus `gorm:"type:varchar(20);not null" json:"status"`
	LastSeen    time.Time      `gorm:"not null" json:"last_seen"`
}

func (Presence) TableName() string { return "presence" }

// IsOnline is derived, never stored: the record was seen within window and is not offline.
func (p Presence) IsOnline(now time.Time, window time.Duration) bool {
	return p.Status != PresenceOffline && now.Sub(p.LastSeen) < window
}
