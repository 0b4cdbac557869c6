// Package domain holds the typed rows and value objects of the game session service.
package domain

import "time"

// User is a registered player account.
type User struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	Username    string    `gorm:"type:varchar(50);uniqueIndex:idx_users_username;not null" json:"username"`
	DisplayName string    `gorm:"type:varchar(100);not null" json:"display_name"`
	Password    string    `gorm:"type:text;not null" json:"-"` // bcrypt hash
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
