package domain

import "time"

type SessionState string

const (
	SessionLogin     SessionState = "login"
	SessionActive    SessionState = "active"
	SessionSignedOut SessionState = "signed_out"
)

// Session is the caller identity passed explicitly to every service operation.
type Session struct {
	ID          string       `json:"session_id"` // token id (jti)
	UserID      string       `json:"user_id"`
	DisplayName string       `json:"display_name"`
	State       SessionState `json:"state"`
	IssuedAt    time.Time    `json:"issued_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// Active reports whether the session may act at now.
func (s Session) Active(now time.Time) bool {
	return s.State == SessionActive && s.UserID != "" && now.Before(s.ExpiresAt)
}

// Activate moves a freshly issued session from login to active.
func (s *Session) Activate() {
	if s.State == SessionLogin {
		s.State = SessionActive
	}
}

// SignOut is terminal.
func (s *Session) SignOut() { s.State = SessionSignedOut }
