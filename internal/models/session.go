// Package models provides data model definitions for PentryPal Core.
package models

import "time"

// Session holds the authenticated user's tokens.
// A single row; replaced on login, cleared on logout.
type Session struct {
	UserID       UUID   `db:"user_id" json:"user_id"`
	AccessToken  string `db:"access_token" json:"access_token"`
	RefreshToken string `db:"refresh_token" json:"refresh_token"`
	ExpiresAt    int64  `db:"expires_at" json:"expires_at"`
	UpdatedAt    int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Session.
func (Session) TableName() string {
	return "session"
}

// IsExpired reports whether the access token has expired.
func (s *Session) IsExpired(now time.Time) bool {
	return s.ExpiresAt > 0 && s.ExpiresAt <= now.Unix()
}

// UserProfile holds the authenticated user's profile data.
type UserProfile struct {
	ID          UUID   `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	UpdatedAt   int64  `json:"updated_at"`
}
