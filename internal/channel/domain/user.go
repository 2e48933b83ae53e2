package domain

import "time"

// PresenceStatus 使用者在線狀態
type PresenceStatus string

const (
	// StatusOnline user is online
	StatusOnline PresenceStatus = "ONLINE"
	// StatusOffline user is offline
	StatusOffline PresenceStatus = "OFFLINE"
	// StatusTyping user is typing in a channel
	StatusTyping PresenceStatus = "TYPING"
)

// UnknownDisplayName shown until a user's profile is hydrated
const UnknownDisplayName = "Unknown user"

// UserRecord cached user profile
type UserRecord struct {
	ID          string         `json:"id"`
	Username    string         `json:"username"`
	DisplayName string         `json:"display_name"`
	AvatarURL   string         `json:"avatar_url,omitempty"`
	Status      PresenceStatus `json:"status"`
}

// PlaceholderUser stand-in rendered while the real profile is missing
func PlaceholderUser(userID string) *UserRecord {
	return &UserRecord{ID: userID, DisplayName: UnknownDisplayName, Status: StatusOffline}
}

// Channel chat scope bound to a document heading
type Channel struct {
	ID             string    `json:"id"`
	HeadingID      string    `json:"heading_id"`
	WorkspaceID    string    `json:"workspace_id"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Orphaned       bool      `json:"orphaned"`
}
