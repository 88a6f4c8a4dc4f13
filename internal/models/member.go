package models

import "time"

// Focus statuses for members of a live session.
const (
	FocusFocusing = "focusing"
	FocusBreak    = "break"
	FocusAway     = "away"
)

// MemberInfo is the wire representation of a room member, sent inside
// group-state and membership events.
type MemberInfo struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	IsHost      bool      `json:"is_host"`
	FocusStatus string    `json:"focus_status"`
	Typing      bool      `json:"typing"`
	Streak      int       `json:"streak"`
	Active      bool      `json:"active"`
	JoinedAt    time.Time `json:"joined_at"`
}

func ValidFocus(s string) bool {
	return s == FocusFocusing || s == FocusBreak || s == FocusAway
}
