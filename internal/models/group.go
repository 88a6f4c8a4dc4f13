package models

import "time"

// Settings controls how a study group behaves. Values mirror what the
// frontend sends on creation; zero values are replaced with defaults.
type Settings struct {
	MaxMembers           int  `json:"max_members"`
	StudyDurationSeconds int  `json:"study_duration_seconds"`
	BreakDurationSeconds int  `json:"break_duration_seconds"`
	AutoStartTimer       bool `json:"auto_start_timer"`
	RequireFocusMode     bool `json:"require_focus_mode"`
}

const (
	DefaultMaxMembers    = 10
	DefaultStudySeconds  = 1500
	DefaultBreakSeconds  = 300
	MinMembers           = 2
	MaxMembersLimit      = 50
)

// WithDefaults fills unset fields and clamps the capacity bound.
func (s Settings) WithDefaults() Settings {
	if s.MaxMembers == 0 {
		s.MaxMembers = DefaultMaxMembers
	}
	if s.MaxMembers < MinMembers {
		s.MaxMembers = MinMembers
	}
	if s.MaxMembers > MaxMembersLimit {
		s.MaxMembers = MaxMembersLimit
	}
	if s.StudyDurationSeconds <= 0 {
		s.StudyDurationSeconds = DefaultStudySeconds
	}
	if s.BreakDurationSeconds <= 0 {
		s.BreakDurationSeconds = DefaultBreakSeconds
	}
	return s
}

// Group is the durable summary of a study group, as stored and as returned
// by the HTTP boundary. Live session state lives in the session package.
type Group struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	IsPrivate   bool      `json:"is_private"`
	Settings    Settings  `json:"settings"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreateGroupRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	IsPrivate   bool     `json:"is_private"`
	Settings    Settings `json:"settings"`
}

type JoinGroupRequest struct {
	Username string `json:"username"`
}

type JoinGroupResponse struct {
	Group       Group `json:"group"`
	MemberCount int   `json:"member_count"`
	Rejoined    bool  `json:"rejoined"`
}
