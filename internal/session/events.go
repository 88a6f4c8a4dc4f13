package session

import (
	"time"

	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/models"
)

// Inbound action names, as sent by clients over the event channel.
const (
	ActionJoin          = "join-group"
	ActionLeave         = "leave-group"
	ActionTimerStart    = "timer-start"
	ActionTimerPause    = "timer-pause"
	ActionTimerResume   = "timer-resume"
	ActionTimerReset    = "timer-reset"
	ActionTimerTick     = "timer-tick"
	ActionSendMessage   = "send-message"
	ActionAddTask       = "add-task"
	ActionUpdateTask    = "update-task"
	ActionDeleteTask    = "delete-task"
	ActionUpdateFocus   = "update-focus"
	ActionTyping        = "typing"
	ActionBreakActivity = "start-break-activity"
	ActionComplete      = "complete-session"
)

// Outbound event names, broadcast to room subscribers.
const (
	EventConnected     = "connected"
	EventGroupState    = "group-state"
	EventUserJoined    = "user-joined"
	EventUserLeft      = "user-left"
	EventTimerStarted  = "timer-started"
	EventTimerPaused   = "timer-paused"
	EventTimerResumed  = "timer-resumed"
	EventTimerReset    = "timer-reset"
	EventTimerUpdated  = "timer-updated"
	EventNewMessage    = "new-message"
	EventTaskAdded     = "task-added"
	EventTaskUpdated   = "task-updated"
	EventTaskDeleted   = "task-deleted"
	EventFocusUpdated  = "focus-updated"
	EventUserTyping    = "user-typing"
	EventBreakActivity = "break-activity-started"
	EventSessionDone   = "session-completed"
	EventError         = "error"
)

// Sink delivers outbound events to one connection. The websocket handler
// wraps a live connection; tests substitute recorders.
type Sink interface {
	ID() string
	Send(event string, payload any) error
}

// GroupState is the full room view sent to a member right after joining.
type GroupState struct {
	Group       models.Group           `json:"group"`
	Timer       models.TimerSnapshot   `json:"timer"`
	Members     []models.MemberInfo    `json:"members"`
	ActiveUsers []string               `json:"active_users"`
	Messages    []models.Message       `json:"recent_messages"`
	Tasks       []models.Task          `json:"tasks"`
}

type UserEvent struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username,omitempty"`
	ActiveUsers []string  `json:"active_users"`
	Timestamp   time.Time `json:"timestamp"`
}

type TimerEvent struct {
	Timer models.TimerSnapshot `json:"timer"`
	By    string               `json:"by,omitempty"`
}

type TaskEvent struct {
	Task   *models.Task       `json:"task,omitempty"`
	TaskID string             `json:"task_id,omitempty"`
	Update *models.TaskUpdate `json:"updates,omitempty"`
	By     string             `json:"by"`
}

type FocusEvent struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

type TypingEvent struct {
	UserID string `json:"user_id"`
	Typing bool   `json:"typing"`
}

type BreakActivityEvent struct {
	Activity  string    `json:"activity"`
	StartedBy string    `json:"started_by"`
	StartedAt time.Time `json:"started_at"`
}

type SessionCompletedEvent struct {
	UserID          string `json:"user_id"`
	DurationSeconds int    `json:"duration_seconds"`
	Streak          int    `json:"streak"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
