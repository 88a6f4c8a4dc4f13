package models

import "time"

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Task is a shared to-do item. Mutated in place by update events,
// deleted by id.
type Task struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	Completed bool       `json:"completed"`
	CreatedBy string     `json:"created_by"`
	Assignees []string   `json:"assignees,omitempty"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	Priority  string     `json:"priority"`
	CreatedAt time.Time  `json:"created_at"`
}

// TaskUpdate carries partial changes for an update-task action. Nil fields
// are left untouched.
type TaskUpdate struct {
	Text      *string    `json:"text,omitempty"`
	Completed *bool      `json:"completed,omitempty"`
	Priority  *string    `json:"priority,omitempty"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	Assignees *[]string  `json:"assignees,omitempty"`
}

func ValidPriority(p string) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}
