package models

import "encoding/json"

// WSMessage is the flat inbound WebSocket envelope. Only the fields relevant
// to a given event are set; the session router validates per event.
type WSMessage struct {
	Event    string          `json:"event"`
	Group    string          `json:"group,omitempty"`
	Mode     string          `json:"mode,omitempty"`
	Duration int             `json:"duration,omitempty"`
	TimeLeft int             `json:"time_left,omitempty"`
	Content  string          `json:"content,omitempty"`
	Kind     string          `json:"kind,omitempty"`
	Task     *Task           `json:"task,omitempty"`
	TaskID   string          `json:"task_id,omitempty"`
	Updates  *TaskUpdate     `json:"updates,omitempty"`
	Status   string          `json:"status,omitempty"`
	Typing   *bool           `json:"typing,omitempty"`
	Activity string          `json:"activity,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}
