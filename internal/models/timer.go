package models

// Timer statuses. "study" and "break" are the running modes; "paused" keeps
// the prior running mode so resume knows where to return.
const (
	TimerIdle   = "idle"
	TimerStudy  = "study"
	TimerBreak  = "break"
	TimerPaused = "paused"
)

// TimerSnapshot is the authoritative view of a room timer at one instant.
// TimeLeft is always derived from the anchor time, never cached while the
// timer is running.
type TimerSnapshot struct {
	Status          string `json:"status"`
	Mode            string `json:"mode"`
	TimeLeft        int    `json:"time_left"`
	CyclesCompleted int    `json:"cycles_completed"`
	Expired         bool   `json:"expired"`
}

func RunningMode(status string) bool {
	return status == TimerStudy || status == TimerBreak
}
