package session

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/models"
)

// Timer is the per-room countdown state machine. It is owned by the room
// actor and never mutated from outside its goroutine. Remaining time for a
// running timer is always derived from the anchor instant, so stale or
// duplicate client ticks cannot corrupt it.
type Timer struct {
	clock clockwork.Clock

	status string
	// mode is the current running mode, or the mode to return to from
	// paused, or the mode a reset idles in (study).
	mode   string
	anchor time.Time
	// length of the current run; meaningful only while status is running.
	running time.Duration
	// remaining time captured at the moment of the last transition out of a
	// running state; authoritative while idle or paused.
	frozen time.Duration

	studyDur time.Duration
	breakDur time.Duration
	cycles   int
}

func NewTimer(clock clockwork.Clock, cfg models.Settings) *Timer {
	cfg = cfg.WithDefaults()
	study := time.Duration(cfg.StudyDurationSeconds) * time.Second
	return &Timer{
		clock:    clock,
		status:   models.TimerIdle,
		mode:     models.TimerStudy,
		frozen:   study,
		studyDur: study,
		breakDur: time.Duration(cfg.BreakDurationSeconds) * time.Second,
	}
}

// Start begins a study or break run. Valid from any state. A study start
// counts a new cycle only when the previous status was not already study,
// so rapid re-starts are not double counted.
func (t *Timer) Start(mode string, seconds int) models.TimerSnapshot {
	if mode != models.TimerStudy && mode != models.TimerBreak {
		return t.Snapshot()
	}
	d := time.Duration(seconds) * time.Second
	if d <= 0 {
		if mode == models.TimerStudy {
			d = t.studyDur
		} else {
			d = t.breakDur
		}
	}
	if mode == models.TimerStudy {
		if t.status != models.TimerStudy {
			t.cycles++
		}
		t.studyDur = d
	} else {
		t.breakDur = d
	}
	t.status = mode
	t.mode = mode
	t.anchor = t.clock.Now()
	t.running = d
	return t.Snapshot()
}

// Pause freezes the remaining time. Idempotent; a no-op unless the timer is
// running or already paused.
func (t *Timer) Pause() models.TimerSnapshot {
	if !models.RunningMode(t.status) {
		return t.Snapshot()
	}
	t.frozen = t.remaining()
	t.mode = t.status
	t.status = models.TimerPaused
	return t.Snapshot()
}

// Resume returns a paused timer to its prior running mode with the frozen
// remaining time. A no-op from any other state.
func (t *Timer) Resume() models.TimerSnapshot {
	if t.status != models.TimerPaused {
		return t.Snapshot()
	}
	t.status = t.mode
	t.anchor = t.clock.Now()
	t.running = t.frozen
	return t.Snapshot()
}

// Reset returns the timer to idle with the configured study duration.
func (t *Timer) Reset() models.TimerSnapshot {
	t.status = models.TimerIdle
	t.mode = models.TimerStudy
	t.anchor = time.Time{}
	t.frozen = t.studyDur
	return t.Snapshot()
}

// remaining computes the live remaining duration, clamped at zero.
func (t *Timer) remaining() time.Duration {
	if !models.RunningMode(t.status) {
		return t.frozen
	}
	rem := t.running - t.clock.Since(t.anchor)
	if rem < 0 {
		return 0
	}
	return rem
}

// Snapshot is a pure read; TimeLeft is computed on demand. Expiry is
// reported as a derived fact, never acted on here: the room actor decides
// whether to auto-advance.
func (t *Timer) Snapshot() models.TimerSnapshot {
	rem := t.remaining()
	return models.TimerSnapshot{
		Status:          t.status,
		Mode:            t.mode,
		TimeLeft:        int(rem / time.Second),
		CyclesCompleted: t.cycles,
		Expired:         models.RunningMode(t.status) && rem == 0,
	}
}

// Deadline reports when the current run expires. ok is false unless the
// timer is running with time left.
func (t *Timer) Deadline() (time.Time, bool) {
	if !models.RunningMode(t.status) {
		return time.Time{}, false
	}
	rem := t.remaining()
	if rem == 0 {
		return time.Time{}, false
	}
	return t.clock.Now().Add(rem), true
}
