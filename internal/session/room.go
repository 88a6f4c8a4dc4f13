package session

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/models"
)

// memoryLogLimit bounds the in-memory chat log. Older messages are already
// persisted and are evicted from memory.
const memoryLogLimit = 50

// inboxSize bounds the per-room action queue. A full inbox drops the action
// rather than blocking the connection read loop.
const inboxSize = 256

// Persister is the durable-store boundary consumed by the core. Every call
// is fire-and-forget: the broadcast path never waits on it, and failures are
// the adapter's problem.
type Persister interface {
	AppendMessage(msg models.Message)
	UpsertTask(groupID string, task models.Task)
	DeleteTask(groupID, taskID string)
	SnapshotTimer(groupID string, snap models.TimerSnapshot)
}

// Action is one inbound participant action, already associated with an
// authenticated user and a live connection.
type Action struct {
	Msg      models.WSMessage
	ConnID   string
	UserID   string
	Username string
	Sink     Sink
}

type roomConfig struct {
	clock         clockwork.Clock
	store         Persister
	presenceGrace time.Duration
	roomGrace     time.Duration
	onEvict       func(code string)
}

// Room owns the live state of one study session. All mutations flow through
// the inbox and are applied by a single goroutine, in acceptance order;
// broadcast order per room therefore matches acceptance order.
type Room struct {
	group models.Group
	cfg   roomConfig
	clock clockwork.Clock

	inbox chan any // Action or func()
	done  chan struct{}

	subs     map[string]Sink
	pres     *presence
	timer    *Timer
	messages []models.Message
	tasks    []models.Task

	expiry clockwork.Timer
	evict  clockwork.Timer
}

func newRoom(group models.Group, cfg roomConfig) *Room {
	r := &Room{
		group: group,
		cfg:   cfg,
		clock: cfg.clock,
		inbox: make(chan any, inboxSize),
		done:  make(chan struct{}),
		subs:  make(map[string]Sink),
	}
	r.pres = newPresence(cfg.clock, cfg.presenceGrace, func(userID string) {
		r.enqueue(func() { r.handleDepartureExpiry(userID) })
	})
	r.timer = NewTimer(cfg.clock, group.Settings)
	go r.run()
	return r
}

func (r *Room) Group() models.Group { return r.group }
func (r *Room) Code() string        { return r.group.Code }

// Submit queues an inbound action. Non-blocking: the router either accepts
// synchronously or drops with a log line when the room is overloaded or
// gone.
func (r *Room) Submit(a Action) {
	select {
	case <-r.done:
	default:
		select {
		case r.inbox <- a:
		default:
			log.Warn().Str("room", r.group.Code).Str("event", a.Msg.Event).
				Msg("room inbox full, dropping action")
		}
	}
}

// Disconnect marks one connection handle closed. The departure event fires
// only after the grace period passes with no reconnect.
func (r *Room) Disconnect(connID string) {
	r.enqueue(func() { r.handleDisconnect(connID) })
}

// TimerState reads an authoritative timer snapshot through the actor, for
// the synchronous HTTP boundary.
func (r *Room) TimerState() models.TimerSnapshot {
	reply := make(chan models.TimerSnapshot, 1)
	r.enqueue(func() { reply <- r.timer.Snapshot() })
	select {
	case snap := <-reply:
		return snap
	case <-r.done:
		return models.TimerSnapshot{Status: models.TimerIdle}
	}
}

// MemberCount reports live membership, counting members riding out a grace
// period.
func (r *Room) MemberCount() int {
	reply := make(chan int, 1)
	r.enqueue(func() { reply <- r.pres.count() })
	select {
	case n := <-reply:
		return n
	case <-r.done:
		return 0
	}
}

func (r *Room) enqueue(fn func()) {
	select {
	case <-r.done:
	case r.inbox <- fn:
	}
}

// Close tears the room down. Pending grace timers are cancelled and the
// actor goroutine exits.
func (r *Room) Close() {
	r.enqueue(func() {
		r.pres.stopTimers()
		r.stopTimer(&r.expiry)
		r.stopTimer(&r.evict)
		close(r.done)
	})
}

func (r *Room) run() {
	for {
		select {
		case <-r.done:
			return
		case item := <-r.inbox:
			r.apply(item)
		}
	}
}

// apply executes one queued item with crash isolation: a panic from one bad
// action is logged and surfaced to its sender without taking the room down.
func (r *Room) apply(item any) {
	var act *Action
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("room", r.group.Code).Interface("panic", rec).
				Bytes("stack", debug.Stack()).Msg("recovered panic in room actor")
			if act != nil && act.Sink != nil {
				r.sendError(act.Sink, fmt.Errorf("%w: action failed", ErrInternal))
			}
		}
	}()

	switch v := item.(type) {
	case func():
		v()
	case Action:
		act = &v
		if err := r.dispatch(v); err != nil {
			// Errors from one participant's action never reach the rest of
			// the room.
			r.sendError(v.Sink, err)
		}
	}
}

func (r *Room) dispatch(a Action) error {
	switch a.Msg.Event {
	case ActionJoin:
		return r.handleJoin(a)
	case ActionLeave:
		r.handleDisconnect(a.ConnID)
		return nil
	case ActionTimerStart, ActionTimerPause, ActionTimerResume, ActionTimerReset:
		return r.handleTimer(a)
	case ActionTimerTick:
		// Client ticks are advisory only: answer with the recomputed truth.
		r.broadcast(EventTimerUpdated, TimerEvent{Timer: r.timer.Snapshot()}, "")
		return nil
	case ActionSendMessage:
		return r.handleMessage(a)
	case ActionAddTask:
		return r.handleAddTask(a)
	case ActionUpdateTask:
		return r.handleUpdateTask(a)
	case ActionDeleteTask:
		return r.handleDeleteTask(a)
	case ActionUpdateFocus:
		return r.handleFocus(a)
	case ActionTyping:
		return r.handleTyping(a)
	case ActionBreakActivity:
		return r.handleBreakActivity(a)
	case ActionComplete:
		return r.handleCompleteSession(a)
	default:
		return invalidf("event", "unknown event %q", a.Msg.Event)
	}
}

func (r *Room) handleJoin(a Action) error {
	if a.UserID == "" || a.Sink == nil {
		return invalidf("user_id", "missing user identity")
	}
	if _, known := r.pres.get(a.UserID); !known && r.pres.count() >= r.group.Settings.MaxMembers {
		return fmt.Errorf("%w: capacity %d reached", ErrCapacity, r.group.Settings.MaxMembers)
	}

	m, created := r.pres.connect(a.UserID, a.Username, a.ConnID)
	r.subs[a.ConnID] = a.Sink
	r.stopTimer(&r.evict)

	// The creator claims the host role; a room that somehow has no host
	// hands it to the first joiner. Never unset while the room is occupied.
	if r.pres.host() == nil {
		m.Host = true
	}

	r.broadcast(EventUserJoined, UserEvent{
		UserID:      m.UserID,
		Username:    m.Username,
		ActiveUsers: r.pres.listActive(),
		Timestamp:   r.clock.Now(),
	}, a.ConnID)

	if err := a.Sink.Send(EventGroupState, r.groupState()); err != nil {
		log.Warn().Err(err).Str("room", r.group.Code).Msg("failed to send group state")
	}

	if created {
		log.Info().Str("room", r.group.Code).Str("user", m.UserID).Msg("member joined")
	}
	return nil
}

func (r *Room) handleDisconnect(connID string) {
	delete(r.subs, connID)
	r.pres.disconnect(connID)
	if len(r.subs) == 0 {
		r.stopTimer(&r.evict)
		r.evict = r.clock.AfterFunc(r.cfg.roomGrace, func() {
			r.enqueue(r.handleEviction)
		})
	}
}

// handleDepartureExpiry runs when a member's grace period lapses with no
// reconnect: focus is forced to away, the record is purged, and user-left
// fires exactly once.
func (r *Room) handleDepartureExpiry(userID string) {
	m := r.pres.expire(userID)
	if m == nil {
		return
	}
	wasHost := m.Host
	r.broadcast(EventUserLeft, UserEvent{
		UserID:      m.UserID,
		Username:    m.Username,
		ActiveUsers: r.pres.listActive(),
		Timestamp:   r.clock.Now(),
	}, "")
	if wasHost {
		if next := r.pres.transferHost(); next != nil {
			r.systemMessage(fmt.Sprintf("%s is now the host", next.Username))
		}
	}
}

// handleEviction destroys the room after its last connection stayed closed
// through the grace period. The timer snapshot is persisted first so a
// recreated room can pick up where this one left off.
func (r *Room) handleEviction() {
	if len(r.subs) != 0 {
		return
	}
	r.cfg.store.SnapshotTimer(r.group.ID, r.timer.Snapshot())
	r.pres.stopTimers()
	r.stopTimer(&r.expiry)
	r.stopTimer(&r.evict)
	close(r.done)
	log.Info().Str("room", r.group.Code).Msg("room evicted after grace period")
	if r.cfg.onEvict != nil {
		r.cfg.onEvict(r.group.Code)
	}
}

func (r *Room) handleTimer(a Action) error {
	var snap models.TimerSnapshot
	var event string
	switch a.Msg.Event {
	case ActionTimerStart:
		mode := a.Msg.Mode
		if mode == "" {
			mode = models.TimerStudy
		}
		if mode != models.TimerStudy && mode != models.TimerBreak {
			return invalidf("mode", "must be %q or %q", models.TimerStudy, models.TimerBreak)
		}
		if a.Msg.Duration < 0 {
			return invalidf("duration", "must not be negative")
		}
		snap = r.timer.Start(mode, a.Msg.Duration)
		event = EventTimerStarted
	case ActionTimerPause:
		snap = r.timer.Pause()
		event = EventTimerPaused
	case ActionTimerResume:
		snap = r.timer.Resume()
		event = EventTimerResumed
	case ActionTimerReset:
		snap = r.timer.Reset()
		event = EventTimerReset
	}
	r.rescheduleExpiry()
	r.broadcast(event, TimerEvent{Timer: snap, By: a.UserID}, "")
	r.cfg.store.SnapshotTimer(r.group.ID, snap)
	return nil
}

// rescheduleExpiry arms a wake-up for the moment the running timer hits
// zero. The callback re-enters the actor through the inbox, preserving the
// one-mutation-at-a-time discipline.
func (r *Room) rescheduleExpiry() {
	r.stopTimer(&r.expiry)
	deadline, ok := r.timer.Deadline()
	if !ok {
		return
	}
	d := deadline.Sub(r.clock.Now())
	r.expiry = r.clock.AfterFunc(d, func() {
		r.enqueue(r.handleTimerExpiry)
	})
}

// handleTimerExpiry applies the expiry policy. The state machine itself
// never auto-transitions; the router decides here, once, explicitly: with
// AutoStartTimer the session flips study<->break, otherwise the timer parks
// at zero until someone acts.
func (r *Room) handleTimerExpiry() {
	snap := r.timer.Snapshot()
	if !snap.Expired {
		// Paused, reset, or restarted since scheduling; a running timer
		// gets a fresh wake-up.
		r.rescheduleExpiry()
		return
	}
	if r.group.Settings.AutoStartTimer {
		next := models.TimerBreak
		note := "Study session complete. Break started."
		if snap.Mode == models.TimerBreak {
			next = models.TimerStudy
			note = "Break over. Back to studying."
		}
		started := r.timer.Start(next, 0)
		r.rescheduleExpiry()
		r.broadcast(EventTimerStarted, TimerEvent{Timer: started}, "")
		r.systemMessage(note)
		r.cfg.store.SnapshotTimer(r.group.ID, started)
		return
	}
	r.broadcast(EventTimerUpdated, TimerEvent{Timer: snap}, "")
	r.cfg.store.SnapshotTimer(r.group.ID, snap)
}

func (r *Room) handleMessage(a Action) error {
	if a.Msg.Content == "" {
		return invalidf("content", "must not be empty")
	}
	kind := a.Msg.Kind
	if kind == "" {
		kind = models.MessageText
	}
	if kind != models.MessageText && kind != models.MessageNotification {
		return invalidf("kind", "unsupported message kind %q", kind)
	}
	msg := models.Message{
		ID:         uuid.New().String(),
		GroupID:    r.group.ID,
		SenderID:   a.UserID,
		SenderName: a.Username,
		Content:    a.Msg.Content,
		Kind:       kind,
		Timestamp:  r.clock.Now(),
	}
	r.appendMessage(msg)
	r.broadcast(EventNewMessage, msg, "")
	r.cfg.store.AppendMessage(msg)
	return nil
}

func (r *Room) handleAddTask(a Action) error {
	if a.Msg.Task == nil || a.Msg.Task.Text == "" {
		return invalidf("task", "missing task text")
	}
	task := *a.Msg.Task
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	if !models.ValidPriority(task.Priority) {
		return invalidf("priority", "unknown priority %q", task.Priority)
	}
	task.CreatedBy = a.UserID
	task.CreatedAt = r.clock.Now()
	r.tasks = append(r.tasks, task)
	r.broadcast(EventTaskAdded, TaskEvent{Task: &task, By: a.UserID}, "")
	r.cfg.store.UpsertTask(r.group.ID, task)
	return nil
}

func (r *Room) handleUpdateTask(a Action) error {
	if a.Msg.TaskID == "" {
		return invalidf("task_id", "required")
	}
	if a.Msg.Updates == nil {
		return invalidf("updates", "required")
	}
	task := r.findTask(a.Msg.TaskID)
	if task == nil {
		return fmt.Errorf("task %s: %w", a.Msg.TaskID, ErrNotFound)
	}
	u := a.Msg.Updates
	if u.Priority != nil && !models.ValidPriority(*u.Priority) {
		return invalidf("priority", "unknown priority %q", *u.Priority)
	}
	if u.Text != nil {
		task.Text = *u.Text
	}
	if u.Completed != nil {
		task.Completed = *u.Completed
	}
	if u.Priority != nil {
		task.Priority = *u.Priority
	}
	if u.DueDate != nil {
		task.DueDate = u.DueDate
	}
	if u.Assignees != nil {
		task.Assignees = *u.Assignees
	}
	r.broadcast(EventTaskUpdated, TaskEvent{Task: task, TaskID: task.ID, Update: u, By: a.UserID}, "")
	r.cfg.store.UpsertTask(r.group.ID, *task)
	return nil
}

func (r *Room) handleDeleteTask(a Action) error {
	if a.Msg.TaskID == "" {
		return invalidf("task_id", "required")
	}
	for i := range r.tasks {
		if r.tasks[i].ID == a.Msg.TaskID {
			r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
			r.broadcast(EventTaskDeleted, TaskEvent{TaskID: a.Msg.TaskID, By: a.UserID}, "")
			r.cfg.store.DeleteTask(r.group.ID, a.Msg.TaskID)
			return nil
		}
	}
	return fmt.Errorf("task %s: %w", a.Msg.TaskID, ErrNotFound)
}

func (r *Room) handleFocus(a Action) error {
	m, ok := r.pres.get(a.UserID)
	if !ok {
		return fmt.Errorf("member %s: %w", a.UserID, ErrNotFound)
	}
	if !models.ValidFocus(a.Msg.Status) {
		return invalidf("status", "unknown focus status %q", a.Msg.Status)
	}
	m.Focus = a.Msg.Status
	r.broadcast(EventFocusUpdated, FocusEvent{UserID: m.UserID, Status: m.Focus}, "")
	return nil
}

func (r *Room) handleTyping(a Action) error {
	m, ok := r.pres.get(a.UserID)
	if !ok {
		return fmt.Errorf("member %s: %w", a.UserID, ErrNotFound)
	}
	if a.Msg.Typing == nil {
		return invalidf("typing", "required")
	}
	m.Typing = *a.Msg.Typing
	r.broadcast(EventUserTyping, TypingEvent{UserID: m.UserID, Typing: m.Typing}, a.ConnID)
	return nil
}

func (r *Room) handleBreakActivity(a Action) error {
	if a.Msg.Activity == "" {
		return invalidf("activity", "required")
	}
	r.broadcast(EventBreakActivity, BreakActivityEvent{
		Activity:  a.Msg.Activity,
		StartedBy: a.UserID,
		StartedAt: r.clock.Now(),
	}, "")
	return nil
}

func (r *Room) handleCompleteSession(a Action) error {
	m, ok := r.pres.get(a.UserID)
	if !ok {
		return fmt.Errorf("member %s: %w", a.UserID, ErrNotFound)
	}
	m.Streak++
	r.broadcast(EventSessionDone, SessionCompletedEvent{
		UserID:          m.UserID,
		DurationSeconds: a.Msg.Duration,
		Streak:          m.Streak,
	}, "")
	return nil
}

func (r *Room) groupState() GroupState {
	return GroupState{
		Group:       r.group,
		Timer:       r.timer.Snapshot(),
		Members:     r.pres.infos(),
		ActiveUsers: r.pres.listActive(),
		Messages:    append([]models.Message(nil), r.messages...),
		Tasks:       append([]models.Task(nil), r.tasks...),
	}
}

func (r *Room) appendMessage(msg models.Message) {
	r.messages = append(r.messages, msg)
	if len(r.messages) > memoryLogLimit {
		r.messages = r.messages[len(r.messages)-memoryLogLimit:]
	}
}

// systemMessage appends and fans out a server-generated chat entry.
func (r *Room) systemMessage(content string) {
	msg := models.Message{
		ID:        uuid.New().String(),
		GroupID:   r.group.ID,
		Content:   content,
		Kind:      models.MessageSystem,
		Timestamp: r.clock.Now(),
	}
	r.appendMessage(msg)
	r.broadcast(EventNewMessage, msg, "")
	r.cfg.store.AppendMessage(msg)
}

func (r *Room) findTask(id string) *models.Task {
	for i := range r.tasks {
		if r.tasks[i].ID == id {
			return &r.tasks[i]
		}
	}
	return nil
}

func (r *Room) broadcast(event string, payload any, excludeConnID string) {
	for id, sink := range r.subs {
		if id == excludeConnID {
			continue
		}
		if err := sink.Send(event, payload); err != nil {
			log.Warn().Err(err).Str("room", r.group.Code).Str("conn", id).
				Str("event", event).Msg("broadcast write failed")
		}
	}
}

func (r *Room) sendError(sink Sink, err error) {
	if sink == nil {
		return
	}
	if sendErr := sink.Send(EventError, ErrorEvent{Code: ErrorCode(err), Message: err.Error()}); sendErr != nil {
		log.Warn().Err(sendErr).Str("room", r.group.Code).Msg("failed to deliver error event")
	}
}

func (r *Room) stopTimer(t *clockwork.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
