package session

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/models"
)

type recordedEvent struct {
	Event   string
	Payload any
}

// recorderSink captures everything the room pushes to one connection. Sends
// happen on the actor goroutine, reads on the test goroutine.
type recorderSink struct {
	id string

	mu     sync.Mutex
	events []recordedEvent
}

func (s *recorderSink) ID() string { return s.id }

func (s *recorderSink) Send(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{Event: event, Payload: payload})
	return nil
}

func (s *recorderSink) named(event string) []recordedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []recordedEvent
	for _, e := range s.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (s *recorderSink) count(event string) int { return len(s.named(event)) }

type fakePersister struct {
	mu        sync.Mutex
	messages  []models.Message
	tasks     []models.Task
	deleted   []string
	snapshots []models.TimerSnapshot
}

func (f *fakePersister) AppendMessage(msg models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
}

func (f *fakePersister) UpsertTask(_ string, task models.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
}

func (f *fakePersister) DeleteTask(_, taskID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, taskID)
}

func (f *fakePersister) SnapshotTimer(_ string, snap models.TimerSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snap)
}

func (f *fakePersister) messageContents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	for i, m := range f.messages {
		out[i] = m.Content
	}
	return out
}

type roomFixture struct {
	room  *Room
	clock *clockwork.FakeClock
	store *fakePersister

	mu      sync.Mutex
	evicted []string
}

func newRoomFixture(t *testing.T, settings models.Settings) *roomFixture {
	t.Helper()
	f := &roomFixture{
		clock: clockwork.NewFakeClock(),
		store: &fakePersister{},
	}
	f.room = newRoom(models.Group{
		ID:       "g-1",
		Code:     "ABC234",
		Name:     "focus friends",
		Settings: settings.WithDefaults(),
	}, roomConfig{
		clock:         f.clock,
		store:         f.store,
		presenceGrace: 5 * time.Second,
		roomGrace:     20 * time.Second,
		onEvict: func(code string) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.evicted = append(f.evicted, code)
		},
	})
	t.Cleanup(f.room.Close)
	return f
}

func (f *roomFixture) evictedCodes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.evicted...)
}

// flush waits for every previously queued item to be applied by the actor.
// Returns early if the room shut down, in which case the inbox is moot.
func (f *roomFixture) flush(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	f.room.enqueue(func() { close(done) })
	select {
	case <-done:
	case <-f.room.done:
	case <-time.After(2 * time.Second):
		t.Fatal("room actor did not drain its inbox")
	}
}

// eventually is for effects behind a fake-clock wakeup: clockwork fires
// timer callbacks on their own goroutine, so there is a handoff back into
// the actor inbox to wait out.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func (f *roomFixture) join(userID, connID string, sink Sink) {
	f.room.Submit(Action{
		Msg:      models.WSMessage{Event: ActionJoin},
		ConnID:   connID,
		UserID:   userID,
		Username: userID,
		Sink:     sink,
	})
}

func (f *roomFixture) submit(userID, connID string, sink Sink, msg models.WSMessage) {
	f.room.Submit(Action{Msg: msg, ConnID: connID, UserID: userID, Username: userID, Sink: sink})
}

func TestRoomJoinSendsStateAndNotifiesOthers(t *testing.T) {
	f := newRoomFixture(t, models.Settings{})
	alice := &recorderSink{id: "c-alice"}
	bob := &recorderSink{id: "c-bob"}

	f.join("alice", "c-alice", alice)
	f.join("bob", "c-bob", bob)
	f.flush(t)

	// The joiner gets the full room view, not their own join echo.
	require.Equal(t, 1, alice.count(EventGroupState))
	require.Zero(t, bob.count(EventUserJoined))

	joins := alice.named(EventUserJoined)
	require.Len(t, joins, 1, "alice hears bob arrive")
	ev := joins[0].Payload.(UserEvent)
	require.Equal(t, "bob", ev.UserID)
	require.Equal(t, []string{"alice", "bob"}, ev.ActiveUsers)

	state := bob.named(EventGroupState)[0].Payload.(GroupState)
	require.Len(t, state.Members, 2)
	require.True(t, state.Members[0].IsHost, "first joiner holds the host role")
	require.False(t, state.Members[1].IsHost)
}

func TestRoomCapacityRejectsNewMemberOnly(t *testing.T) {
	f := newRoomFixture(t, models.Settings{MaxMembers: 2})
	alice := &recorderSink{id: "c-1"}
	bob := &recorderSink{id: "c-2"}
	carol := &recorderSink{id: "c-3"}

	f.join("alice", "c-1", alice)
	f.join("bob", "c-2", bob)
	f.join("carol", "c-3", carol)
	f.flush(t)

	errs := carol.named(EventError)
	require.Len(t, errs, 1)
	require.Equal(t, "capacity", errs[0].Payload.(ErrorEvent).Code)
	require.Zero(t, carol.count(EventGroupState))
	require.Equal(t, 1, alice.count(EventUserJoined), "rejected join is invisible to members")
	require.Equal(t, 2, f.room.MemberCount())

	// A member already in the room opens a second tab; capacity does not
	// apply to known users.
	alice2 := &recorderSink{id: "c-4"}
	f.join("alice", "c-4", alice2)
	f.flush(t)
	require.Equal(t, 1, alice2.count(EventGroupState))
	require.Equal(t, 2, f.room.MemberCount())
}

func TestRoomDuplicateJoinDoesNotDuplicateMember(t *testing.T) {
	f := newRoomFixture(t, models.Settings{})
	bob := &recorderSink{id: "c-bob"}
	f.join("alice", "c-1", &recorderSink{id: "c-1"})
	f.join("bob", "c-bob", bob)
	f.join("alice", "c-2", &recorderSink{id: "c-2"})
	f.flush(t)

	require.Equal(t, 2, f.room.MemberCount())
	rejoin := bob.named(EventUserJoined)[0].Payload.(UserEvent)
	require.Equal(t, []string{"alice", "bob"}, rejoin.ActiveUsers,
		"a second handle never repeats the user in the active list")
}

func TestRoomBroadcastOrderMatchesAcceptanceOrder(t *testing.T) {
	f := newRoomFixture(t, models.Settings{})
	alice := &recorderSink{id: "c-alice"}
	bob := &recorderSink{id: "c-bob"}
	f.join("alice", "c-alice", alice)
	f.join("bob", "c-bob", bob)

	for _, content := range []string{"A", "B", "C"} {
		f.submit("alice", "c-alice", alice, models.WSMessage{Event: ActionSendMessage, Content: content})
	}
	f.flush(t)

	for _, sink := range []*recorderSink{alice, bob} {
		got := sink.named(EventNewMessage)
		require.Len(t, got, 3)
		for i, want := range []string{"A", "B", "C"} {
			require.Equal(t, want, got[i].Payload.(models.Message).Content)
		}
	}
	require.Equal(t, []string{"A", "B", "C"}, f.store.messageContents())
}

func TestRoomValidationErrorReachesSenderOnly(t *testing.T) {
	f := newRoomFixture(t, models.Settings{})
	alice := &recorderSink{id: "c-alice"}
	bob := &recorderSink{id: "c-bob"}
	f.join("alice", "c-alice", alice)
	f.join("bob", "c-bob", bob)

	f.submit("alice", "c-alice", alice, models.WSMessage{Event: ActionSendMessage, Content: ""})
	f.submit("alice", "c-alice", alice, models.WSMessage{Event: "warp-drive"})
	f.flush(t)

	errs := alice.named(EventError)
	require.Len(t, errs, 2)
	require.Equal(t, "validation", errs[0].Payload.(ErrorEvent).Code)
	require.Zero(t, bob.count(EventError))
	require.Zero(t, bob.count(EventNewMessage))
}

func TestRoomTaskLifecycle(t *testing.T) {
	f := newRoomFixture(t, models.Settings{})
	alice := &recorderSink{id: "c-alice"}
	f.join("alice", "c-alice", alice)

	f.submit("alice", "c-alice", alice, models.WSMessage{
		Event: ActionAddTask,
		Task:  &models.Task{ID: "t-1", Text: "read chapter 4"},
	})
	done := true
	f.submit("alice", "c-alice", alice, models.WSMessage{
		Event:   ActionUpdateTask,
		TaskID:  "t-1",
		Updates: &models.TaskUpdate{Completed: &done},
	})
	f.submit("alice", "c-alice", alice, models.WSMessage{Event: ActionDeleteTask, TaskID: "t-1"})
	f.submit("alice", "c-alice", alice, models.WSMessage{
		Event:   ActionUpdateTask,
		TaskID:  "t-1",
		Updates: &models.TaskUpdate{Completed: &done},
	})
	f.flush(t)

	added := alice.named(EventTaskAdded)[0].Payload.(TaskEvent)
	require.Equal(t, models.PriorityMedium, added.Task.Priority, "priority defaults when omitted")
	require.Equal(t, "alice", added.Task.CreatedBy)

	updated := alice.named(EventTaskUpdated)[0].Payload.(TaskEvent)
	require.True(t, updated.Task.Completed)

	require.Equal(t, 1, alice.count(EventTaskDeleted))
	require.Equal(t, []string{"t-1"}, f.store.deleted)

	errs := alice.named(EventError)
	require.Len(t, errs, 1, "updating a deleted task is the caller's error")
	require.Equal(t, "not_found", errs[0].Payload.(ErrorEvent).Code)
}

func TestRoomFocusBroadcastIncludesSenderTypingDoesNot(t *testing.T) {
	f := newRoomFixture(t, models.Settings{})
	alice := &recorderSink{id: "c-alice"}
	bob := &recorderSink{id: "c-bob"}
	f.join("alice", "c-alice", alice)
	f.join("bob", "c-bob", bob)

	typing := true
	f.submit("alice", "c-alice", alice, models.WSMessage{Event: ActionUpdateFocus, Status: models.FocusBreak})
	f.submit("alice", "c-alice", alice, models.WSMessage{Event: ActionTyping, Typing: &typing})
	f.submit("alice", "c-alice", alice, models.WSMessage{Event: ActionUpdateFocus, Status: "daydreaming"})
	f.flush(t)

	require.Equal(t, 1, alice.count(EventFocusUpdated), "focus changes echo back to the sender")
	require.Equal(t, 1, bob.count(EventFocusUpdated))
	require.Zero(t, alice.count(EventUserTyping), "typing indicators skip the originator")
	require.Equal(t, 1, bob.count(EventUserTyping))
	require.Equal(t, "validation", alice.named(EventError)[0].Payload.(ErrorEvent).Code)
}

func TestRoomDisconnectWithinGraceIsSilent(t *testing.T) {
	f := newRoomFixture(t, models.Settings{})
	alice := &recorderSink{id: "c-alice"}
	bob := &recorderSink{id: "c-bob"}
	f.join("alice", "c-alice", alice)
	f.join("bob", "c-bob", bob)
	f.flush(t)

	f.room.Disconnect("c-alice")
	f.flush(t)
	f.clock.Advance(4 * time.Second)

	alice2 := &recorderSink{id: "c-alice-2"}
	f.join("alice", "c-alice-2", alice2)
	f.flush(t)
	f.clock.Advance(time.Minute)
	f.flush(t)

	require.Zero(t, bob.count(EventUserLeft), "a reconnect inside the grace period hides the blip")
	require.Equal(t, 2, f.room.MemberCount())
}

func TestRoomGraceExpiryFiresUserLeftOnce(t *testing.T) {
	f := newRoomFixture(t, models.Settings{})
	alice := &recorderSink{id: "c-alice"}
	bob := &recorderSink{id: "c-bob"}
	f.join("alice", "c-alice", alice)
	f.join("bob", "c-bob", bob)
	f.flush(t)

	f.room.Disconnect("c-alice")
	f.flush(t)
	f.clock.Advance(5 * time.Second)
	eventually(t, func() bool { return bob.count(EventUserLeft) == 1 }, "grace lapse emits the departure")
	f.clock.Advance(time.Hour)
	f.flush(t)

	left := bob.named(EventUserLeft)
	require.Len(t, left, 1)
	require.Equal(t, "alice", left[0].Payload.(UserEvent).UserID)
	require.Equal(t, []string{"bob"}, left[0].Payload.(UserEvent).ActiveUsers)
	require.Equal(t, 1, f.room.MemberCount())

	// Alice was host; the longest-joined remaining member inherits the role,
	// announced in chat.
	msgs := bob.named(EventNewMessage)
	require.Len(t, msgs, 1)
	announce := msgs[0].Payload.(models.Message)
	require.Equal(t, models.MessageSystem, announce.Kind)
	require.Contains(t, announce.Content, "bob")
}

func TestRoomEvictionAfterLastConnectionCloses(t *testing.T) {
	f := newRoomFixture(t, models.Settings{})
	alice := &recorderSink{id: "c-alice"}
	f.join("alice", "c-alice", alice)
	f.submit("alice", "c-alice", alice, models.WSMessage{Event: ActionTimerStart, Mode: models.TimerStudy, Duration: 600})
	f.flush(t)

	f.room.Disconnect("c-alice")
	f.flush(t)
	f.clock.Advance(5 * time.Second)
	eventually(t, func() bool { return f.room.MemberCount() == 0 }, "presence grace lapses first")
	f.clock.Advance(15 * time.Second)
	eventually(t, func() bool { return len(f.evictedCodes()) == 1 }, "room grace lapses")

	require.Equal(t, []string{"ABC234"}, f.evictedCodes())

	f.store.mu.Lock()
	final := f.store.snapshots[len(f.store.snapshots)-1]
	f.store.mu.Unlock()
	require.Equal(t, models.TimerStudy, final.Status, "the timer state outlives the room")

	// The actor is gone; synchronous reads fall back instead of hanging.
	require.Equal(t, models.TimerIdle, f.room.TimerState().Status)
	require.Zero(t, f.room.MemberCount())
}

func TestRoomReconnectCancelsEviction(t *testing.T) {
	f := newRoomFixture(t, models.Settings{})
	alice := &recorderSink{id: "c-alice"}
	f.join("alice", "c-alice", alice)
	f.flush(t)

	f.room.Disconnect("c-alice")
	f.flush(t)
	f.clock.Advance(3 * time.Second)

	alice2 := &recorderSink{id: "c-alice-2"}
	f.join("alice", "c-alice-2", alice2)
	f.flush(t)
	f.clock.Advance(time.Hour)
	f.flush(t)

	require.Empty(t, f.evictedCodes())
	require.Equal(t, 1, f.room.MemberCount())
}

func TestRoomTimerActions(t *testing.T) {
	f := newRoomFixture(t, models.Settings{})
	alice := &recorderSink{id: "c-alice"}
	bob := &recorderSink{id: "c-bob"}
	f.join("alice", "c-alice", alice)
	f.join("bob", "c-bob", bob)

	f.submit("alice", "c-alice", alice, models.WSMessage{Event: ActionTimerStart, Mode: models.TimerStudy, Duration: 1500})
	f.flush(t)

	for _, sink := range []*recorderSink{alice, bob} {
		started := sink.named(EventTimerStarted)
		require.Len(t, started, 1, "timer events reach every member including the actor's sender")
		ev := started[0].Payload.(TimerEvent)
		require.Equal(t, "alice", ev.By)
		require.Equal(t, 1500, ev.Timer.TimeLeft)
	}

	f.clock.Advance(10 * time.Second)
	require.Equal(t, 1490, f.room.TimerState().TimeLeft)

	f.submit("bob", "c-bob", bob, models.WSMessage{Event: ActionTimerPause})
	f.submit("bob", "c-bob", bob, models.WSMessage{Event: ActionTimerStart, Mode: "nap", Duration: 10})
	f.flush(t)
	require.Equal(t, 1490, f.room.TimerState().TimeLeft)
	require.Equal(t, "validation", bob.named(EventError)[0].Payload.(ErrorEvent).Code)

	f.store.mu.Lock()
	persisted := len(f.store.snapshots)
	f.store.mu.Unlock()
	require.Equal(t, 2, persisted, "each applied transition is snapshotted")
}

func TestRoomTimerExpiryAutoAdvances(t *testing.T) {
	f := newRoomFixture(t, models.Settings{
		StudyDurationSeconds: 60,
		BreakDurationSeconds: 30,
		AutoStartTimer:       true,
	})
	alice := &recorderSink{id: "c-alice"}
	f.join("alice", "c-alice", alice)
	f.submit("alice", "c-alice", alice, models.WSMessage{Event: ActionTimerStart, Mode: models.TimerStudy})
	f.flush(t)

	f.clock.Advance(60 * time.Second)
	eventually(t, func() bool { return alice.count(EventTimerStarted) == 2 }, "study flips to break")
	f.flush(t)

	started := alice.named(EventTimerStarted)
	auto := started[1].Payload.(TimerEvent)
	require.Equal(t, models.TimerBreak, auto.Timer.Status)
	require.Equal(t, 30, auto.Timer.TimeLeft)
	require.Empty(t, auto.By, "nobody pressed the button")

	msgs := alice.named(EventNewMessage)
	require.Len(t, msgs, 1)
	require.Equal(t, models.MessageSystem, msgs[0].Payload.(models.Message).Kind)

	// The break runs out too and study resumes, counting a fresh cycle.
	f.clock.Advance(30 * time.Second)
	eventually(t, func() bool { return alice.count(EventTimerStarted) == 3 }, "break flips back to study")
	started = alice.named(EventTimerStarted)
	require.Equal(t, models.TimerStudy, started[2].Payload.(TimerEvent).Timer.Status)
	require.Equal(t, 2, started[2].Payload.(TimerEvent).Timer.CyclesCompleted)
}

func TestRoomTimerExpiryParksWithoutAutoStart(t *testing.T) {
	f := newRoomFixture(t, models.Settings{StudyDurationSeconds: 60})
	alice := &recorderSink{id: "c-alice"}
	f.join("alice", "c-alice", alice)
	f.submit("alice", "c-alice", alice, models.WSMessage{Event: ActionTimerStart, Mode: models.TimerStudy})
	f.flush(t)

	f.clock.Advance(90 * time.Second)
	eventually(t, func() bool { return alice.count(EventTimerUpdated) == 1 }, "expiry is announced")

	require.Equal(t, 1, alice.count(EventTimerStarted), "no transition happens on its own")
	updated := alice.named(EventTimerUpdated)
	ev := updated[0].Payload.(TimerEvent)
	require.Zero(t, ev.Timer.TimeLeft)
	require.True(t, ev.Timer.Expired)
	require.Equal(t, models.TimerStudy, ev.Timer.Status)
}

func TestRoomPauseDisarmsExpiryWakeup(t *testing.T) {
	f := newRoomFixture(t, models.Settings{StudyDurationSeconds: 60, AutoStartTimer: true})
	alice := &recorderSink{id: "c-alice"}
	f.join("alice", "c-alice", alice)
	f.submit("alice", "c-alice", alice, models.WSMessage{Event: ActionTimerStart, Mode: models.TimerStudy})
	f.flush(t)

	f.clock.Advance(30 * time.Second)
	f.submit("alice", "c-alice", alice, models.WSMessage{Event: ActionTimerPause})
	f.flush(t)
	f.clock.Advance(time.Hour)
	f.flush(t)

	require.Equal(t, 1, alice.count(EventTimerStarted), "a paused timer never expires")
	snap := f.room.TimerState()
	require.Equal(t, models.TimerPaused, snap.Status)
	require.Equal(t, 30, snap.TimeLeft)
}

func TestRoomSurvivesPanicInQueuedWork(t *testing.T) {
	f := newRoomFixture(t, models.Settings{})
	alice := &recorderSink{id: "c-alice"}
	f.join("alice", "c-alice", alice)

	f.room.enqueue(func() { panic("boom") })
	f.submit("alice", "c-alice", alice, models.WSMessage{Event: ActionSendMessage, Content: "still here"})
	f.flush(t)

	msgs := alice.named(EventNewMessage)
	require.Len(t, msgs, 1)
	require.Equal(t, "still here", msgs[0].Payload.(models.Message).Content)
}

func TestRoomCompleteSessionTracksStreak(t *testing.T) {
	f := newRoomFixture(t, models.Settings{})
	alice := &recorderSink{id: "c-alice"}
	f.join("alice", "c-alice", alice)

	f.submit("alice", "c-alice", alice, models.WSMessage{Event: ActionComplete, Duration: 1500})
	f.submit("alice", "c-alice", alice, models.WSMessage{Event: ActionComplete, Duration: 1500})
	f.flush(t)

	done := alice.named(EventSessionDone)
	require.Len(t, done, 2)
	require.Equal(t, 1, done[0].Payload.(SessionCompletedEvent).Streak)
	require.Equal(t, 2, done[1].Payload.(SessionCompletedEvent).Streak)
}
