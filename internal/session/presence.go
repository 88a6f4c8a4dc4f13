package session

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/models"
)

// Member is one user's presence within a room. A user may hold several live
// connection handles (two tabs); they are active while at least one is open.
// At most one Member exists per (room, user) pair.
type Member struct {
	UserID   string
	Username string
	JoinedAt time.Time
	Host     bool
	Focus    string
	Typing   bool
	Streak   int

	handles map[string]struct{}
	grace   clockwork.Timer
}

func (m *Member) Active() bool { return len(m.handles) > 0 }

func (m *Member) Info() models.MemberInfo {
	return models.MemberInfo{
		UserID:      m.UserID,
		Username:    m.Username,
		IsHost:      m.Host,
		FocusStatus: m.Focus,
		Typing:      m.Typing,
		Streak:      m.Streak,
		Active:      m.Active(),
		JoinedAt:    m.JoinedAt,
	}
}

// presence tracks a room's members and their connection handles. It is only
// touched from the room actor goroutine, so it carries no locks. Grace
// timers fire through onExpire, which the room wires back into its inbox to
// keep mutations serialized.
type presence struct {
	clock    clockwork.Clock
	grace    time.Duration
	members  map[string]*Member
	order    []string
	onExpire func(userID string)
}

func newPresence(clock clockwork.Clock, grace time.Duration, onExpire func(string)) *presence {
	return &presence{
		clock:    clock,
		grace:    grace,
		members:  make(map[string]*Member),
		onExpire: onExpire,
	}
}

// connect registers a handle for a user, creating the member record on first
// join and refreshing it on re-join. A pending departure is cancelled.
func (p *presence) connect(userID, username, connID string) (*Member, bool) {
	m, ok := p.members[userID]
	if ok {
		if username != "" {
			m.Username = username
		}
		if m.grace != nil {
			m.grace.Stop()
			m.grace = nil
		}
		if !m.Active() {
			m.Focus = models.FocusFocusing
		}
		m.handles[connID] = struct{}{}
		return m, false
	}
	m = &Member{
		UserID:   userID,
		Username: username,
		JoinedAt: p.clock.Now(),
		Focus:    models.FocusFocusing,
		handles:  map[string]struct{}{connID: {}},
	}
	p.members[userID] = m
	p.order = append(p.order, userID)
	return m, true
}

// disconnect closes one handle. Closing the last handle starts the grace
// timer; the member is not removed until it expires without a reconnect.
func (p *presence) disconnect(connID string) (*Member, bool) {
	for _, m := range p.members {
		if _, ok := m.handles[connID]; !ok {
			continue
		}
		delete(m.handles, connID)
		if m.Active() {
			return m, false
		}
		uid := m.UserID
		m.grace = p.clock.AfterFunc(p.grace, func() { p.onExpire(uid) })
		return m, true
	}
	return nil, false
}

// expire finalizes a departure after the grace period. Returns the purged
// member, or nil if the user reconnected in the meantime. Fires at most once
// per departure: the record is removed here, and reconnects cancel the timer.
func (p *presence) expire(userID string) *Member {
	m, ok := p.members[userID]
	if !ok || m.Active() {
		return nil
	}
	m.Focus = models.FocusAway
	delete(p.members, userID)
	for i, id := range p.order {
		if id == userID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return m
}

func (p *presence) get(userID string) (*Member, bool) {
	m, ok := p.members[userID]
	return m, ok
}

// listActive returns user ids with at least one open handle, in join order,
// never repeating an id.
func (p *presence) listActive() []string {
	active := make([]string, 0, len(p.order))
	for _, id := range p.order {
		if m, ok := p.members[id]; ok && m.Active() {
			active = append(active, id)
		}
	}
	return active
}

// infos returns every member record (connected or in grace) in join order.
func (p *presence) infos() []models.MemberInfo {
	out := make([]models.MemberInfo, 0, len(p.order))
	for _, id := range p.order {
		if m, ok := p.members[id]; ok {
			out = append(out, m.Info())
		}
	}
	return out
}

func (p *presence) count() int { return len(p.members) }

// host returns the current host, if any.
func (p *presence) host() *Member {
	for _, m := range p.members {
		if m.Host {
			return m
		}
	}
	return nil
}

// transferHost hands the host role to the longest-joined remaining member.
// The host role is never unset while the room has members.
func (p *presence) transferHost() *Member {
	var next *Member
	for _, id := range p.order {
		m, ok := p.members[id]
		if !ok {
			continue
		}
		if next == nil || m.JoinedAt.Before(next.JoinedAt) {
			next = m
		}
	}
	if next != nil {
		next.Host = true
	}
	return next
}

// stopTimers cancels all pending grace timers; used on room teardown.
func (p *presence) stopTimers() {
	for _, m := range p.members {
		if m.grace != nil {
			m.grace.Stop()
			m.grace = nil
		}
	}
}
