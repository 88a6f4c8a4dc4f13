package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/models"
	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/session"
	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/store"
)

type membership struct {
	userID string
	host   bool
}

// fakeGroupStore is an in-memory GroupStore for service tests.
type fakeGroupStore struct {
	mu      sync.Mutex
	groups  map[string]models.Group // keyed by code
	members map[string][]membership // keyed by group id
}

func newFakeGroupStore() *fakeGroupStore {
	return &fakeGroupStore{
		groups:  make(map[string]models.Group),
		members: make(map[string][]membership),
	}
}

func (f *fakeGroupStore) CreateGroup(_ context.Context, g models.Group) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[g.Code] = g
	return nil
}

func (f *fakeGroupStore) GroupByCode(_ context.Context, code string) (*models.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[code]
	if !ok {
		return nil, store.ErrNoRows
	}
	return &g, nil
}

func (f *fakeGroupStore) GroupCodeExists(_ context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.groups[code]
	return ok, nil
}

func (f *fakeGroupStore) GroupsForUser(_ context.Context, userID string) ([]models.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Group
	for _, g := range f.groups {
		for _, m := range f.members[g.ID] {
			if m.userID == userID {
				out = append(out, g)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeGroupStore) AddMember(_ context.Context, groupID, userID, _ string, host bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members[groupID] {
		if m.userID == userID {
			return false, nil
		}
	}
	f.members[groupID] = append(f.members[groupID], membership{userID: userID, host: host})
	return true, nil
}

func (f *fakeGroupStore) MemberCount(_ context.Context, groupID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.members[groupID]), nil
}

func (f *fakeGroupStore) IsMember(_ context.Context, groupID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members[groupID] {
		if m.userID == userID {
			return true, nil
		}
	}
	return false, nil
}

type dropPersister struct{}

func (dropPersister) AppendMessage(models.Message)               {}
func (dropPersister) UpsertTask(string, models.Task)             {}
func (dropPersister) DeleteTask(string, string)                  {}
func (dropPersister) SnapshotTimer(string, models.TimerSnapshot) {}

func newTestGroupService(t *testing.T) (*GroupService, *fakeGroupStore) {
	t.Helper()
	st := newFakeGroupStore()
	registry := session.NewRegistry(clockwork.NewFakeClock(), dropPersister{},
		session.WithGracePeriods(time.Second, 2*time.Second))
	t.Cleanup(registry.Drain)
	return NewGroupService(st, registry), st
}

func TestCreateGroupStartsLiveSession(t *testing.T) {
	svc, st := newTestGroupService(t)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, "u-1", "alice", models.CreateGroupRequest{
		Name: "  thermo study hall  ",
	})
	require.NoError(t, err)
	require.Len(t, group.Code, 6)
	require.Equal(t, "thermo study hall", group.Name)
	require.Equal(t, models.DefaultMaxMembers, group.Settings.MaxMembers)

	host, err := st.IsMember(ctx, group.ID, "u-1")
	require.NoError(t, err)
	require.True(t, host, "the creator is enrolled immediately")

	room, err := svc.Session(ctx, group.Code)
	require.NoError(t, err)
	require.Equal(t, group.Code, room.Code())
}

func TestCreateGroupRequiresName(t *testing.T) {
	svc, _ := newTestGroupService(t)
	_, err := svc.CreateGroup(context.Background(), "u-1", "alice", models.CreateGroupRequest{Name: "   "})
	require.Error(t, err)
}

func TestJoinGroupIdempotentAndBounded(t *testing.T) {
	svc, _ := newTestGroupService(t)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, "u-1", "alice", models.CreateGroupRequest{
		Name:     "crammers",
		Settings: models.Settings{MaxMembers: 2},
	})
	require.NoError(t, err)

	resp, err := svc.JoinGroup(ctx, group.Code, "u-2", "bob")
	require.NoError(t, err)
	require.False(t, resp.Rejoined)
	require.Equal(t, 2, resp.MemberCount)

	// Joining again changes nothing.
	resp, err = svc.JoinGroup(ctx, group.Code, "u-2", "bob")
	require.NoError(t, err)
	require.True(t, resp.Rejoined)
	require.Equal(t, 2, resp.MemberCount)

	_, err = svc.JoinGroup(ctx, group.Code, "u-3", "carol")
	require.ErrorIs(t, err, session.ErrCapacity)

	_, err = svc.JoinGroup(ctx, "ZZZZZZ", "u-3", "carol")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestFindGroupNormalizesCode(t *testing.T) {
	svc, _ := newTestGroupService(t)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, "u-1", "alice", models.CreateGroupRequest{Name: "quiet car"})
	require.NoError(t, err)

	found, err := svc.FindGroup(ctx, "  "+group.Code+" ")
	require.NoError(t, err)
	require.Equal(t, group.ID, found.ID)
}

func TestSessionHydratesFromDurableStore(t *testing.T) {
	svc, st := newTestGroupService(t)
	ctx := context.Background()

	// A group that exists durably but has no live room yet, as after a
	// process restart.
	require.NoError(t, st.CreateGroup(ctx, models.Group{
		ID:   "g-cold",
		Code: "COLD42",
		Name: "night owls",
	}))

	room, err := svc.Session(ctx, "cold42")
	require.NoError(t, err)
	require.Equal(t, "COLD42", room.Code())

	again, err := svc.Session(ctx, "COLD42")
	require.NoError(t, err)
	require.Same(t, room, again)

	snap, err := svc.TimerSnapshot(ctx, "COLD42")
	require.NoError(t, err)
	require.Equal(t, models.TimerIdle, snap.Status)
}
