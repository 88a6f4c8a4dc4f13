package session

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/models"
)

// Join codes: 6 characters, ambiguous glyphs (I, O, 0, 1) excluded.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
	// codeAttempts bounds the collision-regeneration loop. With a 32^6
	// space it should never trip; if it does, something is badly wrong and
	// we surface an internal error instead of spinning.
	codeAttempts = 10
)

const (
	DefaultPresenceGrace = 30 * time.Second
	DefaultRoomGrace     = 60 * time.Second
)

// Registry maps join codes to live rooms. It is the only structure in the
// core mutated from multiple goroutines; everything behind it is serialized
// per room.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	clock         clockwork.Clock
	store         Persister
	presenceGrace time.Duration
	roomGrace     time.Duration
}

// Option tweaks registry behavior; used by tests to shorten grace periods.
type Option func(*Registry)

func WithGracePeriods(presence, room time.Duration) Option {
	return func(g *Registry) {
		g.presenceGrace = presence
		g.roomGrace = room
	}
}

func NewRegistry(clock clockwork.Clock, store Persister, opts ...Option) *Registry {
	g := &Registry{
		rooms:         make(map[string]*Room),
		clock:         clock,
		store:         store,
		presenceGrace: DefaultPresenceGrace,
		roomGrace:     DefaultRoomGrace,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Create brings a room live for a known group. A live room with the same
// code is a conflict.
func (g *Registry) Create(group models.Group) (*Room, error) {
	group.Settings = group.Settings.WithDefaults()
	g.mu.Lock()
	defer g.mu.Unlock()
	code := normalizeCode(group.Code)
	if _, exists := g.rooms[code]; exists {
		return nil, fmt.Errorf("room %s already live: %w", code, ErrConflict)
	}
	room := g.newRoomLocked(group)
	g.rooms[code] = room
	return room, nil
}

// GetOrCreate returns the live room for a group, hydrating one from its
// durable summary when no live state exists yet.
func (g *Registry) GetOrCreate(group models.Group) *Room {
	code := normalizeCode(group.Code)
	g.mu.RLock()
	room, ok := g.rooms[code]
	g.mu.RUnlock()
	if ok {
		return room
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if room, ok := g.rooms[code]; ok {
		return room
	}
	group.Settings = group.Settings.WithDefaults()
	room = g.newRoomLocked(group)
	g.rooms[code] = room
	log.Info().Str("room", code).Msg("session hydrated")
	return room
}

func (g *Registry) Get(code string) (*Room, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	room, ok := g.rooms[normalizeCode(code)]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", code, ErrNotFound)
	}
	return room, nil
}

func (g *Registry) Remove(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms, normalizeCode(code))
}

// NewCode generates a collision-free join code. taken reports codes in use
// beyond the live registry (i.e. the durable store). The retry loop is
// bounded; exhaustion is an internal error, not a hang.
func (g *Registry) NewCode(taken func(code string) bool) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := randomCode()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInternal, err)
		}
		g.mu.RLock()
		_, live := g.rooms[code]
		g.mu.RUnlock()
		if live {
			continue
		}
		if taken != nil && taken(code) {
			continue
		}
		return code, nil
	}
	return "", fmt.Errorf("%w: join code space exhausted after %d attempts", ErrInternal, codeAttempts)
}

// Drain tears down every live room; used on process shutdown.
func (g *Registry) Drain() {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.rooms = make(map[string]*Room)
	g.mu.Unlock()

	for _, r := range rooms {
		r.Close()
	}
	log.Info().Int("rooms", len(rooms)).Msg("registry drained")
}

func (g *Registry) newRoomLocked(group models.Group) *Room {
	return newRoom(group, roomConfig{
		clock:         g.clock,
		store:         g.store,
		presenceGrace: g.presenceGrace,
		roomGrace:     g.roomGrace,
		onEvict:       g.Remove,
	})
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func randomCode() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
