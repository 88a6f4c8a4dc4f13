package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/models"
	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/session"
	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/store"
)

// GroupStore is the durable side of groups and membership, consulted by the
// synchronous request/response boundary.
type GroupStore interface {
	CreateGroup(ctx context.Context, g models.Group) error
	GroupByCode(ctx context.Context, code string) (*models.Group, error)
	GroupCodeExists(ctx context.Context, code string) (bool, error)
	GroupsForUser(ctx context.Context, userID string) ([]models.Group, error)
	AddMember(ctx context.Context, groupID, userID, username string, host bool) (bool, error)
	MemberCount(ctx context.Context, groupID string) (int, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
}

// GroupService is the synchronous room lookup/creation boundary. Everything
// past it is event-driven through the session registry.
type GroupService struct {
	store    GroupStore
	registry *session.Registry
}

func NewGroupService(s GroupStore, registry *session.Registry) *GroupService {
	return &GroupService{store: s, registry: registry}
}

// CreateGroup persists a new group under a freshly generated join code and
// brings its live session up with the creator as host.
func (s *GroupService) CreateGroup(ctx context.Context, creatorID, creatorName string, req models.CreateGroupRequest) (*models.Group, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, errors.New("group name is required")
	}

	code, err := s.registry.NewCode(func(code string) bool {
		exists, err := s.store.GroupCodeExists(ctx, code)
		if err != nil {
			log.Error().Err(err).Msg("code existence check failed")
			// Treat lookup failure as a collision; the loop is bounded.
			return true
		}
		return exists
	})
	if err != nil {
		return nil, err
	}

	group := models.Group{
		ID:          uuid.New().String(),
		Code:        code,
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   creatorID,
		IsPrivate:   req.IsPrivate,
		Settings:    req.Settings.WithDefaults(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateGroup(ctx, group); err != nil {
		return nil, err
	}
	if _, err := s.store.AddMember(ctx, group.ID, creatorID, creatorName, true); err != nil {
		return nil, err
	}

	if _, err := s.registry.Create(group); err != nil {
		// A live session under this fresh code means the registry and store
		// disagree; log it, the durable group still exists.
		log.Error().Err(err).Str("code", code).Msg("could not start live session")
	}

	log.Info().Str("code", code).Str("creator", creatorID).Msg("group created")
	return &group, nil
}

// FindGroup looks a group up by its shareable code.
func (s *GroupService) FindGroup(ctx context.Context, code string) (*models.Group, error) {
	group, err := s.store.GroupByCode(ctx, normalize(code))
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return nil, fmt.Errorf("group %s: %w", code, session.ErrNotFound)
		}
		return nil, err
	}
	return group, nil
}

// JoinGroup enrolls a user in a group. Rejoining is an idempotent no-op on
// membership; a full group is rejected without mutation.
func (s *GroupService) JoinGroup(ctx context.Context, code, userID, username string) (*models.JoinGroupResponse, error) {
	group, err := s.FindGroup(ctx, code)
	if err != nil {
		return nil, err
	}

	member, err := s.store.IsMember(ctx, group.ID, userID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.MemberCount(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	if !member && count >= group.Settings.MaxMembers {
		return nil, fmt.Errorf("group %s: %w", code, session.ErrCapacity)
	}

	if _, err := s.store.AddMember(ctx, group.ID, userID, username, false); err != nil {
		return nil, err
	}
	if !member {
		count++
	}

	return &models.JoinGroupResponse{
		Group:       *group,
		MemberCount: count,
		Rejoined:    member,
	}, nil
}

// ListUserGroups returns the groups a user belongs to, newest first.
func (s *GroupService) ListUserGroups(ctx context.Context, userID string) ([]models.Group, error) {
	return s.store.GroupsForUser(ctx, userID)
}

// Session returns the live room for a group code, hydrating it from the
// durable summary when needed.
func (s *GroupService) Session(ctx context.Context, code string) (*session.Room, error) {
	if room, err := s.registry.Get(code); err == nil {
		return room, nil
	}
	group, err := s.FindGroup(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.registry.GetOrCreate(*group), nil
}

// TimerSnapshot reads the authoritative timer state for a group.
func (s *GroupService) TimerSnapshot(ctx context.Context, code string) (models.TimerSnapshot, error) {
	room, err := s.Session(ctx, code)
	if err != nil {
		return models.TimerSnapshot{}, err
	}
	return room.TimerState(), nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
