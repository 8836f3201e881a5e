package service

import (
	"context"
	"strings"

	"github.com/knowledgehub/kms-backend/internal/kms/repository"
	"github.com/knowledgehub/kms-backend/pkg/actor"
	"github.com/knowledgehub/kms-backend/pkg/errors"
	"github.com/knowledgehub/kms-backend/pkg/logger"
)

// SpaceService manages spaces and their memberships.
type SpaceService struct {
	spaces *repository.SpaceRepository
	users  *repository.UserCacheRepository
	logger *logger.Logger
}

// NewSpaceService creates the space service
func NewSpaceService(spaces *repository.SpaceRepository, users *repository.UserCacheRepository, log *logger.Logger) *SpaceService {
	return &SpaceService{
		spaces: spaces,
		users:  users,
		logger: log.WithComponent("spaces"),
	}
}

// SpaceInput carries space create/update fields.
type SpaceInput struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Type        string `json:"type" validate:"required,oneof=department project community personal"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"is_private"`
}

var validSpaceTypes = map[string]bool{
	"department": true,
	"project":    true,
	"community":  true,
	"personal":   true,
}

func validMemberRole(role string) bool {
	switch role {
	case repository.RoleOwner, repository.RoleModerator, repository.RoleContributor, repository.RoleViewer:
		return true
	}
	return false
}

// requireMember verifies the actor may see the space. Public spaces
// are visible to any authenticated user; private ones to members only.
func (s *SpaceService) requireMember(ctx context.Context, space *repository.Space) error {
	if !space.IsPrivate {
		return nil
	}

	a, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if a.IsSystem() {
		return nil
	}

	if _, err := s.spaces.GetMember(ctx, space.ID, a.ID); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return errors.Forbidden("this space is private")
		}
		return err
	}

	return nil
}

// requireManager verifies the actor is an owner or moderator of the
// space. Membership mutations and space edits are limited to them.
func (s *SpaceService) requireManager(ctx context.Context, spaceID string) error {
	a, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if a.IsSystem() {
		return nil
	}

	member, err := s.spaces.GetMember(ctx, spaceID, a.ID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return errors.Forbidden("only space owners and moderators may do this")
		}
		return err
	}
	if member.Role != repository.RoleOwner && member.Role != repository.RoleModerator {
		return errors.Forbidden("only space owners and moderators may do this")
	}

	return nil
}

// Create creates a space with the caller as its first owner.
func (s *SpaceService) Create(ctx context.Context, input SpaceInput) (*repository.Space, error) {
	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, errors.Validation(map[string]string{"name": "must not be empty"})
	}
	if !validSpaceTypes[input.Type] {
		return nil, errors.Validation(map[string]string{"type": "must be one of: department, project, community, personal"})
	}

	space := &repository.Space{
		Name:        name,
		Type:        input.Type,
		Description: input.Description,
		IsPrivate:   input.IsPrivate,
		CreatedBy:   &a.ID,
	}
	if err := s.spaces.Create(ctx, space); err != nil {
		return nil, err
	}

	s.logger.Info().Str("space_id", space.ID).Str("type", space.Type).Msg("space created")
	return space, nil
}

// Update changes a space's name, description or privacy flag
func (s *SpaceService) Update(ctx context.Context, id string, input SpaceInput) (*repository.Space, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}

	space, err := s.spaces.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireManager(ctx, id); err != nil {
		return nil, err
	}

	space.Name = strings.TrimSpace(input.Name)
	space.Description = input.Description
	space.IsPrivate = input.IsPrivate
	if err := s.spaces.Update(ctx, space); err != nil {
		return nil, err
	}

	return space, nil
}

// Get returns one space. Private spaces are visible to members only.
func (s *SpaceService) Get(ctx context.Context, id string) (*repository.Space, error) {
	space, err := s.spaces.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, space); err != nil {
		return nil, err
	}
	return space, nil
}

// List returns the spaces visible to the caller: all public spaces
// plus the private ones they belong to.
func (s *SpaceService) List(ctx context.Context) ([]*repository.Space, error) {
	a := actor.FromContext(ctx)
	if a.IsSystem() {
		return s.spaces.List(ctx)
	}
	return s.spaces.ListVisible(ctx, a.ID)
}

// Members returns a space's member list
func (s *SpaceService) Members(ctx context.Context, spaceID string) ([]*repository.SpaceMember, error) {
	space, err := s.spaces.GetByID(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, space); err != nil {
		return nil, err
	}
	return s.spaces.ListMembers(ctx, spaceID)
}

// AddMember adds a user to a space. The user must be known to the
// local user cache and the caller must manage the space.
func (s *SpaceService) AddMember(ctx context.Context, spaceID, userID, role string) (*repository.SpaceMember, error) {
	if !validMemberRole(role) {
		return nil, errors.Validation(map[string]string{"role": "must be one of: owner, moderator, contributor, viewer"})
	}

	if _, err := s.spaces.GetByID(ctx, spaceID); err != nil {
		return nil, err
	}
	if err := s.requireManager(ctx, spaceID); err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	member := &repository.SpaceMember{
		SpaceID: spaceID,
		UserID:  userID,
		Role:    role,
	}
	if err := s.spaces.AddMember(ctx, member); err != nil {
		return nil, err
	}

	return member, nil
}

// UpdateMemberRole changes a member's role, refusing to demote the
// last owner.
func (s *SpaceService) UpdateMemberRole(ctx context.Context, spaceID, userID, role string) error {
	if !validMemberRole(role) {
		return errors.Validation(map[string]string{"role": "must be one of: owner, moderator, contributor, viewer"})
	}

	if err := s.requireManager(ctx, spaceID); err != nil {
		return err
	}

	return s.spaces.UpdateMemberRole(ctx, spaceID, userID, role)
}

// RemoveMember removes a user from a space, refusing to drop the last
// owner.
func (s *SpaceService) RemoveMember(ctx context.Context, spaceID, userID string) error {
	if err := s.requireManager(ctx, spaceID); err != nil {
		return err
	}

	return s.spaces.RemoveMember(ctx, spaceID, userID)
}
