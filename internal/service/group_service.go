package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hallpass-api/internal/models"
	appErrors "github.com/noah-isme/hallpass-api/pkg/errors"
)

type groupRepository interface {
	List(ctx context.Context) ([]models.Group, error)
	FindByID(ctx context.Context, id string) (*models.Group, error)
	Create(ctx context.Context, group *models.Group) error
	Update(ctx context.Context, group *models.Group) error
	Delete(ctx context.Context, id string) error
	AddMember(ctx context.Context, member *models.GroupMember) error
	RemoveMember(ctx context.Context, groupID, studentID string) error
}

// GroupService manages staff-curated student cohorts.
type GroupService struct {
	repo      groupRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGroupService constructs the service.
func NewGroupService(repo groupRepository, validate *validator.Validate, logger *zap.Logger) *GroupService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupService{repo: repo, validator: validate, logger: logger}
}

// GroupRequest describes a create or update payload.
type GroupRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Polarity string `json:"polarity" validate:"required,oneof=POSITIVE NEGATIVE"`
}

// List returns all groups.
func (s *GroupService) List(ctx context.Context) ([]models.Group, error) {
	groups, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
	}
	return groups, nil
}

// Get returns one group.
func (s *GroupService) Get(ctx context.Context, id string) (*models.Group, error) {
	group, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	return group, nil
}

// Create creates a group owned by the calling staff member.
func (s *GroupService) Create(ctx context.Context, req GroupRequest, ownerID string) (*models.Group, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid group payload")
	}
	group := &models.Group{
		Name:     req.Name,
		Polarity: models.GroupPolarity(req.Polarity),
		OwnerID:  ownerID,
	}
	if err := s.repo.Create(ctx, group); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create group")
	}
	return group, nil
}

// Update renames or re-polarises a group.
func (s *GroupService) Update(ctx context.Context, id string, req GroupRequest) (*models.Group, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid group payload")
	}
	group, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	group.Name = req.Name
	group.Polarity = models.GroupPolarity(req.Polarity)
	if err := s.repo.Update(ctx, group); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update group")
	}
	return group, nil
}

// Delete removes a group and its memberships.
func (s *GroupService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete group")
	}
	return nil
}

// AddMember enrols a student into a group. Adding an existing member is a
// no-op.
func (s *GroupService) AddMember(ctx context.Context, groupID, studentID, addedBy string) error {
	if studentID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	if _, err := s.Get(ctx, groupID); err != nil {
		return err
	}
	member := &models.GroupMember{
		GroupID:   groupID,
		StudentID: studentID,
		AddedBy:   addedBy,
		AddedAt:   time.Now().UTC(),
	}
	if err := s.repo.AddMember(ctx, member); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add group member")
	}
	return nil
}

// RemoveMember drops a student from a group.
func (s *GroupService) RemoveMember(ctx context.Context, groupID, studentID string) error {
	if err := s.repo.RemoveMember(ctx, groupID, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove group member")
	}
	return nil
}
