package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hallpass-api/internal/models"
	appErrors "github.com/noah-isme/hallpass-api/pkg/errors"
)

type restrictionRepository interface {
	ListFor(ctx context.Context, studentID string) ([]models.Restriction, error)
	Create(ctx context.Context, restriction *models.Restriction) error
	Deactivate(ctx context.Context, id string) error
}

// RestrictionService manages standing denial rules on students. Restrictions
// are never deleted; lifting one deactivates it and the record stays for the
// audit trail.
type RestrictionService struct {
	repo      restrictionRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRestrictionService constructs the service.
func NewRestrictionService(repo restrictionRepository, validate *validator.Validate, logger *zap.Logger) *RestrictionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RestrictionService{repo: repo, validator: validate, logger: logger}
}

// CreateRestrictionRequest describes a new restriction payload.
type CreateRestrictionRequest struct {
	Scope      string     `json:"scope" validate:"required,oneof=GLOBAL CLASS_LEVEL"`
	LocationID *string    `json:"location_id,omitempty"`
	Reason     string     `json:"reason" validate:"required,max=500"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// ListFor returns a student's restrictions, active and lifted.
func (s *RestrictionService) ListFor(ctx context.Context, studentID string) ([]models.Restriction, error) {
	restrictions, err := s.repo.ListFor(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list restrictions")
	}
	return restrictions, nil
}

// Create attaches a restriction to a student.
func (s *RestrictionService) Create(ctx context.Context, studentID string, req CreateRestrictionRequest, createdBy string) (*models.Restriction, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid restriction payload")
	}
	scope := models.RestrictionScope(req.Scope)
	if scope == models.RestrictionClassLevel && (req.LocationID == nil || *req.LocationID == "") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class-level restrictions require a location")
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expiry must be in the future")
	}
	restriction := &models.Restriction{
		StudentID:  studentID,
		Scope:      scope,
		LocationID: req.LocationID,
		Reason:     req.Reason,
		IsActive:   true,
		ExpiresAt:  req.ExpiresAt,
		CreatedBy:  createdBy,
	}
	if err := s.repo.Create(ctx, restriction); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create restriction")
	}
	s.logger.Info("restriction created",
		zap.String("student_id", studentID),
		zap.String("scope", req.Scope),
		zap.String("created_by", createdBy))
	return restriction, nil
}

// Lift deactivates a restriction.
func (s *RestrictionService) Lift(ctx context.Context, id string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lift restriction")
	}
	return nil
}
