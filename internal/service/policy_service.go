package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/hallpass-api/internal/models"
	appErrors "github.com/noah-isme/hallpass-api/pkg/errors"
)

type policyRepository interface {
	ClassroomPolicy(ctx context.Context, locationID string) (*models.ClassroomPolicy, error)
	UpsertClassroomPolicy(ctx context.Context, policy *models.ClassroomPolicy) error
	OverridesFor(ctx context.Context, studentID, locationID string) ([]models.StudentPolicyOverride, error)
	UpsertOverride(ctx context.Context, override *models.StudentPolicyOverride) error
	DeleteOverride(ctx context.Context, studentID, locationID string) error
}

type restrictionReader interface {
	ActiveFor(ctx context.Context, studentID string, now time.Time) ([]models.Restriction, error)
}

type groupReader interface {
	GroupsFor(ctx context.Context, studentID string) ([]models.Group, error)
}

// PolicyService combines restrictions, group membership, classroom defaults
// and per-student overrides into one allow/deny/require-approval decision.
// Evaluation never mutates state; all inputs are read-only snapshots taken
// per call.
type PolicyService struct {
	repo         policyRepository
	restrictions restrictionReader
	groups       groupReader
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewPolicyService constructs the service.
func NewPolicyService(repo policyRepository, restrictions restrictionReader, groups groupReader, validate *validator.Validate, logger *zap.Logger) *PolicyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &PolicyService{repo: repo, restrictions: restrictions, groups: groups, validator: validate, logger: logger}
	svc.validator.RegisterValidation("policy_rule", func(fl validator.FieldLevel) bool {
		return models.PolicyRule(fl.Field().String()).Valid()
	})
	return svc
}

// Evaluate runs the precedence ladder for one creation request:
//
//  1. live restrictions deny outright;
//  2. negative group membership floors the outcome at REQUIRE_APPROVAL;
//  3. per-student overrides, falling back to classroom defaults, resolve the
//     leave rule at the origin and the arrive rule at the destination (and the
//     staff-request rule at the destination for staff-requested passes);
//  4. resolved fields combine stricter-wins;
//  5. positive group membership relaxes REQUIRE_APPROVAL to ALLOW, unless the
//     negative floor from step 2 holds; a negative floor is never relaxed.
//
// A location with no configured classroom policy resolves to DISALLOW:
// missing configuration must never grant access.
func (s *PolicyService) Evaluate(ctx context.Context, ec models.EvaluationContext) (*models.PolicyEvaluationResult, error) {
	if err := s.validator.Struct(ec); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid evaluation context")
	}
	if ec.OriginLocationID == ec.DestinationLocationID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "origin and destination must differ")
	}
	now := time.Now().UTC()

	restrictions, err := s.restrictions.ActiveFor(ctx, ec.StudentID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load restrictions")
	}
	groups, err := s.groups.GroupsFor(ctx, ec.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load groups")
	}

	result := &models.PolicyEvaluationResult{
		Restrictions:     []models.Restriction{},
		ApplicableGroups: groups,
	}
	if result.ApplicableGroups == nil {
		result.ApplicableGroups = []models.Group{}
	}

	for _, restriction := range restrictions {
		if restriction.Live(now) && restriction.AppliesTo(ec.OriginLocationID, ec.DestinationLocationID) {
			result.Restrictions = append(result.Restrictions, restriction)
		}
	}
	if len(result.Restrictions) > 0 {
		result.Allowed = false
		result.Reason = fmt.Sprintf("active restriction: %s", result.Restrictions[0].Reason)
		return result, nil
	}

	hasNegative := false
	hasPositive := false
	for _, group := range groups {
		switch group.Polarity {
		case models.GroupNegative:
			hasNegative = true
		case models.GroupPositive:
			hasPositive = true
		}
	}

	leave, leavePolicy := s.resolveField(ctx, ec.StudentID, ec.OriginLocationID, fieldLeave)
	arrive, arrivePolicy := s.resolveField(ctx, ec.StudentID, ec.DestinationLocationID, fieldArrive)

	combined := models.Stricter(leave, arrive)
	decisiveLocation := ec.OriginLocationID
	decisivePolicy := leavePolicy
	reason := fmt.Sprintf("leaving %s requires %s", ec.OriginLocationID, ruleWord(leave))
	if arrive.Strictness() >= leave.Strictness() {
		decisiveLocation = ec.DestinationLocationID
		decisivePolicy = arrivePolicy
		reason = fmt.Sprintf("arriving at %s requires %s", ec.DestinationLocationID, ruleWord(arrive))
	}

	if ec.PassType == models.PassTypeStaffRequest {
		staffReq, staffPolicy := s.resolveField(ctx, ec.StudentID, ec.DestinationLocationID, fieldStaffRequest)
		if staffReq.Strictness() > combined.Strictness() {
			combined = staffReq
			decisiveLocation = ec.DestinationLocationID
			decisivePolicy = staffPolicy
			reason = fmt.Sprintf("staff requests to %s require %s", ec.DestinationLocationID, ruleWord(staffReq))
		}
	}

	// Negative membership floors the outcome; it can tighten ALLOW to
	// REQUIRE_APPROVAL but never loosen a DISALLOW from step 3.
	negativeFloor := hasNegative && combined == models.PolicyAllow
	if negativeFloor {
		combined = models.PolicyRequireApproval
		decisiveLocation = ec.DestinationLocationID
		decisivePolicy = arrivePolicy
		reason = "member of a restrictive group"
	}

	// Positive membership relaxes approval to allow, but a negative floor
	// always wins over positive relaxation.
	if hasPositive && !hasNegative && combined == models.PolicyRequireApproval {
		combined = models.PolicyAllow
		reason = "member of a permissive group"
	}

	switch combined {
	case models.PolicyDisallow:
		result.Allowed = false
		result.Reason = reason
	case models.PolicyRequireApproval:
		result.Allowed = true
		result.RequiresApproval = true
		result.Reason = reason
		if decisivePolicy != nil {
			result.ApprovalRequiredBy = decisivePolicy.ResponsibleStaff
		}
		if result.ApprovalRequiredBy == "" {
			s.logger.Warn("approval required but no responsible staff configured",
				zap.String("location_id", decisiveLocation), zap.String("student_id", ec.StudentID))
		}
	default:
		result.Allowed = true
	}
	return result, nil
}

type policyField int

const (
	fieldLeave policyField = iota
	fieldArrive
	fieldStaffRequest
)

// resolveField returns the effective rule for one field at one location:
// the student's override when it defines the field, otherwise the classroom
// default. A missing classroom policy fails closed to DISALLOW.
func (s *PolicyService) resolveField(ctx context.Context, studentID, locationID string, field policyField) (models.PolicyRule, *models.ClassroomPolicy) {
	policy, err := s.repo.ClassroomPolicy(ctx, locationID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("failed to load classroom policy, failing closed",
				zap.String("location_id", locationID), zap.Error(err))
		}
		return models.PolicyDisallow, nil
	}

	rule := policy.StudentLeave
	switch field {
	case fieldArrive:
		rule = policy.StudentArrive
	case fieldStaffRequest:
		rule = policy.StaffRequest
	}

	overrides, err := s.repo.OverridesFor(ctx, studentID, locationID)
	if err != nil {
		s.logger.Error("failed to load policy overrides, failing closed",
			zap.String("location_id", locationID), zap.Error(err))
		return models.PolicyDisallow, policy
	}
	for _, override := range overrides {
		var v *models.PolicyRule
		switch field {
		case fieldLeave:
			v = override.StudentLeave
		case fieldArrive:
			v = override.StudentArrive
		case fieldStaffRequest:
			v = override.StaffRequest
		}
		if v != nil {
			rule = *v
		}
	}
	if !rule.Valid() {
		s.logger.Warn("malformed policy rule, failing closed",
			zap.String("location_id", locationID), zap.String("rule", string(rule)))
		return models.PolicyDisallow, policy
	}
	return rule, policy
}

func ruleWord(rule models.PolicyRule) string {
	switch rule {
	case models.PolicyDisallow:
		return "denial"
	case models.PolicyRequireApproval:
		return "approval"
	default:
		return "no approval"
	}
}

// GetClassroomPolicy returns the rule triple for a location.
func (s *PolicyService) GetClassroomPolicy(ctx context.Context, locationID string) (*models.ClassroomPolicy, error) {
	policy, err := s.repo.ClassroomPolicy(ctx, locationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no classroom policy for location")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom policy")
	}
	return policy, nil
}

// SetClassroomPolicyRequest describes the update payload.
type SetClassroomPolicyRequest struct {
	StudentLeave     string `json:"student_leave" validate:"required,policy_rule"`
	StudentArrive    string `json:"student_arrive" validate:"required,policy_rule"`
	StaffRequest     string `json:"staff_request" validate:"required,policy_rule"`
	ResponsibleStaff string `json:"responsible_staff_id" validate:"required"`
}

// SetClassroomPolicy writes a location's default rule triple.
func (s *PolicyService) SetClassroomPolicy(ctx context.Context, locationID string, req SetClassroomPolicyRequest, updatedBy string) (*models.ClassroomPolicy, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid policy payload")
	}
	policy := &models.ClassroomPolicy{
		LocationID:       locationID,
		StudentLeave:     models.PolicyRule(req.StudentLeave),
		StudentArrive:    models.PolicyRule(req.StudentArrive),
		StaffRequest:     models.PolicyRule(req.StaffRequest),
		ResponsibleStaff: req.ResponsibleStaff,
		UpdatedBy:        updatedBy,
	}
	if err := s.repo.UpsertClassroomPolicy(ctx, policy); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save classroom policy")
	}
	return policy, nil
}

// SetOverrideRequest describes a per-student override payload. Omitted fields
// fall back to the classroom default.
type SetOverrideRequest struct {
	StudentLeave  *string `json:"student_leave" validate:"omitempty,policy_rule"`
	StudentArrive *string `json:"student_arrive" validate:"omitempty,policy_rule"`
	StaffRequest  *string `json:"staff_request" validate:"omitempty,policy_rule"`
}

// SetOverride writes an override for a (student, location) pair.
func (s *PolicyService) SetOverride(ctx context.Context, studentID, locationID string, req SetOverrideRequest, createdBy string) (*models.StudentPolicyOverride, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid override payload")
	}
	if req.StudentLeave == nil && req.StudentArrive == nil && req.StaffRequest == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "override must define at least one field")
	}
	override := &models.StudentPolicyOverride{
		StudentID:  studentID,
		LocationID: locationID,
		CreatedBy:  createdBy,
	}
	if req.StudentLeave != nil {
		rule := models.PolicyRule(*req.StudentLeave)
		override.StudentLeave = &rule
	}
	if req.StudentArrive != nil {
		rule := models.PolicyRule(*req.StudentArrive)
		override.StudentArrive = &rule
	}
	if req.StaffRequest != nil {
		rule := models.PolicyRule(*req.StaffRequest)
		override.StaffRequest = &rule
	}
	if err := s.repo.UpsertOverride(ctx, override); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save override")
	}
	return override, nil
}

// Overrides lists a student's overrides at one location.
func (s *PolicyService) Overrides(ctx context.Context, studentID, locationID string) ([]models.StudentPolicyOverride, error) {
	overrides, err := s.repo.OverridesFor(ctx, studentID, locationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list overrides")
	}
	return overrides, nil
}

// RemoveOverride deletes the override for a (student, location) pair.
func (s *PolicyService) RemoveOverride(ctx context.Context, studentID, locationID string) error {
	if err := s.repo.DeleteOverride(ctx, studentID, locationID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove override")
	}
	return nil
}
