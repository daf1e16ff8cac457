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

type passRepository interface {
	Create(ctx context.Context, pass *models.Pass, firstLeg *models.Leg) error
	FindByID(ctx context.Context, id string) (*models.Pass, error)
	FindOpenByStudent(ctx context.Context, studentID string) (*models.Pass, error)
	MarkArrived(ctx context.Context, passID string, expectedLeg int, at time.Time) error
	AppendLeg(ctx context.Context, passID string, expectedLegCount int, leg *models.Leg) error
	Close(ctx context.Context, passID string, expectedLegCount int, closedBy, reason string, closedAt time.Time, durationMinutes int) error
	Approve(ctx context.Context, passID string, at time.Time) error
	Reject(ctx context.Context, passID, rejectedBy, reason string, at time.Time) error
	Claim(ctx context.Context, passID, userID, displayName string, at time.Time) error
	List(ctx context.Context, filter models.PassFilter) ([]models.Pass, int, error)
}

type policyEvaluator interface {
	Evaluate(ctx context.Context, ec models.EvaluationContext) (*models.PolicyEvaluationResult, error)
}

type rateLimiter interface {
	CheckPassCreation(ctx context.Context, studentID string) (*models.RateLimitResult, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type auditSink interface {
	RecordEvent(ctx context.Context, event *models.PassEvent) error
}

type boardInvalidator interface {
	InvalidateBoard(ctx context.Context)
}

type passMetrics interface {
	IncPassCreated(passType string)
	IncPassDenied()
	IncPassClosed(reason string)
}

// PassService is the lifecycle controller for hall passes. Every state
// transition funnels through here: policy evaluation and rate limiting gate
// creation, and all mutations lean on the repository's conditional updates so
// racing writers resolve to exactly one winner.
type PassService struct {
	repo      passRepository
	policy    policyEvaluator
	limiter   rateLimiter
	students  studentReader
	audit     auditSink
	board     boardInvalidator
	metrics   passMetrics
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPassService constructs the service.
func NewPassService(repo passRepository, policy policyEvaluator, limiter rateLimiter, students studentReader, audit auditSink, board boardInvalidator, metrics passMetrics, validate *validator.Validate, logger *zap.Logger) *PassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PassService{
		repo:      repo,
		policy:    policy,
		limiter:   limiter,
		students:  students,
		audit:     audit,
		board:     board,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// CreatePassRequest is the creation payload. The first leg always leaves from
// the student's home location, so there is no origin field to supply.
type CreatePassRequest struct {
	StudentID             string          `json:"student_id" validate:"required"`
	DestinationLocationID string          `json:"destination_location_id" validate:"required"`
	PassType              models.PassType `json:"pass_type" validate:"omitempty,oneof=STUDENT STAFF_REQUEST"`
}

// Create issues a new pass. Ordering matters: the rate limit is charged
// first, then policy decides, and only an allowed request reaches the
// invariant-checked insert. A REQUIRE_APPROVAL verdict creates the pass in
// PENDING_APPROVAL; the pending record holds the student's slot so a second
// request still collides.
func (s *PassService) Create(ctx context.Context, req CreatePassRequest, requestedBy string) (*models.Pass, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid pass request")
	}
	if req.PassType == "" {
		req.PassType = models.PassTypeStudent
	}

	if s.limiter != nil {
		limit, err := s.limiter.CheckPassCreation(ctx, req.StudentID)
		if err != nil {
			// A broken limiter must not take pass issuance down with it.
			s.logger.Warn("rate limit check unavailable, allowing request",
				zap.String("student_id", req.StudentID), zap.Error(err))
		} else if !limit.Allowed {
			return nil, appErrors.ErrRateLimited
		}
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student is not active")
	}

	origin := student.HomeLocationID

	verdict, err := s.policy.Evaluate(ctx, models.EvaluationContext{
		StudentID:             req.StudentID,
		OriginLocationID:      origin,
		DestinationLocationID: req.DestinationLocationID,
		PassType:              req.PassType,
	})
	if err != nil {
		return nil, err
	}
	if !verdict.Allowed {
		if s.metrics != nil {
			s.metrics.IncPassDenied()
		}
		s.emitEvent(&models.PassEvent{
			Type:      models.EventPassDenied,
			StudentID: req.StudentID,
			ActorID:   requestedBy,
		})
		return nil, appErrors.Clone(appErrors.ErrPolicyDenied, verdict.Reason)
	}

	now := time.Now().UTC()
	status := models.PassStatusOpen
	if verdict.RequiresApproval {
		status = models.PassStatusPendingApproval
	}
	pass := &models.Pass{
		StudentID:         req.StudentID,
		HomeLocationID:    student.HomeLocationID,
		Type:              req.PassType,
		Status:            status,
		CreatedAt:         now,
		LastUpdatedAt:     now,
		NotificationLevel: models.NotificationNone,
	}
	firstLeg := &models.Leg{
		OriginLocationID:      origin,
		DestinationLocationID: req.DestinationLocationID,
		State:                 models.LegStateOut,
		Timestamp:             now,
	}
	if err := s.repo.Create(ctx, pass, firstLeg); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncPassCreated(string(req.PassType))
	}
	s.emitEvent(&models.PassEvent{
		Type:      models.EventPassCreated,
		PassID:    pass.ID,
		StudentID: pass.StudentID,
		ActorID:   requestedBy,
	})
	s.invalidateBoard(ctx)
	s.logger.Info("pass created",
		zap.String("pass_id", pass.ID),
		zap.String("student_id", pass.StudentID),
		zap.String("status", string(pass.Status)),
		zap.String("destination", req.DestinationLocationID))
	return pass, nil
}

// Arrive flips the current leg to IN when the student reaches its destination.
func (s *PassService) Arrive(ctx context.Context, passID, actorID string) (*models.Pass, error) {
	pass, err := s.openPass(ctx, passID)
	if err != nil {
		return nil, err
	}
	leg := pass.LastLeg()
	if leg == nil || leg.State != models.LegStateOut {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "pass has no leg in transit")
	}

	now := time.Now().UTC()
	if err := s.repo.MarkArrived(ctx, pass.ID, leg.LegNumber, now); err != nil {
		return nil, err
	}
	leg.State = models.LegStateIn
	leg.Timestamp = now
	pass.LastUpdatedAt = now

	s.emitEvent(&models.PassEvent{
		Type:      models.EventPassArrived,
		PassID:    pass.ID,
		StudentID: pass.StudentID,
		ActorID:   actorID,
	})
	s.invalidateBoard(ctx)
	return pass, nil
}

// ContinueTo appends a new leg from the arrived location toward another
// destination. The new destination is policy-checked the same as a fresh
// creation; anything short of a plain ALLOW blocks the continuation.
func (s *PassService) ContinueTo(ctx context.Context, passID, destinationID, actorID string) (*models.Pass, error) {
	if destinationID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "destination is required")
	}
	pass, err := s.openPass(ctx, passID)
	if err != nil {
		return nil, err
	}
	leg := pass.LastLeg()
	if leg == nil || leg.State != models.LegStateIn {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "student must arrive before continuing")
	}
	if destinationID == leg.DestinationLocationID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "already at that location")
	}

	verdict, err := s.policy.Evaluate(ctx, models.EvaluationContext{
		StudentID:             pass.StudentID,
		OriginLocationID:      leg.DestinationLocationID,
		DestinationLocationID: destinationID,
		PassType:              pass.Type,
	})
	if err != nil {
		return nil, err
	}
	if !verdict.Allowed || verdict.RequiresApproval {
		reason := verdict.Reason
		if verdict.RequiresApproval {
			reason = "continuation requires approval, return and request a new pass"
		}
		if s.metrics != nil {
			s.metrics.IncPassDenied()
		}
		return nil, appErrors.Clone(appErrors.ErrPolicyDenied, reason)
	}

	now := time.Now().UTC()
	next := &models.Leg{
		OriginLocationID:      leg.DestinationLocationID,
		DestinationLocationID: destinationID,
		State:                 models.LegStateOut,
		Timestamp:             now,
	}
	if err := s.repo.AppendLeg(ctx, pass.ID, pass.LegCount, next); err != nil {
		return nil, err
	}
	pass.Legs = append(pass.Legs, *next)
	pass.LegCount++
	pass.LastUpdatedAt = now

	s.emitEvent(&models.PassEvent{
		Type:      models.EventPassContinue,
		PassID:    pass.ID,
		StudentID: pass.StudentID,
		ActorID:   actorID,
	})
	s.invalidateBoard(ctx)
	return pass, nil
}

// ReturnHome closes the pass once the student has arrived back at their home
// location. A pass whose tail leg is still in transit, or whose last arrival
// is anywhere else, must CONTINUE home and ARRIVE first. A pass the sweep
// expired in the meantime surfaces as ErrInvalidTransition.
func (s *PassService) ReturnHome(ctx context.Context, passID, closedBy string) (*models.Pass, error) {
	pass, err := s.openPass(ctx, passID)
	if err != nil {
		return nil, err
	}

	leg := pass.LastLeg()
	if leg == nil || leg.State != models.LegStateIn {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "student has not arrived yet")
	}
	if leg.DestinationLocationID != pass.HomeLocationID {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "student is not at their home location")
	}

	now := time.Now().UTC()
	duration := DurationMinutes(pass, now)
	if err := s.repo.Close(ctx, pass.ID, pass.LegCount, closedBy, models.CloseReasonReturned, now, duration); err != nil {
		return nil, err
	}
	pass.Status = models.PassStatusClosed
	pass.ClosedBy = &closedBy
	pass.ClosedAt = &now
	pass.DurationMinutes = &duration
	reason := models.CloseReasonReturned
	pass.CloseReason = &reason
	pass.LastUpdatedAt = now

	if s.metrics != nil {
		s.metrics.IncPassClosed(models.CloseReasonReturned)
	}
	s.emitEvent(&models.PassEvent{
		Type:      models.EventPassClosed,
		PassID:    pass.ID,
		StudentID: pass.StudentID,
		ActorID:   closedBy,
	})
	s.invalidateBoard(ctx)
	s.logger.Info("pass closed",
		zap.String("pass_id", pass.ID),
		zap.String("student_id", pass.StudentID),
		zap.Int("duration_minutes", duration))
	return pass, nil
}

// Approve opens a pending pass. The episode clock starts now, not at request
// time.
func (s *PassService) Approve(ctx context.Context, passID, approvedBy string) (*models.Pass, error) {
	now := time.Now().UTC()
	if err := s.repo.Approve(ctx, passID, now); err != nil {
		return nil, err
	}
	pass, err := s.Get(ctx, passID)
	if err != nil {
		return nil, err
	}
	s.emitEvent(&models.PassEvent{
		Type:      models.EventPassApproved,
		PassID:    pass.ID,
		StudentID: pass.StudentID,
		ActorID:   approvedBy,
	})
	s.invalidateBoard(ctx)
	return pass, nil
}

// Reject closes a pending pass without it ever opening.
func (s *PassService) Reject(ctx context.Context, passID, rejectedBy string) (*models.Pass, error) {
	now := time.Now().UTC()
	if err := s.repo.Reject(ctx, passID, rejectedBy, models.CloseReasonRejected, now); err != nil {
		return nil, err
	}
	pass, err := s.Get(ctx, passID)
	if err != nil {
		return nil, err
	}
	s.emitEvent(&models.PassEvent{
		Type:      models.EventPassRejected,
		PassID:    pass.ID,
		StudentID: pass.StudentID,
		ActorID:   rejectedBy,
	})
	return pass, nil
}

// Claim records a staff member taking responsibility for an open pass.
func (s *PassService) Claim(ctx context.Context, passID, userID, displayName string) (*models.Pass, error) {
	now := time.Now().UTC()
	if err := s.repo.Claim(ctx, passID, userID, displayName, now); err != nil {
		return nil, err
	}
	pass, err := s.Get(ctx, passID)
	if err != nil {
		return nil, err
	}
	s.emitEvent(&models.PassEvent{
		Type:      models.EventPassClaimed,
		PassID:    pass.ID,
		StudentID: pass.StudentID,
		ActorID:   userID,
	})
	s.invalidateBoard(ctx)
	return pass, nil
}

// Get returns one pass with its legs.
func (s *PassService) Get(ctx context.Context, passID string) (*models.Pass, error) {
	pass, err := s.repo.FindByID(ctx, passID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pass not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load pass")
	}
	return pass, nil
}

// OpenForStudent returns the student's current open pass.
func (s *PassService) OpenForStudent(ctx context.Context, studentID string) (*models.Pass, error) {
	pass, err := s.repo.FindOpenByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student has no open pass")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load open pass")
	}
	return pass, nil
}

// List returns pass history matching the filter.
func (s *PassService) List(ctx context.Context, filter models.PassFilter) ([]models.Pass, *models.Pagination, error) {
	passes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to list passes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return passes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *PassService) openPass(ctx context.Context, passID string) (*models.Pass, error) {
	pass, err := s.Get(ctx, passID)
	if err != nil {
		return nil, err
	}
	if pass.Status != models.PassStatusOpen {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "pass is not open")
	}
	return pass, nil
}

func (s *PassService) invalidateBoard(ctx context.Context) {
	if s.board != nil {
		s.board.InvalidateBoard(ctx)
	}
}

func (s *PassService) emitEvent(event *models.PassEvent) {
	if s.audit == nil {
		return
	}
	// Fire and forget so a slow audit table never blocks a transition.
	go func() {
		if err := s.audit.RecordEvent(context.Background(), event); err != nil {
			s.logger.Warn("failed to record pass event",
				zap.String("event_type", event.Type),
				zap.String("pass_id", event.PassID),
				zap.Error(err))
		}
	}()
}
