package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hallpass-api/internal/models"
	appErrors "github.com/noah-isme/hallpass-api/pkg/errors"
)

// passRepoStub keeps passes in memory and enforces the same guarantees the
// real repository gets from Postgres: one non-closed pass per student, and
// compare-and-swap transitions that reject stale writers.
type passRepoStub struct {
	mu     sync.Mutex
	seq    int
	passes map[string]*models.Pass
}

func newPassRepoStub() *passRepoStub {
	return &passRepoStub{passes: make(map[string]*models.Pass)}
}

func (s *passRepoStub) Create(ctx context.Context, pass *models.Pass, firstLeg *models.Leg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.passes {
		if existing.StudentID == pass.StudentID && existing.Status != models.PassStatusClosed {
			return appErrors.Clone(appErrors.ErrConcurrentPass, "student already has an active pass")
		}
	}
	s.seq++
	pass.ID = fmt.Sprintf("pass-%d", s.seq)
	firstLeg.PassID = pass.ID
	firstLeg.LegNumber = 1
	pass.Legs = []models.Leg{*firstLeg}
	pass.LegCount = 1
	copied := *pass
	copied.Legs = append([]models.Leg(nil), pass.Legs...)
	s.passes[pass.ID] = &copied
	return nil
}

func (s *passRepoStub) FindByID(ctx context.Context, id string) (*models.Pass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pass, ok := s.passes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *pass
	copied.Legs = append([]models.Leg(nil), pass.Legs...)
	return &copied, nil
}

func (s *passRepoStub) FindOpenByStudent(ctx context.Context, studentID string) (*models.Pass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pass := range s.passes {
		if pass.StudentID == studentID && pass.Status != models.PassStatusClosed {
			copied := *pass
			copied.Legs = append([]models.Leg(nil), pass.Legs...)
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *passRepoStub) MarkArrived(ctx context.Context, passID string, expectedLeg int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pass, ok := s.passes[passID]
	if !ok || pass.Status != models.PassStatusOpen || pass.LegCount != expectedLeg {
		return appErrors.ErrInvalidTransition
	}
	leg := &pass.Legs[len(pass.Legs)-1]
	if leg.State != models.LegStateOut {
		return appErrors.ErrInvalidTransition
	}
	leg.State = models.LegStateIn
	leg.Timestamp = at
	return nil
}

func (s *passRepoStub) AppendLeg(ctx context.Context, passID string, expectedLegCount int, leg *models.Leg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pass, ok := s.passes[passID]
	if !ok || pass.Status != models.PassStatusOpen || pass.LegCount != expectedLegCount {
		return appErrors.ErrInvalidTransition
	}
	leg.PassID = passID
	leg.LegNumber = pass.LegCount + 1
	pass.Legs = append(pass.Legs, *leg)
	pass.LegCount++
	return nil
}

func (s *passRepoStub) Close(ctx context.Context, passID string, expectedLegCount int, closedBy, reason string, closedAt time.Time, durationMinutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pass, ok := s.passes[passID]
	if !ok || pass.Status != models.PassStatusOpen || pass.LegCount != expectedLegCount {
		return appErrors.ErrInvalidTransition
	}
	pass.Status = models.PassStatusClosed
	pass.ClosedBy = &closedBy
	pass.CloseReason = &reason
	pass.ClosedAt = &closedAt
	pass.DurationMinutes = &durationMinutes
	return nil
}

func (s *passRepoStub) Approve(ctx context.Context, passID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pass, ok := s.passes[passID]
	if !ok || pass.Status != models.PassStatusPendingApproval {
		return appErrors.ErrInvalidTransition
	}
	pass.Status = models.PassStatusOpen
	pass.CreatedAt = at
	pass.Legs[0].Timestamp = at
	return nil
}

func (s *passRepoStub) Reject(ctx context.Context, passID, rejectedBy, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pass, ok := s.passes[passID]
	if !ok || pass.Status != models.PassStatusPendingApproval {
		return appErrors.ErrInvalidTransition
	}
	zero := 0
	pass.Status = models.PassStatusClosed
	pass.ClosedBy = &rejectedBy
	pass.CloseReason = &reason
	pass.ClosedAt = &at
	pass.DurationMinutes = &zero
	return nil
}

func (s *passRepoStub) Claim(ctx context.Context, passID, userID, displayName string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pass, ok := s.passes[passID]
	if !ok || pass.Status != models.PassStatusOpen {
		return appErrors.ErrInvalidTransition
	}
	pass.ClaimedByUserID = &userID
	pass.ClaimedByName = &displayName
	pass.ClaimedAt = &at
	return nil
}

func (s *passRepoStub) List(ctx context.Context, filter models.PassFilter) ([]models.Pass, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Pass, 0, len(s.passes))
	for _, pass := range s.passes {
		out = append(out, *pass)
	}
	return out, len(out), nil
}

type policyStub struct {
	result *models.PolicyEvaluationResult
	err    error
}

func (s policyStub) Evaluate(ctx context.Context, ec models.EvaluationContext) (*models.PolicyEvaluationResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &models.PolicyEvaluationResult{Allowed: true}, nil
}

type limiterStub struct {
	allowed bool
	err     error
}

func (s limiterStub) CheckPassCreation(ctx context.Context, studentID string) (*models.RateLimitResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.RateLimitResult{Allowed: s.allowed}, nil
}

type studentReaderStub struct {
	students map[string]models.Student
}

func (s studentReaderStub) FindByID(ctx context.Context, id string) (*models.Student, error) {
	student, ok := s.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &student, nil
}

type auditSinkStub struct {
	mu     sync.Mutex
	events []models.PassEvent
}

func (s *auditSinkStub) RecordEvent(ctx context.Context, event *models.PassEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

type boardStub struct {
	mu          sync.Mutex
	invalidated int
}

func (s *boardStub) InvalidateBoard(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated++
}

type passMetricsStub struct {
	mu      sync.Mutex
	created int
	denied  int
	closed  map[string]int
}

func (s *passMetricsStub) IncPassCreated(passType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created++
}

func (s *passMetricsStub) IncPassDenied() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied++
}

func (s *passMetricsStub) IncPassClosed(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed == nil {
		s.closed = make(map[string]int)
	}
	s.closed[reason]++
}

func activeRoster() studentReaderStub {
	return studentReaderStub{students: map[string]models.Student{
		"student-1": {ID: "student-1", FullName: "Ada Park", HomeLocationID: "room-101", Active: true},
		"student-2": {ID: "student-2", FullName: "Ben Ito", HomeLocationID: "room-204", Active: true},
		"student-3": {ID: "student-3", FullName: "Cal Nero", HomeLocationID: "room-101", Active: false},
	}}
}

func newTestPassService(repo *passRepoStub, policy policyStub, limiter limiterStub) (*PassService, *boardStub, *passMetricsStub) {
	board := &boardStub{}
	metrics := &passMetricsStub{}
	svc := NewPassService(repo, policy, limiter, activeRoster(), &auditSinkStub{}, board, metrics, nil, nil)
	return svc, board, metrics
}

func TestPassServiceCreateOpensPass(t *testing.T) {
	repo := newPassRepoStub()
	svc, board, metrics := newTestPassService(repo, policyStub{}, limiterStub{allowed: true})

	pass, err := svc.Create(context.Background(), CreatePassRequest{
		StudentID:             "student-1",
		DestinationLocationID: "bathroom-9",
	}, "student-1")
	require.NoError(t, err)
	assert.Equal(t, models.PassStatusOpen, pass.Status)
	assert.Equal(t, models.PassTypeStudent, pass.Type)
	require.Len(t, pass.Legs, 1)
	assert.Equal(t, "room-101", pass.Legs[0].OriginLocationID)
	assert.Equal(t, models.LegStateOut, pass.Legs[0].State)
	assert.Equal(t, 1, metrics.created)
	assert.Equal(t, 1, board.invalidated)
}

func TestPassServiceCreatePendingWhenApprovalRequired(t *testing.T) {
	repo := newPassRepoStub()
	svc, _, _ := newTestPassService(repo, policyStub{result: &models.PolicyEvaluationResult{
		Allowed:            true,
		RequiresApproval:   true,
		ApprovalRequiredBy: "staff-1",
	}}, limiterStub{allowed: true})

	pass, err := svc.Create(context.Background(), CreatePassRequest{
		StudentID:             "student-1",
		DestinationLocationID: "library-1",
	}, "student-1")
	require.NoError(t, err)
	assert.Equal(t, models.PassStatusPendingApproval, pass.Status)

	// The pending pass holds the slot; a second request collides.
	_, err = svc.Create(context.Background(), CreatePassRequest{
		StudentID:             "student-1",
		DestinationLocationID: "bathroom-9",
	}, "student-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConcurrentPass.Code, appErrors.FromError(err).Code)
}

func TestPassServiceCreateDeniedByPolicy(t *testing.T) {
	repo := newPassRepoStub()
	svc, _, metrics := newTestPassService(repo, policyStub{result: &models.PolicyEvaluationResult{
		Allowed: false,
		Reason:  "active restriction: hall ban",
	}}, limiterStub{allowed: true})

	_, err := svc.Create(context.Background(), CreatePassRequest{
		StudentID:             "student-1",
		DestinationLocationID: "bathroom-9",
	}, "student-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPolicyDenied.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "hall ban")
	assert.Equal(t, 1, metrics.denied)
	assert.Empty(t, repo.passes)
}

func TestPassServiceCreateRateLimited(t *testing.T) {
	svc, _, _ := newTestPassService(newPassRepoStub(), policyStub{}, limiterStub{allowed: false})

	_, err := svc.Create(context.Background(), CreatePassRequest{
		StudentID:             "student-1",
		DestinationLocationID: "bathroom-9",
	}, "student-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRateLimited.Code, appErrors.FromError(err).Code)
}

func TestPassServiceCreateAllowsWhenLimiterUnavailable(t *testing.T) {
	svc, _, _ := newTestPassService(newPassRepoStub(), policyStub{}, limiterStub{err: errors.New("redis down")})

	pass, err := svc.Create(context.Background(), CreatePassRequest{
		StudentID:             "student-1",
		DestinationLocationID: "bathroom-9",
	}, "student-1")
	require.NoError(t, err)
	assert.Equal(t, models.PassStatusOpen, pass.Status)
}

func TestPassServiceCreateRejectsInactiveStudent(t *testing.T) {
	svc, _, _ := newTestPassService(newPassRepoStub(), policyStub{}, limiterStub{allowed: true})

	_, err := svc.Create(context.Background(), CreatePassRequest{
		StudentID:             "student-3",
		DestinationLocationID: "bathroom-9",
	}, "staff-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPassServiceCreateUnknownStudent(t *testing.T) {
	svc, _, _ := newTestPassService(newPassRepoStub(), policyStub{}, limiterStub{allowed: true})

	_, err := svc.Create(context.Background(), CreatePassRequest{
		StudentID:             "nobody",
		DestinationLocationID: "bathroom-9",
	}, "staff-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestPassServiceCreateRaceSingleWinner(t *testing.T) {
	repo := newPassRepoStub()
	svc, _, _ := newTestPassService(repo, policyStub{}, limiterStub{allowed: true})

	const racers = 50
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), CreatePassRequest{
				StudentID:             "student-1",
				DestinationLocationID: "bathroom-9",
			}, "student-1")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, collisions := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case appErrors.FromError(err).Code == appErrors.ErrConcurrentPass.Code:
			collisions++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, collisions)
}

func TestPassServiceLifecycleMultiLeg(t *testing.T) {
	repo := newPassRepoStub()
	svc, _, metrics := newTestPassService(repo, policyStub{}, limiterStub{allowed: true})
	ctx := context.Background()

	pass, err := svc.Create(ctx, CreatePassRequest{
		StudentID:             "student-1",
		DestinationLocationID: "bathroom-9",
	}, "student-1")
	require.NoError(t, err)

	pass, err = svc.Arrive(ctx, pass.ID, "student-1")
	require.NoError(t, err)
	assert.Equal(t, models.LegStateIn, pass.LastLeg().State)

	pass, err = svc.ContinueTo(ctx, pass.ID, "library-1", "student-1")
	require.NoError(t, err)
	assert.Equal(t, 2, pass.LegCount)
	assert.Equal(t, "bathroom-9", pass.LastLeg().OriginLocationID)
	assert.Equal(t, "library-1", pass.LastLeg().DestinationLocationID)
	assert.Equal(t, models.LegStateOut, pass.LastLeg().State)

	pass, err = svc.Arrive(ctx, pass.ID, "student-1")
	require.NoError(t, err)

	pass, err = svc.ContinueTo(ctx, pass.ID, "room-101", "student-1")
	require.NoError(t, err)
	assert.Equal(t, 3, pass.LegCount)

	pass, err = svc.Arrive(ctx, pass.ID, "student-1")
	require.NoError(t, err)

	pass, err = svc.ReturnHome(ctx, pass.ID, "student-1")
	require.NoError(t, err)
	assert.Equal(t, models.PassStatusClosed, pass.Status)
	require.NotNil(t, pass.CloseReason)
	assert.Equal(t, models.CloseReasonReturned, *pass.CloseReason)
	require.NotNil(t, pass.DurationMinutes)
	assert.Equal(t, 1, metrics.closed[models.CloseReasonReturned])

	// Closed means the slot is free again.
	next, err := svc.Create(ctx, CreatePassRequest{
		StudentID:             "student-1",
		DestinationLocationID: "bathroom-9",
	}, "student-1")
	require.NoError(t, err)
	assert.NotEqual(t, pass.ID, next.ID)
}

func TestPassServiceArriveRequiresOutboundLeg(t *testing.T) {
	repo := newPassRepoStub()
	svc, _, _ := newTestPassService(repo, policyStub{}, limiterStub{allowed: true})
	ctx := context.Background()

	pass, err := svc.Create(ctx, CreatePassRequest{
		StudentID:             "student-1",
		DestinationLocationID: "bathroom-9",
	}, "student-1")
	require.NoError(t, err)

	_, err = svc.Arrive(ctx, pass.ID, "student-1")
	require.NoError(t, err)

	_, err = svc.Arrive(ctx, pass.ID, "student-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestPassServiceContinueRequiresArrival(t *testing.T) {
	repo := newPassRepoStub()
	svc, _, _ := newTestPassService(repo, policyStub{}, limiterStub{allowed: true})
	ctx := context.Background()

	pass, err := svc.Create(ctx, CreatePassRequest{
		StudentID:             "student-1",
		DestinationLocationID: "bathroom-9",
	}, "student-1")
	require.NoError(t, err)

	_, err = svc.ContinueTo(ctx, pass.ID, "library-1", "student-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestPassServiceContinueBlockedWhenApprovalRequired(t *testing.T) {
	repo := newPassRepoStub()
	allow := policyStub{}
	svc, _, _ := newTestPassService(repo, allow, limiterStub{allowed: true})
	ctx := context.Background()

	pass, err := svc.Create(ctx, CreatePassRequest{
		StudentID:             "student-1",
		DestinationLocationID: "bathroom-9",
	}, "student-1")
	require.NoError(t, err)
	_, err = svc.Arrive(ctx, pass.ID, "student-1")
	require.NoError(t, err)

	strict := NewPassService(repo, policyStub{result: &models.PolicyEvaluationResult{
		Allowed:          true,
		RequiresApproval: true,
	}}, limiterStub{allowed: true}, activeRoster(), nil, nil, nil, nil, nil)
	_, err = strict.ContinueTo(ctx, pass.ID, "library-1", "student-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPolicyDenied.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "requires approval")
}

func TestPassServiceReturnRejectedAwayFromHome(t *testing.T) {
	repo := newPassRepoStub()
	svc, _, _ := newTestPassService(repo, policyStub{}, limiterStub{allowed: true})
	ctx := context.Background()

	pass, err := svc.Create(ctx, CreatePassRequest{
		StudentID:             "student-1",
		DestinationLocationID: "bathroom-9",
	}, "student-1")
	require.NoError(t, err)

	// Still in transit, nothing to close yet.
	_, err = svc.ReturnHome(ctx, pass.ID, "student-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	pass, err = svc.Arrive(ctx, pass.ID, "student-1")
	require.NoError(t, err)

	// Arrived, but at bathroom-9 rather than home.
	_, err = svc.ReturnHome(ctx, pass.ID, "student-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "home")
	assert.Equal(t, models.PassStatusOpen, pass.Status)

	pass, err = svc.ContinueTo(ctx, pass.ID, "room-101", "student-1")
	require.NoError(t, err)
	pass, err = svc.Arrive(ctx, pass.ID, "student-1")
	require.NoError(t, err)

	closed, err := svc.ReturnHome(ctx, pass.ID, "student-1")
	require.NoError(t, err)
	assert.Equal(t, models.PassStatusClosed, closed.Status)
	require.NotNil(t, closed.DurationMinutes)
	assert.Equal(t, models.LegStateIn, closed.LastLeg().State)
	assert.Equal(t, "room-101", closed.LastLeg().DestinationLocationID)
}

func TestPassServiceApproveOpensPendingPass(t *testing.T) {
	repo := newPassRepoStub()
	svc, _, _ := newTestPassService(repo, policyStub{result: &models.PolicyEvaluationResult{
		Allowed:          true,
		RequiresApproval: true,
	}}, limiterStub{allowed: true})
	ctx := context.Background()

	pass, err := svc.Create(ctx, CreatePassRequest{
		StudentID:             "student-1",
		DestinationLocationID: "library-1",
	}, "student-1")
	require.NoError(t, err)
	created := pass.CreatedAt

	time.Sleep(5 * time.Millisecond)
	approved, err := svc.Approve(ctx, pass.ID, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, models.PassStatusOpen, approved.Status)
	assert.True(t, approved.CreatedAt.After(created))

	_, err = svc.Approve(ctx, pass.ID, "staff-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestPassServiceRejectClosesPendingPass(t *testing.T) {
	repo := newPassRepoStub()
	svc, _, _ := newTestPassService(repo, policyStub{result: &models.PolicyEvaluationResult{
		Allowed:          true,
		RequiresApproval: true,
	}}, limiterStub{allowed: true})
	ctx := context.Background()

	pass, err := svc.Create(ctx, CreatePassRequest{
		StudentID:             "student-1",
		DestinationLocationID: "library-1",
	}, "student-1")
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, pass.ID, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, models.PassStatusClosed, rejected.Status)
	require.NotNil(t, rejected.CloseReason)
	assert.Equal(t, models.CloseReasonRejected, *rejected.CloseReason)
	require.NotNil(t, rejected.DurationMinutes)
	assert.Equal(t, 0, *rejected.DurationMinutes)
}

func TestPassServiceClaimRecordsStaffMember(t *testing.T) {
	repo := newPassRepoStub()
	svc, _, _ := newTestPassService(repo, policyStub{}, limiterStub{allowed: true})
	ctx := context.Background()

	pass, err := svc.Create(ctx, CreatePassRequest{
		StudentID:             "student-1",
		DestinationLocationID: "bathroom-9",
	}, "student-1")
	require.NoError(t, err)

	claimed, err := svc.Claim(ctx, pass.ID, "staff-1", "Ms. Reyes")
	require.NoError(t, err)
	require.NotNil(t, claimed.Claimed())
	assert.Equal(t, "staff-1", claimed.Claimed().UserID)
	assert.Equal(t, "Ms. Reyes", claimed.Claimed().DisplayName)
}

func TestPassServiceOpenForStudent(t *testing.T) {
	repo := newPassRepoStub()
	svc, _, _ := newTestPassService(repo, policyStub{}, limiterStub{allowed: true})
	ctx := context.Background()

	_, err := svc.OpenForStudent(ctx, "student-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	created, err := svc.Create(ctx, CreatePassRequest{
		StudentID:             "student-1",
		DestinationLocationID: "bathroom-9",
	}, "student-1")
	require.NoError(t, err)

	open, err := svc.OpenForStudent(ctx, "student-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, open.ID)
}

func TestPassServiceListNormalizesPagination(t *testing.T) {
	svc, _, _ := newTestPassService(newPassRepoStub(), policyStub{}, limiterStub{allowed: true})

	_, page, err := svc.List(context.Background(), models.PassFilter{Page: 0, PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 50, page.PageSize)
}
