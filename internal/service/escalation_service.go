package service

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/hallpass-api/internal/models"
	"github.com/noah-isme/hallpass-api/pkg/config"
	appErrors "github.com/noah-isme/hallpass-api/pkg/errors"
)

type escalationPassRepository interface {
	ListOpen(ctx context.Context) ([]models.Pass, error)
	Close(ctx context.Context, passID string, expectedLegCount int, closedBy, reason string, closedAt time.Time, durationMinutes int) error
	UpdateNotification(ctx context.Context, passID string, from, to models.NotificationLevel, at time.Time) error
}

type notificationDispatcher interface {
	Notify(ctx context.Context, pass models.Pass, tier models.NotificationLevel) error
}

type escalationMetrics interface {
	IncPassExpired()
	IncEscalation(tier string)
}

// EscalationService derives the notification ladder from pass records and
// drives the periodic overdue sweep. Compute is pure arithmetic over
// (pass, now); only Sweep persists anything.
type EscalationService struct {
	repo       escalationPassRepository
	dispatcher notificationDispatcher
	audit      auditSink
	board      boardInvalidator
	metrics    escalationMetrics
	cfg        config.EscalationConfig
	logger     *zap.Logger
}

// NewEscalationService constructs the service.
func NewEscalationService(repo escalationPassRepository, dispatcher notificationDispatcher, audit auditSink, board boardInvalidator, metrics escalationMetrics, cfg config.EscalationConfig, logger *zap.Logger) *EscalationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationService{
		repo:       repo,
		dispatcher: dispatcher,
		audit:      audit,
		board:      board,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
	}
}

// SetBoardInvalidator wires the board cache after construction. The board
// service computes escalation state through this service, so the two are
// built in that order.
func (s *EscalationService) SetBoardInvalidator(board boardInvalidator) {
	s.board = board
}

// DurationMinutes returns the pass duration in whole minutes, rounded half
// away from zero. Closed passes report their recorded duration.
func DurationMinutes(pass *models.Pass, now time.Time) int {
	if pass.Status == models.PassStatusClosed && pass.DurationMinutes != nil {
		return *pass.DurationMinutes
	}
	return roundMinutes(now.Sub(pass.CreatedAt))
}

func roundMinutes(d time.Duration) int {
	return int(math.Round(d.Seconds() / 60))
}

// Compute derives the escalation state for one pass at one instant.
//
// The tier is the highest threshold the duration has crossed. Escalation to a
// strictly higher tier than the recorded notification level fires
// immediately; the cooldown gates only re-notification at the tier already
// recorded, so a stuck pass is re-announced at most once per cooldown window.
func (s *EscalationService) Compute(pass *models.Pass, now time.Time) models.EscalationState {
	duration := DurationMinutes(pass, now)

	tier := models.NotificationNone
	switch {
	case duration >= s.cfg.AdminEscalationMinutes:
		tier = models.NotificationAdmin
	case duration >= s.cfg.TeacherNotifyMinutes:
		tier = models.NotificationTeacher
	case duration >= s.cfg.StudentNotifyMinutes:
		tier = models.NotificationStudent
	}

	isOpen := pass.Status == models.PassStatusOpen
	cooldown := time.Duration(s.cfg.CooldownMinutes) * time.Minute
	cooldownElapsed := pass.LastNotificationAt == nil || !now.Before(pass.LastNotificationAt.Add(cooldown))

	shouldEscalate := false
	if isOpen {
		switch {
		case tier.Rank() > pass.NotificationLevel.Rank():
			shouldEscalate = true
		case tier != models.NotificationNone && tier == pass.NotificationLevel:
			shouldEscalate = cooldownElapsed
		}
	}

	return models.EscalationState{
		PassID:          pass.ID,
		DurationMinutes: duration,
		Tier:            tier,
		ShouldEscalate:  shouldEscalate,
		IsOverdue:       duration >= s.cfg.MaxDurationMinutes,
	}
}

// Sweep walks every open pass: overdue passes are auto-expired, escalating
// passes get a notification dispatched and their bookkeeping raised. Safe to
// run concurrently with in-flight returns; a pass closed by a racing writer
// surfaces as a lost conditional update and is skipped.
func (s *EscalationService) Sweep(ctx context.Context, now time.Time) error {
	passes, err := s.repo.ListOpen(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to list open passes")
	}

	changed := false
	for i := range passes {
		pass := &passes[i]
		state := s.Compute(pass, now)

		if state.IsOverdue {
			if s.expire(ctx, pass, state, now) {
				changed = true
			}
			continue
		}
		if state.ShouldEscalate {
			if s.escalate(ctx, pass, state, now) {
				changed = true
			}
		}
	}

	if changed && s.board != nil {
		s.board.InvalidateBoard(ctx)
	}
	return nil
}

func (s *EscalationService) expire(ctx context.Context, pass *models.Pass, state models.EscalationState, now time.Time) bool {
	err := s.repo.Close(ctx, pass.ID, pass.LegCount, models.SystemActor, models.CloseReasonExpired, now, state.DurationMinutes)
	if err != nil {
		// A lost conditional update means a human return or an earlier
		// sweep already closed the pass; the expiry is a no-op then.
		if appErrors.FromError(err).Code == appErrors.ErrInvalidTransition.Code {
			return false
		}
		s.logger.Error("failed to auto-expire pass", zap.String("pass_id", pass.ID), zap.Error(err))
		return false
	}
	if s.metrics != nil {
		s.metrics.IncPassExpired()
	}
	s.emitEvent(&models.PassEvent{
		Type:      models.EventPassExpired,
		PassID:    pass.ID,
		StudentID: pass.StudentID,
		ActorID:   models.SystemActor,
	})
	s.logger.Info("pass auto-expired",
		zap.String("pass_id", pass.ID),
		zap.String("student_id", pass.StudentID),
		zap.Int("duration_minutes", state.DurationMinutes))
	return true
}

func (s *EscalationService) escalate(ctx context.Context, pass *models.Pass, state models.EscalationState, now time.Time) bool {
	if s.dispatcher != nil {
		if err := s.dispatcher.Notify(ctx, *pass, state.Tier); err != nil {
			// Delivery is best-effort; the next sweep retries naturally.
			s.logger.Warn("notification dispatch failed",
				zap.String("pass_id", pass.ID),
				zap.String("tier", string(state.Tier)),
				zap.Error(err))
			return false
		}
	}

	newLevel := state.Tier
	if newLevel.Rank() < pass.NotificationLevel.Rank() {
		newLevel = pass.NotificationLevel
	}
	if err := s.repo.UpdateNotification(ctx, pass.ID, pass.NotificationLevel, newLevel, now); err != nil {
		// Lost race with a concurrent sweep or a close; nothing to undo
		// since dispatch already happened.
		if appErrors.FromError(err).Code != appErrors.ErrInvalidTransition.Code {
			s.logger.Error("failed to record notification", zap.String("pass_id", pass.ID), zap.Error(err))
		}
		return false
	}
	if s.metrics != nil {
		s.metrics.IncEscalation(string(state.Tier))
	}
	s.emitEvent(&models.PassEvent{
		Type:      models.EventPassEscalate,
		PassID:    pass.ID,
		StudentID: pass.StudentID,
		ActorID:   models.SystemActor,
	})
	return true
}

func (s *EscalationService) emitEvent(event *models.PassEvent) {
	if s.audit == nil {
		return
	}
	go func() {
		if err := s.audit.RecordEvent(context.Background(), event); err != nil {
			s.logger.Warn("failed to record pass event",
				zap.String("event_type", event.Type),
				zap.String("pass_id", event.PassID),
				zap.Error(err))
		}
	}()
}
