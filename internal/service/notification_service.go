package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/hallpass-api/internal/models"
)

// LogNotificationService is the default escalation dispatcher. Escalations
// land in the structured log; the board surfaces the same state visually, so
// delivery channels beyond that (push, SMS) stay pluggable behind the
// dispatcher interface.
type LogNotificationService struct {
	logger *zap.Logger
}

// NewLogNotificationService constructs the dispatcher.
func NewLogNotificationService(logger *zap.Logger) *LogNotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotificationService{logger: logger}
}

// Notify emits one escalation notification.
func (s *LogNotificationService) Notify(ctx context.Context, pass models.Pass, tier models.NotificationLevel) error {
	fields := []zap.Field{
		zap.String("pass_id", pass.ID),
		zap.String("student_id", pass.StudentID),
		zap.String("tier", string(tier)),
	}
	if leg := pass.LastLeg(); leg != nil {
		fields = append(fields,
			zap.String("destination", leg.DestinationLocationID),
			zap.String("leg_state", string(leg.State)))
	}
	if claimed := pass.Claimed(); claimed != nil {
		fields = append(fields, zap.String("claimed_by", claimed.UserID))
	}
	s.logger.Warn("pass escalation", fields...)
	return nil
}
