package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hallpass-api/internal/models"
)

// EventRepository is the audit sink for pass lifecycle events.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// RecordEvent inserts one lifecycle event.
func (r *EventRepository) RecordEvent(ctx context.Context, event *models.PassEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO pass_events (id, event_type, pass_id, student_id, actor_id, detail, created_at)
VALUES (:id, :event_type, :pass_id, :student_id, :actor_id, :detail, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("record pass event: %w", err)
	}
	return nil
}

// ListForPass returns the event trail for one pass, oldest first.
func (r *EventRepository) ListForPass(ctx context.Context, passID string) ([]models.PassEvent, error) {
	query := `SELECT id, event_type, pass_id, student_id, actor_id, detail, created_at
FROM pass_events WHERE pass_id = $1 ORDER BY created_at ASC`
	var events []models.PassEvent
	if err := r.db.SelectContext(ctx, &events, query, passID); err != nil {
		return nil, fmt.Errorf("list events for pass %s: %w", passID, err)
	}
	return events, nil
}
