package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hallpass-api/internal/models"
)

// RestrictionRepository persists standing denial rules. Restrictions are
// deactivated, never deleted; the rows remain for the audit trail.
type RestrictionRepository struct {
	db *sqlx.DB
}

// NewRestrictionRepository constructs the repository.
func NewRestrictionRepository(db *sqlx.DB) *RestrictionRepository {
	return &RestrictionRepository{db: db}
}

// ActiveFor returns the restrictions that participate in evaluation for a
// student at the given instant.
func (r *RestrictionRepository) ActiveFor(ctx context.Context, studentID string, now time.Time) ([]models.Restriction, error) {
	query := `SELECT id, student_id, scope, location_id, reason, is_active, expires_at, created_by, created_at
FROM restrictions
WHERE student_id = $1 AND is_active = TRUE AND (expires_at IS NULL OR expires_at > $2)
ORDER BY created_at ASC`
	var restrictions []models.Restriction
	if err := r.db.SelectContext(ctx, &restrictions, query, studentID, now); err != nil {
		return nil, fmt.Errorf("active restrictions for %s: %w", studentID, err)
	}
	return restrictions, nil
}

// ListFor returns every restriction for a student, live or not.
func (r *RestrictionRepository) ListFor(ctx context.Context, studentID string) ([]models.Restriction, error) {
	query := `SELECT id, student_id, scope, location_id, reason, is_active, expires_at, created_by, created_at
FROM restrictions WHERE student_id = $1 ORDER BY created_at DESC`
	var restrictions []models.Restriction
	if err := r.db.SelectContext(ctx, &restrictions, query, studentID); err != nil {
		return nil, fmt.Errorf("list restrictions for %s: %w", studentID, err)
	}
	return restrictions, nil
}

// Create inserts a new restriction.
func (r *RestrictionRepository) Create(ctx context.Context, restriction *models.Restriction) error {
	if restriction.ID == "" {
		restriction.ID = uuid.NewString()
	}
	if restriction.CreatedAt.IsZero() {
		restriction.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO restrictions (id, student_id, scope, location_id, reason, is_active, expires_at, created_by, created_at)
VALUES (:id, :student_id, :scope, :location_id, :reason, :is_active, :expires_at, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, restriction); err != nil {
		return fmt.Errorf("create restriction: %w", err)
	}
	return nil
}

// Deactivate turns a restriction off without removing the row.
func (r *RestrictionRepository) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE restrictions SET is_active = FALSE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deactivate restriction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deactivate restriction: %s not found", id)
	}
	return nil
}
