package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hallpass-api/internal/models"
)

// PolicyRepository persists classroom policies and per-student overrides.
type PolicyRepository struct {
	db *sqlx.DB
}

// NewPolicyRepository constructs the repository.
func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// ClassroomPolicy returns the default rule triple for a location, or
// sql.ErrNoRows when the location has no policy configured.
func (r *PolicyRepository) ClassroomPolicy(ctx context.Context, locationID string) (*models.ClassroomPolicy, error) {
	query := `SELECT location_id, student_leave, student_arrive, staff_request, responsible_staff_id, updated_by, updated_at
FROM classroom_policies WHERE location_id = $1`
	var policy models.ClassroomPolicy
	if err := r.db.GetContext(ctx, &policy, query, locationID); err != nil {
		return nil, err
	}
	return &policy, nil
}

// UpsertClassroomPolicy writes the location's default rule triple.
func (r *PolicyRepository) UpsertClassroomPolicy(ctx context.Context, policy *models.ClassroomPolicy) error {
	policy.UpdatedAt = time.Now().UTC()
	query := `INSERT INTO classroom_policies (location_id, student_leave, student_arrive, staff_request, responsible_staff_id, updated_by, updated_at)
VALUES (:location_id, :student_leave, :student_arrive, :staff_request, :responsible_staff_id, :updated_by, :updated_at)
ON CONFLICT (location_id)
DO UPDATE SET student_leave = EXCLUDED.student_leave, student_arrive = EXCLUDED.student_arrive,
        staff_request = EXCLUDED.staff_request, responsible_staff_id = EXCLUDED.responsible_staff_id,
        updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, policy); err != nil {
		return fmt.Errorf("upsert classroom policy: %w", err)
	}
	return nil
}

// OverridesFor returns the student's overrides for one location.
func (r *PolicyRepository) OverridesFor(ctx context.Context, studentID, locationID string) ([]models.StudentPolicyOverride, error) {
	query := `SELECT id, student_id, location_id, student_leave, student_arrive, staff_request, created_by, created_at
FROM student_policy_overrides WHERE student_id = $1 AND location_id = $2 ORDER BY created_at ASC`
	var overrides []models.StudentPolicyOverride
	if err := r.db.SelectContext(ctx, &overrides, query, studentID, locationID); err != nil {
		return nil, fmt.Errorf("overrides for student %s at %s: %w", studentID, locationID, err)
	}
	return overrides, nil
}

// UpsertOverride writes a per-student override for a location. One override
// row per (student, location) pair.
func (r *PolicyRepository) UpsertOverride(ctx context.Context, override *models.StudentPolicyOverride) error {
	if override.ID == "" {
		override.ID = uuid.NewString()
	}
	if override.CreatedAt.IsZero() {
		override.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO student_policy_overrides (id, student_id, location_id, student_leave, student_arrive, staff_request, created_by, created_at)
VALUES (:id, :student_id, :location_id, :student_leave, :student_arrive, :staff_request, :created_by, :created_at)
ON CONFLICT (student_id, location_id)
DO UPDATE SET student_leave = EXCLUDED.student_leave, student_arrive = EXCLUDED.student_arrive,
        staff_request = EXCLUDED.staff_request, created_by = EXCLUDED.created_by, created_at = EXCLUDED.created_at`
	if _, err := r.db.NamedExecContext(ctx, query, override); err != nil {
		return fmt.Errorf("upsert policy override: %w", err)
	}
	return nil
}

// DeleteOverride removes the override for a (student, location) pair.
func (r *PolicyRepository) DeleteOverride(ctx context.Context, studentID, locationID string) error {
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM student_policy_overrides WHERE student_id = $1 AND location_id = $2",
		studentID, locationID); err != nil {
		return fmt.Errorf("delete policy override: %w", err)
	}
	return nil
}
