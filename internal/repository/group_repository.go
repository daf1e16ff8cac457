package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hallpass-api/internal/models"
)

// GroupRepository persists staff-curated student groups.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs the repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// GroupsFor returns every group the student belongs to.
func (r *GroupRepository) GroupsFor(ctx context.Context, studentID string) ([]models.Group, error) {
	query := `SELECT g.id, g.name, g.polarity, g.owner_id, g.created_at, g.updated_at
FROM groups g
JOIN group_members m ON m.group_id = g.id
WHERE m.student_id = $1
ORDER BY g.name ASC`
	var groups []models.Group
	if err := r.db.SelectContext(ctx, &groups, query, studentID); err != nil {
		return nil, fmt.Errorf("groups for student %s: %w", studentID, err)
	}
	return groups, nil
}

// List returns all groups.
func (r *GroupRepository) List(ctx context.Context) ([]models.Group, error) {
	query := `SELECT id, name, polarity, owner_id, created_at, updated_at FROM groups ORDER BY name ASC`
	var groups []models.Group
	if err := r.db.SelectContext(ctx, &groups, query); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// FindByID returns one group.
func (r *GroupRepository) FindByID(ctx context.Context, id string) (*models.Group, error) {
	query := `SELECT id, name, polarity, owner_id, created_at, updated_at FROM groups WHERE id = $1`
	var group models.Group
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// Create inserts a new group.
func (r *GroupRepository) Create(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}
	group.UpdatedAt = now
	query := `INSERT INTO groups (id, name, polarity, owner_id, created_at, updated_at)
VALUES (:id, :name, :polarity, :owner_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// Update modifies the group's name and polarity.
func (r *GroupRepository) Update(ctx context.Context, group *models.Group) error {
	group.UpdatedAt = time.Now().UTC()
	query := `UPDATE groups SET name = :name, polarity = :polarity, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	return nil
}

// Delete removes a group and its memberships.
func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin group delete: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, "DELETE FROM group_members WHERE group_id = $1", id); err != nil {
		return fmt.Errorf("delete group members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM groups WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit group delete: %w", err)
	}
	committed = true
	return nil
}

// AddMember links a student to a group.
func (r *GroupRepository) AddMember(ctx context.Context, member *models.GroupMember) error {
	if member.AddedAt.IsZero() {
		member.AddedAt = time.Now().UTC()
	}
	query := `INSERT INTO group_members (group_id, student_id, added_by, added_at)
VALUES (:group_id, :student_id, :added_by, :added_at)
ON CONFLICT (group_id, student_id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, member); err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

// RemoveMember unlinks a student from a group.
func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, studentID string) error {
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM group_members WHERE group_id = $1 AND student_id = $2", groupID, studentID); err != nil {
		return fmt.Errorf("remove group member: %w", err)
	}
	return nil
}
