package models

import "time"

// GroupPolarity determines whether membership loosens or tightens policy.
type GroupPolarity string

const (
	GroupPositive GroupPolarity = "POSITIVE"
	GroupNegative GroupPolarity = "NEGATIVE"
)

// Group is a named, staff-curated cohort of students.
type Group struct {
	ID        string        `db:"id" json:"id"`
	Name      string        `db:"name" json:"name"`
	Polarity  GroupPolarity `db:"polarity" json:"polarity"`
	OwnerID   string        `db:"owner_id" json:"owner_id"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// GroupMember links a student to a group.
type GroupMember struct {
	GroupID   string    `db:"group_id" json:"group_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	AddedBy   string    `db:"added_by" json:"added_by"`
	AddedAt   time.Time `db:"added_at" json:"added_at"`
}
