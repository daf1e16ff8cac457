package models

import "time"

// RestrictionScope determines where a restriction applies.
type RestrictionScope string

const (
	RestrictionGlobal     RestrictionScope = "GLOBAL"
	RestrictionClassLevel RestrictionScope = "CLASS_LEVEL"
)

// Restriction is a standing denial rule attached to a student. Expired or
// deactivated restrictions are excluded from evaluation but never deleted;
// the audit trail keeps them.
type Restriction struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	Scope      RestrictionScope `db:"scope" json:"scope"`
	LocationID *string          `db:"location_id" json:"location_id,omitempty"`
	Reason     string           `db:"reason" json:"reason"`
	IsActive   bool             `db:"is_active" json:"is_active"`
	ExpiresAt  *time.Time       `db:"expires_at" json:"expires_at,omitempty"`
	CreatedBy  string           `db:"created_by" json:"created_by"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
}

// Live reports whether the restriction participates in evaluation at the
// given instant.
func (r Restriction) Live(now time.Time) bool {
	if !r.IsActive {
		return false
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
		return false
	}
	return true
}

// AppliesTo reports whether the restriction covers a trip between the two
// locations. Global restrictions match everywhere; class-level ones match
// when their location is either endpoint.
func (r Restriction) AppliesTo(originID, destinationID string) bool {
	if r.Scope == RestrictionGlobal {
		return true
	}
	if r.LocationID == nil {
		return false
	}
	return *r.LocationID == originID || *r.LocationID == destinationID
}
