package models

import "time"

// PolicyRule is one autonomy tier for a classroom policy field.
type PolicyRule string

const (
	PolicyAllow           PolicyRule = "ALLOW"
	PolicyRequireApproval PolicyRule = "REQUIRE_APPROVAL"
	PolicyDisallow        PolicyRule = "DISALLOW"
)

// Strictness orders rules so the stricter-wins combine is explicit:
// DISALLOW > REQUIRE_APPROVAL > ALLOW.
func (r PolicyRule) Strictness() int {
	switch r {
	case PolicyDisallow:
		return 2
	case PolicyRequireApproval:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the value is one of the three known rules.
func (r PolicyRule) Valid() bool {
	switch r {
	case PolicyAllow, PolicyRequireApproval, PolicyDisallow:
		return true
	default:
		return false
	}
}

// Stricter returns the stricter of two rules.
func Stricter(a, b PolicyRule) PolicyRule {
	if b.Strictness() > a.Strictness() {
		return b
	}
	return a
}

// ClassroomPolicy holds the default rule triple for one location.
type ClassroomPolicy struct {
	LocationID       string     `db:"location_id" json:"location_id"`
	StudentLeave     PolicyRule `db:"student_leave" json:"student_leave"`
	StudentArrive    PolicyRule `db:"student_arrive" json:"student_arrive"`
	StaffRequest     PolicyRule `db:"staff_request" json:"staff_request"`
	ResponsibleStaff string     `db:"responsible_staff_id" json:"responsible_staff_id"`
	UpdatedBy        string     `db:"updated_by" json:"updated_by"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// StudentPolicyOverride overrides a subset of a location's rule triple for
// one student. Nil fields fall back to the classroom default.
type StudentPolicyOverride struct {
	ID            string      `db:"id" json:"id"`
	StudentID     string      `db:"student_id" json:"student_id"`
	LocationID    string      `db:"location_id" json:"location_id"`
	StudentLeave  *PolicyRule `db:"student_leave" json:"student_leave,omitempty"`
	StudentArrive *PolicyRule `db:"student_arrive" json:"student_arrive,omitempty"`
	StaffRequest  *PolicyRule `db:"staff_request" json:"staff_request,omitempty"`
	CreatedBy     string      `db:"created_by" json:"created_by"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}

// EvaluationContext carries the inputs of one policy evaluation.
type EvaluationContext struct {
	StudentID             string   `json:"student_id" validate:"required"`
	OriginLocationID      string   `json:"origin_location_id" validate:"required"`
	DestinationLocationID string   `json:"destination_location_id" validate:"required"`
	PassType              PassType `json:"pass_type"`
}

// PolicyEvaluationResult is the engine's verdict for one creation request.
// Restrictions and ApplicableGroups list everything that participated in the
// decision, not only the decisive rule.
type PolicyEvaluationResult struct {
	Allowed            bool          `json:"allowed"`
	RequiresApproval   bool          `json:"requires_approval"`
	Reason             string        `json:"reason"`
	Restrictions       []Restriction `json:"restrictions"`
	ApplicableGroups   []Group       `json:"applicable_groups"`
	ApprovalRequiredBy string        `json:"approval_required_by,omitempty"`
}
