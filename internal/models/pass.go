package models

import "time"

// PassStatus represents the lifecycle state of a hall pass.
type PassStatus string

const (
	PassStatusOpen            PassStatus = "OPEN"
	PassStatusClosed          PassStatus = "CLOSED"
	PassStatusPendingApproval PassStatus = "PENDING_APPROVAL"
)

// NotificationLevel is the highest escalation tier already notified for a pass.
type NotificationLevel string

const (
	NotificationNone    NotificationLevel = "none"
	NotificationStudent NotificationLevel = "student"
	NotificationTeacher NotificationLevel = "teacher"
	NotificationAdmin   NotificationLevel = "admin"
)

// Rank orders notification levels so tier comparisons are explicit.
func (l NotificationLevel) Rank() int {
	switch l {
	case NotificationStudent:
		return 1
	case NotificationTeacher:
		return 2
	case NotificationAdmin:
		return 3
	default:
		return 0
	}
}

// LegState tracks whether the student is en route or has arrived.
type LegState string

const (
	LegStateOut LegState = "OUT"
	LegStateIn  LegState = "IN"
)

// PassType distinguishes who initiated the pass.
type PassType string

const (
	PassTypeStudent      PassType = "STUDENT"
	PassTypeStaffRequest PassType = "STAFF_REQUEST"
)

// Leg is one directed hop of a pass between two locations. Legs are
// append-only; the only mutation after insert is the OUT -> IN state change.
type Leg struct {
	ID                    string    `db:"id" json:"id"`
	PassID                string    `db:"pass_id" json:"-"`
	LegNumber             int       `db:"leg_number" json:"leg_number"`
	OriginLocationID      string    `db:"origin_location_id" json:"origin_location_id"`
	DestinationLocationID string    `db:"destination_location_id" json:"destination_location_id"`
	State                 LegState  `db:"state" json:"state"`
	Timestamp             time.Time `db:"state_changed_at" json:"timestamp"`
}

// ClaimedBy records a staff member taking manual responsibility for a pass.
type ClaimedBy struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	ClaimedAt   time.Time `json:"claimed_at"`
}

// Pass is one student's excursion episode. At most one OPEN pass may exist
// per student at any instant; the pass repository enforces this inside the
// creation transaction.
type Pass struct {
	ID                 string            `db:"id" json:"id"`
	StudentID          string            `db:"student_id" json:"student_id"`
	HomeLocationID     string            `db:"home_location_id" json:"home_location_id"`
	Type               PassType          `db:"pass_type" json:"pass_type"`
	Status             PassStatus        `db:"status" json:"status"`
	Legs               []Leg             `db:"-" json:"legs"`
	LegCount           int               `db:"leg_count" json:"-"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	LastUpdatedAt      time.Time         `db:"last_updated_at" json:"last_updated_at"`
	ClosedBy           *string           `db:"closed_by" json:"closed_by,omitempty"`
	ClosedAt           *time.Time        `db:"closed_at" json:"closed_at,omitempty"`
	DurationMinutes    *int              `db:"duration_minutes" json:"duration_minutes,omitempty"`
	CloseReason        *string           `db:"close_reason" json:"close_reason,omitempty"`
	NotificationLevel  NotificationLevel `db:"notification_level" json:"notification_level"`
	LastNotificationAt *time.Time        `db:"last_notification_at" json:"last_notification_at,omitempty"`
	ClaimedByUserID    *string           `db:"claimed_by_user_id" json:"-"`
	ClaimedByName      *string           `db:"claimed_by_name" json:"-"`
	ClaimedAt          *time.Time        `db:"claimed_at" json:"-"`
}

// SystemActor is recorded as closedBy when the sweep auto-expires a pass.
const SystemActor = "system"

// Close reasons recorded on the pass record.
const (
	CloseReasonReturned = "returned"
	CloseReasonExpired  = "expired"
	CloseReasonRejected = "rejected"
)

// Claimed assembles the optional claim marker from its columns.
func (p *Pass) Claimed() *ClaimedBy {
	if p.ClaimedByUserID == nil || p.ClaimedAt == nil {
		return nil
	}
	name := ""
	if p.ClaimedByName != nil {
		name = *p.ClaimedByName
	}
	return &ClaimedBy{UserID: *p.ClaimedByUserID, DisplayName: name, ClaimedAt: *p.ClaimedAt}
}

// LastLeg returns the tail of the leg sequence, or nil when none is loaded.
func (p *Pass) LastLeg() *Leg {
	if len(p.Legs) == 0 {
		return nil
	}
	return &p.Legs[len(p.Legs)-1]
}

// PassFilter captures filtering criteria for listing pass history.
type PassFilter struct {
	StudentID  string
	LocationID string
	Status     *PassStatus
	DateFrom   *time.Time
	DateTo     *time.Time
	Page       int
	PageSize   int
}

// EscalationState is the escalation clock's verdict for one pass at one instant.
type EscalationState struct {
	PassID          string            `json:"pass_id"`
	DurationMinutes int               `json:"duration_minutes"`
	Tier            NotificationLevel `json:"tier"`
	ShouldEscalate  bool              `json:"should_escalate"`
	IsOverdue       bool              `json:"is_overdue"`
}

// ActivePass pairs an open pass with its computed escalation state for the
// live board.
type ActivePass struct {
	Pass       Pass            `json:"pass"`
	Escalation EscalationState `json:"escalation"`
}
