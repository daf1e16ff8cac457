package models

import "time"

// Pass lifecycle event types emitted to the audit sink.
const (
	EventPassCreated  = "PASS_CREATED"
	EventPassDenied   = "PASS_DENIED"
	EventPassArrived  = "PASS_ARRIVED"
	EventPassContinue = "PASS_CONTINUED"
	EventPassClosed   = "PASS_CLOSED"
	EventPassExpired  = "PASS_EXPIRED"
	EventPassClaimed  = "PASS_CLAIMED"
	EventPassEscalate = "PASS_ESCALATED"
	EventPassApproved = "PASS_APPROVED"
	EventPassRejected = "PASS_REJECTED"
)

// PassEvent is one audit record for a lifecycle transition. Emission is
// best-effort: a failed write never rolls back the transition it describes.
type PassEvent struct {
	ID        string    `db:"id" json:"id"`
	Type      string    `db:"event_type" json:"event_type"`
	PassID    string    `db:"pass_id" json:"pass_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	ActorID   string    `db:"actor_id" json:"actor_id"`
	Detail    []byte    `db:"detail" json:"detail,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
