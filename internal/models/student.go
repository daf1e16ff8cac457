package models

import "time"

// Student is the roster entry the pass controller reads for home-location
// resolution. Roster management itself lives in the SIS; this service only
// consumes the record.
type Student struct {
	ID             string    `db:"id" json:"id"`
	FullName       string    `db:"full_name" json:"full_name"`
	HomeLocationID string    `db:"home_location_id" json:"home_location_id"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
