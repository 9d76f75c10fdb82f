package appointment

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Appointment maps to the appointment table.
type Appointment struct {
	ID               uuid.UUID `db:"id" json:"id"`
	ClinicID         string    `db:"clinic_id" json:"clinic_id"`
	PatientID        uuid.UUID `db:"patient_id" json:"patient_id"`
	PractitionerName string    `db:"practitioner_name" json:"practitioner_name"`
	ScheduledAt      time.Time `db:"scheduled_at" json:"scheduled_at"`
	Status           string    `db:"status" json:"status"`
	Notes            *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}
