package insurance

import (
	"time"

	"github.com/google/uuid"
)

// Policy maps to the insurance_policy table.
type Policy struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	ClinicID     string     `db:"clinic_id" json:"clinic_id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	Insurer      string     `db:"insurer" json:"insurer"`
	PolicyNumber string     `db:"policy_number" json:"policy_number"`
	ValidFrom    time.Time  `db:"valid_from" json:"valid_from"`
	ValidTo      *time.Time `db:"valid_to" json:"valid_to,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}
