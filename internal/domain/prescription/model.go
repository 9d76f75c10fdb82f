package prescription

import (
	"time"

	"github.com/google/uuid"
)

// Prescription maps to the prescription table.
type Prescription struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ClinicID       string     `db:"clinic_id" json:"clinic_id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	Medication     string     `db:"medication" json:"medication"`
	Dosage         string     `db:"dosage" json:"dosage"`
	PrescriberName string     `db:"prescriber_name" json:"prescriber_name"`
	IssuedAt       time.Time  `db:"issued_at" json:"issued_at"`
	ExpiresAt      *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
