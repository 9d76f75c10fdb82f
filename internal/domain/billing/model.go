package billing

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusDraft  = "draft"
	StatusIssued = "issued"
	StatusPaid   = "paid"
)

// Invoice maps to the invoice table. Amounts are integer centimes.
type Invoice struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	ClinicID    string     `db:"clinic_id" json:"clinic_id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	AmountCents int64      `db:"amount_cents" json:"amount_cents"`
	Currency    string     `db:"currency" json:"currency"`
	Status      string     `db:"status" json:"status"`
	Description string     `db:"description" json:"description"`
	IssuedAt    *time.Time `db:"issued_at" json:"issued_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}
