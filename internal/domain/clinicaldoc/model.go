package clinicaldoc

import (
	"time"

	"github.com/google/uuid"
)

// ClinicalDocument maps to the clinical_document table. The body lives in
// object storage; the row carries the pointer and authorship metadata.
type ClinicalDocument struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ClinicID    string    `db:"clinic_id" json:"clinic_id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	Title       string    `db:"title" json:"title"`
	DocType     string    `db:"doc_type" json:"doc_type"`
	StoragePath string    `db:"storage_path" json:"storage_path"`
	AuthoredBy  string    `db:"authored_by" json:"authored_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
