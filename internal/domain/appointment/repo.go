package appointment

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists appointments. Reassign and CountByPatient make it a
// dependent store the merge engine can re-point.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	ListByPatient(ctx context.Context, clinicID string, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	CountByPatient(ctx context.Context, patientID uuid.UUID) (int64, error)
	Reassign(ctx context.Context, fromPatientID, toPatientID uuid.UUID) (int64, error)
}
