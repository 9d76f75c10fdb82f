package insurance

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Policy) error
	ListByPatient(ctx context.Context, clinicID string, patientID uuid.UUID, limit, offset int) ([]*Policy, int, error)
	CountByPatient(ctx context.Context, patientID uuid.UUID) (int64, error)
	Reassign(ctx context.Context, fromPatientID, toPatientID uuid.UUID) (int64, error)
}
