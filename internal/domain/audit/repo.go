package audit

import (
	"context"

	"github.com/google/uuid"
)

// Filter narrows trail queries. Zero values mean "any".
type Filter struct {
	Operation   string
	CandidateID uuid.UUID
	PatientID   uuid.UUID
}

// Repository is the append-only persistence port for audit entries.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, clinicID string, f Filter, limit, offset int) ([]*Entry, int, error)
}
