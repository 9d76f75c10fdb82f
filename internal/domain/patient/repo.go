package patient

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows patient listings. Zero values mean "any".
type ListFilter struct {
	Status string
	// Search matches against the normalized full name, prefix-insensitively.
	Search string
}

// Repository is the CRUD persistence port for patients.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, clinicID string, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	List(ctx context.Context, clinicID string, f ListFilter, limit, offset int) ([]*Patient, int, error)
}
