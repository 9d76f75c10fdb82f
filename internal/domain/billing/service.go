package billing

import (
	"context"

	"github.com/google/uuid"

	"github.com/medirec/medirec/internal/domain/dedup"
)

// Service owns invoicing and doubles as the merge engine's dependent store
// for the billing_records category.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Category() string { return "billing_records" }

func (s *Service) Issue(ctx context.Context, inv *Invoice) error {
	if inv.PatientID == uuid.Nil {
		return &dedup.ValidationError{Msg: "patient_id is required"}
	}
	if inv.AmountCents <= 0 {
		return &dedup.ValidationError{Msg: "amount_cents must be positive"}
	}
	return s.repo.Create(ctx, inv)
}

func (s *Service) ListForPatient(ctx context.Context, clinicID string, patientID uuid.UUID, limit, offset int) ([]*Invoice, int, error) {
	return s.repo.ListByPatient(ctx, clinicID, patientID, limit, offset)
}

func (s *Service) CountByPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	return s.repo.CountByPatient(ctx, patientID)
}

func (s *Service) Reassign(ctx context.Context, fromPatientID, toPatientID uuid.UUID) (int64, error) {
	return s.repo.Reassign(ctx, fromPatientID, toPatientID)
}
