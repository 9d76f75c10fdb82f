package prescription

import (
	"context"

	"github.com/google/uuid"

	"github.com/medirec/medirec/internal/domain/dedup"
)

// Service owns prescriptions and doubles as the merge engine's dependent
// store for the prescriptions category.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Category() string { return "prescriptions" }

func (s *Service) Issue(ctx context.Context, p *Prescription) error {
	if p.PatientID == uuid.Nil {
		return &dedup.ValidationError{Msg: "patient_id is required"}
	}
	if p.Medication == "" || p.Dosage == "" {
		return &dedup.ValidationError{Msg: "medication and dosage are required"}
	}
	if p.PrescriberName == "" {
		return &dedup.ValidationError{Msg: "prescriber_name is required"}
	}
	if p.ExpiresAt != nil && !p.IssuedAt.IsZero() && p.ExpiresAt.Before(p.IssuedAt) {
		return &dedup.ValidationError{Msg: "expires_at precedes issued_at"}
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) ListForPatient(ctx context.Context, clinicID string, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return s.repo.ListByPatient(ctx, clinicID, patientID, limit, offset)
}

func (s *Service) CountByPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	return s.repo.CountByPatient(ctx, patientID)
}

func (s *Service) Reassign(ctx context.Context, fromPatientID, toPatientID uuid.UUID) (int64, error) {
	return s.repo.Reassign(ctx, fromPatientID, toPatientID)
}
