package insurance

import (
	"context"

	"github.com/google/uuid"

	"github.com/medirec/medirec/internal/domain/dedup"
)

// Service owns insurance coverage and doubles as the merge engine's
// dependent store for the insurance_details category.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Category() string { return "insurance_details" }

func (s *Service) Enroll(ctx context.Context, p *Policy) error {
	if p.PatientID == uuid.Nil {
		return &dedup.ValidationError{Msg: "patient_id is required"}
	}
	if p.Insurer == "" || p.PolicyNumber == "" {
		return &dedup.ValidationError{Msg: "insurer and policy_number are required"}
	}
	if p.ValidTo != nil && p.ValidTo.Before(p.ValidFrom) {
		return &dedup.ValidationError{Msg: "valid_to precedes valid_from"}
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) ListForPatient(ctx context.Context, clinicID string, patientID uuid.UUID, limit, offset int) ([]*Policy, int, error) {
	return s.repo.ListByPatient(ctx, clinicID, patientID, limit, offset)
}

func (s *Service) CountByPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	return s.repo.CountByPatient(ctx, patientID)
}

func (s *Service) Reassign(ctx context.Context, fromPatientID, toPatientID uuid.UUID) (int64, error) {
	return s.repo.Reassign(ctx, fromPatientID, toPatientID)
}
