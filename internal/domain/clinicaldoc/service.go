package clinicaldoc

import (
	"context"

	"github.com/google/uuid"

	"github.com/medirec/medirec/internal/domain/dedup"
)

// Service owns clinical-document metadata and doubles as the merge engine's
// dependent store for the clinical_documents category.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Category() string { return "clinical_documents" }

func (s *Service) Attach(ctx context.Context, d *ClinicalDocument) error {
	if d.PatientID == uuid.Nil {
		return &dedup.ValidationError{Msg: "patient_id is required"}
	}
	if d.Title == "" || d.StoragePath == "" {
		return &dedup.ValidationError{Msg: "title and storage_path are required"}
	}
	return s.repo.Create(ctx, d)
}

func (s *Service) ListForPatient(ctx context.Context, clinicID string, patientID uuid.UUID, limit, offset int) ([]*ClinicalDocument, int, error) {
	return s.repo.ListByPatient(ctx, clinicID, patientID, limit, offset)
}

func (s *Service) CountByPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	return s.repo.CountByPatient(ctx, patientID)
}

func (s *Service) Reassign(ctx context.Context, fromPatientID, toPatientID uuid.UUID) (int64, error) {
	return s.repo.Reassign(ctx, fromPatientID, toPatientID)
}
