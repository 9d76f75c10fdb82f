package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medirec/medirec/internal/domain/dedup"
)

// Service owns appointment booking. It also satisfies the merge engine's
// dependent-store contract, so confirmed merges carry appointments over to
// the surviving patient.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Category() string { return "appointments" }

func (s *Service) Schedule(ctx context.Context, a *Appointment) error {
	if a.PatientID == uuid.Nil {
		return &dedup.ValidationError{Msg: "patient_id is required"}
	}
	if a.PractitionerName == "" {
		return &dedup.ValidationError{Msg: "practitioner_name is required"}
	}
	if a.ScheduledAt.IsZero() || a.ScheduledAt.Before(time.Now()) {
		return &dedup.ValidationError{Msg: "scheduled_at must be in the future"}
	}
	return s.repo.Create(ctx, a)
}

func (s *Service) ListForPatient(ctx context.Context, clinicID string, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByPatient(ctx, clinicID, patientID, limit, offset)
}

func (s *Service) CountByPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	return s.repo.CountByPatient(ctx, patientID)
}

func (s *Service) Reassign(ctx context.Context, fromPatientID, toPatientID uuid.UUID) (int64, error) {
	return s.repo.Reassign(ctx, fromPatientID, toPatientID)
}
