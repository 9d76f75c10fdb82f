package audit

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Service appends audit entries and mirrors each one to the structured log so
// operators can follow the trail without a database session.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Record validates and appends an entry.
func (s *Service) Record(ctx context.Context, e *Entry) error {
	if e.Operation == "" {
		return fmt.Errorf("audit entry requires an operation")
	}
	if e.ClinicID == "" {
		return fmt.Errorf("audit entry requires a clinic_id")
	}
	if e.ActorID == "" {
		e.ActorID = "system"
	}

	if err := s.repo.Append(ctx, e); err != nil {
		return err
	}

	evt := s.logger.Info().
		Str("operation", e.Operation).
		Str("clinic_id", e.ClinicID).
		Str("actor_id", e.ActorID)
	if e.CandidateID != nil {
		evt = evt.Str("candidate_id", e.CandidateID.String())
	}
	if e.PatientID != nil {
		evt = evt.Str("patient_id", e.PatientID.String())
	}
	if e.OtherID != nil {
		evt = evt.Str("other_id", e.OtherID.String())
	}
	evt.Msg("audit")
	return nil
}

// List returns trail entries, newest first.
func (s *Service) List(ctx context.Context, clinicID string, f Filter, limit, offset int) ([]*Entry, int, error) {
	return s.repo.List(ctx, clinicID, f, limit, offset)
}
