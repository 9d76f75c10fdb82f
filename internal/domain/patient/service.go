package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medirec/medirec/internal/domain/dedup"
	"github.com/medirec/medirec/internal/match"
)

// DuplicateChecker is the slice of the detection engine registration needs.
type DuplicateChecker interface {
	Check(ctx context.Context, clinicID string, fp match.Fingerprint, actor string) (*dedup.CheckResult, error)
}

type Service struct {
	repo   Repository
	dupes  DuplicateChecker
	logger zerolog.Logger
}

func NewService(repo Repository, dupes DuplicateChecker, logger zerolog.Logger) *Service {
	return &Service{repo: repo, dupes: dupes, logger: logger}
}

// RegistrationResult couples the stored patient with the inline duplicate
// check. DuplicateCheckError is set when detection was unavailable; the
// registration itself still succeeded.
type RegistrationResult struct {
	Patient             *Patient           `json:"patient"`
	Duplicates          *dedup.CheckResult `json:"duplicates,omitempty"`
	DuplicateCheckError string             `json:"duplicate_check_error,omitempty"`
}

func validate(p *Patient) error {
	if p.FirstName == "" || p.LastName == "" {
		return &dedup.ValidationError{Msg: "first_name and last_name are required"}
	}
	if p.BirthDate != nil && p.BirthDate.After(time.Now()) {
		return &dedup.ValidationError{Msg: "birth_date cannot be in the future"}
	}
	return nil
}

// Register stores a new patient and runs duplicate detection against the
// clinic. Detection failures degrade gracefully: the patient is kept and the
// response flags that the check could not run.
func (s *Service) Register(ctx context.Context, p *Patient, actor string) (*RegistrationResult, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	p.Status = StatusActive
	p.MergedInto = nil

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	result := &RegistrationResult{Patient: p}
	if s.dupes != nil {
		check, err := s.dupes.Check(ctx, p.ClinicID, p.Fingerprint(), actor)
		if err != nil {
			s.logger.Warn().Err(err).
				Str("patient_id", p.ID.String()).
				Msg("registration duplicate check unavailable")
			result.DuplicateCheckError = "duplicate check unavailable"
			return result, nil
		}
		result.Duplicates = check
	}
	return result, nil
}

func (s *Service) Get(ctx context.Context, clinicID string, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, clinicID, id)
}

// Update rewrites a patient's demographics. Merged records are frozen.
func (s *Service) Update(ctx context.Context, p *Patient) (*Patient, error) {
	if err := validate(p); err != nil {
		return nil, err
	}

	current, err := s.repo.GetByID(ctx, p.ClinicID, p.ID)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusMerged {
		return nil, &dedup.ConflictError{Msg: "patient " + p.ID.String() + " was merged and is read-only"}
	}

	p.Status = current.Status
	p.MergedInto = current.MergedInto
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, clinicID string, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, clinicID, f, limit, offset)
}
