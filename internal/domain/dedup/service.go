package dedup

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medirec/medirec/internal/domain/audit"
	"github.com/medirec/medirec/internal/match"
)

// Service runs detection and review-queue operations. Merging is delegated to
// the MergeEngine so its transactional surface stays separate.
type Service struct {
	candidates    CandidateRepository
	directory     PatientDirectory
	merges        *MergeEngine
	scorer        *match.Scorer
	thresholds    Thresholds
	maxCandidates int
	audit         AuditRecorder
	logger        zerolog.Logger
}

func NewService(candidates CandidateRepository, directory PatientDirectory, merges *MergeEngine,
	scorer *match.Scorer, thresholds Thresholds, maxCandidates int,
	auditRec AuditRecorder, logger zerolog.Logger) *Service {
	if maxCandidates <= 0 {
		maxCandidates = 50
	}
	return &Service{
		candidates:    candidates,
		directory:     directory,
		merges:        merges,
		scorer:        scorer,
		thresholds:    thresholds,
		maxCandidates: maxCandidates,
		audit:         auditRec,
		logger:        logger,
	}
}

// CheckResult is the outcome of one detection pass for a single patient.
type CheckResult struct {
	HasDuplicates bool                  `json:"has_duplicates"`
	Candidates    []*DuplicateCandidate `json:"candidates"`
}

// Check scores fp against plausible matches in the clinic and returns every
// pair at or above the low threshold, highest score first. When fp belongs to
// a persisted patient (PatientID set), each reported pair is also written to
// the review queue as pending; pairs a reviewer already adjudicated are
// skipped. A zero PatientID gives a score-only dry run.
func (s *Service) Check(ctx context.Context, clinicID string, fp match.Fingerprint, actor string) (*CheckResult, error) {
	if err := fp.Validate(); err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}

	found, err := s.directory.FindCandidates(ctx, clinicID, fp, s.maxCandidates)
	if err != nil {
		return nil, err
	}

	persist := fp.PatientID != uuid.Nil
	var adjudicated map[uuid.UUID]struct{}
	if persist {
		adjudicated, err = s.candidates.AdjudicatedPeers(ctx, clinicID, fp.PatientID)
		if err != nil {
			return nil, err
		}
	}

	result := &CheckResult{}
	for _, other := range found {
		if other.PatientID == fp.PatientID {
			continue
		}
		if _, done := adjudicated[other.PatientID]; done {
			continue
		}

		score, fields := s.scorer.Score(fp, other)
		if score < s.thresholds.Low {
			continue
		}

		c := NewCandidate(clinicID, fp.PatientID, other.PatientID, score, fields, score >= s.thresholds.High)
		if persist {
			if err := s.candidates.UpsertPending(ctx, c); err != nil {
				// A reviewer decision landed on this pair since the peer
				// snapshot; one live row per pair, so drop it.
				if IsConflict(err) {
					continue
				}
				return nil, err
			}
		}
		result.Candidates = append(result.Candidates, c)
	}

	sort.Slice(result.Candidates, func(i, j int) bool {
		return result.Candidates[i].Score > result.Candidates[j].Score
	})
	result.HasDuplicates = len(result.Candidates) > 0

	if persist && result.HasDuplicates {
		pid := fp.PatientID
		if err := s.audit.Record(ctx, &audit.Entry{
			ClinicID:  clinicID,
			Operation: audit.OpDetect,
			ActorID:   actor,
			PatientID: &pid,
			After:     audit.Marshal(result.Candidates),
		}); err != nil {
			// Detection succeeded; a trail hiccup must not fail the check.
			s.logger.Warn().Err(err).Str("patient_id", pid.String()).Msg("detect audit failed")
		}
	}

	return result, nil
}

// CheckByID re-runs detection for an existing patient.
func (s *Service) CheckByID(ctx context.Context, clinicID string, patientID uuid.UUID, actor string) (*CheckResult, error) {
	fp, err := s.directory.Fingerprint(ctx, clinicID, patientID)
	if err != nil {
		return nil, err
	}
	return s.Check(ctx, clinicID, fp, actor)
}

// GetCandidate loads one review-queue entry.
func (s *Service) GetCandidate(ctx context.Context, clinicID string, id uuid.UUID) (*DuplicateCandidate, error) {
	return s.candidates.GetByID(ctx, clinicID, id)
}

// ListCandidates pages through the review queue.
func (s *Service) ListCandidates(ctx context.Context, clinicID string, f CandidateFilter, limit, offset int) ([]*DuplicateCandidate, int, error) {
	return s.candidates.List(ctx, clinicID, f, limit, offset)
}

// Decision is a reviewer's verdict on a candidate pair.
type Decision string

const (
	DecisionConfirmDuplicate Decision = "confirm_duplicate"
	DecisionConfirmDifferent Decision = "confirm_different"
)

// ResolveInput carries a reviewer's adjudication of a candidate. For
// confirm_duplicate, SurvivorID picks which record remains active (defaults
// to the pair's lower id) and MergeDecisions carry the per-field choices.
type ResolveInput struct {
	Decision       Decision        `json:"decision"`
	ReviewerID     string          `json:"reviewer_id"`
	SurvivorID     uuid.UUID       `json:"survivor_id"`
	MergeDecisions []MergeDecision `json:"merge_decisions"`
}

// Resolve applies a reviewer decision to a candidate. confirm_different
// closes the pair; confirm_duplicate records the confirmation and executes
// the merge. Terminal candidates reject further resolution with a
// ConflictError.
func (s *Service) Resolve(ctx context.Context, clinicID string, candidateID uuid.UUID, in ResolveInput) (*DuplicateCandidate, *MergeOutcome, error) {
	if in.ReviewerID == "" {
		return nil, nil, validationf("reviewer_id is required")
	}

	c, err := s.candidates.GetByID(ctx, clinicID, candidateID)
	if err != nil {
		return nil, nil, err
	}
	if c.Status.Terminal() {
		return nil, nil, conflictf("candidate %s is already %s", candidateID, c.Status)
	}

	switch in.Decision {
	case DecisionConfirmDifferent:
		if err := s.transition(ctx, c, StatusConfirmedDifferent, in.ReviewerID); err != nil {
			return nil, nil, err
		}
		s.recordResolution(ctx, c, in)
		return c, nil, nil

	case DecisionConfirmDuplicate:
		survivor := in.SurvivorID
		if survivor == uuid.Nil {
			survivor = c.PatientID
		}
		if !c.Involves(survivor) {
			return nil, nil, validationf("survivor_id %s is not part of candidate %s", survivor, candidateID)
		}

		if c.Status == StatusPending {
			if err := s.transition(ctx, c, StatusConfirmedDuplicate, in.ReviewerID); err != nil {
				return nil, nil, err
			}
		}
		s.recordResolution(ctx, c, in)

		outcome, err := s.merges.Merge(ctx, clinicID, c, survivor, c.Other(survivor), in.MergeDecisions, in.ReviewerID)
		if err != nil {
			// The confirmation stands; the merge can be retried.
			return c, nil, err
		}
		return c, outcome, nil

	default:
		return nil, nil, validationf("unknown decision %q", in.Decision)
	}
}

func (s *Service) transition(ctx context.Context, c *DuplicateCandidate, next Status, reviewer string) error {
	if !c.Status.CanTransitionTo(next) {
		return conflictf("candidate %s cannot move from %s to %s", c.ID, c.Status, next)
	}
	c.Status = next
	c.ReviewerID = &reviewer
	return s.candidates.UpdateStatus(ctx, c)
}

func (s *Service) recordResolution(ctx context.Context, c *DuplicateCandidate, in ResolveInput) {
	cid := c.ID
	pid := c.PatientID
	oid := c.DuplicateID
	if err := s.audit.Record(ctx, &audit.Entry{
		ClinicID:    c.ClinicID,
		Operation:   audit.OpResolve,
		ActorID:     in.ReviewerID,
		CandidateID: &cid,
		PatientID:   &pid,
		OtherID:     &oid,
		After:       audit.Marshal(map[string]interface{}{"decision": in.Decision, "status": c.Status}),
	}); err != nil {
		s.logger.Warn().Err(err).Str("candidate_id", cid.String()).Msg("resolve audit failed")
	}
}
