package dedup

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medirec/medirec/internal/domain/audit"
)

// mergeableFields are the patient attributes a MergeDecision may target.
var mergeableFields = map[string]struct{}{
	"first_name":     {},
	"last_name":      {},
	"middle_name":    {},
	"birth_date":     {},
	"gender":         {},
	"phone":          {},
	"email":          {},
	"address_street": {},
	"address_city":   {},
}

// MergeEngine executes confirmed merges. Every step runs inside one unit of
// work: field adoption, dependent-record reassignment across all registered
// stores, absorbed-record retirement, and the audit entry commit or roll back
// together, so a failure anywhere leaves both patients untouched.
type MergeEngine struct {
	uow        UnitOfWork
	directory  PatientDirectory
	candidates CandidateRepository
	stores     []DependentStore
	audit      AuditRecorder
	logger     zerolog.Logger
}

func NewMergeEngine(uow UnitOfWork, directory PatientDirectory, candidates CandidateRepository,
	stores []DependentStore, auditRec AuditRecorder, logger zerolog.Logger) *MergeEngine {
	return &MergeEngine{
		uow:        uow,
		directory:  directory,
		candidates: candidates,
		stores:     stores,
		audit:      auditRec,
		logger:     logger,
	}
}

// Merge absorbs one patient record into another. The survivor stays active
// and, per the supplied decisions, may adopt field values from the absorbed
// record; the absorbed record is marked merged with a back-reference. Running
// the same merge again is a no-op reported through AlreadyMerged.
func (e *MergeEngine) Merge(ctx context.Context, clinicID string, c *DuplicateCandidate,
	survivorID, absorbedID uuid.UUID, decisions []MergeDecision, actor string) (*MergeOutcome, error) {

	if survivorID == absorbedID {
		return nil, validationf("survivor and absorbed patient must differ")
	}
	adopt, err := fieldsToAdopt(decisions)
	if err != nil {
		return nil, err
	}

	outcome := &MergeOutcome{SurvivorID: survivorID, AbsorbedID: absorbedID}
	err = e.uow.Run(ctx, func(ctx context.Context) error {
		if err := e.directory.LockPair(ctx, clinicID, survivorID, absorbedID); err != nil {
			return &MergeFailure{Step: "lock", Err: err}
		}

		survivor, err := e.directory.Meta(ctx, clinicID, survivorID)
		if err != nil {
			return err
		}
		absorbed, err := e.directory.Meta(ctx, clinicID, absorbedID)
		if err != nil {
			return err
		}

		if absorbed.Status == "merged" {
			if absorbed.MergedInto != nil && *absorbed.MergedInto == survivorID {
				outcome.AlreadyMerged = true
				return e.markCandidateMerged(ctx, c)
			}
			return conflictf("patient %s was already merged into a different record", absorbedID)
		}
		if survivor.Status == "merged" {
			return conflictf("survivor %s is itself a merged record", survivorID)
		}

		if len(adopt) > 0 {
			if err := e.directory.AdoptFields(ctx, clinicID, survivorID, absorbedID, adopt); err != nil {
				return &MergeFailure{Step: "apply decisions", Err: err}
			}
		}

		for _, store := range e.stores {
			n, err := store.Reassign(ctx, absorbedID, survivorID)
			if err != nil {
				return &MergeFailure{Step: store.Category(), Err: err}
			}
			outcome.Migrated = append(outcome.Migrated, CategoryCount{Category: store.Category(), Count: n})
		}

		if err := e.directory.MarkMerged(ctx, clinicID, absorbedID, survivorID); err != nil {
			return &MergeFailure{Step: "retire absorbed record", Err: err}
		}

		if err := e.markCandidateMerged(ctx, c); err != nil {
			return err
		}
		if _, err := e.candidates.DeletePendingInvolving(ctx, clinicID, absorbedID); err != nil {
			return &MergeFailure{Step: "queue cleanup", Err: err}
		}

		var cid *uuid.UUID
		if c != nil {
			cid = &c.ID
		}
		if err := e.audit.Record(ctx, &audit.Entry{
			ClinicID:    clinicID,
			Operation:   audit.OpMerge,
			ActorID:     actor,
			CandidateID: cid,
			PatientID:   &survivorID,
			OtherID:     &absorbedID,
			Before:      audit.Marshal(map[string]interface{}{"decisions": decisions}),
			After:       audit.Marshal(outcome),
		}); err != nil {
			return &MergeFailure{Step: "audit", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	evt := e.logger.Info().
		Str("clinic_id", clinicID).
		Str("survivor_id", survivorID.String()).
		Str("absorbed_id", absorbedID.String())
	if outcome.AlreadyMerged {
		evt.Msg("merge replayed, pair already merged")
	} else {
		evt.Int64("migrated", outcome.TotalMigrated()).Msg("patients merged")
	}
	return outcome, nil
}

func (e *MergeEngine) markCandidateMerged(ctx context.Context, c *DuplicateCandidate) error {
	if c == nil || c.Status == StatusMerged {
		return nil
	}
	if !c.Status.CanTransitionTo(StatusMerged) {
		return conflictf("candidate %s cannot move from %s to %s", c.ID, c.Status, StatusMerged)
	}
	c.Status = StatusMerged
	if err := e.candidates.UpdateStatus(ctx, c); err != nil {
		return &MergeFailure{Step: "candidate status", Err: err}
	}
	return nil
}

// fieldsToAdopt validates decisions and returns the fields whose value comes
// from the absorbed record. Primary-sourced fields need no work: the survivor
// already holds them.
func fieldsToAdopt(decisions []MergeDecision) ([]string, error) {
	seen := map[string]struct{}{}
	var adopt []string
	for _, d := range decisions {
		if _, ok := mergeableFields[d.Field]; !ok {
			return nil, validationf("field %q is not mergeable", d.Field)
		}
		if _, dup := seen[d.Field]; dup {
			return nil, validationf("duplicate decision for field %q", d.Field)
		}
		seen[d.Field] = struct{}{}
		switch d.Source {
		case SourcePrimary:
		case SourceDuplicate:
			adopt = append(adopt, d.Field)
		default:
			return nil, validationf("unknown decision source %q for field %q", d.Source, d.Field)
		}
	}
	return adopt, nil
}
