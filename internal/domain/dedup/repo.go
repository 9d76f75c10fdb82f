package dedup

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medirec/medirec/internal/domain/audit"
	"github.com/medirec/medirec/internal/match"
)

// CandidateFilter narrows review-queue listings. Zero values mean "any".
type CandidateFilter struct {
	Status             Status
	PatientID          uuid.UUID
	MinScore           float64
	HighConfidenceOnly bool
	CreatedFrom        time.Time
	CreatedTo          time.Time
}

// CandidateRepository persists detection results and review decisions.
type CandidateRepository interface {
	// UpsertPending inserts the candidate, or refreshes score, field scores
	// and confidence flag on the existing pending row for the same pair.
	// A pair whose live row is already confirmed returns a ConflictError;
	// closed pairs are left untouched.
	UpsertPending(ctx context.Context, c *DuplicateCandidate) error
	GetByID(ctx context.Context, clinicID string, id uuid.UUID) (*DuplicateCandidate, error)
	List(ctx context.Context, clinicID string, f CandidateFilter, limit, offset int) ([]*DuplicateCandidate, int, error)
	UpdateStatus(ctx context.Context, c *DuplicateCandidate) error
	// AdjudicatedPeers returns the set of patient ids whose pair with the
	// given patient already carries a reviewer decision, including pairs
	// confirmed but not yet merged. Only still-pending pairs may be
	// re-reported.
	AdjudicatedPeers(ctx context.Context, clinicID string, patientID uuid.UUID) (map[uuid.UUID]struct{}, error)
	// DeletePendingInvolving drops still-pending candidates that reference
	// the given patient. Used after a merge: pending pairs against an
	// absorbed record are noise.
	DeletePendingInvolving(ctx context.Context, clinicID string, patientID uuid.UUID) (int64, error)
}

// Cursor is a resumable position in a clinic's patient set, ordered by
// (created_at, id).
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        uuid.UUID `json:"id"`
}

// Zero reports whether the cursor points at the start of the set.
func (c Cursor) Zero() bool {
	return c.CreatedAt.IsZero() && c.ID == uuid.Nil
}

// PatientMeta is the minimal patient state the engine needs for merges.
type PatientMeta struct {
	ID         uuid.UUID
	Status     string
	MergedInto *uuid.UUID
}

// PatientDirectory is the engine's view of the patient store. The patient
// package implements it; the engine never touches patient rows directly.
type PatientDirectory interface {
	Fingerprint(ctx context.Context, clinicID string, id uuid.UUID) (match.Fingerprint, error)
	Meta(ctx context.Context, clinicID string, id uuid.UUID) (*PatientMeta, error)
	// FindCandidates returns fingerprints of active patients plausibly
	// matching fp: trigram-similar names, phonetically equal names, shared
	// phone suffix, or equal birth date. Excludes fp's own patient.
	FindCandidates(ctx context.Context, clinicID string, fp match.Fingerprint, limit int) ([]match.Fingerprint, error)
	// ListFingerprints pages through active patients after cur in
	// (created_at, id) order, returning the cursor of the last row.
	ListFingerprints(ctx context.Context, clinicID string, cur Cursor, limit int) ([]match.Fingerprint, Cursor, error)
	// AdoptFields copies the named attribute columns from the absorbed
	// record onto the survivor.
	AdoptFields(ctx context.Context, clinicID string, survivorID, absorbedID uuid.UUID, fields []string) error
	MarkMerged(ctx context.Context, clinicID string, absorbedID, survivorID uuid.UUID) error
	// LockPair takes row locks on both patients in canonical order, so
	// concurrent merges touching the same records serialize instead of
	// deadlocking.
	LockPair(ctx context.Context, clinicID string, a, b uuid.UUID) error
}

// DependentStore is a category of patient-owned records the merge re-points.
type DependentStore interface {
	Category() string
	CountByPatient(ctx context.Context, patientID uuid.UUID) (int64, error)
	// Reassign re-points every record of this category from one patient to
	// another and returns the number of rows moved.
	Reassign(ctx context.Context, fromPatientID, toPatientID uuid.UUID) (int64, error)
}

// UnitOfWork runs fn atomically; everything repositories execute through the
// derived context commits or rolls back together.
type UnitOfWork interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// AuditRecorder receives the engine's trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, e *audit.Entry) error
}
