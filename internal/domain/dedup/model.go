package dedup

import (
	"bytes"
	"time"

	"github.com/google/uuid"

	"github.com/medirec/medirec/internal/match"
)

// Status is the resolution state of a candidate pair.
type Status string

const (
	StatusPending            Status = "pending"
	StatusConfirmedDuplicate Status = "confirmed_duplicate"
	StatusConfirmedDifferent Status = "confirmed_different"
	StatusMerged             Status = "merged"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusConfirmedDifferent || s == StatusMerged
}

// CanTransitionTo reports whether the transition s -> next is legal:
//
//	pending -> confirmed_duplicate | confirmed_different
//	confirmed_duplicate -> merged
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirmedDuplicate || next == StatusConfirmedDifferent
	case StatusConfirmedDuplicate:
		return next == StatusMerged
	default:
		return false
	}
}

// DuplicateCandidate maps to the duplicate_candidate table. The pair is
// stored ordered (PatientID < DuplicateID by byte comparison) so the same two
// patients always land on the same row regardless of detection direction.
type DuplicateCandidate struct {
	ID             uuid.UUID          `db:"id" json:"id"`
	ClinicID       string             `db:"clinic_id" json:"clinic_id"`
	PatientID      uuid.UUID          `db:"patient_id" json:"patient_id"`
	DuplicateID    uuid.UUID          `db:"duplicate_id" json:"duplicate_id"`
	Score          float64            `db:"score" json:"score"`
	FieldScores    []match.FieldScore `db:"field_scores" json:"field_scores"`
	HighConfidence bool               `db:"high_confidence" json:"high_confidence"`
	Status         Status             `db:"status" json:"status"`
	ReviewerID     *string            `db:"reviewer_id" json:"reviewer_id,omitempty"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at" json:"updated_at"`
	ReviewedAt     *time.Time         `db:"reviewed_at" json:"reviewed_at,omitempty"`
}

// NewCandidate builds a pending candidate for an unordered pair.
func NewCandidate(clinicID string, a, b uuid.UUID, score float64, fields []match.FieldScore, highConfidence bool) *DuplicateCandidate {
	lo, hi := OrderPair(a, b)
	return &DuplicateCandidate{
		ClinicID:       clinicID,
		PatientID:      lo,
		DuplicateID:    hi,
		Score:          score,
		FieldScores:    fields,
		HighConfidence: highConfidence,
		Status:         StatusPending,
	}
}

// OrderPair returns the two ids in canonical (byte-ascending) order.
func OrderPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b
	}
	return b, a
}

// MatchedFields returns the names of fields that cleared their cutoff.
func (c *DuplicateCandidate) MatchedFields() []string {
	var out []string
	for _, f := range c.FieldScores {
		if f.Matched {
			out = append(out, f.Field)
		}
	}
	return out
}

// Involves reports whether the candidate references the given patient.
func (c *DuplicateCandidate) Involves(id uuid.UUID) bool {
	return c.PatientID == id || c.DuplicateID == id
}

// Other returns the opposite member of the pair.
func (c *DuplicateCandidate) Other(id uuid.UUID) uuid.UUID {
	if c.PatientID == id {
		return c.DuplicateID
	}
	return c.PatientID
}

// DecisionSource selects which record's value wins for a field during merge.
type DecisionSource string

const (
	SourcePrimary   DecisionSource = "primary"
	SourceDuplicate DecisionSource = "duplicate"
)

// MergeDecision is a caller-supplied per-field resolution choice. The engine
// applies decisions mechanically; it never decides which value should win.
type MergeDecision struct {
	Field  string         `json:"field"`
	Source DecisionSource `json:"source"`
}

// CategoryCount reports how many records of one dependent category were
// re-pointed during a merge.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// MergeOutcome is the result of a merge execution.
type MergeOutcome struct {
	SurvivorID    uuid.UUID       `json:"survivor_id"`
	AbsorbedID    uuid.UUID       `json:"absorbed_id"`
	Migrated      []CategoryCount `json:"migrated"`
	AlreadyMerged bool            `json:"already_merged"`
}

// TotalMigrated sums the per-category reassignment counts.
func (o *MergeOutcome) TotalMigrated() int64 {
	var n int64
	for _, c := range o.Migrated {
		n += c.Count
	}
	return n
}

// Thresholds classify a composite score: below Low the pair is discarded,
// in [Low, High) it is reported as a pending candidate, at or above High it is
// additionally flagged high-confidence for review prioritization. The engine
// never merges from score alone.
type Thresholds struct {
	Low  float64
	High float64
}

// DefaultThresholds returns the standard classification band.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 0.6, High: 0.8}
}
