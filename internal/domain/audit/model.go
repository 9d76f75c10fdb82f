package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Operation names the engine action an entry records.
const (
	OpDetect  = "duplicate.detect"
	OpResolve = "duplicate.resolve"
	OpMerge   = "duplicate.merge"
)

// Entry is one append-only audit record. Entries are never updated or
// deleted; corrections are new entries.
type Entry struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	ClinicID    string          `db:"clinic_id" json:"clinic_id"`
	Operation   string          `db:"operation" json:"operation"`
	ActorID     string          `db:"actor_id" json:"actor_id"`
	CandidateID *uuid.UUID      `db:"candidate_id" json:"candidate_id,omitempty"`
	PatientID   *uuid.UUID      `db:"patient_id" json:"patient_id,omitempty"`
	OtherID     *uuid.UUID      `db:"other_id" json:"other_id,omitempty"`
	Before      json.RawMessage `db:"before_state" json:"before,omitempty"`
	After       json.RawMessage `db:"after_state" json:"after,omitempty"`
	Note        string          `db:"note" json:"note,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Marshal serializes v for a Before/After snapshot, swallowing nil.
func Marshal(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
