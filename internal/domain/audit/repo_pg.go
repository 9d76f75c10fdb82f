package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medirec/medirec/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepo creates the Postgres-backed audit repository.
func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if q := db.ConnFromContext(ctx); q != nil {
		return q
	}
	return r.pool
}

const entryCols = `id, clinic_id, operation, actor_id, candidate_id, patient_id, other_id,
	before_state, after_state, note, created_at`

func (r *repoPG) Append(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO audit_entry (
			id, clinic_id, operation, actor_id, candidate_id, patient_id, other_id,
			before_state, after_state, note
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at`,
		e.ID, e.ClinicID, e.Operation, e.ActorID, e.CandidateID, e.PatientID, e.OtherID,
		e.Before, e.After, e.Note)
	if err := row.Scan(&e.CreatedAt); err != nil {
		return fmt.Errorf("audit append: %w", err)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, clinicID string, f Filter, limit, offset int) ([]*Entry, int, error) {
	where := "WHERE clinic_id = $1"
	args := []interface{}{clinicID}

	if f.Operation != "" {
		args = append(args, f.Operation)
		where += fmt.Sprintf(" AND operation = $%d", len(args))
	}
	if f.CandidateID != uuid.Nil {
		args = append(args, f.CandidateID)
		where += fmt.Sprintf(" AND candidate_id = $%d", len(args))
	}
	if f.PatientID != uuid.Nil {
		args = append(args, f.PatientID)
		where += fmt.Sprintf(" AND (patient_id = $%d OR other_id = $%d)", len(args), len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM audit_entry "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("audit count: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		"SELECT %s FROM audit_entry %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		entryCols, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("audit list: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ClinicID, &e.Operation, &e.ActorID, &e.CandidateID,
			&e.PatientID, &e.OtherID, &e.Before, &e.After, &e.Note, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("audit scan: %w", err)
		}
		out = append(out, &e)
	}
	return out, total, rows.Err()
}
