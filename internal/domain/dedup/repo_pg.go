package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medirec/medirec/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepo creates the Postgres-backed candidate repository.
func NewRepo(pool *pgxpool.Pool) CandidateRepository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if q := db.ConnFromContext(ctx); q != nil {
		return q
	}
	return r.pool
}

const candidateCols = `id, clinic_id, pair_lo, pair_hi, score, field_scores, high_confidence,
	status, reviewer_id, created_at, updated_at, reviewed_at`

// UpsertPending relies on the partial unique index on (pair_lo, pair_hi)
// WHERE status IN ('pending', 'confirmed_duplicate'): re-detection of a
// pending pair refreshes the row in place, a pair whose live row is already
// confirmed (merge awaiting retry) conflicts without being touched, and
// closed rows sit outside the index entirely.
func (r *repoPG) UpsertPending(ctx context.Context, c *DuplicateCandidate) error {
	fieldScores, err := json.Marshal(c.FieldScores)
	if err != nil {
		return fmt.Errorf("candidate upsert: %w", err)
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO duplicate_candidate (
			id, clinic_id, pair_lo, pair_hi, score, field_scores, high_confidence, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,'pending')
		ON CONFLICT (pair_lo, pair_hi) WHERE status IN ('pending', 'confirmed_duplicate')
		DO UPDATE SET
			score = EXCLUDED.score,
			field_scores = EXCLUDED.field_scores,
			high_confidence = EXCLUDED.high_confidence,
			updated_at = now()
		WHERE duplicate_candidate.status = 'pending'
		RETURNING id, created_at, updated_at`,
		c.ID, c.ClinicID, c.PatientID, c.DuplicateID, c.Score, fieldScores, c.HighConfidence)
	if err := row.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		// DO UPDATE skipped: the live row for the pair is confirmed.
		if errors.Is(err, pgx.ErrNoRows) {
			return conflictf("pair %s/%s already has a confirmed candidate", c.PatientID, c.DuplicateID)
		}
		return fmt.Errorf("candidate upsert: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, clinicID string, id uuid.UUID) (*DuplicateCandidate, error) {
	row := r.conn(ctx).QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM duplicate_candidate WHERE id = $1 AND clinic_id = $2", candidateCols),
		id, clinicID)
	c, err := scanCandidate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: "candidate", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("candidate get: %w", err)
	}
	return c, nil
}

func (r *repoPG) List(ctx context.Context, clinicID string, f CandidateFilter, limit, offset int) ([]*DuplicateCandidate, int, error) {
	where := "WHERE clinic_id = $1"
	args := []interface{}{clinicID}

	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.PatientID != uuid.Nil {
		args = append(args, f.PatientID)
		where += fmt.Sprintf(" AND (pair_lo = $%d OR pair_hi = $%d)", len(args), len(args))
	}
	if f.MinScore > 0 {
		args = append(args, f.MinScore)
		where += fmt.Sprintf(" AND score >= $%d", len(args))
	}
	if f.HighConfidenceOnly {
		where += " AND high_confidence"
	}
	if !f.CreatedFrom.IsZero() {
		args = append(args, f.CreatedFrom)
		where += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !f.CreatedTo.IsZero() {
		args = append(args, f.CreatedTo)
		where += fmt.Sprintf(" AND created_at < $%d", len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM duplicate_candidate "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("candidate count: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		"SELECT %s FROM duplicate_candidate %s ORDER BY score DESC, created_at ASC LIMIT $%d OFFSET $%d",
		candidateCols, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("candidate list: %w", err)
	}
	defer rows.Close()

	var out []*DuplicateCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("candidate scan: %w", err)
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repoPG) UpdateStatus(ctx context.Context, c *DuplicateCandidate) error {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE duplicate_candidate
		SET status = $2, reviewer_id = $3, reviewed_at = now(), updated_at = now()
		WHERE id = $1
		RETURNING updated_at, reviewed_at`,
		c.ID, c.Status, c.ReviewerID)
	if err := row.Scan(&c.UpdatedAt, &c.ReviewedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Resource: "candidate", ID: c.ID.String()}
		}
		return fmt.Errorf("candidate update: %w", err)
	}
	return nil
}

func (r *repoPG) AdjudicatedPeers(ctx context.Context, clinicID string, patientID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT pair_lo, pair_hi
		FROM duplicate_candidate
		WHERE clinic_id = $1
		  AND (pair_lo = $2 OR pair_hi = $2)
		  AND status <> 'pending'`,
		clinicID, patientID)
	if err != nil {
		return nil, fmt.Errorf("candidate peers: %w", err)
	}
	defer rows.Close()

	peers := map[uuid.UUID]struct{}{}
	for rows.Next() {
		var lo, hi uuid.UUID
		if err := rows.Scan(&lo, &hi); err != nil {
			return nil, fmt.Errorf("candidate peers scan: %w", err)
		}
		if lo == patientID {
			peers[hi] = struct{}{}
		} else {
			peers[lo] = struct{}{}
		}
	}
	return peers, rows.Err()
}

func (r *repoPG) DeletePendingInvolving(ctx context.Context, clinicID string, patientID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM duplicate_candidate
		WHERE clinic_id = $1
		  AND status = 'pending'
		  AND (pair_lo = $2 OR pair_hi = $2)`,
		clinicID, patientID)
	if err != nil {
		return 0, fmt.Errorf("candidate cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanCandidate(row pgx.Row) (*DuplicateCandidate, error) {
	var c DuplicateCandidate
	var fieldScores []byte
	if err := row.Scan(&c.ID, &c.ClinicID, &c.PatientID, &c.DuplicateID, &c.Score, &fieldScores,
		&c.HighConfidence, &c.Status, &c.ReviewerID, &c.CreatedAt, &c.UpdatedAt, &c.ReviewedAt); err != nil {
		return nil, err
	}
	if len(fieldScores) > 0 {
		if err := json.Unmarshal(fieldScores, &c.FieldScores); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// pgUnitOfWork wraps a pool transaction and parks it in the context, so every
// repository call inside fn routes through the same pgx.Tx.
type pgUnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork creates the pool-backed UnitOfWork used by the merge engine.
func NewUnitOfWork(pool *pgxpool.Pool) UnitOfWork {
	return &pgUnitOfWork{pool: pool}
}

func (u *pgUnitOfWork) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := u.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(db.WithConn(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
