package insurance

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

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if q := db.ConnFromContext(ctx); q != nil {
		return q
	}
	return r.pool
}

const policyCols = `id, clinic_id, patient_id, insurer, policy_number, valid_from, valid_to,
	created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, p *Policy) error {
	p.ID = uuid.New()
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO insurance_policy (id, clinic_id, patient_id, insurer, policy_number, valid_from, valid_to)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		p.ID, p.ClinicID, p.PatientID, p.Insurer, p.PolicyNumber, p.ValidFrom, p.ValidTo)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("policy create: %w", err)
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, clinicID string, patientID uuid.UUID, limit, offset int) ([]*Policy, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM insurance_policy WHERE clinic_id = $1 AND patient_id = $2",
		clinicID, patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("policy count: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT %s FROM insurance_policy
		WHERE clinic_id = $1 AND patient_id = $2
		ORDER BY valid_from DESC
		LIMIT $3 OFFSET $4`, policyCols),
		clinicID, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("policy list: %w", err)
	}
	defer rows.Close()

	var out []*Policy
	for rows.Next() {
		var p Policy
		if err := rows.Scan(&p.ID, &p.ClinicID, &p.PatientID, &p.Insurer, &p.PolicyNumber,
			&p.ValidFrom, &p.ValidTo, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("policy scan: %w", err)
		}
		out = append(out, &p)
	}
	return out, total, rows.Err()
}

func (r *repoPG) CountByPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	var n int64
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM insurance_policy WHERE patient_id = $1", patientID).Scan(&n); err != nil {
		return 0, fmt.Errorf("policy count: %w", err)
	}
	return n, nil
}

func (r *repoPG) Reassign(ctx context.Context, fromPatientID, toPatientID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		"UPDATE insurance_policy SET patient_id = $2, updated_at = now() WHERE patient_id = $1",
		fromPatientID, toPatientID)
	if err != nil {
		return 0, fmt.Errorf("policy reassign: %w", err)
	}
	return tag.RowsAffected(), nil
}
