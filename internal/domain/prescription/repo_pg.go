package prescription

import (
	"context"
	"fmt"
	"time"

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

const prescriptionCols = `id, clinic_id, patient_id, medication, dosage, prescriber_name,
	issued_at, expires_at, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	if p.IssuedAt.IsZero() {
		p.IssuedAt = time.Now()
	}
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescription (id, clinic_id, patient_id, medication, dosage, prescriber_name, issued_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		p.ID, p.ClinicID, p.PatientID, p.Medication, p.Dosage, p.PrescriberName, p.IssuedAt, p.ExpiresAt)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("prescription create: %w", err)
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, clinicID string, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM prescription WHERE clinic_id = $1 AND patient_id = $2",
		clinicID, patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("prescription count: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT %s FROM prescription
		WHERE clinic_id = $1 AND patient_id = $2
		ORDER BY issued_at DESC
		LIMIT $3 OFFSET $4`, prescriptionCols),
		clinicID, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("prescription list: %w", err)
	}
	defer rows.Close()

	var out []*Prescription
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(&p.ID, &p.ClinicID, &p.PatientID, &p.Medication, &p.Dosage,
			&p.PrescriberName, &p.IssuedAt, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("prescription scan: %w", err)
		}
		out = append(out, &p)
	}
	return out, total, rows.Err()
}

func (r *repoPG) CountByPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	var n int64
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM prescription WHERE patient_id = $1", patientID).Scan(&n); err != nil {
		return 0, fmt.Errorf("prescription count: %w", err)
	}
	return n, nil
}

func (r *repoPG) Reassign(ctx context.Context, fromPatientID, toPatientID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		"UPDATE prescription SET patient_id = $2, updated_at = now() WHERE patient_id = $1",
		fromPatientID, toPatientID)
	if err != nil {
		return 0, fmt.Errorf("prescription reassign: %w", err)
	}
	return tag.RowsAffected(), nil
}
