package appointment

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

const appointmentCols = `id, clinic_id, patient_id, practitioner_name, scheduled_at, status, notes,
	created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, clinic_id, patient_id, practitioner_name, scheduled_at, status, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		a.ID, a.ClinicID, a.PatientID, a.PractitionerName, a.ScheduledAt, a.Status, a.Notes)
	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		return fmt.Errorf("appointment create: %w", err)
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, clinicID string, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM appointment WHERE clinic_id = $1 AND patient_id = $2",
		clinicID, patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("appointment count: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT %s FROM appointment
		WHERE clinic_id = $1 AND patient_id = $2
		ORDER BY scheduled_at DESC
		LIMIT $3 OFFSET $4`, appointmentCols),
		clinicID, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("appointment list: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.ClinicID, &a.PatientID, &a.PractitionerName,
			&a.ScheduledAt, &a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("appointment scan: %w", err)
		}
		out = append(out, &a)
	}
	return out, total, rows.Err()
}

func (r *repoPG) CountByPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	var n int64
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM appointment WHERE patient_id = $1", patientID).Scan(&n); err != nil {
		return 0, fmt.Errorf("appointment count: %w", err)
	}
	return n, nil
}

func (r *repoPG) Reassign(ctx context.Context, fromPatientID, toPatientID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		"UPDATE appointment SET patient_id = $2, updated_at = now() WHERE patient_id = $1",
		fromPatientID, toPatientID)
	if err != nil {
		return 0, fmt.Errorf("appointment reassign: %w", err)
	}
	return tag.RowsAffected(), nil
}
