package billing

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

const invoiceCols = `id, clinic_id, patient_id, amount_cents, currency, status, description,
	issued_at, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, inv *Invoice) error {
	inv.ID = uuid.New()
	if inv.Status == "" {
		inv.Status = StatusDraft
	}
	if inv.Currency == "" {
		inv.Currency = "DZD"
	}
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO invoice (id, clinic_id, patient_id, amount_cents, currency, status, description, issued_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		inv.ID, inv.ClinicID, inv.PatientID, inv.AmountCents, inv.Currency, inv.Status, inv.Description, inv.IssuedAt)
	if err := row.Scan(&inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return fmt.Errorf("invoice create: %w", err)
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, clinicID string, patientID uuid.UUID, limit, offset int) ([]*Invoice, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM invoice WHERE clinic_id = $1 AND patient_id = $2",
		clinicID, patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("invoice count: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT %s FROM invoice
		WHERE clinic_id = $1 AND patient_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`, invoiceCols),
		clinicID, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("invoice list: %w", err)
	}
	defer rows.Close()

	var out []*Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.ClinicID, &inv.PatientID, &inv.AmountCents, &inv.Currency,
			&inv.Status, &inv.Description, &inv.IssuedAt, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("invoice scan: %w", err)
		}
		out = append(out, &inv)
	}
	return out, total, rows.Err()
}

func (r *repoPG) CountByPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	var n int64
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM invoice WHERE patient_id = $1", patientID).Scan(&n); err != nil {
		return 0, fmt.Errorf("invoice count: %w", err)
	}
	return n, nil
}

func (r *repoPG) Reassign(ctx context.Context, fromPatientID, toPatientID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		"UPDATE invoice SET patient_id = $2, updated_at = now() WHERE patient_id = $1",
		fromPatientID, toPatientID)
	if err != nil {
		return 0, fmt.Errorf("invoice reassign: %w", err)
	}
	return tag.RowsAffected(), nil
}
