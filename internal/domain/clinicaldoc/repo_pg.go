package clinicaldoc

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

const documentCols = `id, clinic_id, patient_id, title, doc_type, storage_path, authored_by,
	created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, d *ClinicalDocument) error {
	d.ID = uuid.New()
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinical_document (id, clinic_id, patient_id, title, doc_type, storage_path, authored_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		d.ID, d.ClinicID, d.PatientID, d.Title, d.DocType, d.StoragePath, d.AuthoredBy)
	if err := row.Scan(&d.CreatedAt, &d.UpdatedAt); err != nil {
		return fmt.Errorf("document create: %w", err)
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, clinicID string, patientID uuid.UUID, limit, offset int) ([]*ClinicalDocument, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM clinical_document WHERE clinic_id = $1 AND patient_id = $2",
		clinicID, patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("document count: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT %s FROM clinical_document
		WHERE clinic_id = $1 AND patient_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`, documentCols),
		clinicID, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("document list: %w", err)
	}
	defer rows.Close()

	var out []*ClinicalDocument
	for rows.Next() {
		var d ClinicalDocument
		if err := rows.Scan(&d.ID, &d.ClinicID, &d.PatientID, &d.Title, &d.DocType,
			&d.StoragePath, &d.AuthoredBy, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("document scan: %w", err)
		}
		out = append(out, &d)
	}
	return out, total, rows.Err()
}

func (r *repoPG) CountByPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	var n int64
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM clinical_document WHERE patient_id = $1", patientID).Scan(&n); err != nil {
		return 0, fmt.Errorf("document count: %w", err)
	}
	return n, nil
}

func (r *repoPG) Reassign(ctx context.Context, fromPatientID, toPatientID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		"UPDATE clinical_document SET patient_id = $2, updated_at = now() WHERE patient_id = $1",
		fromPatientID, toPatientID)
	if err != nil {
		return 0, fmt.Errorf("document reassign: %w", err)
	}
	return tag.RowsAffected(), nil
}
