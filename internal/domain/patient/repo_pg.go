package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medirec/medirec/internal/domain/dedup"
	"github.com/medirec/medirec/internal/match"
	"github.com/medirec/medirec/internal/platform/db"
)

// RepoPG is the Postgres patient repository. Besides CRUD it implements the
// engine's PatientDirectory: candidate retrieval, merge locking and
// retirement all run against the same table.
type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) db.Queryable {
	if q := db.ConnFromContext(ctx); q != nil {
		return q
	}
	return r.pool
}

const patientCols = `id, clinic_id, first_name, last_name, middle_name, birth_date, gender,
	phone, email, address_street, address_city, status, merged_into, created_at, updated_at`

// shadow columns derived from the fingerprint; retrieval queries hit these,
// never the raw values.
func shadows(p *Patient) (fullName, lastName, nameCode, phoneDigits string) {
	fp := p.Fingerprint()
	return fp.FullName(), fp.LastName, match.PhoneticCode(fp.FullName()), fp.PhoneDigits
}

func (r *RepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	if p.Status == "" {
		p.Status = StatusActive
	}
	fullName, lastName, nameCode, phoneDigits := shadows(p)

	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (
			id, clinic_id, first_name, last_name, middle_name, birth_date, gender,
			phone, email, address_street, address_city, status,
			full_name_norm, last_name_norm, name_code, phone_digits
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING created_at, updated_at`,
		p.ID, p.ClinicID, p.FirstName, p.LastName, p.MiddleName, p.BirthDate, p.Gender,
		p.Phone, p.Email, p.AddressStreet, p.AddressCity, p.Status,
		fullName, lastName, nameCode, phoneDigits)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("patient create: %w", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, clinicID string, id uuid.UUID) (*Patient, error) {
	row := r.conn(ctx).QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM patient WHERE id = $1 AND clinic_id = $2", patientCols),
		id, clinicID)
	p, err := scanPatient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &dedup.NotFoundError{Resource: "patient", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("patient get: %w", err)
	}
	return p, nil
}

func (r *RepoPG) Update(ctx context.Context, p *Patient) error {
	fullName, lastName, nameCode, phoneDigits := shadows(p)

	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET
			first_name = $3, last_name = $4, middle_name = $5, birth_date = $6, gender = $7,
			phone = $8, email = $9, address_street = $10, address_city = $11,
			full_name_norm = $12, last_name_norm = $13, name_code = $14, phone_digits = $15,
			updated_at = now()
		WHERE id = $1 AND clinic_id = $2
		RETURNING updated_at`,
		p.ID, p.ClinicID, p.FirstName, p.LastName, p.MiddleName, p.BirthDate, p.Gender,
		p.Phone, p.Email, p.AddressStreet, p.AddressCity,
		fullName, lastName, nameCode, phoneDigits)
	if err := row.Scan(&p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &dedup.NotFoundError{Resource: "patient", ID: p.ID.String()}
		}
		return fmt.Errorf("patient update: %w", err)
	}
	return nil
}

func (r *RepoPG) List(ctx context.Context, clinicID string, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	where := "WHERE clinic_id = $1"
	args := []interface{}{clinicID}

	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, match.Normalize(f.Search)+"%")
		where += fmt.Sprintf(" AND full_name_norm LIKE $%d", len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM patient "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("patient count: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		"SELECT %s FROM patient %s ORDER BY last_name, first_name, id LIMIT $%d OFFSET $%d",
		patientCols, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("patient list: %w", err)
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("patient scan: %w", err)
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// -- dedup.PatientDirectory --

func (r *RepoPG) Fingerprint(ctx context.Context, clinicID string, id uuid.UUID) (match.Fingerprint, error) {
	p, err := r.GetByID(ctx, clinicID, id)
	if err != nil {
		return match.Fingerprint{}, err
	}
	return p.Fingerprint(), nil
}

func (r *RepoPG) Meta(ctx context.Context, clinicID string, id uuid.UUID) (*dedup.PatientMeta, error) {
	var m dedup.PatientMeta
	err := r.conn(ctx).QueryRow(ctx,
		"SELECT id, status, merged_into FROM patient WHERE id = $1 AND clinic_id = $2",
		id, clinicID).Scan(&m.ID, &m.Status, &m.MergedInto)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &dedup.NotFoundError{Resource: "patient", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("patient meta: %w", err)
	}
	return &m, nil
}

// FindCandidates pulls active patients reachable through any retrieval arm:
// trigram-similar full name (pg_trgm), equal phonetic code, dmetaphone-equal
// last name (fuzzystrmatch), shared 6-digit phone suffix, or equal birth
// date. Scoring proper happens in Go; this only has to over-fetch plausibly.
func (r *RepoPG) FindCandidates(ctx context.Context, clinicID string, fp match.Fingerprint, limit int) ([]match.Fingerprint, error) {
	fullName := fp.FullName()
	nameCode := match.PhoneticCode(fullName)

	var birthDate interface{}
	if !fp.BirthDate.IsZero() {
		birthDate = fp.BirthDate
	}

	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT %s FROM patient
		WHERE clinic_id = $1 AND status = 'active' AND id <> $2
		  AND (
			full_name_norm %% $3
			OR ($4 <> '' AND name_code = $4)
			OR ($5 <> '' AND dmetaphone(last_name_norm) = dmetaphone($5))
			OR ($6 <> '' AND length($6) >= 6 AND right(phone_digits, 6) = right($6, 6))
			OR ($7::date IS NOT NULL AND birth_date = $7)
		  )
		ORDER BY similarity(full_name_norm, $3) DESC
		LIMIT $8`, patientCols),
		clinicID, fp.PatientID, fullName, nameCode, fp.LastName, fp.PhoneDigits, birthDate, limit)
	if err != nil {
		return nil, fmt.Errorf("candidate retrieval: %w", err)
	}
	defer rows.Close()

	return scanFingerprints(rows)
}

func (r *RepoPG) ListFingerprints(ctx context.Context, clinicID string, cur dedup.Cursor, limit int) ([]match.Fingerprint, dedup.Cursor, error) {
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT %s FROM patient
		WHERE clinic_id = $1 AND status = 'active' AND (created_at, id) > ($2, $3)
		ORDER BY created_at, id
		LIMIT $4`, patientCols),
		clinicID, cur.CreatedAt, cur.ID, limit)
	if err != nil {
		return nil, cur, fmt.Errorf("fingerprint page: %w", err)
	}
	defer rows.Close()

	var fps []match.Fingerprint
	next := cur
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, cur, fmt.Errorf("fingerprint scan: %w", err)
		}
		fps = append(fps, p.Fingerprint())
		next = dedup.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	}
	return fps, next, rows.Err()
}

// AdoptFields copies the named attributes from the absorbed record onto the
// survivor. Done read-modify-write so the shadow columns are recomputed by
// the same path as every other update.
func (r *RepoPG) AdoptFields(ctx context.Context, clinicID string, survivorID, absorbedID uuid.UUID, fields []string) error {
	survivor, err := r.GetByID(ctx, clinicID, survivorID)
	if err != nil {
		return err
	}
	absorbed, err := r.GetByID(ctx, clinicID, absorbedID)
	if err != nil {
		return err
	}

	for _, f := range fields {
		switch f {
		case "first_name":
			survivor.FirstName = absorbed.FirstName
		case "last_name":
			survivor.LastName = absorbed.LastName
		case "middle_name":
			survivor.MiddleName = absorbed.MiddleName
		case "birth_date":
			survivor.BirthDate = absorbed.BirthDate
		case "gender":
			survivor.Gender = absorbed.Gender
		case "phone":
			survivor.Phone = absorbed.Phone
		case "email":
			survivor.Email = absorbed.Email
		case "address_street":
			survivor.AddressStreet = absorbed.AddressStreet
		case "address_city":
			survivor.AddressCity = absorbed.AddressCity
		default:
			return fmt.Errorf("adopt: unknown field %q", f)
		}
	}
	return r.Update(ctx, survivor)
}

func (r *RepoPG) MarkMerged(ctx context.Context, clinicID string, absorbedID, survivorID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET status = 'merged', merged_into = $2, updated_at = now()
		WHERE id = $1 AND clinic_id = $3 AND status = 'active'`,
		absorbedID, survivorID, clinicID)
	if err != nil {
		return fmt.Errorf("patient retire: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("patient retire: %s not active", absorbedID)
	}
	return nil
}

// LockPair takes FOR UPDATE locks on both rows in id order, so two merges
// touching the same patients queue up instead of deadlocking.
func (r *RepoPG) LockPair(ctx context.Context, clinicID string, a, b uuid.UUID) error {
	lo, hi := dedup.OrderPair(a, b)
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id FROM patient
		WHERE clinic_id = $1 AND id IN ($2, $3)
		ORDER BY id
		FOR UPDATE`,
		clinicID, lo, hi)
	if err != nil {
		return fmt.Errorf("patient lock: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("patient lock scan: %w", err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if n != 2 {
		return &dedup.NotFoundError{Resource: "patient pair", ID: fmt.Sprintf("%s/%s", a, b)}
	}
	return nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.ClinicID, &p.FirstName, &p.LastName, &p.MiddleName,
		&p.BirthDate, &p.Gender, &p.Phone, &p.Email, &p.AddressStreet, &p.AddressCity,
		&p.Status, &p.MergedInto, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanFingerprints(rows pgx.Rows) ([]match.Fingerprint, error) {
	var out []match.Fingerprint
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("fingerprint scan: %w", err)
		}
		out = append(out, p.Fingerprint())
	}
	return out, rows.Err()
}
