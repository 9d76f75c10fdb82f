package patient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medirec/medirec/internal/domain/dedup"
	"github.com/medirec/medirec/internal/match"
)

type mockRepo struct {
	rows map[uuid.UUID]*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{rows: map[uuid.UUID]*Patient{}}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.rows[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, clinicID string, id uuid.UUID) (*Patient, error) {
	p, ok := m.rows[id]
	if !ok || p.ClinicID != clinicID {
		return nil, &dedup.NotFoundError{Resource: "patient", ID: id.String()}
	}
	return p, nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.rows[p.ID]; !ok {
		return &dedup.NotFoundError{Resource: "patient", ID: p.ID.String()}
	}
	p.UpdatedAt = time.Now()
	m.rows[p.ID] = p
	return nil
}

func (m *mockRepo) List(_ context.Context, clinicID string, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.rows {
		if p.ClinicID != clinicID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

type mockChecker struct {
	result *dedup.CheckResult
	err    error
	calls  int
}

func (m *mockChecker) Check(_ context.Context, _ string, _ match.Fingerprint, _ string) (*dedup.CheckResult, error) {
	m.calls++
	return m.result, m.err
}

func newPatient(first, last string) *Patient {
	return &Patient{ClinicID: "clinic-a", FirstName: first, LastName: last}
}

func TestRegisterRunsDuplicateCheck(t *testing.T) {
	repo := newMockRepo()
	checker := &mockChecker{result: &dedup.CheckResult{
		HasDuplicates: true,
		Candidates:    []*dedup.DuplicateCandidate{{Score: 0.87}},
	}}
	svc := NewService(repo, checker, zerolog.Nop())

	res, err := svc.Register(context.Background(), newPatient("Mohamed", "Benali"), "u1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.Patient.ID == uuid.Nil {
		t.Error("patient not persisted")
	}
	if res.Patient.Status != StatusActive {
		t.Errorf("status = %s, want active", res.Patient.Status)
	}
	if checker.calls != 1 {
		t.Errorf("checker calls = %d, want 1", checker.calls)
	}
	if res.Duplicates == nil || !res.Duplicates.HasDuplicates {
		t.Error("duplicate check result missing from registration")
	}
}

func TestRegisterSurvivesCheckFailure(t *testing.T) {
	repo := newMockRepo()
	checker := &mockChecker{err: errors.New("retrieval timeout")}
	svc := NewService(repo, checker, zerolog.Nop())

	res, err := svc.Register(context.Background(), newPatient("Mohamed", "Benali"), "u1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(repo.rows) != 1 {
		t.Error("patient lost when duplicate check failed")
	}
	if res.DuplicateCheckError == "" {
		t.Error("degraded check not flagged in result")
	}
	if res.Duplicates != nil {
		t.Error("duplicates reported despite check failure")
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	svc := NewService(newMockRepo(), nil, zerolog.Nop())

	if _, err := svc.Register(context.Background(), newPatient("", "Benali"), "u1"); !dedup.IsValidation(err) {
		t.Errorf("missing first name: err = %v, want ValidationError", err)
	}

	future := time.Now().Add(48 * time.Hour)
	p := newPatient("Mohamed", "Benali")
	p.BirthDate = &future
	if _, err := svc.Register(context.Background(), p, "u1"); !dedup.IsValidation(err) {
		t.Errorf("future birth date: err = %v, want ValidationError", err)
	}
}

func TestUpdateRejectsMergedPatient(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, nil, zerolog.Nop())

	res, err := svc.Register(context.Background(), newPatient("Mohamed", "Benali"), "u1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	survivor := uuid.New()
	res.Patient.Status = StatusMerged
	res.Patient.MergedInto = &survivor

	upd := newPatient("Mohamed", "Ben Ali")
	upd.ID = res.Patient.ID
	if _, err := svc.Update(context.Background(), upd); !dedup.IsConflict(err) {
		t.Errorf("err = %v, want ConflictError", err)
	}
}

func TestUpdatePreservesStatus(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, nil, zerolog.Nop())

	res, err := svc.Register(context.Background(), newPatient("Mohamed", "Benali"), "u1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	upd := newPatient("Mohamed", "Ben Ali")
	upd.ID = res.Patient.ID
	upd.Status = StatusMerged // client-supplied status must not stick
	got, err := svc.Update(context.Background(), upd)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Status != StatusActive {
		t.Errorf("status = %s, want active", got.Status)
	}
	if got.LastName != "Ben Ali" {
		t.Errorf("last name = %q, want updated value", got.LastName)
	}
}
