package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockRepo struct {
	entries []*Entry
}

func (m *mockRepo) Append(_ context.Context, e *Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockRepo) List(_ context.Context, clinicID string, f Filter, limit, offset int) ([]*Entry, int, error) {
	var out []*Entry
	for _, e := range m.entries {
		if e.ClinicID != clinicID {
			continue
		}
		if f.Operation != "" && e.Operation != f.Operation {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

func TestRecordRequiresOperationAndClinic(t *testing.T) {
	svc := NewService(&mockRepo{}, zerolog.Nop())

	err := svc.Record(context.Background(), &Entry{ClinicID: "clinic-a"})
	if err == nil {
		t.Error("expected error for missing operation")
	}

	err = svc.Record(context.Background(), &Entry{Operation: OpDetect})
	if err == nil {
		t.Error("expected error for missing clinic_id")
	}
}

func TestRecordDefaultsActorToSystem(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, zerolog.Nop())

	id := uuid.New()
	e := &Entry{Operation: OpDetect, ClinicID: "clinic-a", PatientID: &id}
	if err := svc.Record(context.Background(), e); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if repo.entries[0].ActorID != "system" {
		t.Errorf("actor = %q, want system", repo.entries[0].ActorID)
	}
}

func TestListFiltersByOperation(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, zerolog.Nop())

	for _, op := range []string{OpDetect, OpResolve, OpMerge, OpResolve} {
		if err := svc.Record(context.Background(), &Entry{Operation: op, ClinicID: "clinic-a", ActorID: "u1"}); err != nil {
			t.Fatalf("Record(%s): %v", op, err)
		}
	}

	got, total, err := svc.List(context.Background(), "clinic-a", Filter{Operation: OpResolve}, 20, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(got) != 2 {
		t.Errorf("got %d entries (total %d), want 2", len(got), total)
	}
}
