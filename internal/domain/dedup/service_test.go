package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medirec/medirec/internal/domain/audit"
	"github.com/medirec/medirec/internal/match"
)

// -- mocks --

type mockCandidates struct {
	rows    map[uuid.UUID]*DuplicateCandidate
	peers   map[uuid.UUID]struct{}
	upserts int
	cleaned []uuid.UUID
}

func newMockCandidates() *mockCandidates {
	return &mockCandidates{rows: map[uuid.UUID]*DuplicateCandidate{}}
}

func (m *mockCandidates) UpsertPending(_ context.Context, c *DuplicateCandidate) error {
	m.upserts++
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	for _, existing := range m.rows {
		if existing.PatientID != c.PatientID || existing.DuplicateID != c.DuplicateID {
			continue
		}
		switch existing.Status {
		case StatusPending:
			existing.Score = c.Score
			existing.FieldScores = c.FieldScores
			existing.HighConfidence = c.HighConfidence
			*c = *existing
			return nil
		case StatusConfirmedDuplicate:
			return conflictf("pair %s/%s already has a confirmed candidate", c.PatientID, c.DuplicateID)
		}
	}
	m.rows[c.ID] = c
	return nil
}

func (m *mockCandidates) GetByID(_ context.Context, clinicID string, id uuid.UUID) (*DuplicateCandidate, error) {
	c, ok := m.rows[id]
	if !ok || c.ClinicID != clinicID {
		return nil, &NotFoundError{Resource: "candidate", ID: id.String()}
	}
	return c, nil
}

func (m *mockCandidates) List(_ context.Context, clinicID string, f CandidateFilter, limit, offset int) ([]*DuplicateCandidate, int, error) {
	var out []*DuplicateCandidate
	for _, c := range m.rows {
		if c.ClinicID != clinicID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.PatientID != uuid.Nil && !c.Involves(f.PatientID) {
			continue
		}
		if f.HighConfidenceOnly && !c.HighConfidence {
			continue
		}
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *mockCandidates) UpdateStatus(_ context.Context, c *DuplicateCandidate) error {
	if _, ok := m.rows[c.ID]; !ok {
		return &NotFoundError{Resource: "candidate", ID: c.ID.String()}
	}
	m.rows[c.ID] = c
	return nil
}

func (m *mockCandidates) AdjudicatedPeers(_ context.Context, _ string, patientID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	peers := map[uuid.UUID]struct{}{}
	for id := range m.peers {
		peers[id] = struct{}{}
	}
	for _, c := range m.rows {
		if c.Status != StatusPending && c.Involves(patientID) {
			peers[c.Other(patientID)] = struct{}{}
		}
	}
	return peers, nil
}

func (m *mockCandidates) DeletePendingInvolving(_ context.Context, _ string, patientID uuid.UUID) (int64, error) {
	m.cleaned = append(m.cleaned, patientID)
	var n int64
	for id, c := range m.rows {
		if c.Status == StatusPending && c.Involves(patientID) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

type mockDirectory struct {
	fingerprints map[uuid.UUID]match.Fingerprint
	metas        map[uuid.UUID]*PatientMeta
	found        []match.Fingerprint
	pages        [][]match.Fingerprint
	adopted      []string
	merged       map[uuid.UUID]uuid.UUID
	locks        int
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		fingerprints: map[uuid.UUID]match.Fingerprint{},
		metas:        map[uuid.UUID]*PatientMeta{},
		merged:       map[uuid.UUID]uuid.UUID{},
	}
}

func (m *mockDirectory) addActive(fp match.Fingerprint) {
	m.fingerprints[fp.PatientID] = fp
	m.metas[fp.PatientID] = &PatientMeta{ID: fp.PatientID, Status: "active"}
}

func (m *mockDirectory) Fingerprint(_ context.Context, _ string, id uuid.UUID) (match.Fingerprint, error) {
	fp, ok := m.fingerprints[id]
	if !ok {
		return match.Fingerprint{}, &NotFoundError{Resource: "patient", ID: id.String()}
	}
	return fp, nil
}

func (m *mockDirectory) Meta(_ context.Context, _ string, id uuid.UUID) (*PatientMeta, error) {
	meta, ok := m.metas[id]
	if !ok {
		return nil, &NotFoundError{Resource: "patient", ID: id.String()}
	}
	return meta, nil
}

func (m *mockDirectory) FindCandidates(_ context.Context, _ string, _ match.Fingerprint, _ int) ([]match.Fingerprint, error) {
	return m.found, nil
}

func (m *mockDirectory) ListFingerprints(_ context.Context, _ string, cur Cursor, _ int) ([]match.Fingerprint, Cursor, error) {
	if len(m.pages) == 0 {
		return nil, cur, nil
	}
	page := m.pages[0]
	m.pages = m.pages[1:]
	next := cur
	if len(page) > 0 {
		next = Cursor{CreatedAt: time.Now(), ID: page[len(page)-1].PatientID}
	}
	return page, next, nil
}

func (m *mockDirectory) AdoptFields(_ context.Context, _ string, _, _ uuid.UUID, fields []string) error {
	m.adopted = append(m.adopted, fields...)
	return nil
}

func (m *mockDirectory) MarkMerged(_ context.Context, _ string, absorbedID, survivorID uuid.UUID) error {
	m.merged[absorbedID] = survivorID
	meta := m.metas[absorbedID]
	meta.Status = "merged"
	meta.MergedInto = &survivorID
	return nil
}

func (m *mockDirectory) LockPair(_ context.Context, _ string, _, _ uuid.UUID) error {
	m.locks++
	return nil
}

type mockUoW struct {
	runs       int
	rolledBack bool
}

func (u *mockUoW) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	u.runs++
	if err := fn(ctx); err != nil {
		u.rolledBack = true
		return err
	}
	return nil
}

type mockStore struct {
	category string
	moved    int64
	err      error
	calls    int
}

func (m *mockStore) Category() string { return m.category }

func (m *mockStore) CountByPatient(_ context.Context, _ uuid.UUID) (int64, error) {
	return m.moved, nil
}

func (m *mockStore) Reassign(_ context.Context, _, _ uuid.UUID) (int64, error) {
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	return m.moved, nil
}

type mockAudit struct {
	entries []*audit.Entry
}

func (m *mockAudit) Record(_ context.Context, e *audit.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAudit) ops() []string {
	var out []string
	for _, e := range m.entries {
		out = append(out, e.Operation)
	}
	return out
}

// -- fixtures --

const clinic = "clinic-a"

func patientFP(id uuid.UUID, first, last, phone string, dob time.Time) match.Fingerprint {
	return match.NewFingerprint(id, match.PatientInput{
		FirstName: first,
		LastName:  last,
		Phone:     phone,
		BirthDate: dob,
	})
}

func newTestEngine(dir *mockDirectory, cands *mockCandidates, stores ...DependentStore) (*Service, *MergeEngine, *mockUoW, *mockAudit) {
	uow := &mockUoW{}
	rec := &mockAudit{}
	engine := NewMergeEngine(uow, dir, cands, stores, rec, zerolog.Nop())
	svc := NewService(cands, dir, engine, match.NewScorer(), DefaultThresholds(), 50, rec, zerolog.Nop())
	return svc, engine, uow, rec
}

// -- detection --

func TestCheckFlagsAndPersistsPendingCandidate(t *testing.T) {
	dob := time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)
	target := patientFP(uuid.New(), "Mohamed", "Benali", "0555123456", dob)
	variant := patientFP(uuid.New(), "Mohmed", "Benali", "0555123456", dob)
	unrelated := patientFP(uuid.New(), "Karim", "Boudiaf", "0777009911", time.Date(1971, 3, 3, 0, 0, 0, 0, time.UTC))

	dir := newMockDirectory()
	dir.found = []match.Fingerprint{variant, unrelated}
	cands := newMockCandidates()
	svc, _, _, rec := newTestEngine(dir, cands)

	res, err := svc.Check(context.Background(), clinic, target, "u1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.HasDuplicates || len(res.Candidates) != 1 {
		t.Fatalf("got %d candidates, want exactly the typo variant", len(res.Candidates))
	}

	c := res.Candidates[0]
	if !c.HighConfidence {
		t.Errorf("score %v not flagged high confidence", c.Score)
	}
	if c.Status != StatusPending {
		t.Errorf("status = %s, want pending", c.Status)
	}
	if cands.upserts != 1 {
		t.Errorf("upserts = %d, want 1", cands.upserts)
	}
	if len(rec.entries) != 1 || rec.entries[0].Operation != audit.OpDetect {
		t.Errorf("audit ops = %v, want one %s", rec.ops(), audit.OpDetect)
	}
}

func TestCheckDryRunDoesNotPersist(t *testing.T) {
	dob := time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)
	target := patientFP(uuid.Nil, "Mohamed", "Benali", "0555123456", dob)
	variant := patientFP(uuid.New(), "Mohmed", "Benali", "0555123456", dob)

	dir := newMockDirectory()
	dir.found = []match.Fingerprint{variant}
	cands := newMockCandidates()
	svc, _, _, rec := newTestEngine(dir, cands)

	res, err := svc.Check(context.Background(), clinic, target, "u1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(res.Candidates))
	}
	if cands.upserts != 0 {
		t.Errorf("dry run persisted %d candidates", cands.upserts)
	}
	if len(rec.entries) != 0 {
		t.Errorf("dry run wrote %d audit entries", len(rec.entries))
	}
}

func TestCheckSkipsAdjudicatedPairs(t *testing.T) {
	dob := time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)
	target := patientFP(uuid.New(), "Mohamed", "Benali", "0555123456", dob)
	variant := patientFP(uuid.New(), "Mohmed", "Benali", "0555123456", dob)

	dir := newMockDirectory()
	dir.found = []match.Fingerprint{variant}
	cands := newMockCandidates()
	cands.peers = map[uuid.UUID]struct{}{variant.PatientID: {}}
	svc, _, _, _ := newTestEngine(dir, cands)

	res, err := svc.Check(context.Background(), clinic, target, "u1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.HasDuplicates {
		t.Error("adjudicated pair resurfaced in detection")
	}
}

// A failed merge leaves the candidate confirmed_duplicate awaiting retry.
// Re-detection of either patient in that window must not produce a second
// live row for the pair.
func TestCheckSkipsPairAwaitingMergeRetry(t *testing.T) {
	dob := time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)
	a := patientFP(uuid.New(), "Mohamed", "Benali", "0555123456", dob)
	b := patientFP(uuid.New(), "Mohmed", "Benali", "0555123456", dob)

	dir := newMockDirectory()
	dir.addActive(a)
	dir.addActive(b)
	cands := newMockCandidates()
	c := pendingCandidate(cands, a.PatientID, b.PatientID)

	broken := &mockStore{category: "appointments", err: errors.New("reassign timeout")}
	svc, _, _, _ := newTestEngine(dir, cands, broken)

	_, _, err := svc.Resolve(context.Background(), clinic, c.ID, ResolveInput{
		Decision:   DecisionConfirmDuplicate,
		ReviewerID: "dr-amrani",
	})
	if err == nil {
		t.Fatal("merge against a failing store succeeded")
	}
	if c.Status != StatusConfirmedDuplicate {
		t.Fatalf("status = %s, want confirmed_duplicate awaiting retry", c.Status)
	}

	dir.found = []match.Fingerprint{b}
	res, err := svc.Check(context.Background(), clinic, a, "u1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.HasDuplicates {
		t.Error("pair awaiting merge retry resurfaced in detection")
	}

	live := 0
	for _, row := range cands.rows {
		if row.Involves(a.PatientID) && row.Status != StatusConfirmedDifferent && row.Status != StatusMerged {
			live++
		}
	}
	if live != 1 {
		t.Errorf("live candidate rows for the pair = %d, want 1", live)
	}
}

func TestCheckRejectsMissingName(t *testing.T) {
	svc, _, _, _ := newTestEngine(newMockDirectory(), newMockCandidates())

	_, err := svc.Check(context.Background(), clinic, patientFP(uuid.New(), "", "Benali", "", time.Time{}), "u1")
	if !IsValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestCheckOrdersByScoreDescending(t *testing.T) {
	dob := time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)
	target := patientFP(uuid.New(), "Mohamed", "Benali", "0555123456", dob)
	exact := patientFP(uuid.New(), "Mohamed", "Benali", "0555123456", dob)
	variant := patientFP(uuid.New(), "Mohmed", "Benali", "0555123456", dob)

	dir := newMockDirectory()
	dir.found = []match.Fingerprint{variant, exact}
	svc, _, _, _ := newTestEngine(dir, newMockCandidates())

	res, err := svc.Check(context.Background(), clinic, target, "u1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(res.Candidates))
	}
	if res.Candidates[0].Score < res.Candidates[1].Score {
		t.Error("candidates not ordered by descending score")
	}
}

// -- resolution --

func pendingCandidate(cands *mockCandidates, a, b uuid.UUID) *DuplicateCandidate {
	c := NewCandidate(clinic, a, b, 0.87, nil, true)
	c.ID = uuid.New()
	cands.rows[c.ID] = c
	return c
}

func TestResolveConfirmDifferent(t *testing.T) {
	dir := newMockDirectory()
	cands := newMockCandidates()
	a := patientFP(uuid.New(), "Mohamed", "Benali", "", time.Time{})
	b := patientFP(uuid.New(), "Mohmed", "Benali", "", time.Time{})
	dir.addActive(a)
	dir.addActive(b)
	c := pendingCandidate(cands, a.PatientID, b.PatientID)

	svc, _, _, rec := newTestEngine(dir, cands)

	got, outcome, err := svc.Resolve(context.Background(), clinic, c.ID, ResolveInput{
		Decision:   DecisionConfirmDifferent,
		ReviewerID: "dr-amrani",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if outcome != nil {
		t.Error("confirm_different produced a merge outcome")
	}
	if got.Status != StatusConfirmedDifferent {
		t.Errorf("status = %s, want confirmed_different", got.Status)
	}
	if got.ReviewerID == nil || *got.ReviewerID != "dr-amrani" {
		t.Error("reviewer not recorded")
	}
	if len(rec.entries) != 1 || rec.entries[0].Operation != audit.OpResolve {
		t.Errorf("audit ops = %v, want one %s", rec.ops(), audit.OpResolve)
	}
}

func TestResolveTerminalCandidateConflicts(t *testing.T) {
	dir := newMockDirectory()
	cands := newMockCandidates()
	c := pendingCandidate(cands, uuid.New(), uuid.New())
	c.Status = StatusConfirmedDifferent

	svc, _, _, _ := newTestEngine(dir, cands)

	_, _, err := svc.Resolve(context.Background(), clinic, c.ID, ResolveInput{
		Decision:   DecisionConfirmDuplicate,
		ReviewerID: "dr-amrani",
	})
	if !IsConflict(err) {
		t.Errorf("err = %v, want ConflictError", err)
	}
}

func TestResolveRequiresReviewer(t *testing.T) {
	dir := newMockDirectory()
	cands := newMockCandidates()
	c := pendingCandidate(cands, uuid.New(), uuid.New())

	svc, _, _, _ := newTestEngine(dir, cands)

	_, _, err := svc.Resolve(context.Background(), clinic, c.ID, ResolveInput{Decision: DecisionConfirmDifferent})
	if !IsValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestResolveUnknownDecision(t *testing.T) {
	dir := newMockDirectory()
	cands := newMockCandidates()
	c := pendingCandidate(cands, uuid.New(), uuid.New())

	svc, _, _, _ := newTestEngine(dir, cands)

	_, _, err := svc.Resolve(context.Background(), clinic, c.ID, ResolveInput{
		Decision:   "maybe",
		ReviewerID: "dr-amrani",
	})
	if !IsValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestResolveUnknownCandidate(t *testing.T) {
	svc, _, _, _ := newTestEngine(newMockDirectory(), newMockCandidates())

	_, _, err := svc.Resolve(context.Background(), clinic, uuid.New(), ResolveInput{
		Decision:   DecisionConfirmDifferent,
		ReviewerID: "dr-amrani",
	})
	if !IsNotFound(err) {
		t.Errorf("err = %v, want NotFoundError", err)
	}
}

func TestResolveSurvivorMustBelongToPair(t *testing.T) {
	dir := newMockDirectory()
	cands := newMockCandidates()
	c := pendingCandidate(cands, uuid.New(), uuid.New())

	svc, _, _, _ := newTestEngine(dir, cands)

	_, _, err := svc.Resolve(context.Background(), clinic, c.ID, ResolveInput{
		Decision:   DecisionConfirmDuplicate,
		ReviewerID: "dr-amrani",
		SurvivorID: uuid.New(),
	})
	if !IsValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestResolveConfirmDuplicateMerges(t *testing.T) {
	dir := newMockDirectory()
	cands := newMockCandidates()
	a := patientFP(uuid.New(), "Mohamed", "Benali", "0555123456", time.Time{})
	b := patientFP(uuid.New(), "Mohmed", "Benali", "0555123456", time.Time{})
	dir.addActive(a)
	dir.addActive(b)
	c := pendingCandidate(cands, a.PatientID, b.PatientID)

	appts := &mockStore{category: "appointments", moved: 3}
	bills := &mockStore{category: "billing", moved: 2}
	svc, _, uow, rec := newTestEngine(dir, cands, appts, bills)

	got, outcome, err := svc.Resolve(context.Background(), clinic, c.ID, ResolveInput{
		Decision:   DecisionConfirmDuplicate,
		ReviewerID: "dr-amrani",
		SurvivorID: c.PatientID,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Status != StatusMerged {
		t.Errorf("status = %s, want merged", got.Status)
	}
	if outcome == nil || outcome.TotalMigrated() != 5 {
		t.Fatalf("outcome = %+v, want 5 migrated", outcome)
	}
	if outcome.SurvivorID != c.PatientID || outcome.AbsorbedID != c.DuplicateID {
		t.Error("outcome does not match the chosen survivor")
	}
	if uow.runs != 1 || uow.rolledBack {
		t.Errorf("uow runs=%d rolledBack=%v, want one committed run", uow.runs, uow.rolledBack)
	}
	if dir.merged[c.DuplicateID] != c.PatientID {
		t.Error("absorbed record not retired with back-reference")
	}

	// resolve + merge in the trail
	ops := rec.ops()
	if len(ops) != 2 || ops[0] != audit.OpResolve || ops[1] != audit.OpMerge {
		t.Errorf("audit ops = %v, want [resolve merge]", ops)
	}
}
