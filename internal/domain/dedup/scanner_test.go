package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medirec/medirec/internal/match"
)

func TestScannerSweepsAllPages(t *testing.T) {
	dob := time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)
	p1 := patientFP(uuid.New(), "Mohamed", "Benali", "0555123456", dob)
	p2 := patientFP(uuid.New(), "Mohmed", "Benali", "0555123456", dob)
	p3 := patientFP(uuid.New(), "Mohammed", "Benali", "0555123456", dob)
	legacy := patientFP(uuid.New(), "", "", "", time.Time{}) // unnamed legacy row

	dir := newMockDirectory()
	dir.pages = [][]match.Fingerprint{{p1, p2}, {p3, legacy}}
	dir.found = []match.Fingerprint{p1}
	cands := newMockCandidates()
	svc, _, _, _ := newTestEngine(dir, cands)

	scanner := NewScanner(svc, dir, 2, zerolog.Nop())
	cur, stats, err := scanner.Run(context.Background(), clinic, Cursor{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stats.Scanned != 3 {
		t.Errorf("scanned = %d, want 3", stats.Scanned)
	}
	// p1 only matches itself; p2 and p3 each flag a pair against p1.
	if stats.Flagged != 2 {
		t.Errorf("flagged = %d, want 2", stats.Flagged)
	}
	if stats.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", stats.Skipped)
	}
	if cur.Zero() {
		t.Error("final cursor is zero, not resumable")
	}
	if cands.upserts != 2 {
		t.Errorf("upserts = %d, want 2", cands.upserts)
	}
}

func TestScannerStopsOnCancelledContext(t *testing.T) {
	dir := newMockDirectory()
	dir.pages = [][]match.Fingerprint{{patientFP(uuid.New(), "Mohamed", "Benali", "", time.Time{})}}
	svc, _, _, _ := newTestEngine(dir, newMockCandidates())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scanner := NewScanner(svc, dir, 10, zerolog.Nop())
	_, stats, err := scanner.Run(ctx, clinic, Cursor{})
	if err == nil {
		t.Fatal("expected context error")
	}
	if stats.Scanned != 0 {
		t.Errorf("scanned = %d after cancellation, want 0", stats.Scanned)
	}
}
