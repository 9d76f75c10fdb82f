package dedup

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmedDuplicate, true},
		{StatusPending, StatusConfirmedDifferent, true},
		{StatusPending, StatusMerged, false},
		{StatusConfirmedDuplicate, StatusMerged, true},
		{StatusConfirmedDuplicate, StatusConfirmedDifferent, false},
		{StatusConfirmedDifferent, StatusConfirmedDuplicate, false},
		{StatusMerged, StatusPending, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() || StatusConfirmedDuplicate.Terminal() {
		t.Error("pending and confirmed_duplicate must not be terminal")
	}
	if !StatusConfirmedDifferent.Terminal() || !StatusMerged.Terminal() {
		t.Error("confirmed_different and merged must be terminal")
	}
}

func TestNewCandidateOrdersPair(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	c1 := NewCandidate("clinic-a", a, b, 0.9, nil, true)
	c2 := NewCandidate("clinic-a", b, a, 0.9, nil, true)

	if c1.PatientID != c2.PatientID || c1.DuplicateID != c2.DuplicateID {
		t.Error("candidate pair not canonical across argument order")
	}
	if bytes.Compare(c1.PatientID[:], c1.DuplicateID[:]) > 0 {
		t.Error("pair not in ascending byte order")
	}
	if c1.Status != StatusPending {
		t.Errorf("new candidate status = %s, want pending", c1.Status)
	}
}

func TestCandidateOther(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	c := NewCandidate("clinic-a", a, b, 0.7, nil, false)

	if got := c.Other(a); got != b {
		t.Errorf("Other(a) = %s, want %s", got, b)
	}
	if got := c.Other(b); got != a {
		t.Errorf("Other(b) = %s, want %s", got, a)
	}
	if !c.Involves(a) || !c.Involves(b) || c.Involves(uuid.New()) {
		t.Error("Involves misreports pair membership")
	}
}
