package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/medirec/medirec/internal/match"
)

const (
	StatusActive = "active"
	StatusMerged = "merged"
)

// Patient maps to the patient table. A merged patient keeps its row for
// history, with MergedInto pointing at the surviving record.
type Patient struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	ClinicID      string     `db:"clinic_id" json:"clinic_id"`
	FirstName     string     `db:"first_name" json:"first_name"`
	LastName      string     `db:"last_name" json:"last_name"`
	MiddleName    *string    `db:"middle_name" json:"middle_name,omitempty"`
	BirthDate     *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender        *string    `db:"gender" json:"gender,omitempty"`
	Phone         *string    `db:"phone" json:"phone,omitempty"`
	Email         *string    `db:"email" json:"email,omitempty"`
	AddressStreet *string    `db:"address_street" json:"address_street,omitempty"`
	AddressCity   *string    `db:"address_city" json:"address_city,omitempty"`
	Status        string     `db:"status" json:"status"`
	MergedInto    *uuid.UUID `db:"merged_into" json:"merged_into,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Input assembles the raw comparable attributes for scoring.
func (p *Patient) Input() match.PatientInput {
	in := match.PatientInput{
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		MiddleName: deref(p.MiddleName),
		Phone:      deref(p.Phone),
		Street:     deref(p.AddressStreet),
		City:       deref(p.AddressCity),
	}
	if p.BirthDate != nil {
		in.BirthDate = *p.BirthDate
	}
	return in
}

// Fingerprint returns the normalized snapshot detection scores against.
func (p *Patient) Fingerprint() match.Fingerprint {
	return match.NewFingerprint(p.ID, p.Input())
}
