package match

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Field names reported in FieldScore lists.
const (
	FieldName    = "name"
	FieldPhone   = "phone"
	FieldDOB     = "date_of_birth"
	FieldAddress = "address"
)

// PatientInput carries the raw comparable attributes of a patient record.
type PatientInput struct {
	FirstName  string
	LastName   string
	MiddleName string
	BirthDate  time.Time // zero when unknown
	Phone      string
	Street     string
	City       string
}

// Fingerprint is the normalized, immutable snapshot of a patient's comparable
// attributes taken at detection time. All string fields hold Normalize output;
// PhoneDigits holds digits only.
type Fingerprint struct {
	PatientID   uuid.UUID
	FirstName   string
	LastName    string
	MiddleName  string
	BirthDate   time.Time
	PhoneDigits string
	Street      string
	City        string
}

// NewFingerprint normalizes raw patient attributes into a Fingerprint.
func NewFingerprint(patientID uuid.UUID, in PatientInput) Fingerprint {
	return Fingerprint{
		PatientID:   patientID,
		FirstName:   Normalize(in.FirstName),
		LastName:    Normalize(in.LastName),
		MiddleName:  Normalize(in.MiddleName),
		BirthDate:   in.BirthDate,
		PhoneDigits: Digits(in.Phone),
		Street:      Normalize(in.Street),
		City:        Normalize(in.City),
	}
}

// Validate checks the mandatory fields. A fingerprint without a name cannot
// be scored meaningfully.
func (f Fingerprint) Validate() error {
	if f.FirstName == "" {
		return fmt.Errorf("first_name is required")
	}
	if f.LastName == "" {
		return fmt.Errorf("last_name is required")
	}
	return nil
}

// FullName returns the "first last" concatenation scoring operates on.
func (f Fingerprint) FullName() string {
	if f.FirstName == "" {
		return f.LastName
	}
	if f.LastName == "" {
		return f.FirstName
	}
	return f.FirstName + " " + f.LastName
}

// FieldScore is the per-field outcome of comparing two fingerprints.
type FieldScore struct {
	Field      string  `json:"field"`
	Similarity float64 `json:"similarity"`
	Matched    bool    `json:"matched"`
	Weight     float64 `json:"weight"`
}

// Weights configures the composite blend across fields.
type Weights struct {
	Name    float64
	Phone   float64
	DOB     float64
	Address float64
}

// DefaultWeights returns the standard composite weights.
func DefaultWeights() Weights {
	return Weights{
		Name:    0.40,
		Phone:   0.30,
		DOB:     0.20,
		Address: 0.10,
	}
}

// Cutoffs are the per-field similarity bars above which a field is listed as
// matched. DOB is boolean and needs no cutoff.
type Cutoffs struct {
	Name    float64
	Phone   float64
	Address float64
}

// DefaultCutoffs returns the standard matched-field cutoffs.
func DefaultCutoffs() Cutoffs {
	return Cutoffs{
		Name:    0.75,
		Phone:   0.75,
		Address: 0.70,
	}
}

// Scorer compares patient fingerprints field by field and blends the results
// into one composite confidence score. Scoring is symmetric: Score(a, b) and
// Score(b, a) are equal for every pair.
type Scorer struct {
	weights Weights
	cutoffs Cutoffs
}

// NewScorer creates a Scorer with default weights and cutoffs.
func NewScorer() *Scorer {
	return &Scorer{weights: DefaultWeights(), cutoffs: DefaultCutoffs()}
}

// NewScorerWithWeights creates a Scorer with custom weights.
func NewScorerWithWeights(weights Weights, cutoffs Cutoffs) *Scorer {
	return &Scorer{weights: weights, cutoffs: cutoffs}
}

// Score compares two fingerprints and returns the composite score in [0,1]
// together with the ordered per-field breakdown.
func (s *Scorer) Score(a, b Fingerprint) (float64, []FieldScore) {
	name := s.NameSimilarity(a, b)
	phone := s.PhoneSimilarity(a, b)
	dob := 0.0
	if DOBMatched(a.BirthDate, b.BirthDate) {
		dob = 1.0
	}
	address := s.AddressSimilarity(a, b)

	fields := []FieldScore{
		{Field: FieldName, Similarity: round3(name), Matched: name >= s.cutoffs.Name, Weight: s.weights.Name},
		{Field: FieldPhone, Similarity: round3(phone), Matched: phone >= s.cutoffs.Phone, Weight: s.weights.Phone},
		{Field: FieldDOB, Similarity: dob, Matched: dob == 1.0, Weight: s.weights.DOB},
		{Field: FieldAddress, Similarity: round3(address), Matched: address >= s.cutoffs.Address, Weight: s.weights.Address},
	}

	composite := s.weights.Name*name +
		s.weights.Phone*phone +
		s.weights.DOB*dob +
		s.weights.Address*address

	return round3(composite), fields
}

// NameSimilarity blends edit-distance (0.4), phonetic (0.4) and trigram (0.2)
// similarity over the normalized full names.
func (s *Scorer) NameSimilarity(a, b Fingerprint) float64 {
	na := a.FullName()
	nb := b.FullName()
	if na == "" || nb == "" {
		return 0.0
	}
	return 0.4*LevenshteinSimilarity(na, nb) +
		0.4*PhoneticSimilarity(na, nb) +
		0.2*TrigramSimilarity(na, nb)
}

// PhoneSimilarity compares digit strings: exact match scores 1.0, a shared
// trailing run of at least 6 digits scores 0.8 (same subscriber reached
// through different prefixes), anything else falls back to edit-distance
// similarity over the full digit strings.
func (s *Scorer) PhoneSimilarity(a, b Fingerprint) float64 {
	if a.PhoneDigits == "" || b.PhoneDigits == "" {
		return 0.0
	}
	if a.PhoneDigits == b.PhoneDigits {
		return 1.0
	}
	if sharedSuffixLen(a.PhoneDigits, b.PhoneDigits) >= 6 {
		return 0.8
	}
	return LevenshteinSimilarity(a.PhoneDigits, b.PhoneDigits)
}

// DOBMatched reports whether two birth dates match: exact equality, or one of
// two bounded data-entry tolerances — day and month transposed, or year off
// by exactly one. This is not general fuzzy date matching.
func DOBMatched(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()

	if ay == by && am == bm && ad == bd {
		return true
	}
	// Day/month swapped during entry (05/07 vs 07/05).
	if ay == by && int(am) == bd && ad == int(bm) {
		return true
	}
	// Year off by exactly one.
	if am == bm && ad == bd && (ay-by == 1 || by-ay == 1) {
		return true
	}
	return false
}

// AddressSimilarity blends trigram similarity of street (0.7) and city (0.3).
// A component absent on either side contributes 0, never an error.
func (s *Scorer) AddressSimilarity(a, b Fingerprint) float64 {
	street := 0.0
	if a.Street != "" && b.Street != "" {
		street = TrigramSimilarity(a.Street, b.Street)
	}
	city := 0.0
	if a.City != "" && b.City != "" {
		city = TrigramSimilarity(a.City, b.City)
	}
	return 0.7*street + 0.3*city
}

// sharedSuffixLen returns the length of the common trailing run of two strings.
func sharedSuffixLen(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	n := 0
	for n < len(ra) && n < len(rb) && ra[len(ra)-1-n] == rb[len(rb)-1-n] {
		n++
	}
	return n
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
