package dedup

import (
	"context"

	"github.com/rs/zerolog"
)

// ScanStats summarizes one scan run.
type ScanStats struct {
	Scanned int `json:"scanned"`
	Flagged int `json:"flagged"`
	Skipped int `json:"skipped"`
}

// Scanner sweeps a clinic's existing patients through detection in pages, for
// retrofitting the review queue onto a backlog that predates the engine. Runs
// are resumable: the returned cursor can seed the next invocation.
type Scanner struct {
	svc       *Service
	directory PatientDirectory
	pageSize  int
	logger    zerolog.Logger
}

func NewScanner(svc *Service, directory PatientDirectory, pageSize int, logger zerolog.Logger) *Scanner {
	if pageSize <= 0 {
		pageSize = 200
	}
	return &Scanner{svc: svc, directory: directory, pageSize: pageSize, logger: logger}
}

// Run scans active patients after cur in (created_at, id) order until the set
// is exhausted or ctx is cancelled. Patients that fail detection (for
// example, legacy rows missing a name) are counted as skipped, not fatal.
func (s *Scanner) Run(ctx context.Context, clinicID string, cur Cursor) (Cursor, ScanStats, error) {
	var stats ScanStats
	for {
		if err := ctx.Err(); err != nil {
			return cur, stats, err
		}

		fps, next, err := s.directory.ListFingerprints(ctx, clinicID, cur, s.pageSize)
		if err != nil {
			return cur, stats, err
		}
		if len(fps) == 0 {
			break
		}

		for _, fp := range fps {
			res, err := s.svc.Check(ctx, clinicID, fp, "scanner")
			if err != nil {
				stats.Skipped++
				s.logger.Warn().Err(err).
					Str("patient_id", fp.PatientID.String()).
					Msg("scan: patient skipped")
				continue
			}
			stats.Scanned++
			stats.Flagged += len(res.Candidates)
		}

		cur = next
		s.logger.Info().
			Str("clinic_id", clinicID).
			Int("scanned", stats.Scanned).
			Int("flagged", stats.Flagged).
			Msg("scan progress")
	}
	return cur, stats, nil
}
