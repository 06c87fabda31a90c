package usecase

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/paramed/reconciler/internal/domain"
	"github.com/paramed/reconciler/internal/infrastructure/normalize"
	"github.com/paramed/reconciler/internal/logging"
)

const maxListingLine = 1 << 20

// IngestStats summarizes one import
type IngestStats struct {
	Read       int `json:"read"`
	Imported   int `json:"imported"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

// IngestService normalizes raw scraped listings and stores them as records
type IngestService struct {
	repo       domain.RecordRepository
	normalizer *normalize.Normalizer
}

// NewIngestService creates an ingest service writing to repo
func NewIngestService(repo domain.RecordRepository) *IngestService {
	return &IngestService{repo: repo, normalizer: normalize.NewNormalizer()}
}

// Import reads one JSON listing per line. Within a site, listings whose
// canonical name was already seen are dropped; the first one wins.
func (s *IngestService) Import(ctx context.Context, r io.Reader) (IngestStats, error) {
	var stats IngestStats
	seen := make(map[[2]string]bool)
	var records []domain.Record

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxListingLine)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		stats.Read++

		var listing normalize.Listing
		if err := json.Unmarshal(raw, &listing); err != nil {
			return stats, fmt.Errorf("%w: line %d: %v", domain.ErrInvalidRequest, line, err)
		}

		record := s.normalizer.Record(listing)
		if record.Source == "" || record.CanonicalName == "" {
			stats.Skipped++
			continue
		}

		key := [2]string{record.Source, record.CanonicalName}
		if seen[key] {
			stats.Duplicates++
			continue
		}
		seen[key] = true
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("%w: read listings: %v", domain.ErrInvalidRequest, err)
	}

	if err := s.repo.SaveRecords(ctx, records); err != nil {
		return stats, err
	}
	stats.Imported = len(records)

	logging.FromContext(ctx).Info().
		Int("read", stats.Read).
		Int("imported", stats.Imported).
		Int("duplicates", stats.Duplicates).
		Int("skipped", stats.Skipped).
		Msg("Listings imported")

	return stats, nil
}
