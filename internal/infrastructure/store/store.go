// Package store persists records and run results in SQLite through gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/paramed/reconciler/internal/domain"
)

const insertBatchSize = 500

// Store implements domain.RecordRepository and domain.ResultSink
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the SQLite database at path and migrates the schema
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrStoreFailure, path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreFailure, err)
	}
	// SQLite allows a single writer
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&recordRow{},
		&runRow{},
		&matchRow{},
		&clusterRow{},
		&clusterMemberRow{},
		&unmatchedRow{},
	); err != nil {
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrStoreFailure, err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRecords upserts records keyed by (source, id)
func (s *Store) SaveRecords(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]recordRow, len(records))
	for i, r := range records {
		rows[i] = toRecordRow(r)
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(rows, insertBatchSize).Error
	if err != nil {
		return fmt.Errorf("%w: save records: %v", domain.ErrStoreFailure, err)
	}
	return nil
}

// LoadRecords returns the records of the given catalogs, or all records,
// ordered by source then id
func (s *Store) LoadRecords(ctx context.Context, sources ...string) ([]domain.Record, error) {
	q := s.db.WithContext(ctx).Order("source, id")
	if len(sources) > 0 {
		q = q.Where("source IN ?", sources)
	}

	var rows []recordRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: load records: %v", domain.ErrStoreFailure, err)
	}

	records := make([]domain.Record, len(rows))
	for i, r := range rows {
		records[i] = r.toDomain()
	}
	return records, nil
}

// Publish replaces the previous result set of the run's mode inside one transaction.
// Bipartite runs replace matches and unmatched entries; graph runs replace clusters.
func (s *Store) Publish(ctx context.Context, result *domain.RunResult) error {
	if result == nil {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch result.Mode {
		case domain.ModeGraph:
			if err := replaceClusters(tx, result); err != nil {
				return err
			}
		default:
			if err := replaceMatches(tx, result); err != nil {
				return err
			}
		}

		return tx.Create(&runRow{
			ID:         result.RunID,
			Mode:       string(result.Mode),
			Partitions: result.Partitions,
			Matches:    len(result.Matches),
			Clusters:   len(result.Clusters),
			Unmatched:  len(result.Unmatched),
			StartedAt:  result.StartedAt,
			FinishedAt: result.FinishedAt,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("%w: publish run %s: %v", domain.ErrStoreFailure, result.RunID, err)
	}
	return nil
}

func replaceMatches(tx *gorm.DB, result *domain.RunResult) error {
	if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&matchRow{}).Error; err != nil {
		return err
	}
	if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&unmatchedRow{}).Error; err != nil {
		return err
	}

	if len(result.Matches) > 0 {
		rows := make([]matchRow, len(result.Matches))
		for i, m := range result.Matches {
			rows[i] = toMatchRow(result.RunID, m)
		}
		if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
			return err
		}
	}

	if len(result.Unmatched) > 0 {
		rows := make([]unmatchedRow, len(result.Unmatched))
		for i, u := range result.Unmatched {
			rows[i] = toUnmatchedRow(result.RunID, u)
		}
		if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
			return err
		}
	}
	return nil
}

func replaceClusters(tx *gorm.DB, result *domain.RunResult) error {
	if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&clusterMemberRow{}).Error; err != nil {
		return err
	}
	if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&clusterRow{}).Error; err != nil {
		return err
	}

	for i, c := range result.Clusters {
		row := toClusterRow(result.RunID, i, c)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

// LatestRun loads the most recent run of mode with its current result set.
// Returns nil when no run of that mode exists.
func (s *Store) LatestRun(ctx context.Context, mode domain.Mode) (*domain.RunResult, error) {
	db := s.db.WithContext(ctx)

	var run runRow
	err := db.Where("mode = ?", string(mode)).Order("finished_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load run: %v", domain.ErrStoreFailure, err)
	}

	result := &domain.RunResult{
		RunID:      run.ID,
		Mode:       domain.Mode(run.Mode),
		Partitions: run.Partitions,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}

	switch result.Mode {
	case domain.ModeGraph:
		var rows []clusterRow
		err = db.Where("run_id = ?", run.ID).
			Preload("Members", func(tx *gorm.DB) *gorm.DB { return tx.Order("position") }).
			Order("position").
			Find(&rows).Error
		for _, r := range rows {
			result.Clusters = append(result.Clusters, r.toDomain())
		}
	default:
		var matches []matchRow
		if err = db.Where("run_id = ?", run.ID).Order("id").Find(&matches).Error; err == nil {
			for _, m := range matches {
				result.Matches = append(result.Matches, m.toDomain())
			}
			var unmatched []unmatchedRow
			err = db.Where("run_id = ?", run.ID).Order("id").Find(&unmatched).Error
			for _, u := range unmatched {
				result.Unmatched = append(result.Unmatched, u.toDomain())
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load results: %v", domain.ErrStoreFailure, err)
	}
	return result, nil
}
