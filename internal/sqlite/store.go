// Package sqlite is the local cache.Store, backed by a single SQLite file
// through the pure Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/shubhsaxena/nearby-assistant/internal/cache"
	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/observability"
)

const driverName = "sqlite"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS cached_records (
		record_id  TEXT NOT NULL,
		grp        TEXT NOT NULL,
		identity   TEXT NOT NULL,
		title      TEXT NOT NULL DEFAULT '',
		icons      TEXT NOT NULL DEFAULT '',
		list       TEXT NOT NULL DEFAULT '',
		section    TEXT NOT NULL DEFAULT '',
		rating     REAL NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (grp, identity)
	)`,
	`CREATE TABLE IF NOT EXISTS recommendation_data (
		identity   TEXT NOT NULL,
		attribute  TEXT NOT NULL DEFAULT '',
		rating     REAL NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (identity, attribute)
	)`,
}

type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// A single connection keeps one writer and lets ":memory:" databases
	// survive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	logger.Info("sqlite cache store opened", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) FetchGroup(ctx context.Context, group models.CacheGroup) ([]models.CachedRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, grp, identity, title, icons, list, section, rating
		FROM cached_records
		WHERE grp = ?
		ORDER BY created_at, identity
	`, string(group))
	if err != nil {
		return nil, fmt.Errorf("sqlite fetch group %s: %w", group, err)
	}
	defer rows.Close()

	var records []models.CachedRecord
	for rows.Next() {
		var r models.CachedRecord
		var grp string
		if err := rows.Scan(&r.RecordID, &grp, &r.Identity, &r.Title, &r.Icons, &r.List, &r.Section, &r.Rating); err != nil {
			return nil, fmt.Errorf("sqlite scan record: %w", err)
		}
		r.Group = models.CacheGroup(grp)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite iterate records: %w", err)
	}

	if len(records) == 0 {
		observability.CacheMisses.WithLabelValues("sqlite").Inc()
	} else {
		observability.CacheHits.WithLabelValues("sqlite").Inc()
	}
	return records, nil
}

func (s *Store) StoreRecord(ctx context.Context, record models.CachedRecord) (models.CachedRecord, error) {
	if record.RecordID == "" {
		record.RecordID = cache.RecordID(record.Group, record.Identity)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cached_records (record_id, grp, identity, title, icons, list, section, rating, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(grp, identity) DO UPDATE SET
			title = excluded.title,
			icons = excluded.icons,
			list = excluded.list,
			section = excluded.section,
			rating = excluded.rating
	`, record.RecordID, string(record.Group), record.Identity, record.Title, record.Icons,
		record.List, record.Section, record.Rating, time.Now().UTC())
	if err != nil {
		return record, fmt.Errorf("sqlite store record: %w", err)
	}
	return record, nil
}

func (s *Store) DeleteRecord(ctx context.Context, group models.CacheGroup, identity string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM cached_records WHERE grp = ? AND identity = ?`, string(group), identity); err != nil {
		return fmt.Errorf("sqlite delete record: %w", err)
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{`DELETE FROM cached_records`, `DELETE FROM recommendation_data`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite delete all: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) FetchRecommendationData(ctx context.Context) ([]models.RecommendationData, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identity, attribute, rating FROM recommendation_data ORDER BY identity, attribute`)
	if err != nil {
		return nil, fmt.Errorf("sqlite fetch recommendation data: %w", err)
	}
	defer rows.Close()

	var out []models.RecommendationData
	for rows.Next() {
		var d models.RecommendationData
		if err := rows.Scan(&d.Identity, &d.Attribute, &d.Rating); err != nil {
			return nil, fmt.Errorf("sqlite scan recommendation data: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) StoreRecommendationData(ctx context.Context, data models.RecommendationData) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recommendation_data (identity, attribute, rating, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(identity, attribute) DO UPDATE SET
			rating = excluded.rating,
			updated_at = excluded.updated_at
	`, data.Identity, data.Attribute, data.Rating, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlite store recommendation data: %w", err)
	}
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ cache.Store = (*Store)(nil)
