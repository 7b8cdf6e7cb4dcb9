package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/steiner385/machshop-cutover/pkg/database"
	"github.com/steiner385/machshop-cutover/pkg/models"
)

// MigrationRecordStore is the snapshot engine's view over the live migrated
// rows. The bulk import engine owns their content; this core only lists them
// for capture, counts them for verification, and replaces them on restore.
type MigrationRecordStore interface {
	// DistinctEntityTypes returns every entity type present for a session.
	DistinctEntityTypes(ctx context.Context, sessionID uuid.UUID) ([]string, error)
	// Count returns the number of live records for one entity type.
	Count(ctx context.Context, sessionID uuid.UUID, entityType string) (int64, error)
	// FetchAll loads every live record of one entity type, ordered by
	// record ID for a stable serialization.
	FetchAll(ctx context.Context, sessionID uuid.UUID, entityType string) ([]*models.MigrationRecord, error)
	// ReplaceAll atomically replaces the live records of one entity type
	// with the given set. Returns (deleted, restored) counts. The
	// transaction is scoped to a single entity type: sibling entity types
	// are never touched.
	ReplaceAll(ctx context.Context, sessionID uuid.UUID, entityType string, records []*models.MigrationRecord) (deleted, restored int64, err error)
}

type migrationRecordStore struct {
	db *database.DB
}

func NewMigrationRecordStore(db *database.DB) MigrationRecordStore {
	return &migrationRecordStore{db: db}
}

var _ MigrationRecordStore = (*migrationRecordStore)(nil)

func (s *migrationRecordStore) DistinctEntityTypes(ctx context.Context, sessionID uuid.UUID) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT entity_type
		FROM migration_records
		WHERE session_id = $1
		ORDER BY entity_type ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity types: %w", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var et string
		if err := rows.Scan(&et); err != nil {
			return nil, fmt.Errorf("failed to scan entity type: %w", err)
		}
		types = append(types, et)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entity types: %w", err)
	}
	return types, nil
}

func (s *migrationRecordStore) Count(ctx context.Context, sessionID uuid.UUID, entityType string) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM migration_records
		WHERE session_id = $1 AND entity_type = $2`,
		sessionID, entityType).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records for %s: %w", entityType, err)
	}
	return count, nil
}

func (s *migrationRecordStore) FetchAll(ctx context.Context, sessionID uuid.UUID, entityType string) ([]*models.MigrationRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT session_id, entity_type, record_id, body
		FROM migration_records
		WHERE session_id = $1 AND entity_type = $2
		ORDER BY record_id ASC`, sessionID, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records for %s: %w", entityType, err)
	}
	defer rows.Close()

	var records []*models.MigrationRecord
	for rows.Next() {
		rec := &models.MigrationRecord{}
		if err := rows.Scan(&rec.SessionID, &rec.EntityType, &rec.RecordID, &rec.Body); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

func (s *migrationRecordStore) ReplaceAll(ctx context.Context, sessionID uuid.UUID, entityType string, records []*models.MigrationRecord) (int64, int64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin restore for %s: %w", entityType, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		DELETE FROM migration_records
		WHERE session_id = $1 AND entity_type = $2`,
		sessionID, entityType)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to clear records for %s: %w", entityType, err)
	}
	deleted := tag.RowsAffected()

	var restored int64
	for _, rec := range records {
		_, err := tx.Exec(ctx, `
			INSERT INTO migration_records (session_id, entity_type, record_id, body)
			VALUES ($1, $2, $3, $4)`,
			sessionID, entityType, rec.RecordID, rec.Body)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to restore record %s/%s: %w", entityType, rec.RecordID, err)
		}
		restored++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to commit restore for %s: %w", entityType, err)
	}
	return deleted, restored, nil
}
