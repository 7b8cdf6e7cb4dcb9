package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/steiner385/machshop-cutover/pkg/apperrors"
	"github.com/steiner385/machshop-cutover/pkg/database"
	"github.com/steiner385/machshop-cutover/pkg/models"
)

// SnapshotRepository provides data access for snapshots and their captured
// entity payloads. Snapshot + captures are written in a single transaction:
// a snapshot either exists completely or not at all.
type SnapshotRepository interface {
	CreateWithCaptures(ctx context.Context, snapshot *models.Snapshot, captures []*models.SnapshotCapture) error
	Get(ctx context.Context, snapshotID uuid.UUID) (*models.Snapshot, error)
	List(ctx context.Context, sessionID uuid.UUID) ([]*models.Snapshot, error)
	// Delete removes the snapshot and its captures. ErrNotFound if absent.
	Delete(ctx context.Context, snapshotID uuid.UUID) error
	// GetCapture loads the serialized payload for one entity type.
	GetCapture(ctx context.Context, snapshotID uuid.UUID, entityType string) (*models.SnapshotCapture, error)
}

type snapshotRepository struct {
	db *database.DB
}

func NewSnapshotRepository(db *database.DB) SnapshotRepository {
	return &snapshotRepository{db: db}
}

var _ SnapshotRepository = (*snapshotRepository)(nil)

const snapshotColumns = `
	id, session_id, name, description, entity_types, record_counts,
	size_bytes, storage_path, storage_format, created_at, created_by, expires_at`

func (r *snapshotRepository) CreateWithCaptures(ctx context.Context, snapshot *models.Snapshot, captures []*models.SnapshotCapture) error {
	recordCounts, err := json.Marshal(snapshot.RecordCounts)
	if err != nil {
		return fmt.Errorf("failed to encode record counts: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot write: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO migration_snapshots (
			id, session_id, name, description, entity_types, record_counts,
			size_bytes, storage_path, storage_format, created_by, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`,
		snapshot.ID, snapshot.SessionID, snapshot.Name, snapshot.Description,
		snapshot.EntityTypes, recordCounts, snapshot.SizeBytes,
		snapshot.StoragePath, snapshot.StorageFormat, snapshot.CreatedBy,
		snapshot.ExpiresAt,
	).Scan(&snapshot.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	for _, capture := range captures {
		_, err := tx.Exec(ctx, `
			INSERT INTO snapshot_captures (
				snapshot_id, entity_type, record_count, size_bytes, payload
			) VALUES ($1, $2, $3, $4, $5)`,
			snapshot.ID, capture.EntityType, capture.RecordCount,
			capture.SizeBytes, capture.Payload,
		)
		if err != nil {
			return fmt.Errorf("failed to insert capture for %s: %w", capture.EntityType, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit snapshot write: %w", err)
	}
	return nil
}

func (r *snapshotRepository) Get(ctx context.Context, snapshotID uuid.UUID) (*models.Snapshot, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+snapshotColumns+`
		FROM migration_snapshots
		WHERE id = $1`, snapshotID)

	snapshot, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("snapshot %s: %w", snapshotID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return snapshot, nil
}

func (r *snapshotRepository) List(ctx context.Context, sessionID uuid.UUID) ([]*models.Snapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM migration_snapshots
		WHERE session_id = $1
		ORDER BY created_at DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.Snapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return snapshots, nil
}

func (r *snapshotRepository) Delete(ctx context.Context, snapshotID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot delete: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM snapshot_captures WHERE snapshot_id = $1`, snapshotID); err != nil {
		return fmt.Errorf("failed to delete captures: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM migration_snapshots WHERE id = $1`, snapshotID)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("snapshot %s: %w", snapshotID, apperrors.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit snapshot delete: %w", err)
	}
	return nil
}

func (r *snapshotRepository) GetCapture(ctx context.Context, snapshotID uuid.UUID, entityType string) (*models.SnapshotCapture, error) {
	capture := &models.SnapshotCapture{}
	err := r.db.QueryRow(ctx, `
		SELECT snapshot_id, entity_type, record_count, size_bytes, payload
		FROM snapshot_captures
		WHERE snapshot_id = $1 AND entity_type = $2`,
		snapshotID, entityType,
	).Scan(&capture.SnapshotID, &capture.EntityType, &capture.RecordCount,
		&capture.SizeBytes, &capture.Payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("capture %s/%s: %w", snapshotID, entityType, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get capture: %w", err)
	}
	return capture, nil
}

func scanSnapshot(row pgx.Row) (*models.Snapshot, error) {
	var (
		s            models.Snapshot
		recordCounts []byte
	)
	err := row.Scan(
		&s.ID, &s.SessionID, &s.Name, &s.Description, &s.EntityTypes,
		&recordCounts, &s.SizeBytes, &s.StoragePath, &s.StorageFormat,
		&s.CreatedAt, &s.CreatedBy, &s.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	if len(recordCounts) > 0 {
		if err := json.Unmarshal(recordCounts, &s.RecordCounts); err != nil {
			return nil, fmt.Errorf("failed to decode record counts: %w", err)
		}
	}
	return &s, nil
}
