package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/steiner385/machshop-cutover/pkg/apperrors"
	"github.com/steiner385/machshop-cutover/pkg/database"
	"github.com/steiner385/machshop-cutover/pkg/models"
)

// RollbackRepository provides data access for rollback execution records.
// Records are append-only: a retried rollback creates a new record, the only
// permitted mutation is stamping the verification outcome.
type RollbackRepository interface {
	Insert(ctx context.Context, record *models.RollbackRecord) error
	Get(ctx context.Context, recordID uuid.UUID) (*models.RollbackRecord, error)
	ListBySnapshot(ctx context.Context, snapshotID uuid.UUID) ([]*models.RollbackRecord, error)
	// MarkVerified stamps the verification outcome on a record.
	MarkVerified(ctx context.Context, recordID uuid.UUID, verified bool, verifiedAt time.Time) error
}

type rollbackRepository struct {
	db *database.DB
}

func NewRollbackRepository(db *database.DB) RollbackRepository {
	return &rollbackRepository{db: db}
}

var _ RollbackRepository = (*rollbackRepository)(nil)

const rollbackColumns = `
	id, snapshot_id, session_id, entity_types, success, records_restored,
	records_deleted, duration_ms, errors, backup_snapshot_id, executed_at,
	executed_by, verified, verified_at`

func (r *rollbackRepository) Insert(ctx context.Context, record *models.RollbackRecord) error {
	errorsJSON, err := json.Marshal(record.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode rollback errors: %w", err)
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO migration_rollback_records (
			id, snapshot_id, session_id, entity_types, success,
			records_restored, records_deleted, duration_ms, errors,
			backup_snapshot_id, executed_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING executed_at`,
		record.ID, record.SnapshotID, record.SessionID, record.EntityTypes,
		record.Success, record.RecordsRestored, record.RecordsDeleted,
		record.Duration.Milliseconds(), errorsJSON, record.BackupSnapshotID,
		record.ExecutedBy,
	).Scan(&record.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rollback record: %w", err)
	}
	return nil
}

func (r *rollbackRepository) Get(ctx context.Context, recordID uuid.UUID) (*models.RollbackRecord, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+rollbackColumns+`
		FROM migration_rollback_records
		WHERE id = $1`, recordID)

	record, err := scanRollbackRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("rollback record %s: %w", recordID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get rollback record: %w", err)
	}
	return record, nil
}

func (r *rollbackRepository) ListBySnapshot(ctx context.Context, snapshotID uuid.UUID) ([]*models.RollbackRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+rollbackColumns+`
		FROM migration_rollback_records
		WHERE snapshot_id = $1
		ORDER BY executed_at DESC`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rollback records: %w", err)
	}
	defer rows.Close()

	var records []*models.RollbackRecord
	for rows.Next() {
		record, err := scanRollbackRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rollback record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rollback records: %w", err)
	}
	return records, nil
}

func (r *rollbackRepository) MarkVerified(ctx context.Context, recordID uuid.UUID, verified bool, verifiedAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE migration_rollback_records
		SET verified = $2, verified_at = $3
		WHERE id = $1`, recordID, verified, verifiedAt)
	if err != nil {
		return fmt.Errorf("failed to mark rollback verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rollback record %s: %w", recordID, apperrors.ErrNotFound)
	}
	return nil
}

func scanRollbackRecord(row pgx.Row) (*models.RollbackRecord, error) {
	var (
		rec        models.RollbackRecord
		durationMs int64
		errorsJSON []byte
	)
	err := row.Scan(
		&rec.ID, &rec.SnapshotID, &rec.SessionID, &rec.EntityTypes,
		&rec.Success, &rec.RecordsRestored, &rec.RecordsDeleted,
		&durationMs, &errorsJSON, &rec.BackupSnapshotID, &rec.ExecutedAt,
		&rec.ExecutedBy, &rec.Verified, &rec.VerifiedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &rec.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode rollback errors: %w", err)
		}
	}
	return &rec, nil
}
