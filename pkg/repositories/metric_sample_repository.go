package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/steiner385/machshop-cutover/pkg/apperrors"
	"github.com/steiner385/machshop-cutover/pkg/database"
	"github.com/steiner385/machshop-cutover/pkg/models"
)

// MetricSampleRepository provides data access for migration metric samples.
// Session-wide samples are stored with an empty entity_type key so the
// idempotency index covers both scoped and session-wide samples.
type MetricSampleRepository interface {
	// Insert stores a sample idempotently. Re-submission of an identical
	// (session, entity type, recorded at) key is a no-op; the returned bool
	// reports whether a row was actually written.
	Insert(ctx context.Context, sample *models.MetricSample) (bool, error)
	// Latest returns the most recent sample for the key, or ErrNotFound.
	Latest(ctx context.Context, sessionID uuid.UUID, entityKey string) (*models.MetricSample, error)
	// LatestN returns up to n most recent samples for the key, newest first.
	LatestN(ctx context.Context, sessionID uuid.UUID, entityKey string, n int) ([]*models.MetricSample, error)
	// ListWindow returns samples recorded in [from, to], oldest first.
	ListWindow(ctx context.Context, sessionID uuid.UUID, entityKey string, from, to time.Time) ([]*models.MetricSample, error)
	// DeleteOlderThan prunes samples recorded before cutoff, always keeping
	// the newest sample of every (session, entity type) key. Returns the
	// number of rows deleted.
	DeleteOlderThan(ctx context.Context, sessionID uuid.UUID, cutoff time.Time) (int64, error)
	// DistinctSessions returns every session id that has at least one sample.
	DistinctSessions(ctx context.Context) ([]uuid.UUID, error)
}

type metricSampleRepository struct {
	db *database.DB
}

func NewMetricSampleRepository(db *database.DB) MetricSampleRepository {
	return &metricSampleRepository{db: db}
}

var _ MetricSampleRepository = (*metricSampleRepository)(nil)

const metricSampleColumns = `
	id, session_id, entity_type, total_records, imported_records,
	failed_records, skipped_records, completeness, validity, consistency,
	accuracy, import_rate, recorded_at, created_at`

func (r *metricSampleRepository) Insert(ctx context.Context, sample *models.MetricSample) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO migration_metric_samples (
			id, session_id, entity_type, total_records, imported_records,
			failed_records, skipped_records, completeness, validity,
			consistency, accuracy, import_rate, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (session_id, entity_type, recorded_at) DO NOTHING`,
		uuid.New(), sample.SessionID, sample.EntityKey(),
		sample.TotalRecords, sample.ImportedRecords, sample.FailedRecords,
		sample.SkippedRecords, sample.Completeness, sample.Validity,
		sample.Consistency, sample.Accuracy, sample.ImportRate, sample.RecordedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert metric sample: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *metricSampleRepository) Latest(ctx context.Context, sessionID uuid.UUID, entityKey string) (*models.MetricSample, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+metricSampleColumns+`
		FROM migration_metric_samples
		WHERE session_id = $1 AND entity_type = $2
		ORDER BY recorded_at DESC
		LIMIT 1`, sessionID, entityKey)

	sample, err := scanMetricSample(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("latest sample for session %s: %w", sessionID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest sample: %w", err)
	}
	return sample, nil
}

func (r *metricSampleRepository) LatestN(ctx context.Context, sessionID uuid.UUID, entityKey string, n int) ([]*models.MetricSample, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+metricSampleColumns+`
		FROM migration_metric_samples
		WHERE session_id = $1 AND entity_type = $2
		ORDER BY recorded_at DESC
		LIMIT $3`, sessionID, entityKey, n)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest samples: %w", err)
	}
	defer rows.Close()

	return collectMetricSamples(rows)
}

func (r *metricSampleRepository) ListWindow(ctx context.Context, sessionID uuid.UUID, entityKey string, from, to time.Time) ([]*models.MetricSample, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+metricSampleColumns+`
		FROM migration_metric_samples
		WHERE session_id = $1 AND entity_type = $2
		  AND recorded_at >= $3 AND recorded_at <= $4
		ORDER BY recorded_at ASC`, sessionID, entityKey, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples in window: %w", err)
	}
	defer rows.Close()

	return collectMetricSamples(rows)
}

func (r *metricSampleRepository) DeleteOlderThan(ctx context.Context, sessionID uuid.UUID, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM migration_metric_samples s
		WHERE s.session_id = $1
		  AND s.recorded_at < $2
		  AND s.id <> (
			SELECT newest.id FROM migration_metric_samples newest
			WHERE newest.session_id = s.session_id
			  AND newest.entity_type = s.entity_type
			ORDER BY newest.recorded_at DESC
			LIMIT 1
		  )`, sessionID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune metric samples: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *metricSampleRepository) DistinctSessions(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT session_id FROM migration_metric_samples`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		sessions = append(sessions, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

func scanMetricSample(row pgx.Row) (*models.MetricSample, error) {
	var (
		s         models.MetricSample
		entityKey string
	)
	err := row.Scan(
		&s.ID, &s.SessionID, &entityKey, &s.TotalRecords, &s.ImportedRecords,
		&s.FailedRecords, &s.SkippedRecords, &s.Completeness, &s.Validity,
		&s.Consistency, &s.Accuracy, &s.ImportRate, &s.RecordedAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if entityKey != "" {
		s.EntityType = &entityKey
	}
	return &s, nil
}

func collectMetricSamples(rows pgx.Rows) ([]*models.MetricSample, error) {
	var samples []*models.MetricSample
	for rows.Next() {
		sample, err := scanMetricSample(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metric sample: %w", err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metric samples: %w", err)
	}
	return samples, nil
}
