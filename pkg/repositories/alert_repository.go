package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/steiner385/machshop-cutover/pkg/apperrors"
	"github.com/steiner385/machshop-cutover/pkg/database"
	"github.com/steiner385/machshop-cutover/pkg/models"
)

// AlertRepository provides data access for migration alerts. Alerts are
// never deleted, only resolved, to preserve the audit trail.
type AlertRepository interface {
	// Create inserts an alert. When the alert carries a dedupe key and an
	// alert with that key already exists, the insert is a no-op; the
	// returned bool reports whether a row was written.
	Create(ctx context.Context, alert *models.Alert) (bool, error)
	Get(ctx context.Context, alertID uuid.UUID) (*models.Alert, error)
	List(ctx context.Context, sessionID uuid.UUID, filters models.AlertFilters) ([]*models.Alert, int, error)
	// ListUnresolvedBySeverities returns unresolved alerts carrying any of
	// the given severities, newest first.
	ListUnresolvedBySeverities(ctx context.Context, sessionID uuid.UUID, severities []string) ([]*models.Alert, error)
	// Resolve transitions an unresolved alert to resolved. The returned bool
	// reports whether a row changed (false when already resolved).
	Resolve(ctx context.Context, alertID uuid.UUID, resolvedBy, resolution string) (bool, error)
	// Assign sets the assignee on an alert.
	Assign(ctx context.Context, alertID uuid.UUID, assignee string) error
}

type alertRepository struct {
	db *database.DB
}

func NewAlertRepository(db *database.DB) AlertRepository {
	return &alertRepository{db: db}
}

var _ AlertRepository = (*alertRepository)(nil)

const alertColumns = `
	id, session_id, alert_type, severity, title, message, entity_type,
	record_id, dedupe_key, resolved, resolved_by, resolved_at, resolution,
	assigned_to, created_at, target_resolution_time`

func (r *alertRepository) Create(ctx context.Context, alert *models.Alert) (bool, error) {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	now := time.Now()
	target := now.Add(models.ResolutionSLA(alert.Severity))

	tag, err := r.db.Exec(ctx, `
		INSERT INTO migration_alerts (
			id, session_id, alert_type, severity, title, message,
			entity_type, record_id, dedupe_key, target_resolution_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (dedupe_key) DO NOTHING`,
		alert.ID, alert.SessionID, alert.AlertType, alert.Severity,
		alert.Title, alert.Message, alert.EntityType, alert.RecordID,
		alert.DedupeKey, target,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	alert.CreatedAt = now
	alert.TargetResolutionTime = target
	return true, nil
}

func (r *alertRepository) Get(ctx context.Context, alertID uuid.UUID) (*models.Alert, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+alertColumns+`
		FROM migration_alerts
		WHERE id = $1`, alertID)

	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("alert %s: %w", alertID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

func (r *alertRepository) List(ctx context.Context, sessionID uuid.UUID, filters models.AlertFilters) ([]*models.Alert, int, error) {
	limit := filters.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	conditions := []string{"session_id = $1"}
	args := []any{sessionID}
	argIdx := 2

	if filters.Resolved != nil {
		conditions = append(conditions, fmt.Sprintf("resolved = $%d", argIdx))
		args = append(args, *filters.Resolved)
		argIdx++
	}
	if filters.Severity != "" {
		conditions = append(conditions, fmt.Sprintf("severity = $%d", argIdx))
		args = append(args, filters.Severity)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM migration_alerts WHERE %s`, where)
	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	dataQuery := fmt.Sprintf(`
		SELECT %s
		FROM migration_alerts
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, alertColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	alerts, err := collectAlerts(rows)
	if err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

func (r *alertRepository) ListUnresolvedBySeverities(ctx context.Context, sessionID uuid.UUID, severities []string) ([]*models.Alert, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+alertColumns+`
		FROM migration_alerts
		WHERE session_id = $1 AND resolved = FALSE AND severity = ANY($2)
		ORDER BY created_at DESC`, sessionID, severities)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved alerts: %w", err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

func (r *alertRepository) Resolve(ctx context.Context, alertID uuid.UUID, resolvedBy, resolution string) (bool, error) {
	now := time.Now()
	tag, err := r.db.Exec(ctx, `
		UPDATE migration_alerts
		SET resolved = TRUE, resolved_by = $2, resolved_at = $3, resolution = $4
		WHERE id = $1 AND resolved = FALSE`,
		alertID, resolvedBy, now, resolution,
	)
	if err != nil {
		return false, fmt.Errorf("failed to resolve alert: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *alertRepository) Assign(ctx context.Context, alertID uuid.UUID, assignee string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE migration_alerts
		SET assigned_to = $2
		WHERE id = $1`, alertID, assignee)
	if err != nil {
		return fmt.Errorf("failed to assign alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("alert %s: %w", alertID, apperrors.ErrNotFound)
	}
	return nil
}

func scanAlert(row pgx.Row) (*models.Alert, error) {
	alert := &models.Alert{}
	err := row.Scan(
		&alert.ID, &alert.SessionID, &alert.AlertType, &alert.Severity,
		&alert.Title, &alert.Message, &alert.EntityType, &alert.RecordID,
		&alert.DedupeKey, &alert.Resolved, &alert.ResolvedBy,
		&alert.ResolvedAt, &alert.Resolution, &alert.AssignedTo,
		&alert.CreatedAt, &alert.TargetResolutionTime,
	)
	if err != nil {
		return nil, err
	}
	return alert, nil
}

func collectAlerts(rows pgx.Rows) ([]*models.Alert, error) {
	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}
