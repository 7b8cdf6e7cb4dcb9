package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steiner385/machshop-cutover/pkg/apperrors"
	"github.com/steiner385/machshop-cutover/pkg/models"
	"github.com/steiner385/machshop-cutover/pkg/repositories"
)

// AlertService manages the migration alert lifecycle.
type AlertService interface {
	// CreateAlert records an alert. Creation is idempotent for alerts
	// carrying a dedupe key: a duplicate is silently dropped.
	CreateAlert(ctx context.Context, alert *models.Alert) error
	GetAlert(ctx context.Context, alertID uuid.UUID) (*models.Alert, error)
	ListAlerts(ctx context.Context, sessionID uuid.UUID, filters models.AlertFilters) ([]*models.Alert, int, error)
	// ResolveAlert marks an alert resolved. Resolving an already-resolved
	// alert succeeds without changing anything.
	ResolveAlert(ctx context.Context, alertID uuid.UUID, resolvedBy, resolution string) error
	AssignAlert(ctx context.Context, alertID uuid.UUID, assignee string) error
}

type alertService struct {
	alerts repositories.AlertRepository
	logger *zap.Logger
}

func NewAlertService(alerts repositories.AlertRepository, logger *zap.Logger) AlertService {
	return &alertService{
		alerts: alerts,
		logger: logger.Named("alert-service"),
	}
}

var _ AlertService = (*alertService)(nil)

func (s *alertService) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if alert == nil {
		return apperrors.NewValidation("alert", "is required")
	}
	if alert.SessionID == uuid.Nil {
		return apperrors.NewValidation("session_id", "is required")
	}
	if alert.Title == "" {
		return apperrors.NewValidation("title", "is required")
	}
	if !models.ValidAlertSeverity(alert.Severity) {
		return apperrors.NewValidation("severity", "unknown severity %q", alert.Severity)
	}
	switch alert.AlertType {
	case models.AlertTypeError, models.AlertTypeWarning, models.AlertTypeInfo, models.AlertTypeThreshold:
	default:
		return apperrors.NewValidation("alert_type", "unknown alert type %q", alert.AlertType)
	}

	created, err := s.alerts.Create(ctx, alert)
	if err != nil {
		return err
	}
	if !created {
		s.logger.Debug("Duplicate alert dropped",
			zap.String("session_id", alert.SessionID.String()),
			zap.Stringp("dedupe_key", alert.DedupeKey))
		return nil
	}

	s.logger.Info("Alert created",
		zap.String("alert_id", alert.ID.String()),
		zap.String("session_id", alert.SessionID.String()),
		zap.String("severity", alert.Severity),
		zap.String("title", alert.Title))
	return nil
}

func (s *alertService) GetAlert(ctx context.Context, alertID uuid.UUID) (*models.Alert, error) {
	return s.alerts.Get(ctx, alertID)
}

func (s *alertService) ListAlerts(ctx context.Context, sessionID uuid.UUID, filters models.AlertFilters) ([]*models.Alert, int, error) {
	if filters.Severity != "" && !models.ValidAlertSeverity(filters.Severity) {
		return nil, 0, apperrors.NewValidation("severity", "unknown severity %q", filters.Severity)
	}
	return s.alerts.List(ctx, sessionID, filters)
}

func (s *alertService) ResolveAlert(ctx context.Context, alertID uuid.UUID, resolvedBy, resolution string) error {
	if resolvedBy == "" {
		return apperrors.NewValidation("resolved_by", "is required")
	}

	changed, err := s.alerts.Resolve(ctx, alertID, resolvedBy, resolution)
	if err != nil {
		return err
	}
	if changed {
		s.logger.Info("Alert resolved",
			zap.String("alert_id", alertID.String()),
			zap.String("resolved_by", resolvedBy))
		return nil
	}

	// No row changed: either the alert is already resolved (a no-op
	// success) or it does not exist.
	if _, err := s.alerts.Get(ctx, alertID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("alert %s: %w", alertID, apperrors.ErrNotFound)
		}
		return err
	}
	return nil
}

func (s *alertService) AssignAlert(ctx context.Context, alertID uuid.UUID, assignee string) error {
	if assignee == "" {
		return apperrors.NewValidation("assigned_to", "is required")
	}
	if err := s.alerts.Assign(ctx, alertID, assignee); err != nil {
		return err
	}
	s.logger.Info("Alert assigned",
		zap.String("alert_id", alertID.String()),
		zap.String("assigned_to", assignee))
	return nil
}
