package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steiner385/machshop-cutover/pkg/apperrors"
	"github.com/steiner385/machshop-cutover/pkg/config"
	"github.com/steiner385/machshop-cutover/pkg/models"
	"github.com/steiner385/machshop-cutover/pkg/repositories"
)

// AlertTriggerService evaluates threshold rules against the newest metric
// samples and raises alerts through the alert service. Evaluation is
// idempotent: each rule keys its alert on the triggering sample's timestamp,
// so re-evaluating the same samples never duplicates an alert.
type AlertTriggerService interface {
	// EvaluateThresholds inspects the latest session-wide samples and raises
	// any threshold alerts they warrant. Returns the alerts newly created by
	// this evaluation.
	EvaluateThresholds(ctx context.Context, sessionID uuid.UUID) ([]*models.Alert, error)
}

type alertTriggerService struct {
	samples repositories.MetricSampleRepository
	alerts  repositories.AlertRepository
	cfg     *config.AlertingConfig
	logger  *zap.Logger
}

func NewAlertTriggerService(
	samples repositories.MetricSampleRepository,
	alerts repositories.AlertRepository,
	cfg *config.AlertingConfig,
	logger *zap.Logger,
) AlertTriggerService {
	return &alertTriggerService{
		samples: samples,
		alerts:  alerts,
		cfg:     cfg,
		logger:  logger.Named("alert-trigger-service"),
	}
}

var _ AlertTriggerService = (*alertTriggerService)(nil)

func (s *alertTriggerService) EvaluateThresholds(ctx context.Context, sessionID uuid.UUID) ([]*models.Alert, error) {
	recent, err := s.samples.LatestN(ctx, sessionID, "", 2)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if len(recent) == 0 {
		return nil, nil
	}

	latest := recent[0]
	var previous *models.MetricSample
	if len(recent) > 1 {
		previous = recent[1]
	}

	var candidates []*models.Alert
	if previous != nil {
		candidates = append(candidates, s.checkQualityDrop(latest, previous)...)
		candidates = append(candidates, s.checkImportRateDrop(latest, previous)...)
		candidates = append(candidates, s.checkProgressVelocity(latest, previous)...)
	}
	candidates = append(candidates, s.checkErrorRate(latest)...)

	var created []*models.Alert
	for _, alert := range candidates {
		ok, err := s.alerts.Create(ctx, alert)
		if err != nil {
			return created, err
		}
		if !ok {
			continue
		}
		s.logger.Info("Threshold alert raised",
			zap.String("session_id", sessionID.String()),
			zap.String("severity", alert.Severity),
			zap.String("title", alert.Title))
		created = append(created, alert)
	}
	return created, nil
}

// checkQualityDrop fires when the quality score falls between two
// consecutive samples by more than the configured deviation.
func (s *alertTriggerService) checkQualityDrop(latest, previous *models.MetricSample) []*models.Alert {
	prevQ := previous.QualityScore()
	if prevQ <= 0 {
		return nil
	}
	drop := (prevQ - latest.QualityScore()) / prevQ * 100
	if drop <= s.cfg.DeviationMedium {
		return nil
	}
	return []*models.Alert{s.thresholdAlert(latest, models.ThresholdQualityDrop, drop,
		"Quality score dropped",
		fmt.Sprintf("quality score fell %.1f%% between samples (%.1f to %.1f)",
			drop, prevQ, latest.QualityScore()))}
}

// checkImportRateDrop fires when import throughput collapses between two
// consecutive samples.
func (s *alertTriggerService) checkImportRateDrop(latest, previous *models.MetricSample) []*models.Alert {
	if previous.ImportRate <= 0 {
		return nil
	}
	drop := (previous.ImportRate - latest.ImportRate) / previous.ImportRate * 100
	if drop <= s.cfg.DeviationMedium {
		return nil
	}
	return []*models.Alert{s.thresholdAlert(latest, models.ThresholdImportRateDrop, drop,
		"Import rate dropped",
		fmt.Sprintf("import rate fell %.1f%% between samples (%.1f to %.1f records/min)",
			drop, previous.ImportRate, latest.ImportRate))}
}

// checkErrorRate fires when the failed fraction of processed records exceeds
// the configured percentage. Only needs the latest sample.
func (s *alertTriggerService) checkErrorRate(latest *models.MetricSample) []*models.Alert {
	processed := latest.ImportedRecords + latest.FailedRecords
	if processed == 0 {
		return nil
	}
	rate := float64(latest.FailedRecords) / float64(processed) * 100
	if rate <= s.cfg.ErrorRatePercent {
		return nil
	}

	severity := models.AlertSeverityHigh
	if rate > 2*s.cfg.ErrorRatePercent {
		severity = models.AlertSeverityCritical
	}
	alert := s.thresholdAlert(latest, models.ThresholdErrorRate, 0,
		"Import error rate exceeded",
		fmt.Sprintf("%.1f%% of processed records failed (%d of %d), above the %.1f%% threshold",
			rate, latest.FailedRecords, processed, s.cfg.ErrorRatePercent))
	alert.Severity = severity
	return []*models.Alert{alert}
}

// checkProgressVelocity fires when imports land slower than the previous
// sample's reported rate predicts. A full stall with a remaining backlog is
// a 100% shortfall and escalates like any other deviation.
func (s *alertTriggerService) checkProgressVelocity(latest, previous *models.MetricSample) []*models.Alert {
	remaining := latest.TotalRecords - latest.ImportedRecords - latest.FailedRecords - latest.SkippedRecords
	if remaining <= 0 {
		return nil
	}
	elapsed := latest.RecordedAt.Sub(previous.RecordedAt)
	if previous.ImportRate <= 0 || elapsed <= 0 {
		return nil
	}
	expected := previous.ImportRate * elapsed.Minutes()
	actual := float64(latest.ImportedRecords - previous.ImportedRecords)
	if actual >= expected {
		return nil
	}
	shortfall := (expected - actual) / expected * 100
	if shortfall <= s.cfg.DeviationMedium {
		return nil
	}
	return []*models.Alert{s.thresholdAlert(latest, models.ThresholdProgressVelocity, shortfall,
		"Import progress behind expected velocity",
		fmt.Sprintf("imported %.0f records since the previous sample against %.0f expected at %.1f records/min; %d records still pending",
			actual, expected, previous.ImportRate, remaining))}
}

// thresholdAlert builds a THRESHOLD alert keyed on the triggering sample so
// re-evaluation dedupes. deviation selects severity for the drop-style rules.
func (s *alertTriggerService) thresholdAlert(sample *models.MetricSample, subtype string, deviation float64, title, message string) *models.Alert {
	severity := models.AlertSeverityMedium
	if deviation > s.cfg.DeviationCritical {
		severity = models.AlertSeverityCritical
	} else if deviation > s.cfg.DeviationHigh {
		severity = models.AlertSeverityHigh
	}

	key := models.ThresholdDedupeKey(sample.SessionID, sample.EntityKey(), subtype, sample.RecordedAt)
	return &models.Alert{
		SessionID:  sample.SessionID,
		AlertType:  models.AlertTypeThreshold,
		Severity:   severity,
		Title:      title,
		Message:    message,
		EntityType: sample.EntityType,
		DedupeKey:  &key,
	}
}
