package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steiner385/machshop-cutover/pkg/models"
	"github.com/steiner385/machshop-cutover/pkg/repositories"
)

// MetricsService ingests progress/quality samples from the import engine and
// validation framework and computes aggregate views of migration progress.
type MetricsService interface {
	// Record persists a sample idempotently. Re-submission of an identical
	// (session, entity type, recorded at) key is a no-op, supporting
	// at-least-once delivery from upstream.
	Record(ctx context.Context, sample *models.MetricSample) error
	// Aggregate returns the latest sample's fields plus derived progress and
	// an estimated completion time. entityType nil means session-wide.
	Aggregate(ctx context.Context, sessionID uuid.UUID, entityType *string) (*models.MigrationAggregate, error)
	// Trend returns samples within the window, oldest first. A zero window
	// uses the configured default. Callers may re-request the same window;
	// results are stable modulo newly ingested samples.
	Trend(ctx context.Context, sessionID uuid.UUID, entityType *string, window time.Duration) ([]*models.MetricSample, error)
}

type metricsService struct {
	samples            repositories.MetricSampleRepository
	predictionSamples  int
	defaultTrendWindow time.Duration
	logger             *zap.Logger
}

// NewMetricsService creates a metrics service. predictionSamples is the
// number of most-recent samples averaged for completion prediction.
func NewMetricsService(samples repositories.MetricSampleRepository, predictionSamples int, defaultTrendWindow time.Duration, logger *zap.Logger) MetricsService {
	if predictionSamples < 2 {
		predictionSamples = 5
	}
	if defaultTrendWindow <= 0 {
		defaultTrendWindow = time.Hour
	}
	return &metricsService{
		samples:            samples,
		predictionSamples:  predictionSamples,
		defaultTrendWindow: defaultTrendWindow,
		logger:             logger.Named("metrics-service"),
	}
}

var _ MetricsService = (*metricsService)(nil)

func (s *metricsService) Record(ctx context.Context, sample *models.MetricSample) error {
	if err := sample.Validate(); err != nil {
		return err
	}

	inserted, err := s.samples.Insert(ctx, sample)
	if err != nil {
		s.logger.Error("Failed to record metric sample",
			zap.String("session_id", sample.SessionID.String()),
			zap.String("entity_type", sample.EntityKey()),
			zap.Error(err))
		return err
	}
	if !inserted {
		s.logger.Debug("Duplicate metric sample ignored",
			zap.String("session_id", sample.SessionID.String()),
			zap.String("entity_type", sample.EntityKey()),
			zap.Time("recorded_at", sample.RecordedAt))
	}
	return nil
}

func (s *metricsService) Aggregate(ctx context.Context, sessionID uuid.UUID, entityType *string) (*models.MigrationAggregate, error) {
	entityKey := ""
	if entityType != nil {
		entityKey = *entityType
	}

	recent, err := s.samples.LatestN(ctx, sessionID, entityKey, s.predictionSamples)
	if err != nil {
		return nil, fmt.Errorf("failed to load samples for aggregation: %w", err)
	}
	if len(recent) == 0 {
		return &models.MigrationAggregate{SessionID: sessionID, EntityType: entityType}, nil
	}

	latest := recent[0]
	agg := &models.MigrationAggregate{
		SessionID:       sessionID,
		EntityType:      entityType,
		TotalRecords:    latest.TotalRecords,
		ImportedRecords: latest.ImportedRecords,
		FailedRecords:   latest.FailedRecords,
		SkippedRecords:  latest.SkippedRecords,
		QualityScore:    latest.QualityScore(),
		Completeness:    latest.Completeness,
		Validity:        latest.Validity,
		Consistency:     latest.Consistency,
		Accuracy:        latest.Accuracy,
		ImportRate:      latest.ImportRate,
		RecordedAt:      latest.RecordedAt,
	}
	if latest.TotalRecords > 0 {
		agg.ProgressPercent = float64(latest.ImportedRecords) / float64(latest.TotalRecords) * 100
	}
	agg.EstimatedCompletion = estimateCompletion(recent)
	return agg, nil
}

func (s *metricsService) Trend(ctx context.Context, sessionID uuid.UUID, entityType *string, window time.Duration) ([]*models.MetricSample, error) {
	if window <= 0 {
		window = s.defaultTrendWindow
	}
	entityKey := ""
	if entityType != nil {
		entityKey = *entityType
	}

	now := time.Now()
	samples, err := s.samples.ListWindow(ctx, sessionID, entityKey, now.Add(-window), now)
	if err != nil {
		return nil, fmt.Errorf("failed to load trend window: %w", err)
	}
	return samples, nil
}

// estimateCompletion extrapolates linearly from the mean import rate of the
// given samples (newest first). Returns nil when fewer than two samples
// exist or the mean rate is zero.
func estimateCompletion(recent []*models.MetricSample) *time.Time {
	if len(recent) < 2 {
		return nil
	}

	var rateSum float64
	for _, sample := range recent {
		rateSum += sample.ImportRate
	}
	meanRate := rateSum / float64(len(recent))
	if meanRate <= 0 {
		return nil
	}

	latest := recent[0]
	remaining := latest.TotalRecords - latest.ImportedRecords
	if remaining <= 0 {
		return nil
	}

	minutes := float64(remaining) / meanRate
	eta := time.Now().Add(time.Duration(minutes * float64(time.Minute)))
	return &eta
}
