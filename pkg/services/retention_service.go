package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steiner385/machshop-cutover/pkg/repositories"
)

// DefaultRetentionDays is the default retention period for metric samples.
const DefaultRetentionDays = 90

// RetentionService handles cleanup of old metric samples. Alerts, approvals,
// snapshots and rollback records are audit artifacts and are never pruned;
// alerts age out of view by being resolved, not deleted.
type RetentionService interface {
	// PruneSession removes samples older than the retention period for one
	// session. The newest sample per entity type is always kept so
	// aggregates stay computable. Returns the number of rows deleted.
	PruneSession(ctx context.Context, sessionID uuid.UUID, retentionDays int) (int64, error)

	// RunScheduler starts a background goroutine that prunes all sessions on
	// the given interval. It runs immediately on startup, then repeats every
	// interval. Cancel the context to stop the scheduler.
	RunScheduler(ctx context.Context, interval time.Duration)
}

type retentionService struct {
	samples       repositories.MetricSampleRepository
	retentionDays int
	logger        *zap.Logger
}

func NewRetentionService(
	samples repositories.MetricSampleRepository,
	retentionDays int,
	logger *zap.Logger,
) RetentionService {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &retentionService{
		samples:       samples,
		retentionDays: retentionDays,
		logger:        logger.Named("retention-service"),
	}
}

var _ RetentionService = (*retentionService)(nil)

func (s *retentionService) PruneSession(ctx context.Context, sessionID uuid.UUID, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = s.retentionDays
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	deleted, err := s.samples.DeleteOlderThan(ctx, sessionID, cutoff)
	if err != nil {
		s.logger.Error("Failed to prune metric samples",
			zap.String("session_id", sessionID.String()),
			zap.Error(err))
		return 0, fmt.Errorf("failed to prune metric samples: %w", err)
	}

	if deleted > 0 {
		s.logger.Info("Retention cleanup completed",
			zap.String("session_id", sessionID.String()),
			zap.Int("retention_days", retentionDays),
			zap.Int64("samples_deleted", deleted))
	}

	return deleted, nil
}

// RunScheduler starts a background loop that prunes old samples for all
// sessions.
func (s *retentionService) RunScheduler(ctx context.Context, interval time.Duration) {
	go func() {
		s.logger.Info("Retention scheduler started",
			zap.Duration("interval", interval),
			zap.Int("retention_days", s.retentionDays))

		// Run immediately on startup, then at each interval
		s.pruneAllSessions(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Retention scheduler stopped")
				return
			case <-ticker.C:
				s.pruneAllSessions(ctx)
			}
		}
	}()
}

func (s *retentionService) pruneAllSessions(ctx context.Context) {
	sessions, err := s.samples.DistinctSessions(ctx)
	if err != nil {
		s.logger.Error("Retention scheduler: failed to list sessions", zap.Error(err))
		return
	}

	for _, sessionID := range sessions {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.PruneSession(ctx, sessionID, s.retentionDays); err != nil {
			s.logger.Error("Retention scheduler: prune failed",
				zap.String("session_id", sessionID.String()),
				zap.Error(err))
		}
	}
}
