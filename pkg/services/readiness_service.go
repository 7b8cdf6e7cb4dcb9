package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steiner385/machshop-cutover/pkg/apperrors"
	"github.com/steiner385/machshop-cutover/pkg/models"
	"github.com/steiner385/machshop-cutover/pkg/repositories"
)

// Quality thresholds of the documented scoring formula. The formula is a
// fixed contract, not configurable business policy.
const (
	qualityBlockerThreshold = 85.0
	qualityHighRisk         = 70.0
	qualityMediumRisk       = 80.0
	qualityLowRisk          = 90.0
	qualityCautionFloor     = 75.0
)

// ReadinessService owns the go-live checklist and the go/no-go readiness
// assessment.
type ReadinessService interface {
	// SeedChecklist seeds the fixed template for a session. Returns
	// ErrConflict if a checklist already exists; idempotency is the
	// caller's responsibility via explicit reset.
	SeedChecklist(ctx context.Context, sessionID uuid.UUID) error
	// ResetChecklist deletes and re-seeds the session checklist.
	ResetChecklist(ctx context.Context, sessionID uuid.UUID) error
	ListChecklist(ctx context.Context, sessionID uuid.UUID) ([]*models.ChecklistItem, error)
	// CompleteItem marks an item PASS; safe to call repeatedly, last write
	// wins. Returns ErrNotFound for an unknown item.
	CompleteItem(ctx context.Context, sessionID uuid.UUID, itemID, actor string, notes *string) error
	// FailItem marks an item FAIL, analogously to CompleteItem.
	FailItem(ctx context.Context, sessionID uuid.UUID, itemID, actor string, notes *string) error
	// AssessReadiness computes a fresh assessment from current checklist,
	// metric and alert state. Read-only, no caching, no side effects.
	AssessReadiness(ctx context.Context, sessionID uuid.UUID) (*models.ReadinessAssessment, error)
}

type readinessService struct {
	checklist repositories.ChecklistRepository
	samples   repositories.MetricSampleRepository
	alerts    repositories.AlertRepository
	logger    *zap.Logger
}

func NewReadinessService(
	checklist repositories.ChecklistRepository,
	samples repositories.MetricSampleRepository,
	alerts repositories.AlertRepository,
	logger *zap.Logger,
) ReadinessService {
	return &readinessService{
		checklist: checklist,
		samples:   samples,
		alerts:    alerts,
		logger:    logger.Named("readiness-service"),
	}
}

var _ ReadinessService = (*readinessService)(nil)

func (s *readinessService) SeedChecklist(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.checklist.Seed(ctx, sessionID, models.DefaultChecklistTemplate()); err != nil {
		if !errors.Is(err, apperrors.ErrConflict) {
			s.logger.Error("Failed to seed checklist",
				zap.String("session_id", sessionID.String()),
				zap.Error(err))
		}
		return err
	}
	s.logger.Info("Seeded go-live checklist", zap.String("session_id", sessionID.String()))
	return nil
}

func (s *readinessService) ResetChecklist(ctx context.Context, sessionID uuid.UUID) error {
	removed, err := s.checklist.DeleteForSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to reset checklist: %w", err)
	}
	s.logger.Info("Reset go-live checklist",
		zap.String("session_id", sessionID.String()),
		zap.Int64("items_removed", removed))
	return s.checklist.Seed(ctx, sessionID, models.DefaultChecklistTemplate())
}

func (s *readinessService) ListChecklist(ctx context.Context, sessionID uuid.UUID) ([]*models.ChecklistItem, error) {
	return s.checklist.List(ctx, sessionID)
}

func (s *readinessService) CompleteItem(ctx context.Context, sessionID uuid.UUID, itemID, actor string, notes *string) error {
	return s.setItemStatus(ctx, sessionID, itemID, models.ChecklistStatusPass, actor, notes)
}

func (s *readinessService) FailItem(ctx context.Context, sessionID uuid.UUID, itemID, actor string, notes *string) error {
	return s.setItemStatus(ctx, sessionID, itemID, models.ChecklistStatusFail, actor, notes)
}

func (s *readinessService) setItemStatus(ctx context.Context, sessionID uuid.UUID, itemID, status, actor string, notes *string) error {
	if actor == "" {
		return apperrors.NewValidation("actor", "is required")
	}
	if err := s.checklist.SetStatus(ctx, sessionID, itemID, status, actor, notes); err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.Error("Failed to update checklist item",
				zap.String("session_id", sessionID.String()),
				zap.String("item_id", itemID),
				zap.Error(err))
		}
		return err
	}
	s.logger.Info("Checklist item updated",
		zap.String("session_id", sessionID.String()),
		zap.String("item_id", itemID),
		zap.String("status", status),
		zap.String("actor", actor))
	return nil
}

func (s *readinessService) AssessReadiness(ctx context.Context, sessionID uuid.UUID) (*models.ReadinessAssessment, error) {
	items, err := s.checklist.List(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checklist state: %w", err)
	}

	quality := 0.0
	latest, err := s.samples.Latest(ctx, sessionID, "")
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to load session quality: %w", err)
	}
	if latest != nil {
		quality = latest.QualityScore()
	}

	openAlerts, err := s.alerts.ListUnresolvedBySeverities(ctx, sessionID,
		[]string{models.AlertSeverityCritical, models.AlertSeverityHigh, models.AlertSeverityMedium})
	if err != nil {
		return nil, fmt.Errorf("failed to load open alerts: %w", err)
	}

	assessment := &models.ReadinessAssessment{
		SessionID:    sessionID,
		QualityScore: quality,
		AssessedAt:   time.Now(),
	}

	for _, item := range items {
		if item.Status != models.ChecklistStatusFail {
			continue
		}
		if item.Required {
			assessment.Blockers = append(assessment.Blockers, models.Blocker{
				Severity: models.BlockerSeverityCritical,
				Category: models.BlockerCategoryChecklist,
				Message:  fmt.Sprintf("required checklist item %s failed: %s", item.ItemID, item.Requirement),
				Ref:      item.ItemID,
			})
			continue
		}
		assessment.Warnings = append(assessment.Warnings,
			fmt.Sprintf("optional checklist item %s failed: %s", item.ItemID, item.Requirement))
	}
	if quality < qualityBlockerThreshold {
		// A quality shortfall degrades the recommendation through the
		// quality bands rather than forcing NO_GO outright, so it is a
		// high blocker, not a critical one.
		assessment.Blockers = append(assessment.Blockers, models.Blocker{
			Severity: models.BlockerSeverityHigh,
			Category: models.BlockerCategoryQuality,
			Message:  fmt.Sprintf("session quality score %.1f below required %.0f", quality, qualityBlockerThreshold),
		})
	} else if quality < qualityLowRisk {
		assessment.Warnings = append(assessment.Warnings,
			fmt.Sprintf("session quality score %.1f clears the %.0f minimum but sits below %.0f", quality, qualityBlockerThreshold, qualityLowRisk))
	}
	for _, alert := range openAlerts {
		if alert.Severity == models.AlertSeverityMedium {
			assessment.Warnings = append(assessment.Warnings,
				fmt.Sprintf("unresolved MEDIUM alert: %s", alert.Title))
			continue
		}
		assessment.Blockers = append(assessment.Blockers, models.Blocker{
			Severity: alert.Severity,
			Category: models.BlockerCategoryAlert,
			Message:  fmt.Sprintf("unresolved %s alert: %s", alert.Severity, alert.Title),
			Ref:      alert.ID.String(),
		})
	}

	critical := assessment.CriticalBlockerCount()
	high := assessment.HighBlockerCount()

	assessment.RiskLevel = riskLevel(critical, high, quality)
	assessment.Recommendation = recommendation(critical, quality)
	assessment.Score = readinessScore(quality, critical, assessment.RiskLevel)

	return assessment, nil
}

func riskLevel(criticalBlockers, highBlockers int, quality float64) string {
	switch {
	case criticalBlockers > 0:
		return models.RiskCritical
	case highBlockers >= 3 || quality < qualityHighRisk:
		return models.RiskHigh
	case highBlockers >= 1 || quality < qualityMediumRisk:
		return models.RiskMedium
	default:
		// quality < 90 and the floor both land on LOW
		return models.RiskLow
	}
}

func recommendation(criticalBlockers int, quality float64) string {
	switch {
	case criticalBlockers > 0:
		return models.RecommendationNoGo
	case quality >= qualityBlockerThreshold:
		return models.RecommendationGo
	case quality >= qualityCautionFloor:
		return models.RecommendationGoWithCaution
	default:
		return models.RecommendationNoGo
	}
}

// readinessScore blends quality, critical blocker count, and risk level into
// the 0-100 composite: 0.5*Q + 0.3*(100 - 10*min(critical,10)) + 0.2*risk.
func readinessScore(quality float64, criticalBlockers int, risk string) float64 {
	capped := criticalBlockers
	if capped > 10 {
		capped = 10
	}

	riskComponent := 0.0
	switch risk {
	case models.RiskLow:
		riskComponent = 100
	case models.RiskMedium:
		riskComponent = 70
	case models.RiskHigh:
		riskComponent = 40
	}

	score := 0.5*quality + 0.3*(100-10*float64(capped)) + 0.2*riskComponent
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
