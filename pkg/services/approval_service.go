package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steiner385/machshop-cutover/pkg/apperrors"
	"github.com/steiner385/machshop-cutover/pkg/models"
	"github.com/steiner385/machshop-cutover/pkg/repositories"
)

// ApprovalService records human go/no-go decisions against a specific
// readiness assessment. The ledger is append-only; superseding a decision
// means appending a new one.
type ApprovalService interface {
	// RecordApproval appends an immutable approval referencing the exact
	// assessment values passed in, so later metric drift cannot alter what
	// was approved. CONDITIONAL decisions require at least one condition.
	RecordApproval(ctx context.Context, sessionID uuid.UUID, assessment *models.ReadinessAssessment, decision, actor string, comments *string, conditions []string) (*models.Approval, error)
	// LatestApproval returns the most recent approval, or ErrNotFound.
	LatestApproval(ctx context.Context, sessionID uuid.UUID) (*models.Approval, error)
	ListApprovals(ctx context.Context, sessionID uuid.UUID) ([]*models.Approval, error)
}

type approvalService struct {
	approvals repositories.ApprovalRepository
	alerts    AlertService
	logger    *zap.Logger
}

func NewApprovalService(approvals repositories.ApprovalRepository, alerts AlertService, logger *zap.Logger) ApprovalService {
	return &approvalService{
		approvals: approvals,
		alerts:    alerts,
		logger:    logger.Named("approval-service"),
	}
}

var _ ApprovalService = (*approvalService)(nil)

func (s *approvalService) RecordApproval(ctx context.Context, sessionID uuid.UUID, assessment *models.ReadinessAssessment, decision, actor string, comments *string, conditions []string) (*models.Approval, error) {
	if assessment == nil {
		return nil, apperrors.NewValidation("assessment", "is required")
	}
	if !models.ValidApprovalDecision(decision) {
		return nil, apperrors.NewValidation("decision", "unknown decision %q", decision)
	}
	if actor == "" {
		return nil, apperrors.NewValidation("approved_by", "is required")
	}
	if decision == models.ApprovalDecisionConditional && len(conditions) == 0 {
		return nil, apperrors.NewValidation("conditions", "conditional approval requires at least one condition")
	}
	if decision != models.ApprovalDecisionConditional && len(conditions) > 0 {
		return nil, apperrors.NewValidation("conditions", "conditions are only valid on conditional approvals")
	}

	approval := &models.Approval{
		SessionID:      sessionID,
		Decision:       decision,
		Score:          assessment.Score,
		Recommendation: assessment.Recommendation,
		RiskLevel:      assessment.RiskLevel,
		QualityScore:   assessment.QualityScore,
		Blockers:       assessment.Blockers,
		AssessedAt:     assessment.AssessedAt,
		ApprovedBy:     actor,
		Comments:       comments,
		Conditions:     conditions,
	}

	if err := s.approvals.Insert(ctx, approval); err != nil {
		s.logger.Error("Failed to record approval",
			zap.String("session_id", sessionID.String()),
			zap.String("decision", decision),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Approval recorded",
		zap.String("session_id", sessionID.String()),
		zap.String("decision", decision),
		zap.String("recommendation", approval.Recommendation),
		zap.String("risk_level", approval.RiskLevel),
		zap.String("approved_by", actor))

	if decision != models.ApprovalDecisionRejected && assessment.Recommendation == models.RecommendationNoGo {
		s.raiseOverrideAlert(ctx, approval)
	}
	return approval, nil
}

// raiseOverrideAlert records that a human approved the cutover against a
// NO_GO recommendation. The approval stands; the alert puts the override on
// the record.
func (s *approvalService) raiseOverrideAlert(ctx context.Context, approval *models.Approval) {
	severity := models.AlertSeverityHigh
	if approval.RiskLevel == models.RiskCritical {
		severity = models.AlertSeverityCritical
	}

	alert := &models.Alert{
		SessionID: approval.SessionID,
		AlertType: models.AlertTypeWarning,
		Severity:  severity,
		Title:     "Cutover approved against a NO_GO recommendation",
		Message: fmt.Sprintf("%s recorded %s while the assessment of %s recommended NO_GO (score %.1f, risk %s)",
			approval.ApprovedBy, approval.Decision, approval.AssessedAt.Format(time.RFC3339), approval.Score, approval.RiskLevel),
	}
	if err := s.alerts.CreateAlert(ctx, alert); err != nil {
		s.logger.Error("Failed to raise override alert",
			zap.String("session_id", approval.SessionID.String()),
			zap.Error(err))
	}
}

func (s *approvalService) LatestApproval(ctx context.Context, sessionID uuid.UUID) (*models.Approval, error) {
	return s.approvals.Latest(ctx, sessionID)
}

func (s *approvalService) ListApprovals(ctx context.Context, sessionID uuid.UUID) ([]*models.Approval, error) {
	return s.approvals.List(ctx, sessionID)
}
