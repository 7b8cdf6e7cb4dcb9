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

// ApprovalRepository provides data access for the append-only approval
// ledger. There is deliberately no update or delete operation.
type ApprovalRepository interface {
	Insert(ctx context.Context, approval *models.Approval) error
	// Latest returns the most recently created approval for a session, or
	// ErrNotFound when the ledger is empty.
	Latest(ctx context.Context, sessionID uuid.UUID) (*models.Approval, error)
	List(ctx context.Context, sessionID uuid.UUID) ([]*models.Approval, error)
}

type approvalRepository struct {
	db *database.DB
}

func NewApprovalRepository(db *database.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

var _ ApprovalRepository = (*approvalRepository)(nil)

const approvalColumns = `
	id, session_id, decision, score, recommendation, risk_level,
	quality_score, blockers, assessed_at, approved_by, approved_at,
	comments, conditions`

func (r *approvalRepository) Insert(ctx context.Context, approval *models.Approval) error {
	blockers, err := json.Marshal(approval.Blockers)
	if err != nil {
		return fmt.Errorf("failed to encode blockers: %w", err)
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO cutover_approvals (
			id, session_id, decision, score, recommendation, risk_level,
			quality_score, blockers, assessed_at, approved_by, comments, conditions
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING approved_at`,
		uuid.New(), approval.SessionID, approval.Decision, approval.Score,
		approval.Recommendation, approval.RiskLevel, approval.QualityScore,
		blockers, approval.AssessedAt, approval.ApprovedBy,
		approval.Comments, approval.Conditions,
	).Scan(&approval.ApprovedAt)
	if err != nil {
		return fmt.Errorf("failed to insert approval: %w", err)
	}
	return nil
}

func (r *approvalRepository) Latest(ctx context.Context, sessionID uuid.UUID) (*models.Approval, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+approvalColumns+`
		FROM cutover_approvals
		WHERE session_id = $1
		ORDER BY approved_at DESC
		LIMIT 1`, sessionID)

	approval, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("latest approval for session %s: %w", sessionID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest approval: %w", err)
	}
	return approval, nil
}

func (r *approvalRepository) List(ctx context.Context, sessionID uuid.UUID) ([]*models.Approval, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+approvalColumns+`
		FROM cutover_approvals
		WHERE session_id = $1
		ORDER BY approved_at DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*models.Approval
	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvals = append(approvals, approval)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approvals: %w", err)
	}
	return approvals, nil
}

func scanApproval(row pgx.Row) (*models.Approval, error) {
	var (
		a        models.Approval
		blockers []byte
	)
	err := row.Scan(
		&a.ID, &a.SessionID, &a.Decision, &a.Score, &a.Recommendation,
		&a.RiskLevel, &a.QualityScore, &blockers, &a.AssessedAt,
		&a.ApprovedBy, &a.ApprovedAt, &a.Comments, &a.Conditions,
	)
	if err != nil {
		return nil, err
	}
	if len(blockers) > 0 {
		if err := json.Unmarshal(blockers, &a.Blockers); err != nil {
			return nil, fmt.Errorf("failed to decode blockers: %w", err)
		}
	}
	return &a, nil
}
