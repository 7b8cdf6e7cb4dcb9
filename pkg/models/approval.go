package models

import (
	"time"

	"github.com/google/uuid"
)

// Approval decisions.
const (
	ApprovalDecisionApproved    = "APPROVED"
	ApprovalDecisionRejected    = "REJECTED"
	ApprovalDecisionConditional = "CONDITIONAL"
)

// ValidApprovalDecision reports whether d is a known decision.
func ValidApprovalDecision(d string) bool {
	switch d {
	case ApprovalDecisionApproved, ApprovalDecisionRejected, ApprovalDecisionConditional:
		return true
	}
	return false
}

// Approval is one immutable row of the approval ledger. It snapshots the
// exact assessment values the decision was made against so later metric
// drift cannot retroactively alter what was approved. Superseding a decision
// appends a new row, never updates an existing one.
type Approval struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`

	Decision string `json:"decision"`

	// Assessment values frozen at decision time.
	Score          float64   `json:"score"`
	Recommendation string    `json:"recommendation"`
	RiskLevel      string    `json:"risk_level"`
	QualityScore   float64   `json:"quality_score"`
	Blockers       []Blocker `json:"blockers"`
	AssessedAt     time.Time `json:"assessed_at"`

	ApprovedBy string    `json:"approved_by"`
	ApprovedAt time.Time `json:"approved_at"`
	Comments   *string   `json:"comments,omitempty"`
	Conditions []string  `json:"conditions,omitempty"`
}
