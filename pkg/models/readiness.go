package models

import (
	"time"

	"github.com/google/uuid"
)

// Go/no-go recommendations.
const (
	RecommendationGo            = "GO"
	RecommendationNoGo          = "NO_GO"
	RecommendationGoWithCaution = "GO_WITH_CAUTION"
)

// Risk levels.
const (
	RiskLow      = "LOW"
	RiskMedium   = "MEDIUM"
	RiskHigh     = "HIGH"
	RiskCritical = "CRITICAL"
)

// Blocker severities reuse the alert severity scale.
const (
	BlockerSeverityCritical = AlertSeverityCritical
	BlockerSeverityHigh     = AlertSeverityHigh
)

// Blocker categories.
const (
	BlockerCategoryChecklist = "checklist"
	BlockerCategoryQuality   = "quality"
	BlockerCategoryAlert     = "alert"
)

// Blocker is one condition standing between the session and a GO
// recommendation. Blockers are derived fresh on every assessment, never
// persisted on their own.
type Blocker struct {
	Severity string `json:"severity"`
	Category string `json:"category"`
	Message  string `json:"message"`
	// Ref identifies the underlying fact: a checklist item ID or an alert ID.
	Ref string `json:"ref,omitempty"`
}

// ReadinessAssessment is the computed value object produced by every
// readiness evaluation. It is read-only; each evaluation produces a new
// instance.
type ReadinessAssessment struct {
	SessionID      uuid.UUID `json:"session_id"`
	Score          float64   `json:"score"`
	Recommendation string    `json:"recommendation"`
	RiskLevel      string    `json:"risk_level"`
	QualityScore   float64   `json:"quality_score"`
	Blockers       []Blocker `json:"blockers"`
	Warnings       []string  `json:"warnings,omitempty"`
	AssessedAt     time.Time `json:"assessed_at"`
}

// CriticalBlockerCount returns how many blockers carry critical severity.
func (a *ReadinessAssessment) CriticalBlockerCount() int {
	n := 0
	for _, b := range a.Blockers {
		if b.Severity == BlockerSeverityCritical {
			n++
		}
	}
	return n
}

// HighBlockerCount returns how many blockers carry high severity.
func (a *ReadinessAssessment) HighBlockerCount() int {
	n := 0
	for _, b := range a.Blockers {
		if b.Severity == BlockerSeverityHigh {
			n++
		}
	}
	return n
}
