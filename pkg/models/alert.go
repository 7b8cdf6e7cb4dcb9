package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Alert types.
const (
	AlertTypeError     = "ERROR"
	AlertTypeWarning   = "WARNING"
	AlertTypeInfo      = "INFO"
	AlertTypeThreshold = "THRESHOLD"
)

// Threshold alert subtypes, recorded in the dedupe key and title.
const (
	ThresholdQualityDrop      = "quality_drop"
	ThresholdImportRateDrop   = "import_rate_drop"
	ThresholdErrorRate        = "error_rate"
	ThresholdProgressVelocity = "progress_velocity"
)

// Alert severities.
const (
	AlertSeverityCritical = "CRITICAL"
	AlertSeverityHigh     = "HIGH"
	AlertSeverityMedium   = "MEDIUM"
	AlertSeverityLow      = "LOW"
)

// ValidAlertSeverity reports whether s is a known severity.
func ValidAlertSeverity(s string) bool {
	switch s {
	case AlertSeverityCritical, AlertSeverityHigh, AlertSeverityMedium, AlertSeverityLow:
		return true
	}
	return false
}

// ResolutionSLA returns the target resolution window for a severity.
func ResolutionSLA(severity string) time.Duration {
	switch severity {
	case AlertSeverityCritical:
		return time.Hour
	case AlertSeverityHigh:
		return 4 * time.Hour
	case AlertSeverityMedium:
		return 24 * time.Hour
	default:
		return 72 * time.Hour
	}
}

// Alert is a mutable lifecycle record. Alerts are created by the alerting
// engine or by rollback/readiness events, mutated only via resolve/assign
// operations and never deleted, preserving the audit trail.
type Alert struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`

	AlertType string `json:"alert_type"`
	Severity  string `json:"severity"`
	Title     string `json:"title"`
	Message   string `json:"message"`

	EntityType *string `json:"entity_type,omitempty"`
	RecordID   *string `json:"record_id,omitempty"`

	// DedupeKey makes threshold alert creation idempotent per
	// (session, entity type, alert type, triggering sample timestamp).
	DedupeKey *string `json:"-"`

	Resolved   bool       `json:"resolved"`
	ResolvedBy *string    `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Resolution *string    `json:"resolution,omitempty"`

	AssignedTo *string `json:"assigned_to,omitempty"`

	CreatedAt            time.Time `json:"created_at"`
	TargetResolutionTime time.Time `json:"target_resolution_time"`
}

// ThresholdDedupeKey builds the idempotency key for a threshold alert.
func ThresholdDedupeKey(sessionID uuid.UUID, entityType, subtype string, sampleAt time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%d", sessionID, entityType, subtype, sampleAt.UnixNano())
}

// AlertFilters narrows alert listings.
type AlertFilters struct {
	Resolved *bool
	Severity string
	Limit    int
	Offset   int
}
