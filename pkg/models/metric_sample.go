package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/steiner385/machshop-cutover/pkg/apperrors"
)

// MetricSample is an immutable progress/quality fact pushed by the import
// engine and validation framework. A nil EntityType means the sample is
// session-wide. Samples are never mutated, only superseded by newer ones.
type MetricSample struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	EntityType *string   `json:"entity_type,omitempty"`

	TotalRecords    int64 `json:"total_records"`
	ImportedRecords int64 `json:"imported_records"`
	FailedRecords   int64 `json:"failed_records"`
	SkippedRecords  int64 `json:"skipped_records"`

	// Quality dimensions, each 0-100.
	Completeness float64 `json:"completeness"`
	Validity     float64 `json:"validity"`
	Consistency  float64 `json:"consistency"`
	Accuracy     float64 `json:"accuracy"`

	// ImportRate is records per minute at the time of sampling.
	ImportRate float64 `json:"import_rate"`

	RecordedAt time.Time `json:"recorded_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate enforces the sample invariants. A sample that fails validation is
// rejected before any state change.
func (s *MetricSample) Validate() error {
	if s.SessionID == uuid.Nil {
		return apperrors.NewValidation("session_id", "is required")
	}
	if s.RecordedAt.IsZero() {
		return apperrors.NewValidation("recorded_at", "is required")
	}
	if s.TotalRecords < 0 || s.ImportedRecords < 0 || s.FailedRecords < 0 || s.SkippedRecords < 0 {
		return apperrors.NewValidation("records", "record counts must be non-negative")
	}
	if s.ImportedRecords+s.FailedRecords+s.SkippedRecords > s.TotalRecords {
		return apperrors.NewValidation("records",
			"imported+failed+skipped (%d) exceeds total (%d)",
			s.ImportedRecords+s.FailedRecords+s.SkippedRecords, s.TotalRecords)
	}
	for name, v := range map[string]float64{
		"completeness": s.Completeness,
		"validity":     s.Validity,
		"consistency":  s.Consistency,
		"accuracy":     s.Accuracy,
	} {
		if v < 0 || v > 100 {
			return apperrors.NewValidation(name, "must be in [0,100], got %g", v)
		}
	}
	if s.ImportRate < 0 {
		return apperrors.NewValidation("import_rate", "must be non-negative, got %g", s.ImportRate)
	}
	return nil
}

// QualityScore is the unweighted mean of the four quality dimensions.
func (s *MetricSample) QualityScore() float64 {
	return (s.Completeness + s.Validity + s.Consistency + s.Accuracy) / 4
}

// EntityKey returns the entity type or the empty string for session-wide
// samples. The empty string is also how session-wide samples are keyed in
// storage so the idempotency index can cover both cases.
func (s *MetricSample) EntityKey() string {
	if s.EntityType == nil {
		return ""
	}
	return *s.EntityType
}

// MigrationAggregate is the derived view of migration progress for a session
// or a single entity type, computed on demand from the latest samples.
type MigrationAggregate struct {
	SessionID  uuid.UUID `json:"session_id"`
	EntityType *string   `json:"entity_type,omitempty"`

	TotalRecords    int64 `json:"total_records"`
	ImportedRecords int64 `json:"imported_records"`
	FailedRecords   int64 `json:"failed_records"`
	SkippedRecords  int64 `json:"skipped_records"`

	ProgressPercent float64 `json:"progress_percent"`
	QualityScore    float64 `json:"quality_score"`

	Completeness float64 `json:"completeness"`
	Validity     float64 `json:"validity"`
	Consistency  float64 `json:"consistency"`
	Accuracy     float64 `json:"accuracy"`

	ImportRate float64 `json:"import_rate"`

	// EstimatedCompletion is nil when fewer than two samples exist or the
	// mean import rate is zero.
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`

	RecordedAt time.Time `json:"recorded_at"`
}
