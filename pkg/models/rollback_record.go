package models

import (
	"time"

	"github.com/google/uuid"
)

// RollbackOptions controls the behavior of one rollback execution.
type RollbackOptions struct {
	// VerifyAfter runs post-restore verification as part of the execution.
	VerifyAfter bool `json:"verify_after"`
	// CreateBackup snapshots the pre-rollback state before mutating
	// anything, making the rollback itself reversible.
	CreateBackup bool `json:"create_backup"`
}

// RollbackRecord documents one execution attempt against exactly one
// snapshot. Append-only: a retry after partial failure creates a new record
// rather than mutating the failed one.
type RollbackRecord struct {
	ID         uuid.UUID `json:"id"`
	SnapshotID uuid.UUID `json:"snapshot_id"`
	SessionID  uuid.UUID `json:"session_id"`

	EntityTypes []string `json:"entity_types"`

	// Success is true only if every requested entity type restored cleanly.
	Success         bool  `json:"success"`
	RecordsRestored int64 `json:"records_restored"`
	RecordsDeleted  int64 `json:"records_deleted"`

	Duration time.Duration `json:"duration"`

	// Errors maps each failed entity type to its failure detail. Entity
	// types that restored cleanly never appear here.
	Errors map[string]string `json:"errors,omitempty"`

	// BackupSnapshotID references the pre-rollback backup when one was taken.
	BackupSnapshotID *uuid.UUID `json:"backup_snapshot_id,omitempty"`

	ExecutedAt time.Time `json:"executed_at"`
	ExecutedBy string    `json:"executed_by"`

	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// IntegrityIssue is one count mismatch found by post-rollback verification.
// Verification observes and reports; it never repairs.
type IntegrityIssue struct {
	EntityType    string `json:"entity_type"`
	ExpectedCount int64  `json:"expected_count"`
	ActualCount   int64  `json:"actual_count"`
}

// VerificationResult is the outcome of verifying one rollback record.
type VerificationResult struct {
	RollbackRecordID uuid.UUID        `json:"rollback_record_id"`
	SnapshotID       uuid.UUID        `json:"snapshot_id"`
	Clean            bool             `json:"clean"`
	Issues           []IntegrityIssue `json:"issues,omitempty"`
	VerifiedAt       time.Time        `json:"verified_at"`
}
