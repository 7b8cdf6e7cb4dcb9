package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steiner385/machshop-cutover/pkg/apperrors"
	"github.com/steiner385/machshop-cutover/pkg/models"
	"github.com/steiner385/machshop-cutover/pkg/repositories"
)

// RollbackService executes and verifies restores against snapshots.
//
// Each entity type restores as an independently committed unit: one bad
// entity type records its error and does not block recovery of the rest.
// The aggregate outcome is the RollbackRecord, never an exception.
type RollbackService interface {
	// ExecuteRollback restores the given entity types from a snapshot.
	// entityTypes defaults to the snapshot's full set and must be a subset
	// of it. At most one rollback may execute against a snapshot at a time;
	// a concurrent attempt fails immediately with ErrConflict.
	//
	// After a partial failure, retry with only the entity types listed in
	// the record's Errors; re-running the full set re-restores entity types
	// that already succeeded.
	ExecuteRollback(ctx context.Context, snapshotID uuid.UUID, entityTypes []string, opts models.RollbackOptions, actor string) (*models.RollbackRecord, error)
	// VerifyRollback recounts each restored entity type against the
	// snapshot's captured counts. Observe-only: mismatches are reported,
	// never repaired.
	VerifyRollback(ctx context.Context, snapshotID, rollbackRecordID uuid.UUID) (*models.VerificationResult, error)
	GetRollback(ctx context.Context, rollbackRecordID uuid.UUID) (*models.RollbackRecord, error)
	ListRollbacks(ctx context.Context, snapshotID uuid.UUID) ([]*models.RollbackRecord, error)
}

type rollbackService struct {
	snapshots      repositories.SnapshotRepository
	rollbacks      repositories.RollbackRepository
	records        repositories.MigrationRecordStore
	snapshotSvc    SnapshotService
	alerts         AlertService
	locker         SnapshotLocker
	storageTimeout time.Duration
	logger         *zap.Logger
}

func NewRollbackService(
	snapshots repositories.SnapshotRepository,
	rollbacks repositories.RollbackRepository,
	records repositories.MigrationRecordStore,
	snapshotSvc SnapshotService,
	alerts AlertService,
	locker SnapshotLocker,
	storageTimeout time.Duration,
	logger *zap.Logger,
) RollbackService {
	if storageTimeout <= 0 {
		storageTimeout = 30 * time.Second
	}
	return &rollbackService{
		snapshots:      snapshots,
		rollbacks:      rollbacks,
		records:        records,
		snapshotSvc:    snapshotSvc,
		alerts:         alerts,
		locker:         locker,
		storageTimeout: storageTimeout,
		logger:         logger.Named("rollback-service"),
	}
}

var _ RollbackService = (*rollbackService)(nil)

func (s *rollbackService) ExecuteRollback(ctx context.Context, snapshotID uuid.UUID, entityTypes []string, opts models.RollbackOptions, actor string) (*models.RollbackRecord, error) {
	if actor == "" {
		return nil, apperrors.NewValidation("executed_by", "is required")
	}

	snapshot, err := s.snapshots.Get(ctx, snapshotID)
	if err != nil {
		return nil, err
	}

	if len(entityTypes) == 0 {
		entityTypes = snapshot.EntityTypes
	}
	// Fail fast before touching any data.
	for _, et := range entityTypes {
		if !snapshot.ContainsEntityType(et) {
			return nil, apperrors.NewValidation("entity_types",
				"entity type %q is not part of snapshot %s", et, snapshotID)
		}
	}

	acquired, err := s.locker.TryLock(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("rollback already executing for snapshot %s: %w", snapshotID, apperrors.ErrConflict)
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), snapshotID); err != nil {
			s.logger.Warn("Failed to release rollback lock",
				zap.String("snapshot_id", snapshotID.String()),
				zap.Error(err))
		}
	}()

	record := &models.RollbackRecord{
		ID:          uuid.New(),
		SnapshotID:  snapshotID,
		SessionID:   snapshot.SessionID,
		EntityTypes: entityTypes,
		Errors:      make(map[string]string),
		ExecutedBy:  actor,
	}

	if opts.CreateBackup {
		backup, err := s.snapshotSvc.CreateSnapshot(ctx, snapshot.SessionID,
			fmt.Sprintf("pre-rollback-%s", time.Now().UTC().Format("20060102T150405Z")),
			entityTypes, nil, actor, nil)
		if err != nil {
			// Without the backup the rollback would not be reversible, so
			// nothing has been mutated yet and we stop here.
			return nil, fmt.Errorf("failed to create pre-rollback backup: %w", err)
		}
		record.BackupSnapshotID = &backup.ID
	}

	start := time.Now()
	for _, entityType := range entityTypes {
		deleted, restored, err := s.restoreEntityType(ctx, snapshot, entityType)
		if err != nil {
			record.Errors[entityType] = err.Error()
			s.logger.Error("Entity type restore failed",
				zap.String("snapshot_id", snapshotID.String()),
				zap.String("entity_type", entityType),
				zap.Error(err))
			continue
		}
		record.RecordsDeleted += deleted
		record.RecordsRestored += restored
	}
	record.Duration = time.Since(start)
	record.Success = len(record.Errors) == 0
	if record.Success {
		record.Errors = nil
	}

	if err := s.rollbacks.Insert(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("Rollback executed",
		zap.String("snapshot_id", snapshotID.String()),
		zap.String("rollback_id", record.ID.String()),
		zap.Bool("success", record.Success),
		zap.Int64("records_restored", record.RecordsRestored),
		zap.Int64("records_deleted", record.RecordsDeleted),
		zap.Duration("duration", record.Duration))

	if !record.Success {
		s.raiseFailureAlert(ctx, snapshot, record)
	}

	if opts.VerifyAfter {
		if _, err := s.VerifyRollback(ctx, snapshotID, record.ID); err != nil {
			s.logger.Error("Post-rollback verification failed",
				zap.String("rollback_id", record.ID.String()),
				zap.Error(err))
		} else if refreshed, err := s.rollbacks.Get(ctx, record.ID); err == nil {
			record = refreshed
		}
	}

	return record, nil
}

func (s *rollbackService) restoreEntityType(ctx context.Context, snapshot *models.Snapshot, entityType string) (int64, int64, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	capture, err := s.snapshots.GetCapture(opCtx, snapshot.ID, entityType)
	if err != nil {
		return 0, 0, apperrors.NewStorage("load capture "+entityType, err)
	}

	var serialized []capturedRecord
	if err := json.Unmarshal(capture.Payload, &serialized); err != nil {
		return 0, 0, apperrors.NewStorage("decode capture "+entityType, err)
	}

	records := make([]*models.MigrationRecord, len(serialized))
	for i, rec := range serialized {
		records[i] = &models.MigrationRecord{
			SessionID:  snapshot.SessionID,
			EntityType: entityType,
			RecordID:   rec.RecordID,
			Body:       rec.Body,
		}
	}

	deleted, restored, err := s.records.ReplaceAll(opCtx, snapshot.SessionID, entityType, records)
	if err != nil {
		return 0, 0, apperrors.NewStorage("restore "+entityType, err)
	}
	return deleted, restored, nil
}

func (s *rollbackService) raiseFailureAlert(ctx context.Context, snapshot *models.Snapshot, record *models.RollbackRecord) {
	severity := models.AlertSeverityHigh
	if record.RecordsRestored == 0 {
		severity = models.AlertSeverityCritical
	}

	failed := make([]string, 0, len(record.Errors))
	for et := range record.Errors {
		failed = append(failed, et)
	}

	alert := &models.Alert{
		SessionID: snapshot.SessionID,
		AlertType: models.AlertTypeError,
		Severity:  severity,
		Title:     fmt.Sprintf("Rollback of snapshot %q partially failed", snapshot.Name),
		Message: fmt.Sprintf("rollback %s failed for %d of %d entity types; retry only the failed types: %v",
			record.ID, len(record.Errors), len(record.EntityTypes), failed),
	}
	if err := s.alerts.CreateAlert(ctx, alert); err != nil {
		s.logger.Error("Failed to raise rollback failure alert",
			zap.String("rollback_id", record.ID.String()),
			zap.Error(err))
	}
}

func (s *rollbackService) VerifyRollback(ctx context.Context, snapshotID, rollbackRecordID uuid.UUID) (*models.VerificationResult, error) {
	snapshot, err := s.snapshots.Get(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	record, err := s.rollbacks.Get(ctx, rollbackRecordID)
	if err != nil {
		return nil, err
	}
	if record.SnapshotID != snapshotID {
		return nil, apperrors.NewValidation("rollback_record_id",
			"record %s does not belong to snapshot %s", rollbackRecordID, snapshotID)
	}

	result := &models.VerificationResult{
		RollbackRecordID: rollbackRecordID,
		SnapshotID:       snapshotID,
		VerifiedAt:       time.Now(),
	}

	for _, entityType := range record.EntityTypes {
		expected := snapshot.RecordCounts[entityType]
		actual, err := s.records.Count(ctx, snapshot.SessionID, entityType)
		if err != nil {
			return nil, apperrors.NewStorage("count "+entityType, err)
		}
		if actual != expected {
			result.Issues = append(result.Issues, models.IntegrityIssue{
				EntityType:    entityType,
				ExpectedCount: expected,
				ActualCount:   actual,
			})
		}
	}
	result.Clean = len(result.Issues) == 0

	if err := s.rollbacks.MarkVerified(ctx, rollbackRecordID, result.Clean, result.VerifiedAt); err != nil {
		return nil, err
	}

	s.logger.Info("Rollback verified",
		zap.String("rollback_id", rollbackRecordID.String()),
		zap.Bool("clean", result.Clean),
		zap.Int("issues", len(result.Issues)))
	return result, nil
}

func (s *rollbackService) GetRollback(ctx context.Context, rollbackRecordID uuid.UUID) (*models.RollbackRecord, error) {
	return s.rollbacks.Get(ctx, rollbackRecordID)
}

func (s *rollbackService) ListRollbacks(ctx context.Context, snapshotID uuid.UUID) ([]*models.RollbackRecord, error) {
	return s.rollbacks.ListBySnapshot(ctx, snapshotID)
}
