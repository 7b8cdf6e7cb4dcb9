package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/steiner385/machshop-cutover/pkg/apperrors"
	"github.com/steiner385/machshop-cutover/pkg/models"
	"github.com/steiner385/machshop-cutover/pkg/repositories"
)

// SnapshotService creates and manages point-in-time checkpoints of entity
// type data. Snapshot creation does not block or get blocked by ongoing
// imports: a snapshot is a best-effort consistent point, not a linearizable
// one.
type SnapshotService interface {
	// CreateSnapshot captures the current state of the given entity types.
	// An empty entityTypes slice captures all types known for the session.
	// The write is all-or-nothing: if capturing any entity type fails the
	// whole snapshot is aborted and nothing is persisted.
	CreateSnapshot(ctx context.Context, sessionID uuid.UUID, name string, entityTypes []string, description *string, actor string, expiresAt *time.Time) (*models.Snapshot, error)
	GetSnapshot(ctx context.Context, snapshotID uuid.UUID) (*models.Snapshot, error)
	ListSnapshots(ctx context.Context, sessionID uuid.UUID) ([]*models.Snapshot, error)
	// DeleteSnapshot removes a snapshot and its captures. Rejected with
	// ErrConflict while a rollback holds the snapshot's lock, or when
	// rollback records reference the snapshot.
	DeleteSnapshot(ctx context.Context, snapshotID uuid.UUID) error
}

// SnapshotEngineConfig bounds snapshot storage operations.
type SnapshotEngineConfig struct {
	// StorageTimeout bounds each storage read/write; on expiry the
	// operation fails with a retryable StorageError.
	StorageTimeout time.Duration
	// CaptureConcurrency bounds parallel entity-type reads during capture.
	CaptureConcurrency int
}

// capturedRecord is the serialized form of one migration record inside a
// snapshot capture payload.
type capturedRecord struct {
	RecordID string          `json:"record_id"`
	Body     json.RawMessage `json:"body"`
}

type snapshotService struct {
	snapshots repositories.SnapshotRepository
	rollbacks repositories.RollbackRepository
	records   repositories.MigrationRecordStore
	locker    SnapshotLocker
	cfg       SnapshotEngineConfig
	logger    *zap.Logger
}

func NewSnapshotService(
	snapshots repositories.SnapshotRepository,
	rollbacks repositories.RollbackRepository,
	records repositories.MigrationRecordStore,
	locker SnapshotLocker,
	cfg SnapshotEngineConfig,
	logger *zap.Logger,
) SnapshotService {
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = 30 * time.Second
	}
	if cfg.CaptureConcurrency < 1 {
		cfg.CaptureConcurrency = 4
	}
	return &snapshotService{
		snapshots: snapshots,
		rollbacks: rollbacks,
		records:   records,
		locker:    locker,
		cfg:       cfg,
		logger:    logger.Named("snapshot-service"),
	}
}

var _ SnapshotService = (*snapshotService)(nil)

func (s *snapshotService) CreateSnapshot(ctx context.Context, sessionID uuid.UUID, name string, entityTypes []string, description *string, actor string, expiresAt *time.Time) (*models.Snapshot, error) {
	if name == "" {
		return nil, apperrors.NewValidation("name", "is required")
	}
	if actor == "" {
		return nil, apperrors.NewValidation("created_by", "is required")
	}

	known, err := s.records.DistinctEntityTypes(ctx, sessionID)
	if err != nil {
		return nil, apperrors.NewStorage("list entity types", err)
	}

	if len(entityTypes) == 0 {
		entityTypes = known
	} else {
		knownSet := make(map[string]bool, len(known))
		for _, et := range known {
			knownSet[et] = true
		}
		for _, et := range entityTypes {
			if !knownSet[et] {
				return nil, apperrors.NewValidation("entity_types", "unknown entity type %q for session", et)
			}
		}
	}
	if len(entityTypes) == 0 {
		return nil, apperrors.NewValidation("entity_types", "session has no entity types to snapshot")
	}

	snapshotID := uuid.New()
	captures := make([]*models.SnapshotCapture, len(entityTypes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.CaptureConcurrency)
	for i, entityType := range entityTypes {
		g.Go(func() error {
			capture, err := s.captureEntityType(gctx, sessionID, snapshotID, entityType)
			if err != nil {
				return err
			}
			captures[i] = capture
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("Snapshot capture aborted",
			zap.String("session_id", sessionID.String()),
			zap.String("name", name),
			zap.Error(err))
		return nil, err
	}

	snapshot := &models.Snapshot{
		ID:            snapshotID,
		SessionID:     sessionID,
		Name:          name,
		Description:   description,
		EntityTypes:   entityTypes,
		RecordCounts:  make(map[string]int64, len(captures)),
		StoragePath:   fmt.Sprintf("captures/%s/%s", sessionID, snapshotID),
		StorageFormat: models.StorageFormatJSONB,
		CreatedBy:     actor,
		ExpiresAt:     expiresAt,
	}
	for _, capture := range captures {
		snapshot.RecordCounts[capture.EntityType] = capture.RecordCount
		snapshot.SizeBytes += capture.SizeBytes
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()
	if err := s.snapshots.CreateWithCaptures(writeCtx, snapshot, captures); err != nil {
		return nil, apperrors.NewStorage("persist snapshot", err)
	}

	s.logger.Info("Snapshot created",
		zap.String("session_id", sessionID.String()),
		zap.String("snapshot_id", snapshot.ID.String()),
		zap.String("name", name),
		zap.Strings("entity_types", entityTypes),
		zap.Int64("size_bytes", snapshot.SizeBytes))
	return snapshot, nil
}

func (s *snapshotService) captureEntityType(ctx context.Context, sessionID, snapshotID uuid.UUID, entityType string) (*models.SnapshotCapture, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	records, err := s.records.FetchAll(readCtx, sessionID, entityType)
	if err != nil {
		return nil, apperrors.NewStorage("capture "+entityType, err)
	}

	serialized := make([]capturedRecord, len(records))
	for i, rec := range records {
		serialized[i] = capturedRecord{RecordID: rec.RecordID, Body: rec.Body}
	}
	payload, err := json.Marshal(serialized)
	if err != nil {
		return nil, apperrors.NewStorage("serialize "+entityType, err)
	}

	return &models.SnapshotCapture{
		SnapshotID:  snapshotID,
		EntityType:  entityType,
		RecordCount: int64(len(records)),
		SizeBytes:   int64(len(payload)),
		Payload:     payload,
	}, nil
}

func (s *snapshotService) GetSnapshot(ctx context.Context, snapshotID uuid.UUID) (*models.Snapshot, error) {
	return s.snapshots.Get(ctx, snapshotID)
}

func (s *snapshotService) ListSnapshots(ctx context.Context, sessionID uuid.UUID) ([]*models.Snapshot, error) {
	return s.snapshots.List(ctx, sessionID)
}

func (s *snapshotService) DeleteSnapshot(ctx context.Context, snapshotID uuid.UUID) error {
	// Taking the rollback lock prevents deleting a snapshot out from under
	// an executing rollback.
	acquired, err := s.locker.TryLock(ctx, snapshotID)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("snapshot %s has a rollback in progress: %w", snapshotID, apperrors.ErrConflict)
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), snapshotID); err != nil {
			s.logger.Warn("Failed to release snapshot lock after delete",
				zap.String("snapshot_id", snapshotID.String()),
				zap.Error(err))
		}
	}()

	// Rollback records reference their snapshot and form the audit trail;
	// a snapshot that has been rolled back from cannot be removed.
	history, err := s.rollbacks.ListBySnapshot(ctx, snapshotID)
	if err != nil {
		return apperrors.NewStorage("list rollback history", err)
	}
	if len(history) > 0 {
		return fmt.Errorf("snapshot %s has %d rollback record(s): %w", snapshotID, len(history), apperrors.ErrConflict)
	}

	if err := s.snapshots.Delete(ctx, snapshotID); err != nil {
		return err
	}
	s.logger.Info("Snapshot deleted", zap.String("snapshot_id", snapshotID.String()))
	return nil
}
