package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/steiner385/machshop-cutover/pkg/apperrors"
	"github.com/steiner385/machshop-cutover/pkg/models"
)

// mockSnapshotService implements services.SnapshotService for handler
// testing.
type mockSnapshotService struct {
	snapshots []*models.Snapshot

	createErr error
	getErr    error
	listErr   error
	deleteErr error

	lastEntityTypes []string
	lastExpiresAt   *time.Time
	deletedID       uuid.UUID
}

func (m *mockSnapshotService) CreateSnapshot(_ context.Context, sessionID uuid.UUID, name string, entityTypes []string, description *string, actor string, expiresAt *time.Time) (*models.Snapshot, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.lastEntityTypes = entityTypes
	m.lastExpiresAt = expiresAt
	snapshot := &models.Snapshot{
		ID:            uuid.New(),
		SessionID:     sessionID,
		Name:          name,
		Description:   description,
		EntityTypes:   entityTypes,
		RecordCounts:  map[string]int64{},
		StorageFormat: models.StorageFormatJSONB,
		CreatedAt:     time.Now().UTC(),
		CreatedBy:     actor,
		ExpiresAt:     expiresAt,
	}
	m.snapshots = append(m.snapshots, snapshot)
	return snapshot, nil
}

func (m *mockSnapshotService) GetSnapshot(_ context.Context, snapshotID uuid.UUID) (*models.Snapshot, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, s := range m.snapshots {
		if s.ID == snapshotID {
			return s, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockSnapshotService) ListSnapshots(_ context.Context, sessionID uuid.UUID) ([]*models.Snapshot, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.Snapshot
	for _, s := range m.snapshots {
		if s.SessionID == sessionID {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *mockSnapshotService) DeleteSnapshot(_ context.Context, snapshotID uuid.UUID) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deletedID = snapshotID
	return nil
}

// mockRollbackService implements services.RollbackService.
type mockRollbackService struct {
	record       *models.RollbackRecord
	verification *models.VerificationResult
	records      []*models.RollbackRecord

	executeErr error
	verifyErr  error
	listErr    error

	lastEntityTypes []string
	lastOpts        models.RollbackOptions
	lastActor       string
}

func (m *mockRollbackService) ExecuteRollback(_ context.Context, snapshotID uuid.UUID, entityTypes []string, opts models.RollbackOptions, actor string) (*models.RollbackRecord, error) {
	if m.executeErr != nil {
		return nil, m.executeErr
	}
	m.lastEntityTypes = entityTypes
	m.lastOpts = opts
	m.lastActor = actor
	if m.record != nil {
		return m.record, nil
	}
	return &models.RollbackRecord{
		ID:          uuid.New(),
		SnapshotID:  snapshotID,
		EntityTypes: entityTypes,
		Success:     true,
		ExecutedAt:  time.Now().UTC(),
		ExecutedBy:  actor,
	}, nil
}

func (m *mockRollbackService) VerifyRollback(_ context.Context, _, _ uuid.UUID) (*models.VerificationResult, error) {
	if m.verifyErr != nil {
		return nil, m.verifyErr
	}
	return m.verification, nil
}

func (m *mockRollbackService) GetRollback(_ context.Context, rollbackRecordID uuid.UUID) (*models.RollbackRecord, error) {
	for _, r := range m.records {
		if r.ID == rollbackRecordID {
			return r, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockRollbackService) ListRollbacks(_ context.Context, snapshotID uuid.UUID) ([]*models.RollbackRecord, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.RollbackRecord
	for _, r := range m.records {
		if r.SnapshotID == snapshotID {
			result = append(result, r)
		}
	}
	return result, nil
}

func newSnapshotHandlerFixture() (*SnapshotHandler, *mockSnapshotService, *mockRollbackService) {
	snapshots := &mockSnapshotService{}
	rollbacks := &mockRollbackService{}
	return NewSnapshotHandler(snapshots, rollbacks, zap.NewNop()), snapshots, rollbacks
}

func makeSnapshotRequest(method, path string, body []byte, snapshotID uuid.UUID) *http.Request {
	return makeAlertRequest(method, path, body, "snapid", snapshotID.String())
}

func TestSnapshotHandler_CreateSnapshot_Created(t *testing.T) {
	sessionID := uuid.New()
	handler, snapshots, _ := newSnapshotHandlerFixture()

	body := []byte(`{"name":"pre-cutover","description":"before final sync","entity_types":["work_orders","materials"]}`)
	req := makeAlertRequest("POST", fmt.Sprintf("/api/sessions/%s/snapshots", sessionID), body, "sid", sessionID.String())
	req = withActor(req, "coordinator@machshop.example")
	rr := httptest.NewRecorder()

	handler.CreateSnapshot(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, []string{"work_orders", "materials"}, snapshots.lastEntityTypes)
	assert.Nil(t, snapshots.lastExpiresAt)

	var resp ApiResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, "pre-cutover", data["name"])
	assert.Equal(t, "coordinator@machshop.example", data["created_by"])
}

func TestSnapshotHandler_CreateSnapshot_ParsesExpiry(t *testing.T) {
	sessionID := uuid.New()
	handler, snapshots, _ := newSnapshotHandlerFixture()
	expiry := time.Now().Add(7 * 24 * time.Hour).UTC().Truncate(time.Second)

	body := []byte(fmt.Sprintf(`{"name":"pre-cutover","expires_at":%q}`, expiry.Format(time.RFC3339)))
	req := makeAlertRequest("POST", fmt.Sprintf("/api/sessions/%s/snapshots", sessionID), body, "sid", sessionID.String())
	req = withActor(req, "coordinator@machshop.example")
	rr := httptest.NewRecorder()

	handler.CreateSnapshot(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	require.NotNil(t, snapshots.lastExpiresAt)
	assert.True(t, snapshots.lastExpiresAt.Equal(expiry))
}

func TestSnapshotHandler_CreateSnapshot_BadExpiry(t *testing.T) {
	sessionID := uuid.New()
	handler, _, _ := newSnapshotHandlerFixture()

	body := []byte(`{"name":"pre-cutover","expires_at":"next week"}`)
	req := makeAlertRequest("POST", fmt.Sprintf("/api/sessions/%s/snapshots", sessionID), body, "sid", sessionID.String())
	req = withActor(req, "coordinator@machshop.example")
	rr := httptest.NewRecorder()

	handler.CreateSnapshot(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var errResp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errResp))
	assert.Equal(t, "invalid_expires_at", errResp["error"])
}

func TestSnapshotHandler_CreateSnapshot_NoIdentityIs401(t *testing.T) {
	sessionID := uuid.New()
	handler, snapshots, _ := newSnapshotHandlerFixture()

	body := []byte(`{"name":"pre-cutover"}`)
	req := makeAlertRequest("POST", fmt.Sprintf("/api/sessions/%s/snapshots", sessionID), body, "sid", sessionID.String())
	rr := httptest.NewRecorder()

	handler.CreateSnapshot(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, snapshots.snapshots)
}

func TestSnapshotHandler_CreateSnapshot_UnknownEntityTypeIs400(t *testing.T) {
	sessionID := uuid.New()
	handler, snapshots, _ := newSnapshotHandlerFixture()
	snapshots.createErr = apperrors.NewValidation("entity_types", "entity type %q has no migrated records", "widgets")

	body := []byte(`{"name":"pre-cutover","entity_types":["widgets"]}`)
	req := makeAlertRequest("POST", fmt.Sprintf("/api/sessions/%s/snapshots", sessionID), body, "sid", sessionID.String())
	req = withActor(req, "coordinator@machshop.example")
	rr := httptest.NewRecorder()

	handler.CreateSnapshot(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSnapshotHandler_ListSnapshots_EmptyIsArrayNotNull(t *testing.T) {
	sessionID := uuid.New()
	handler, _, _ := newSnapshotHandlerFixture()

	req := makeAlertRequest("GET", fmt.Sprintf("/api/sessions/%s/snapshots", sessionID), nil, "sid", sessionID.String())
	rr := httptest.NewRecorder()

	handler.ListSnapshots(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp ApiResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, []any{}, resp.Data)
}

func TestSnapshotHandler_GetSnapshot_NotFound(t *testing.T) {
	handler, _, _ := newSnapshotHandlerFixture()
	snapshotID := uuid.New()

	req := makeSnapshotRequest("GET", fmt.Sprintf("/api/snapshots/%s", snapshotID), nil, snapshotID)
	rr := httptest.NewRecorder()

	handler.GetSnapshot(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSnapshotHandler_GetSnapshot_InvalidID(t *testing.T) {
	handler, _, _ := newSnapshotHandlerFixture()

	req := makeAlertRequest("GET", "/api/snapshots/nope", nil, "snapid", "nope")
	rr := httptest.NewRecorder()

	handler.GetSnapshot(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var errResp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errResp))
	assert.Equal(t, "invalid_snapshot_id", errResp["error"])
}

func TestSnapshotHandler_DeleteSnapshot_Success(t *testing.T) {
	handler, snapshots, _ := newSnapshotHandlerFixture()
	snapshotID := uuid.New()

	req := makeSnapshotRequest("DELETE", fmt.Sprintf("/api/snapshots/%s", snapshotID), nil, snapshotID)
	rr := httptest.NewRecorder()

	handler.DeleteSnapshot(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, snapshotID, snapshots.deletedID)
}

func TestSnapshotHandler_DeleteSnapshot_LockedIs409(t *testing.T) {
	handler, snapshots, _ := newSnapshotHandlerFixture()
	snapshots.deleteErr = apperrors.ErrConflict
	snapshotID := uuid.New()

	req := makeSnapshotRequest("DELETE", fmt.Sprintf("/api/snapshots/%s", snapshotID), nil, snapshotID)
	rr := httptest.NewRecorder()

	handler.DeleteSnapshot(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestSnapshotHandler_ExecuteRollback_Success(t *testing.T) {
	handler, _, rollbacks := newSnapshotHandlerFixture()
	snapshotID := uuid.New()

	body := []byte(`{"entity_types":["work_orders"],"verify_after":true,"create_backup":true}`)
	req := makeSnapshotRequest("POST", fmt.Sprintf("/api/snapshots/%s/rollback", snapshotID), body, snapshotID)
	req = withActor(req, "coordinator@machshop.example")
	rr := httptest.NewRecorder()

	handler.ExecuteRollback(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"work_orders"}, rollbacks.lastEntityTypes)
	assert.Equal(t, models.RollbackOptions{VerifyAfter: true, CreateBackup: true}, rollbacks.lastOpts)
	assert.Equal(t, "coordinator@machshop.example", rollbacks.lastActor)

	var resp ApiResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["success"])
}

func TestSnapshotHandler_ExecuteRollback_PartialFailureIs200(t *testing.T) {
	handler, _, rollbacks := newSnapshotHandlerFixture()
	snapshotID := uuid.New()
	rollbacks.record = &models.RollbackRecord{
		ID:              uuid.New(),
		SnapshotID:      snapshotID,
		EntityTypes:     []string{"work_orders", "materials"},
		Success:         false,
		RecordsRestored: 2,
		Errors:          map[string]string{"materials": "replace failed: connection reset"},
		ExecutedAt:      time.Now().UTC(),
		ExecutedBy:      "coordinator@machshop.example",
	}

	req := makeSnapshotRequest("POST", fmt.Sprintf("/api/snapshots/%s/rollback", snapshotID), nil, snapshotID)
	req = withActor(req, "coordinator@machshop.example")
	rr := httptest.NewRecorder()

	handler.ExecuteRollback(rr, req)

	// Per-entity-type outcomes land in the record; partial failure is not
	// an HTTP error.
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp ApiResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, false, data["success"])
	errs := data["errors"].(map[string]any)
	assert.Contains(t, errs, "materials")
	assert.NotContains(t, errs, "work_orders")
}

func TestSnapshotHandler_ExecuteRollback_ConcurrentIs409(t *testing.T) {
	handler, _, rollbacks := newSnapshotHandlerFixture()
	rollbacks.executeErr = apperrors.ErrConflict
	snapshotID := uuid.New()

	req := makeSnapshotRequest("POST", fmt.Sprintf("/api/snapshots/%s/rollback", snapshotID), nil, snapshotID)
	req = withActor(req, "coordinator@machshop.example")
	rr := httptest.NewRecorder()

	handler.ExecuteRollback(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestSnapshotHandler_ExecuteRollback_NoIdentityIs401(t *testing.T) {
	handler, _, rollbacks := newSnapshotHandlerFixture()
	snapshotID := uuid.New()

	req := makeSnapshotRequest("POST", fmt.Sprintf("/api/snapshots/%s/rollback", snapshotID), nil, snapshotID)
	rr := httptest.NewRecorder()

	handler.ExecuteRollback(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, rollbacks.lastActor)
}

func TestSnapshotHandler_ListRollbacks(t *testing.T) {
	handler, _, rollbacks := newSnapshotHandlerFixture()
	snapshotID := uuid.New()
	rollbacks.records = []*models.RollbackRecord{
		{ID: uuid.New(), SnapshotID: snapshotID, Success: true},
		{ID: uuid.New(), SnapshotID: snapshotID, Success: false},
		{ID: uuid.New(), SnapshotID: uuid.New(), Success: true},
	}

	req := makeSnapshotRequest("GET", fmt.Sprintf("/api/snapshots/%s/rollbacks", snapshotID), nil, snapshotID)
	rr := httptest.NewRecorder()

	handler.ListRollbacks(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp ApiResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Len(t, resp.Data.([]any), 2)
}

func TestSnapshotHandler_VerifyRollback_ReportsIssues(t *testing.T) {
	handler, _, rollbacks := newSnapshotHandlerFixture()
	snapshotID := uuid.New()
	rollbackID := uuid.New()
	rollbacks.verification = &models.VerificationResult{
		RollbackRecordID: rollbackID,
		SnapshotID:       snapshotID,
		Clean:            false,
		Issues: []models.IntegrityIssue{
			{EntityType: "materials", ExpectedCount: 10, ActualCount: 12},
		},
		VerifiedAt: time.Now().UTC(),
	}

	req := makeSnapshotRequest("POST", fmt.Sprintf("/api/snapshots/%s/rollbacks/%s/verify", snapshotID, rollbackID), nil, snapshotID)
	req.SetPathValue("rbid", rollbackID.String())
	rr := httptest.NewRecorder()

	handler.VerifyRollback(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp ApiResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, false, data["clean"])
	assert.Len(t, data["issues"].([]any), 1)
}

func TestSnapshotHandler_VerifyRollback_InvalidRollbackID(t *testing.T) {
	handler, _, _ := newSnapshotHandlerFixture()
	snapshotID := uuid.New()

	req := makeSnapshotRequest("POST", fmt.Sprintf("/api/snapshots/%s/rollbacks/junk/verify", snapshotID), nil, snapshotID)
	req.SetPathValue("rbid", "junk")
	rr := httptest.NewRecorder()

	handler.VerifyRollback(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var errResp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errResp))
	assert.Equal(t, "invalid_rollback_id", errResp["error"])
}
