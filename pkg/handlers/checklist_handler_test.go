package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/steiner385/machshop-cutover/pkg/apperrors"
	"github.com/steiner385/machshop-cutover/pkg/models"
)

func newChecklistHandlerFixture() (*ChecklistHandler, *mockReadinessService) {
	readiness := &mockReadinessService{}
	return NewChecklistHandler(readiness, zap.NewNop()), readiness
}

func makeChecklistItemRequest(sessionID uuid.UUID, itemID, action string, body []byte) *http.Request {
	path := fmt.Sprintf("/api/sessions/%s/checklist/items/%s/%s", sessionID, itemID, action)
	req := makeAlertRequest("POST", path, body, "sid", sessionID.String())
	req.SetPathValue("item_id", itemID)
	return req
}

func TestChecklistHandler_ListItems(t *testing.T) {
	sessionID := uuid.New()
	handler, readiness := newChecklistHandlerFixture()
	readiness.items = []*models.ChecklistItem{
		{ID: uuid.New(), SessionID: sessionID, ItemID: "DQ001", Category: models.ChecklistCategoryDataQuality, Requirement: "Quality score at or above 85", Required: true, Status: models.ChecklistStatusPass},
		{ID: uuid.New(), SessionID: sessionID, ItemID: "TST001", Category: models.ChecklistCategoryTesting, Requirement: "End-to-end shop floor test passed", Required: true, Status: models.ChecklistStatusNotTested},
	}

	req := makeAlertRequest("GET", fmt.Sprintf("/api/sessions/%s/checklist", sessionID), nil, "sid", sessionID.String())
	rr := httptest.NewRecorder()

	handler.ListItems(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp ApiResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	items := resp.Data.([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "DQ001", items[0].(map[string]any)["item_id"])
}

func TestChecklistHandler_ListItems_EmptyIsArrayNotNull(t *testing.T) {
	sessionID := uuid.New()
	handler, _ := newChecklistHandlerFixture()

	req := makeAlertRequest("GET", fmt.Sprintf("/api/sessions/%s/checklist", sessionID), nil, "sid", sessionID.String())
	rr := httptest.NewRecorder()

	handler.ListItems(rr, req)

	var resp ApiResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, []any{}, resp.Data)
}

func TestChecklistHandler_Seed_Created(t *testing.T) {
	sessionID := uuid.New()
	handler, readiness := newChecklistHandlerFixture()

	req := makeAlertRequest("POST", fmt.Sprintf("/api/sessions/%s/checklist/seed", sessionID), nil, "sid", sessionID.String())
	rr := httptest.NewRecorder()

	handler.Seed(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.True(t, readiness.seeded)
}

func TestChecklistHandler_Seed_AlreadySeededIs409(t *testing.T) {
	sessionID := uuid.New()
	handler, readiness := newChecklistHandlerFixture()
	readiness.seedErr = apperrors.ErrConflict

	req := makeAlertRequest("POST", fmt.Sprintf("/api/sessions/%s/checklist/seed", sessionID), nil, "sid", sessionID.String())
	rr := httptest.NewRecorder()

	handler.Seed(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestChecklistHandler_Reset(t *testing.T) {
	sessionID := uuid.New()
	handler, readiness := newChecklistHandlerFixture()

	req := makeAlertRequest("POST", fmt.Sprintf("/api/sessions/%s/checklist/reset", sessionID), nil, "sid", sessionID.String())
	rr := httptest.NewRecorder()

	handler.Reset(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, readiness.reset)
}

func TestChecklistHandler_CompleteItem_WithNotes(t *testing.T) {
	sessionID := uuid.New()
	handler, readiness := newChecklistHandlerFixture()

	body := []byte(`{"notes":"verified against the legacy export"}`)
	req := makeChecklistItemRequest(sessionID, "DQ001", "complete", body)
	req = withActor(req, "qa@machshop.example")
	rr := httptest.NewRecorder()

	handler.CompleteItem(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"DQ001"}, readiness.completed)
	assert.Equal(t, "qa@machshop.example", readiness.lastActor)
	require.NotNil(t, readiness.lastNotes)
	assert.Equal(t, "verified against the legacy export", *readiness.lastNotes)
}

func TestChecklistHandler_CompleteItem_EmptyBodyAllowed(t *testing.T) {
	sessionID := uuid.New()
	handler, readiness := newChecklistHandlerFixture()

	req := makeChecklistItemRequest(sessionID, "SYS002", "complete", nil)
	req = withActor(req, "qa@machshop.example")
	rr := httptest.NewRecorder()

	handler.CompleteItem(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"SYS002"}, readiness.completed)
	assert.Nil(t, readiness.lastNotes)
}

func TestChecklistHandler_FailItem(t *testing.T) {
	sessionID := uuid.New()
	handler, readiness := newChecklistHandlerFixture()

	body := []byte(`{"notes":"routing steps missing on 14 work orders"}`)
	req := makeChecklistItemRequest(sessionID, "TST001", "fail", body)
	req = withActor(req, "qa@machshop.example")
	rr := httptest.NewRecorder()

	handler.FailItem(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"TST001"}, readiness.failed)
}

func TestChecklistHandler_CompleteItem_NoIdentityIs401(t *testing.T) {
	sessionID := uuid.New()
	handler, readiness := newChecklistHandlerFixture()

	req := makeChecklistItemRequest(sessionID, "DQ001", "complete", nil)
	rr := httptest.NewRecorder()

	handler.CompleteItem(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, readiness.completed)
}

func TestChecklistHandler_CompleteItem_UnknownItemIs404(t *testing.T) {
	sessionID := uuid.New()
	handler, readiness := newChecklistHandlerFixture()
	readiness.itemErr = apperrors.ErrNotFound

	req := makeChecklistItemRequest(sessionID, "NOPE99", "complete", nil)
	req = withActor(req, "qa@machshop.example")
	rr := httptest.NewRecorder()

	handler.CompleteItem(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestChecklistHandler_CompleteItem_MissingItemID(t *testing.T) {
	sessionID := uuid.New()
	handler, _ := newChecklistHandlerFixture()

	req := makeAlertRequest("POST", fmt.Sprintf("/api/sessions/%s/checklist/items//complete", sessionID), nil, "sid", sessionID.String())
	req = withActor(req, "qa@machshop.example")
	rr := httptest.NewRecorder()

	handler.CompleteItem(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var errResp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errResp))
	assert.Equal(t, "invalid_item_id", errResp["error"])
}
