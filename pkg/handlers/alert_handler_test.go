package handlers

import (
	"bytes"
	"context"
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
	"github.com/steiner385/machshop-cutover/pkg/auth"
	"github.com/steiner385/machshop-cutover/pkg/models"
)

// mockAlertService implements services.AlertService for handler testing.
type mockAlertService struct {
	alerts     []*models.Alert
	listErr    error
	getErr     error
	resolveErr error
	assignErr  error

	resolvedID uuid.UUID
	resolvedBy string
	resolution string
	assignedTo string
}

func (m *mockAlertService) CreateAlert(_ context.Context, alert *models.Alert) error {
	alert.ID = uuid.New()
	m.alerts = append(m.alerts, alert)
	return nil
}

func (m *mockAlertService) GetAlert(_ context.Context, alertID uuid.UUID) (*models.Alert, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, a := range m.alerts {
		if a.ID == alertID {
			return a, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockAlertService) ListAlerts(_ context.Context, sessionID uuid.UUID, filters models.AlertFilters) ([]*models.Alert, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var result []*models.Alert
	for _, a := range m.alerts {
		if a.SessionID != sessionID {
			continue
		}
		if filters.Resolved != nil && a.Resolved != *filters.Resolved {
			continue
		}
		if filters.Severity != "" && a.Severity != filters.Severity {
			continue
		}
		result = append(result, a)
	}
	return result, len(result), nil
}

func (m *mockAlertService) ResolveAlert(_ context.Context, alertID uuid.UUID, resolvedBy, resolution string) error {
	if m.resolveErr != nil {
		return m.resolveErr
	}
	m.resolvedID = alertID
	m.resolvedBy = resolvedBy
	m.resolution = resolution
	return nil
}

func (m *mockAlertService) AssignAlert(_ context.Context, _ uuid.UUID, assignee string) error {
	if m.assignErr != nil {
		return m.assignErr
	}
	m.assignedTo = assignee
	return nil
}

func makeAlertRequest(method, path string, body []byte, pathParam, pathValue string) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.SetPathValue(pathParam, pathValue)
	return req
}

func withActor(req *http.Request, email string) *http.Request {
	claims := &auth.Claims{Email: email}
	ctx := context.WithValue(req.Context(), auth.ClaimsKey, claims)
	return req.WithContext(ctx)
}

func newAlertHandlerFixture(sessionID uuid.UUID) (*AlertHandler, *mockAlertService, *mockTriggerService) {
	svc := &mockAlertService{
		alerts: []*models.Alert{
			{ID: uuid.New(), SessionID: sessionID, AlertType: models.AlertTypeThreshold, Severity: models.AlertSeverityCritical, Title: "Quality score dropped", Resolved: false},
			{ID: uuid.New(), SessionID: sessionID, AlertType: models.AlertTypeThreshold, Severity: models.AlertSeverityHigh, Title: "Error rate above threshold", Resolved: false},
			{ID: uuid.New(), SessionID: sessionID, AlertType: models.AlertTypeError, Severity: models.AlertSeverityMedium, Title: "Import stalled", Resolved: true},
		},
	}
	trigger := &mockTriggerService{}
	return NewAlertHandler(svc, trigger, zap.NewNop()), svc, trigger
}

func TestAlertHandler_ListAlerts_All(t *testing.T) {
	sessionID := uuid.New()
	handler, _, _ := newAlertHandlerFixture(sessionID)

	req := makeAlertRequest("GET", fmt.Sprintf("/api/sessions/%s/alerts", sessionID), nil, "sid", sessionID.String())
	rr := httptest.NewRecorder()

	handler.ListAlerts(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp ApiResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	assert.Len(t, data["items"].([]any), 3)
	assert.Equal(t, float64(3), data["total"])
}

func TestAlertHandler_ListAlerts_FilterUnresolved(t *testing.T) {
	sessionID := uuid.New()
	handler, _, _ := newAlertHandlerFixture(sessionID)

	req := makeAlertRequest("GET", fmt.Sprintf("/api/sessions/%s/alerts?resolved=false", sessionID), nil, "sid", sessionID.String())
	rr := httptest.NewRecorder()

	handler.ListAlerts(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp ApiResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	data := resp.Data.(map[string]any)
	assert.Len(t, data["items"].([]any), 2)
}

func TestAlertHandler_ListAlerts_FilterBySeverity(t *testing.T) {
	sessionID := uuid.New()
	handler, _, _ := newAlertHandlerFixture(sessionID)

	req := makeAlertRequest("GET", fmt.Sprintf("/api/sessions/%s/alerts?severity=CRITICAL", sessionID), nil, "sid", sessionID.String())
	rr := httptest.NewRecorder()

	handler.ListAlerts(rr, req)

	var resp ApiResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	data := resp.Data.(map[string]any)
	items := data["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Quality score dropped", items[0].(map[string]any)["title"])
}

func TestAlertHandler_ListAlerts_InvalidResolved(t *testing.T) {
	sessionID := uuid.New()
	handler, _, _ := newAlertHandlerFixture(sessionID)

	req := makeAlertRequest("GET", fmt.Sprintf("/api/sessions/%s/alerts?resolved=maybe", sessionID), nil, "sid", sessionID.String())
	rr := httptest.NewRecorder()

	handler.ListAlerts(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var errResp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errResp))
	assert.Equal(t, "invalid_resolved", errResp["error"])
}

func TestAlertHandler_ListAlerts_EmptyIsArrayNotNull(t *testing.T) {
	sessionID := uuid.New()
	handler := NewAlertHandler(&mockAlertService{}, &mockTriggerService{}, zap.NewNop())

	req := makeAlertRequest("GET", fmt.Sprintf("/api/sessions/%s/alerts", sessionID), nil, "sid", sessionID.String())
	rr := httptest.NewRecorder()

	handler.ListAlerts(rr, req)

	var resp ApiResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, []any{}, data["items"])
}

func TestAlertHandler_EvaluateThresholds_ReturnsCreated(t *testing.T) {
	sessionID := uuid.New()
	trigger := &mockTriggerService{
		created: []*models.Alert{
			{ID: uuid.New(), SessionID: sessionID, Severity: models.AlertSeverityHigh, Title: "Quality score dropped 30.0%"},
		},
	}
	handler := NewAlertHandler(&mockAlertService{}, trigger, zap.NewNop())

	req := makeAlertRequest("POST", fmt.Sprintf("/api/sessions/%s/alerts/evaluate", sessionID), nil, "sid", sessionID.String())
	rr := httptest.NewRecorder()

	handler.EvaluateThresholds(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, trigger.evalCalls)

	var resp ApiResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Len(t, resp.Data.([]any), 1)
}

func TestAlertHandler_GetAlert_Success(t *testing.T) {
	sessionID := uuid.New()
	handler, svc, _ := newAlertHandlerFixture(sessionID)
	alertID := svc.alerts[0].ID

	req := makeAlertRequest("GET", fmt.Sprintf("/api/alerts/%s", alertID), nil, "alert_id", alertID.String())
	rr := httptest.NewRecorder()

	handler.GetAlert(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp ApiResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, alertID.String(), data["id"])
}

func TestAlertHandler_GetAlert_NotFound(t *testing.T) {
	sessionID := uuid.New()
	handler, _, _ := newAlertHandlerFixture(sessionID)
	unknown := uuid.New()

	req := makeAlertRequest("GET", fmt.Sprintf("/api/alerts/%s", unknown), nil, "alert_id", unknown.String())
	rr := httptest.NewRecorder()

	handler.GetAlert(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAlertHandler_ResolveAlert_ActorFromToken(t *testing.T) {
	sessionID := uuid.New()
	handler, svc, _ := newAlertHandlerFixture(sessionID)
	alertID := svc.alerts[0].ID

	body := []byte(`{"resolution":"re-ran the work order import"}`)
	req := makeAlertRequest("POST", fmt.Sprintf("/api/alerts/%s/resolve", alertID), body, "alert_id", alertID.String())
	req = withActor(req, "coordinator@machshop.example")
	rr := httptest.NewRecorder()

	handler.ResolveAlert(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, alertID, svc.resolvedID)
	assert.Equal(t, "coordinator@machshop.example", svc.resolvedBy)
	assert.Equal(t, "re-ran the work order import", svc.resolution)
}

func TestAlertHandler_ResolveAlert_NoIdentityIs401(t *testing.T) {
	sessionID := uuid.New()
	handler, svc, _ := newAlertHandlerFixture(sessionID)
	alertID := svc.alerts[0].ID

	req := makeAlertRequest("POST", fmt.Sprintf("/api/alerts/%s/resolve", alertID), nil, "alert_id", alertID.String())
	rr := httptest.NewRecorder()

	handler.ResolveAlert(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, svc.resolvedBy)
}

func TestAlertHandler_ResolveAlert_InvalidAlertID(t *testing.T) {
	sessionID := uuid.New()
	handler, _, _ := newAlertHandlerFixture(sessionID)

	req := makeAlertRequest("POST", "/api/alerts/bogus/resolve", nil, "alert_id", "bogus")
	req = withActor(req, "coordinator@machshop.example")
	rr := httptest.NewRecorder()

	handler.ResolveAlert(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAlertHandler_AssignAlert_Success(t *testing.T) {
	sessionID := uuid.New()
	handler, svc, _ := newAlertHandlerFixture(sessionID)
	alertID := svc.alerts[1].ID

	body := []byte(`{"assigned_to":"dba@machshop.example"}`)
	req := makeAlertRequest("POST", fmt.Sprintf("/api/alerts/%s/assign", alertID), body, "alert_id", alertID.String())
	rr := httptest.NewRecorder()

	handler.AssignAlert(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "dba@machshop.example", svc.assignedTo)
}

func TestAlertHandler_AssignAlert_NotFound(t *testing.T) {
	sessionID := uuid.New()
	handler, svc, _ := newAlertHandlerFixture(sessionID)
	svc.assignErr = apperrors.ErrNotFound
	alertID := uuid.New()

	body := []byte(`{"assigned_to":"dba@machshop.example"}`)
	req := makeAlertRequest("POST", fmt.Sprintf("/api/alerts/%s/assign", alertID), body, "alert_id", alertID.String())
	rr := httptest.NewRecorder()

	handler.AssignAlert(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
