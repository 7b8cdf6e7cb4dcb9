package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/steiner385/machshop-cutover/pkg/auth"
	"github.com/steiner385/machshop-cutover/pkg/models"
	"github.com/steiner385/machshop-cutover/pkg/services"
)

// AlertHandler handles migration alert HTTP requests.
type AlertHandler struct {
	alertService   services.AlertService
	triggerService services.AlertTriggerService
	logger         *zap.Logger
}

// NewAlertHandler creates a new alert handler.
func NewAlertHandler(alertService services.AlertService, triggerService services.AlertTriggerService, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{
		alertService:   alertService,
		triggerService: triggerService,
		logger:         logger,
	}
}

// RegisterRoutes registers the alert handler's routes on the given mux.
func (h *AlertHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/sessions/{sid}/alerts", authMiddleware.RequireAuth(h.ListAlerts))
	mux.HandleFunc("POST /api/sessions/{sid}/alerts/evaluate", authMiddleware.RequireAuth(h.EvaluateThresholds))
	mux.HandleFunc("GET /api/alerts/{alert_id}", authMiddleware.RequireAuth(h.GetAlert))
	mux.HandleFunc("POST /api/alerts/{alert_id}/resolve", authMiddleware.RequireAuth(h.ResolveAlert))
	mux.HandleFunc("POST /api/alerts/{alert_id}/assign", authMiddleware.RequireAuth(h.AssignAlert))
}

// ListAlerts handles GET /api/sessions/{sid}/alerts
// Optional query parameters: resolved (bool), severity, limit, offset.
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	filters := models.AlertFilters{
		Severity: r.URL.Query().Get("severity"),
	}
	if v := r.URL.Query().Get("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_resolved", "resolved must be a boolean"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		filters.Resolved = &b
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filters.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		filters.Offset, _ = strconv.Atoi(v)
	}

	alerts, total, err := h.alertService.ListAlerts(r.Context(), sessionID, filters)
	if err != nil {
		HandleServiceError(w, h.logger, err, "list_alerts_failed")
		return
	}

	if alerts == nil {
		alerts = make([]*models.Alert, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: PaginatedResponse{
			Items:  alerts,
			Total:  total,
			Limit:  filters.Limit,
			Offset: filters.Offset,
		},
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// EvaluateThresholds handles POST /api/sessions/{sid}/alerts/evaluate
// Explicit trigger for threshold evaluation; the same evaluation also runs
// after each session-wide metric sample. Idempotent per sample.
func (h *AlertHandler) EvaluateThresholds(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	created, err := h.triggerService.EvaluateThresholds(r.Context(), sessionID)
	if err != nil {
		HandleServiceError(w, h.logger, err, "evaluate_thresholds_failed")
		return
	}

	if created == nil {
		created = make([]*models.Alert, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: created}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetAlert handles GET /api/alerts/{alert_id}
func (h *AlertHandler) GetAlert(w http.ResponseWriter, r *http.Request) {
	alertID, ok := ParseAlertID(w, r, h.logger)
	if !ok {
		return
	}

	alert, err := h.alertService.GetAlert(r.Context(), alertID)
	if err != nil {
		HandleServiceError(w, h.logger, err, "get_alert_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: alert}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type resolveAlertRequest struct {
	Resolution string `json:"resolution"`
}

// ResolveAlert handles POST /api/alerts/{alert_id}/resolve
func (h *AlertHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID, ok := ParseAlertID(w, r, h.logger)
	if !ok {
		return
	}

	var req resolveAlertRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
	}

	resolvedBy := auth.Actor(r.Context())
	if resolvedBy == "" {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "User identity not found in context"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.alertService.ResolveAlert(r.Context(), alertID, resolvedBy, req.Resolution); err != nil {
		HandleServiceError(w, h.logger, err, "resolve_alert_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type assignAlertRequest struct {
	AssignedTo string `json:"assigned_to"`
}

// AssignAlert handles POST /api/alerts/{alert_id}/assign
func (h *AlertHandler) AssignAlert(w http.ResponseWriter, r *http.Request) {
	alertID, ok := ParseAlertID(w, r, h.logger)
	if !ok {
		return
	}

	var req assignAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.alertService.AssignAlert(r.Context(), alertID, req.AssignedTo); err != nil {
		HandleServiceError(w, h.logger, err, "assign_alert_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
