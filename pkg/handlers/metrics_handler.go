package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/steiner385/machshop-cutover/pkg/auth"
	"github.com/steiner385/machshop-cutover/pkg/models"
	"github.com/steiner385/machshop-cutover/pkg/services"
)

// MetricsHandler handles migration metric HTTP requests.
type MetricsHandler struct {
	metricsService services.MetricsService
	triggerService services.AlertTriggerService
	logger         *zap.Logger
}

// NewMetricsHandler creates a new metrics handler.
func NewMetricsHandler(metricsService services.MetricsService, triggerService services.AlertTriggerService, logger *zap.Logger) *MetricsHandler {
	return &MetricsHandler{
		metricsService: metricsService,
		triggerService: triggerService,
		logger:         logger,
	}
}

// RegisterRoutes registers the metrics handler's routes on the given mux.
func (h *MetricsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/sessions/{sid}/metrics"

	mux.HandleFunc("POST "+base, authMiddleware.RequireAuth(h.RecordSample))
	mux.HandleFunc("GET "+base+"/aggregate", authMiddleware.RequireAuth(h.GetAggregate))
	mux.HandleFunc("GET "+base+"/trend", authMiddleware.RequireAuth(h.GetTrend))
}

type recordSampleRequest struct {
	EntityType      *string `json:"entity_type,omitempty"`
	TotalRecords    int64   `json:"total_records"`
	ImportedRecords int64   `json:"imported_records"`
	FailedRecords   int64   `json:"failed_records"`
	SkippedRecords  int64   `json:"skipped_records"`
	Completeness    float64 `json:"completeness"`
	Validity        float64 `json:"validity"`
	Consistency     float64 `json:"consistency"`
	Accuracy        float64 `json:"accuracy"`
	ImportRate      float64 `json:"import_rate"`
	RecordedAt      string  `json:"recorded_at"`
}

// RecordSample handles POST /api/sessions/{sid}/metrics
// Every accepted session-wide sample also runs threshold evaluation so
// alerts surface without polling.
func (h *MetricsHandler) RecordSample(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	var req recordSampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	recordedAt, err := time.Parse(time.RFC3339, req.RecordedAt)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_recorded_at", "recorded_at must be RFC 3339"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	sample := &models.MetricSample{
		SessionID:       sessionID,
		EntityType:      req.EntityType,
		TotalRecords:    req.TotalRecords,
		ImportedRecords: req.ImportedRecords,
		FailedRecords:   req.FailedRecords,
		SkippedRecords:  req.SkippedRecords,
		Completeness:    req.Completeness,
		Validity:        req.Validity,
		Consistency:     req.Consistency,
		Accuracy:        req.Accuracy,
		ImportRate:      req.ImportRate,
		RecordedAt:      recordedAt,
	}

	if err := h.metricsService.Record(r.Context(), sample); err != nil {
		HandleServiceError(w, h.logger, err, "record_sample_failed")
		return
	}

	if sample.EntityType == nil {
		if _, err := h.triggerService.EvaluateThresholds(r.Context(), sessionID); err != nil {
			h.logger.Error("Threshold evaluation failed",
				zap.String("session_id", sessionID.String()),
				zap.Error(err))
		}
	}

	if err := WriteJSON(w, http.StatusAccepted, ApiResponse{Success: true}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetAggregate handles GET /api/sessions/{sid}/metrics/aggregate
// An optional entity_type query parameter scopes the aggregate; absent means
// session-wide.
func (h *MetricsHandler) GetAggregate(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	var entityType *string
	if v := r.URL.Query().Get("entity_type"); v != "" {
		entityType = &v
	}

	aggregate, err := h.metricsService.Aggregate(r.Context(), sessionID, entityType)
	if err != nil {
		HandleServiceError(w, h.logger, err, "get_aggregate_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: aggregate}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetTrend handles GET /api/sessions/{sid}/metrics/trend
// Optional query parameters: entity_type, window (Go duration, e.g. "2h").
func (h *MetricsHandler) GetTrend(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	var entityType *string
	if v := r.URL.Query().Get("entity_type"); v != "" {
		entityType = &v
	}

	var window time.Duration
	if v := r.URL.Query().Get("window"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_window", "window must be a positive duration"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		window = parsed
	}

	samples, err := h.metricsService.Trend(r.Context(), sessionID, entityType, window)
	if err != nil {
		HandleServiceError(w, h.logger, err, "get_trend_failed")
		return
	}

	if samples == nil {
		samples = make([]*models.MetricSample, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: samples}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
