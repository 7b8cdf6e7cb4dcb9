package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/steiner385/machshop-cutover/pkg/auth"
	"github.com/steiner385/machshop-cutover/pkg/models"
	"github.com/steiner385/machshop-cutover/pkg/services"
)

// ReadinessHandler handles go/no-go assessment and approval HTTP requests.
type ReadinessHandler struct {
	readinessService services.ReadinessService
	approvalService  services.ApprovalService
	logger           *zap.Logger
}

// NewReadinessHandler creates a new readiness handler.
func NewReadinessHandler(readinessService services.ReadinessService, approvalService services.ApprovalService, logger *zap.Logger) *ReadinessHandler {
	return &ReadinessHandler{
		readinessService: readinessService,
		approvalService:  approvalService,
		logger:           logger,
	}
}

// RegisterRoutes registers the readiness handler's routes on the given mux.
// Recording approvals is restricted to the coordinator role.
func (h *ReadinessHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/sessions/{sid}"

	mux.HandleFunc("GET "+base+"/readiness", authMiddleware.RequireAuth(h.AssessReadiness))
	mux.HandleFunc("POST "+base+"/approvals",
		authMiddleware.RequireRole("cutover-coordinator")(h.RecordApproval))
	mux.HandleFunc("GET "+base+"/approvals", authMiddleware.RequireAuth(h.ListApprovals))
	mux.HandleFunc("GET "+base+"/approvals/latest", authMiddleware.RequireAuth(h.LatestApproval))
}

// AssessReadiness handles GET /api/sessions/{sid}/readiness
// Every call recomputes the assessment from current state.
func (h *ReadinessHandler) AssessReadiness(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	assessment, err := h.readinessService.AssessReadiness(r.Context(), sessionID)
	if err != nil {
		HandleServiceError(w, h.logger, err, "assess_readiness_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: assessment}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type recordApprovalRequest struct {
	Decision   string   `json:"decision"`
	Comments   *string  `json:"comments,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
}

// RecordApproval handles POST /api/sessions/{sid}/approvals
// A fresh assessment is computed at approval time and its values frozen into
// the approval record.
func (h *ReadinessHandler) RecordApproval(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	var req recordApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	actor := auth.Actor(r.Context())
	if actor == "" {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "User identity not found in context"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	assessment, err := h.readinessService.AssessReadiness(r.Context(), sessionID)
	if err != nil {
		HandleServiceError(w, h.logger, err, "assess_readiness_failed")
		return
	}

	approval, err := h.approvalService.RecordApproval(r.Context(), sessionID, assessment, req.Decision, actor, req.Comments, req.Conditions)
	if err != nil {
		HandleServiceError(w, h.logger, err, "record_approval_failed")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: approval}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListApprovals handles GET /api/sessions/{sid}/approvals
func (h *ReadinessHandler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	approvals, err := h.approvalService.ListApprovals(r.Context(), sessionID)
	if err != nil {
		HandleServiceError(w, h.logger, err, "list_approvals_failed")
		return
	}

	if approvals == nil {
		approvals = make([]*models.Approval, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: approvals}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// LatestApproval handles GET /api/sessions/{sid}/approvals/latest
func (h *ReadinessHandler) LatestApproval(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	approval, err := h.approvalService.LatestApproval(r.Context(), sessionID)
	if err != nil {
		HandleServiceError(w, h.logger, err, "get_latest_approval_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: approval}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
