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

// SnapshotHandler handles snapshot and rollback HTTP requests.
type SnapshotHandler struct {
	snapshotService services.SnapshotService
	rollbackService services.RollbackService
	logger          *zap.Logger
}

// NewSnapshotHandler creates a new snapshot handler.
func NewSnapshotHandler(snapshotService services.SnapshotService, rollbackService services.RollbackService, logger *zap.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		snapshotService: snapshotService,
		rollbackService: rollbackService,
		logger:          logger,
	}
}

// RegisterRoutes registers the snapshot handler's routes on the given mux.
// Destructive operations (delete, rollback) require the coordinator role.
func (h *SnapshotHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	coordinator := authMiddleware.RequireRole("cutover-coordinator")

	mux.HandleFunc("POST /api/sessions/{sid}/snapshots", authMiddleware.RequireAuth(h.CreateSnapshot))
	mux.HandleFunc("GET /api/sessions/{sid}/snapshots", authMiddleware.RequireAuth(h.ListSnapshots))
	mux.HandleFunc("GET /api/snapshots/{snapid}", authMiddleware.RequireAuth(h.GetSnapshot))
	mux.HandleFunc("DELETE /api/snapshots/{snapid}", coordinator(h.DeleteSnapshot))
	mux.HandleFunc("POST /api/snapshots/{snapid}/rollback", coordinator(h.ExecuteRollback))
	mux.HandleFunc("GET /api/snapshots/{snapid}/rollbacks", authMiddleware.RequireAuth(h.ListRollbacks))
	mux.HandleFunc("POST /api/snapshots/{snapid}/rollbacks/{rbid}/verify", authMiddleware.RequireAuth(h.VerifyRollback))
}

type createSnapshotRequest struct {
	Name        string   `json:"name"`
	Description *string  `json:"description,omitempty"`
	EntityTypes []string `json:"entity_types,omitempty"`
	ExpiresAt   *string  `json:"expires_at,omitempty"`
}

// CreateSnapshot handles POST /api/sessions/{sid}/snapshots
func (h *SnapshotHandler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	var req createSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != nil {
		parsed, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_expires_at", "expires_at must be RFC 3339"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		expiresAt = &parsed
	}

	actor := auth.Actor(r.Context())
	if actor == "" {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "User identity not found in context"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	snapshot, err := h.snapshotService.CreateSnapshot(r.Context(), sessionID, req.Name, req.EntityTypes, req.Description, actor, expiresAt)
	if err != nil {
		HandleServiceError(w, h.logger, err, "create_snapshot_failed")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: snapshot}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListSnapshots handles GET /api/sessions/{sid}/snapshots
func (h *SnapshotHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	snapshots, err := h.snapshotService.ListSnapshots(r.Context(), sessionID)
	if err != nil {
		HandleServiceError(w, h.logger, err, "list_snapshots_failed")
		return
	}

	if snapshots == nil {
		snapshots = make([]*models.Snapshot, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: snapshots}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetSnapshot handles GET /api/snapshots/{snapid}
func (h *SnapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshotID, ok := ParseSnapshotID(w, r, h.logger)
	if !ok {
		return
	}

	snapshot, err := h.snapshotService.GetSnapshot(r.Context(), snapshotID)
	if err != nil {
		HandleServiceError(w, h.logger, err, "get_snapshot_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: snapshot}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// DeleteSnapshot handles DELETE /api/snapshots/{snapid}
func (h *SnapshotHandler) DeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshotID, ok := ParseSnapshotID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.snapshotService.DeleteSnapshot(r.Context(), snapshotID); err != nil {
		HandleServiceError(w, h.logger, err, "delete_snapshot_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type executeRollbackRequest struct {
	EntityTypes  []string `json:"entity_types,omitempty"`
	VerifyAfter  bool     `json:"verify_after"`
	CreateBackup bool     `json:"create_backup"`
}

// ExecuteRollback handles POST /api/snapshots/{snapid}/rollback
// The response reports per-entity-type outcomes; partial failure is a 200
// with success=false in the rollback record, not an error status.
func (h *SnapshotHandler) ExecuteRollback(w http.ResponseWriter, r *http.Request) {
	snapshotID, ok := ParseSnapshotID(w, r, h.logger)
	if !ok {
		return
	}

	var req executeRollbackRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
	}

	actor := auth.Actor(r.Context())
	if actor == "" {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "User identity not found in context"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	opts := models.RollbackOptions{
		VerifyAfter:  req.VerifyAfter,
		CreateBackup: req.CreateBackup,
	}

	record, err := h.rollbackService.ExecuteRollback(r.Context(), snapshotID, req.EntityTypes, opts, actor)
	if err != nil {
		HandleServiceError(w, h.logger, err, "execute_rollback_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: record}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListRollbacks handles GET /api/snapshots/{snapid}/rollbacks
func (h *SnapshotHandler) ListRollbacks(w http.ResponseWriter, r *http.Request) {
	snapshotID, ok := ParseSnapshotID(w, r, h.logger)
	if !ok {
		return
	}

	records, err := h.rollbackService.ListRollbacks(r.Context(), snapshotID)
	if err != nil {
		HandleServiceError(w, h.logger, err, "list_rollbacks_failed")
		return
	}

	if records == nil {
		records = make([]*models.RollbackRecord, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: records}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// VerifyRollback handles POST /api/snapshots/{snapid}/rollbacks/{rbid}/verify
func (h *SnapshotHandler) VerifyRollback(w http.ResponseWriter, r *http.Request) {
	snapshotID, ok := ParseSnapshotID(w, r, h.logger)
	if !ok {
		return
	}
	rollbackID, ok := ParseRollbackID(w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.rollbackService.VerifyRollback(r.Context(), snapshotID, rollbackID)
	if err != nil {
		HandleServiceError(w, h.logger, err, "verify_rollback_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
