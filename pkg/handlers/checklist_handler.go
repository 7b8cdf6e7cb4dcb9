package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steiner385/machshop-cutover/pkg/auth"
	"github.com/steiner385/machshop-cutover/pkg/models"
	"github.com/steiner385/machshop-cutover/pkg/services"
)

// ChecklistHandler handles cutover checklist HTTP requests.
type ChecklistHandler struct {
	readinessService services.ReadinessService
	logger           *zap.Logger
}

// NewChecklistHandler creates a new checklist handler.
func NewChecklistHandler(readinessService services.ReadinessService, logger *zap.Logger) *ChecklistHandler {
	return &ChecklistHandler{
		readinessService: readinessService,
		logger:           logger,
	}
}

// RegisterRoutes registers the checklist handler's routes on the given mux.
func (h *ChecklistHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/sessions/{sid}/checklist"

	mux.HandleFunc("GET "+base, authMiddleware.RequireAuth(h.ListItems))
	mux.HandleFunc("POST "+base+"/seed", authMiddleware.RequireAuth(h.Seed))
	mux.HandleFunc("POST "+base+"/reset", authMiddleware.RequireAuth(h.Reset))
	mux.HandleFunc("POST "+base+"/items/{item_id}/complete", authMiddleware.RequireAuth(h.CompleteItem))
	mux.HandleFunc("POST "+base+"/items/{item_id}/fail", authMiddleware.RequireAuth(h.FailItem))
}

// ListItems handles GET /api/sessions/{sid}/checklist
func (h *ChecklistHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	items, err := h.readinessService.ListChecklist(r.Context(), sessionID)
	if err != nil {
		HandleServiceError(w, h.logger, err, "list_checklist_failed")
		return
	}

	if items == nil {
		items = make([]*models.ChecklistItem, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: items}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Seed handles POST /api/sessions/{sid}/checklist/seed
func (h *ChecklistHandler) Seed(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.readinessService.SeedChecklist(r.Context(), sessionID); err != nil {
		HandleServiceError(w, h.logger, err, "seed_checklist_failed")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Reset handles POST /api/sessions/{sid}/checklist/reset
func (h *ChecklistHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.readinessService.ResetChecklist(r.Context(), sessionID); err != nil {
		HandleServiceError(w, h.logger, err, "reset_checklist_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type checklistItemRequest struct {
	Notes *string `json:"notes,omitempty"`
}

// CompleteItem handles POST /api/sessions/{sid}/checklist/items/{item_id}/complete
func (h *ChecklistHandler) CompleteItem(w http.ResponseWriter, r *http.Request) {
	h.setItemStatus(w, r, h.readinessService.CompleteItem)
}

// FailItem handles POST /api/sessions/{sid}/checklist/items/{item_id}/fail
func (h *ChecklistHandler) FailItem(w http.ResponseWriter, r *http.Request) {
	h.setItemStatus(w, r, h.readinessService.FailItem)
}

func (h *ChecklistHandler) setItemStatus(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, sessionID uuid.UUID, itemID, actor string, notes *string) error) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	itemID := r.PathValue("item_id")
	if itemID == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_item_id", "Item ID is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	var req checklistItemRequest
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

	if err := apply(r.Context(), sessionID, itemID, actor, req.Notes); err != nil {
		HandleServiceError(w, h.logger, err, "update_checklist_item_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
