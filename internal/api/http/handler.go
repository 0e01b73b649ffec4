package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nkosarev/mirrorfetch/internal/domain"
	errpkg "github.com/nkosarev/mirrorfetch/internal/errors"
)

// BatchServiceI defines the interface for batch-related business logic.
type BatchServiceI interface {
	CreateBatch(ctx context.Context, req *domain.CreateBatchRequest) (*domain.Batch, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*domain.Batch, error)
}

// MirrorServiceI defines the interface for mirror management logic.
type MirrorServiceI interface {
	ListMirrors() []domain.MirrorSite
	AddMirror(req *domain.AddMirrorRequest) error
	DeactivateMirror(baseURL string) error
	CheckMirrors(ctx context.Context) (map[string]bool, error)
}

// BatchHandler handles HTTP requests for batches and mirrors.
type BatchHandler struct {
	batchService  BatchServiceI
	mirrorService MirrorServiceI
	validator     *validator.Validate
	logger        *slog.Logger
}

// NewBatchHandler creates a new BatchHandler with the provided services and logger.
func NewBatchHandler(batchService BatchServiceI, mirrorService MirrorServiceI, logger *slog.Logger) *BatchHandler {
	return &BatchHandler{
		batchService:  batchService,
		mirrorService: mirrorService,
		validator:     validator.New(),
		logger:        logger,
	}
}

// CreateBatch handles the HTTP POST /batches request to submit transfers.
func (h *BatchHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch, err := h.batchService.CreateBatch(ctx, &req)
	if err != nil {
		h.logger.Error("failed to create batch", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info("batch accepted", "batch_id", batch.ID, "tasks_count", len(batch.Tasks))

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"batch_id": batch.ID,
	})
}

// GetBatch handles the HTTP GET /batches/{batchID} request.
func (h *BatchHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	batchIDStr := chi.URLParam(r, "batchID")
	batchID, err := uuid.Parse(batchIDStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid batch ID")
		return
	}

	batch, err := h.batchService.GetBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, errpkg.ErrBatchNotFound) {
			writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		h.logger.Error("failed to get batch", "batch_id", batchID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := domain.BatchResponse{
		ID:        batch.ID,
		Status:    batch.Status,
		Stats:     batch.Stats(),
		Tasks:     batch.Tasks,
		CreatedAt: batch.CreatedAt,
		UpdatedAt: batch.UpdatedAt,
	}

	writeJSON(w, http.StatusOK, response)
}

// ListMirrors handles the HTTP GET /mirrors request.
func (h *BatchHandler) ListMirrors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mirrorService.ListMirrors())
}

// AddMirror handles the HTTP POST /mirrors request to register a mirror.
func (h *BatchHandler) AddMirror(w http.ResponseWriter, r *http.Request) {
	var req domain.AddMirrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.mirrorService.AddMirror(&req); err != nil {
		h.logger.Error("failed to add mirror", "base_url", req.BaseURL, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

// DeactivateMirror handles the HTTP POST /mirrors/deactivate request.
func (h *BatchHandler) DeactivateMirror(w http.ResponseWriter, r *http.Request) {
	var req domain.DeactivateMirrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.mirrorService.DeactivateMirror(req.BaseURL); err != nil {
		if errors.Is(err, errpkg.ErrMirrorNotFound) {
			writeError(w, http.StatusNotFound, "mirror not found")
			return
		}
		h.logger.Error("failed to deactivate mirror", "base_url", req.BaseURL, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// CheckMirrors handles the HTTP POST /mirrors/check request, probing every
// mirror and returning its health.
func (h *BatchHandler) CheckMirrors(w http.ResponseWriter, r *http.Request) {
	results, err := h.mirrorService.CheckMirrors(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "health check failed")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
