package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/middleware"
	"github.com/Surgeonito/fabrica-collaborative-editing/pkg/response"
)

type ConflictHandler struct {
	service DocumentService
	logger  *zap.Logger
}

func NewConflictHandler(service DocumentService, logger *zap.Logger) *ConflictHandler {
	return &ConflictHandler{
		service: service,
		logger:  logger,
	}
}

// Get returns the caller's pending conflict for the document with diffs
// against the current values.
func (h *ConflictHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.ConflictView(r.Context(), mux.Vars(r)["id"], middleware.GetEditorID(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, view)
}

// RenderDiff compares two arbitrary values.
func (h *ConflictHandler) RenderDiff(w http.ResponseWriter, r *http.Request) {
	var req domain.RenderRequest
	if err := decodeAndValidate(r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	result, err := h.service.RenderDiff(req.Left, req.Right, req.Kind)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, result)
}
