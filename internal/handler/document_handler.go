package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/middleware"
	"github.com/Surgeonito/fabrica-collaborative-editing/pkg/response"
)

type DocumentHandler struct {
	service DocumentService
	logger  *zap.Logger
}

func NewDocumentHandler(service DocumentService, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		service: service,
		logger:  logger,
	}
}

func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateDocumentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	doc, err := h.service.Create(r.Context(), middleware.GetEditorID(r), &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Created(w, doc)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, doc)
}

// OpenForEdit returns the document with the baseline the editor must send
// back on save, plus any pending conflict.
func (h *DocumentHandler) OpenForEdit(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.OpenForEdit(r.Context(), mux.Vars(r)["id"], middleware.GetEditorID(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, session)
}

// Save publishes the submitted fields. A save that produced a conflict is
// still published but answers 409 so the client shows the merge screen.
func (h *DocumentHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req domain.SaveDocumentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	resp, err := h.service.Save(r.Context(), mux.Vars(r)["id"], middleware.GetEditorID(r), &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if resp.Outcome == domain.OutcomeConflict {
		response.Conflict(w, resp)
		return
	}

	response.Success(w, resp)
}

func (h *DocumentHandler) SaveCheck(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.SaveCheck(r.Context(), mux.Vars(r)["id"], middleware.GetEditorID(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, resp)
}
