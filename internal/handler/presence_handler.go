package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/middleware"
	"github.com/Surgeonito/fabrica-collaborative-editing/pkg/response"
)

type PresenceHandler struct {
	service DocumentService
	logger  *zap.Logger
}

func NewPresenceHandler(service DocumentService, logger *zap.Logger) *PresenceHandler {
	return &PresenceHandler{
		service: service,
		logger:  logger,
	}
}

// Heartbeat is the polling fallback for clients without a websocket.
func (h *PresenceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var report domain.PresenceReport
	if err := decodeAndValidate(r, &report); err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	report.DocumentID = mux.Vars(r)["id"]
	report.EditorID = middleware.GetEditorID(r)

	resp, err := h.service.Heartbeat(r.Context(), report)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, resp)
}

func (h *PresenceHandler) Leave(w http.ResponseWriter, r *http.Request) {
	others := h.service.Leave(mux.Vars(r)["id"], middleware.GetEditorID(r))
	response.Success(w, others)
}
