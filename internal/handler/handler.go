package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/diff"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/service"
	"github.com/Surgeonito/fabrica-collaborative-editing/pkg/response"
)

// DocumentService is the part of service.DocumentService the HTTP and
// websocket handlers use.
type DocumentService interface {
	Create(ctx context.Context, editorID string, req *domain.CreateDocumentRequest) (*domain.DocumentResponse, error)
	Get(ctx context.Context, id string) (*domain.DocumentResponse, error)
	OpenForEdit(ctx context.Context, id, editorID string) (*domain.EditSession, error)
	Save(ctx context.Context, id, editorID string, req *domain.SaveDocumentRequest) (*domain.SaveResponse, error)
	Conflict(ctx context.Context, id, editorID string) (*domain.ConflictRecord, error)
	ConflictView(ctx context.Context, id, editorID string) (*service.ConflictView, error)
	RenderDiff(left, right string, kind domain.RenderKind) (*diff.Result, error)
	Heartbeat(ctx context.Context, report domain.PresenceReport) (*domain.HeartbeatResponse, error)
	Leave(documentID, editorID string) []domain.EditorPresence
	Presence(documentID string) []domain.EditorPresence
	SaveCheck(ctx context.Context, id, editorID string) (*domain.SaveCheckResponse, error)
}

var validate = validator.New()

func decodeAndValidate(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid request payload")
	}
	return validate.Struct(v)
}

// writeError maps service errors onto status codes.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, domain.ErrInvalidRequest):
		response.BadRequest(w, err.Error())
	case errors.Is(err, domain.ErrMalformedField):
		response.UnprocessableEntity(w, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		response.ServiceUnavailable(w, "Conflict store unavailable")
	case errors.Is(err, domain.ErrUnauthorized):
		response.Unauthorized(w, "Unauthorized")
	default:
		logger.Error("request failed", zap.Error(err))
		response.InternalError(w, "Internal server error")
	}
}
