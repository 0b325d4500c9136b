package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/middleware"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/websocket"
	"github.com/Surgeonito/fabrica-collaborative-editing/pkg/jwt"
	"github.com/Surgeonito/fabrica-collaborative-editing/pkg/response"
)

type WebSocketHandler struct {
	manager   *websocket.Manager
	jwtSecret string
	upgrader  ws.Upgrader
	logger    *zap.Logger
}

func NewWebSocketHandler(manager *websocket.Manager, jwtSecret string, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &WebSocketHandler{
		manager:   manager,
		jwtSecret: jwtSecret,
		logger:    logger,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
	}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			token = parts[1]
		}
	}

	if token == "" {
		response.Unauthorized(w, "Missing authorization token")
		return
	}

	claims, err := jwt.ValidateToken(token, h.jwtSecret)
	if err != nil {
		h.logger.Debug("websocket token rejected", zap.Error(err))
		response.Unauthorized(w, "Invalid or expired token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("editor_id", claims.EditorID), zap.Error(err))
		return
	}

	client := websocket.NewClient(uuid.New().String(), claims.EditorID, conn, h.manager)
	h.manager.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

// presenceTimeout bounds one websocket heartbeat, including its version
// lookup.
const presenceTimeout = 5 * time.Second

// WebSocketMessageHandler routes editor messages to the document service
// and fans presence out to the document's room. Presence reports share the
// editor's rate limit with the HTTP heartbeat route; limiter may be nil.
type WebSocketMessageHandler struct {
	service DocumentService
	manager *websocket.Manager
	limiter *middleware.EditorLimiter
	timeout time.Duration
	logger  *zap.Logger
}

func NewWebSocketMessageHandler(service DocumentService, manager *websocket.Manager, limiter *middleware.EditorLimiter, logger *zap.Logger) *WebSocketMessageHandler {
	return &WebSocketMessageHandler{
		service: service,
		manager: manager,
		limiter: limiter,
		timeout: presenceTimeout,
		logger:  logger,
	}
}

func (h *WebSocketMessageHandler) HandleWebSocketMessage(client *websocket.Client, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypeJoinDocument:
		return h.handleJoin(client, msg)

	case websocket.TypeLeaveDocument:
		return h.handleLeave(client, msg)

	case websocket.TypePresenceReport:
		return h.handlePresenceReport(client, msg)

	case websocket.TypePing:
		return h.reply(client, websocket.TypePong, nil)

	default:
		return h.reply(client, websocket.TypeError, &websocket.ErrorPayload{
			Error: fmt.Sprintf("unknown message type %q", msg.Type),
		})
	}
}

// HandleLeave runs when a client leaves a room, including on disconnect.
func (h *WebSocketMessageHandler) HandleLeave(client *websocket.Client, documentID string) {
	others := h.service.Leave(documentID, client.EditorID)
	if err := h.broadcastPresence(documentID, others, ""); err != nil {
		h.logger.Warn("presence broadcast failed", zap.String("document_id", documentID), zap.Error(err))
	}
}

func (h *WebSocketMessageHandler) handleJoin(client *websocket.Client, msg *websocket.Message) error {
	var payload websocket.DocumentPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return err
	}
	if payload.DocumentID == "" {
		return h.reply(client, websocket.TypeError, &websocket.ErrorPayload{Error: "document_id is required"})
	}

	h.manager.Join(client, payload.DocumentID)
	return nil
}

func (h *WebSocketMessageHandler) handleLeave(client *websocket.Client, msg *websocket.Message) error {
	var payload websocket.DocumentPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return err
	}

	if h.manager.Leave(client, payload.DocumentID) {
		h.HandleLeave(client, payload.DocumentID)
	}
	return nil
}

// handlePresenceReport runs on the manager loop, so the heartbeat itself is
// handed to its own goroutine.
func (h *WebSocketMessageHandler) handlePresenceReport(client *websocket.Client, msg *websocket.Message) error {
	var payload websocket.PresenceReportPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return err
	}
	if payload.DocumentID == "" {
		return h.reply(client, websocket.TypeError, &websocket.ErrorPayload{Error: "document_id is required"})
	}
	if h.limiter != nil && !h.limiter.Allow(client.EditorID) {
		return h.reply(client, websocket.TypeError, &websocket.ErrorPayload{Error: "Rate limit exceeded"})
	}

	h.manager.Join(client, payload.DocumentID)

	go h.heartbeat(client, domain.PresenceReport{
		DocumentID:          payload.DocumentID,
		EditorID:            client.EditorID,
		FocusedField:        payload.FocusedField,
		ModifiedFieldHashes: payload.ModifiedFieldHashes,
		BaselineVersion:     payload.BaselineVersion,
	})
	return nil
}

func (h *WebSocketMessageHandler) heartbeat(client *websocket.Client, report domain.PresenceReport) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	log := h.logger.With(zap.String("client_id", client.ID), zap.String("document_id", report.DocumentID))

	resp, err := h.service.Heartbeat(ctx, report)
	if err != nil {
		if err := h.reply(client, websocket.TypeError, &websocket.ErrorPayload{Error: err.Error()}); err != nil {
			log.Warn("failed to send heartbeat error", zap.Error(err))
		}
		return
	}

	if err := h.reply(client, websocket.TypeHeartbeat, resp); err != nil {
		log.Warn("failed to send heartbeat", zap.Error(err))
		return
	}

	if err := h.broadcastPresence(report.DocumentID, h.service.Presence(report.DocumentID), client.ID); err != nil {
		log.Warn("presence broadcast failed", zap.Error(err))
	}
}

func (h *WebSocketMessageHandler) broadcastPresence(documentID string, editors []domain.EditorPresence, excludeClientID string) error {
	msg, err := websocket.NewMessage(websocket.TypePresenceChanged, &websocket.PresenceChangedPayload{
		DocumentID: documentID,
		Editors:    editors,
	})
	if err != nil {
		return err
	}
	return h.manager.BroadcastToDocument(documentID, msg, excludeClientID)
}

func (h *WebSocketMessageHandler) reply(client *websocket.Client, msgType websocket.MessageType, payload interface{}) error {
	msg, err := websocket.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	return h.manager.SendToClient(client, msg)
}
