package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/middleware"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/websocket"
	"github.com/Surgeonito/fabrica-collaborative-editing/pkg/jwt"
)

const wsSecret = "ws-test-secret"

func startWebSocketServer(t *testing.T, svc DocumentService, limiter *middleware.EditorLimiter) (*httptest.Server, *websocket.Manager) {
	t.Helper()
	logger := zap.NewNop()
	manager := websocket.NewManager(websocket.Options{
		MaxConnPerEditor: 2,
		MaxMessageSize:   64 * 1024,
		WriteWait:        time.Second,
		PongWait:         time.Minute,
		PingPeriod:       30 * time.Second,
	}, logger)
	manager.SetMessageHandler(NewWebSocketMessageHandler(svc, manager, limiter, logger))
	go manager.Run()

	h := NewWebSocketHandler(manager, wsSecret, []string{"*"}, logger)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleConnection))
	t.Cleanup(srv.Close)
	return srv, manager
}

func dial(t *testing.T, srv *httptest.Server, editorID string) *ws.Conn {
	t.Helper()
	token, err := jwt.GenerateToken(editorID, time.Hour, wsSecret)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *ws.Conn, msgType websocket.MessageType, payload interface{}) {
	t.Helper()
	msg, err := websocket.NewMessage(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg))
}

func receive(t *testing.T, conn *ws.Conn) *websocket.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg websocket.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return &msg
}

// flush waits until the manager has processed everything the client sent.
func flush(t *testing.T, conn *ws.Conn) {
	t.Helper()
	send(t, conn, websocket.TypePing, nil)
	assert.Equal(t, websocket.TypePong, receive(t, conn).Type)
}

func TestWebSocketHandler_RejectsMissingToken(t *testing.T) {
	srv, _ := startWebSocketServer(t, &fakeService{}, nil)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := ws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketHandler_PresenceFanOut(t *testing.T) {
	svc := &fakeService{
		beat:     &domain.HeartbeatResponse{LatestVersion: 2},
		presence: []domain.EditorPresence{{EditorID: "alice"}, {EditorID: "bob", FocusedField: domain.FieldBody}},
	}
	srv, manager := startWebSocketServer(t, svc, nil)

	alice := dial(t, srv, "alice")
	send(t, alice, websocket.TypeJoinDocument, &websocket.DocumentPayload{DocumentID: "doc-1"})
	flush(t, alice)

	bob := dial(t, srv, "bob")
	send(t, bob, websocket.TypePresenceReport, &websocket.PresenceReportPayload{
		DocumentID:   "doc-1",
		FocusedField: domain.FieldBody,
	})

	reply := receive(t, bob)
	require.Equal(t, websocket.TypeHeartbeat, reply.Type)
	assert.Equal(t, "bob", svc.lastReport().EditorID)

	changed := receive(t, alice)
	require.Equal(t, websocket.TypePresenceChanged, changed.Type)
	var payload websocket.PresenceChangedPayload
	require.NoError(t, changed.UnmarshalPayload(&payload))
	assert.Equal(t, "doc-1", payload.DocumentID)
	assert.Len(t, payload.Editors, 2)
	assert.Equal(t, 2, manager.RoomSize("doc-1"))

	require.NoError(t, manager.RevisionPublished("doc-1", "bob", 3))
	for _, conn := range []*ws.Conn{alice, bob} {
		msg := receive(t, conn)
		require.Equal(t, websocket.TypeRevisionPublished, msg.Type)
		var rev websocket.RevisionPublishedPayload
		require.NoError(t, msg.UnmarshalPayload(&rev))
		assert.Equal(t, domain.VersionToken(3), rev.Version)
	}

	send(t, bob, websocket.TypeLeaveDocument, &websocket.DocumentPayload{DocumentID: "doc-1"})
	flush(t, bob)
	assert.Equal(t, 1, manager.RoomSize("doc-1"))
	assert.Contains(t, svc.leaves(), "doc-1/bob")
	assert.Equal(t, websocket.TypePresenceChanged, receive(t, alice).Type)
}

func TestWebSocketHandler_UnknownMessageType(t *testing.T) {
	srv, _ := startWebSocketServer(t, &fakeService{}, nil)

	conn := dial(t, srv, "alice")
	send(t, conn, websocket.MessageType("sync_request"), nil)

	msg := receive(t, conn)
	require.Equal(t, websocket.TypeError, msg.Type)
	var payload websocket.ErrorPayload
	require.NoError(t, msg.UnmarshalPayload(&payload))
	assert.Contains(t, payload.Error, "sync_request")
}

func TestWebSocketHandler_SlowHeartbeatDoesNotBlockOtherMessages(t *testing.T) {
	svc := &fakeService{
		block: make(chan struct{}),
		beat:  &domain.HeartbeatResponse{LatestVersion: 4},
	}
	srv, _ := startWebSocketServer(t, svc, nil)

	alice := dial(t, srv, "alice")
	send(t, alice, websocket.TypePresenceReport, &websocket.PresenceReportPayload{DocumentID: "doc-1"})

	// The ping is answered while the heartbeat is still waiting.
	flush(t, alice)

	close(svc.block)
	reply := receive(t, alice)
	require.Equal(t, websocket.TypeHeartbeat, reply.Type)
	var beat domain.HeartbeatResponse
	require.NoError(t, reply.UnmarshalPayload(&beat))
	assert.Equal(t, domain.VersionToken(4), beat.LatestVersion)
}

func TestWebSocketHandler_PresenceReportRateLimited(t *testing.T) {
	svc := &fakeService{beat: &domain.HeartbeatResponse{LatestVersion: 1}}
	// Six per minute gives a burst of one.
	srv, _ := startWebSocketServer(t, svc, middleware.NewEditorLimiter(6))

	alice := dial(t, srv, "alice")
	report := &websocket.PresenceReportPayload{DocumentID: "doc-1"}
	send(t, alice, websocket.TypePresenceReport, report)
	send(t, alice, websocket.TypePresenceReport, report)

	var types []websocket.MessageType
	var limited websocket.ErrorPayload
	for i := 0; i < 2; i++ {
		msg := receive(t, alice)
		types = append(types, msg.Type)
		if msg.Type == websocket.TypeError {
			require.NoError(t, msg.UnmarshalPayload(&limited))
		}
	}

	assert.ElementsMatch(t, []websocket.MessageType{websocket.TypeHeartbeat, websocket.TypeError}, types)
	assert.Equal(t, "Rate limit exceeded", limited.Error)
}
