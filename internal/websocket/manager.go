package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

// Manager tracks connected editors and the document rooms they joined.
type Manager struct {
	clients          map[string]*Client
	editorIndex      map[string]map[string]bool
	rooms            map[string]map[string]bool
	clientRooms      map[string]map[string]bool
	clientsMutex     sync.RWMutex
	Register         chan *Client
	Unregister       chan *Client
	HandleMessage    chan *ClientMessage
	maxConnPerEditor int
	maxMessageSize   int64
	writeWait        time.Duration
	pongWait         time.Duration
	pingPeriod       time.Duration
	messageHandler   MessageHandler
	logger           *zap.Logger
}

type MessageHandler interface {
	HandleWebSocketMessage(client *Client, msg *Message) error
	// HandleLeave is called when a client leaves a document room, including
	// on disconnect.
	HandleLeave(client *Client, documentID string)
}

type Options struct {
	MaxConnPerEditor int
	MaxMessageSize   int64
	WriteWait        time.Duration
	PongWait         time.Duration
	PingPeriod       time.Duration
}

func NewManager(opts Options, logger *zap.Logger) *Manager {
	return &Manager{
		clients:          make(map[string]*Client),
		editorIndex:      make(map[string]map[string]bool),
		rooms:            make(map[string]map[string]bool),
		clientRooms:      make(map[string]map[string]bool),
		Register:         make(chan *Client),
		Unregister:       make(chan *Client),
		HandleMessage:    make(chan *ClientMessage),
		maxConnPerEditor: opts.MaxConnPerEditor,
		maxMessageSize:   opts.MaxMessageSize,
		writeWait:        opts.WriteWait,
		pongWait:         opts.PongWait,
		pingPeriod:       opts.PingPeriod,
		logger:           logger,
	}
}

func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.messageHandler = handler
}

func (m *Manager) Run() {
	for {
		select {
		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.HandleMessage:
			m.processMessage(clientMsg)
		}
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.editorIndex[client.EditorID] == nil {
		m.editorIndex[client.EditorID] = make(map[string]bool)
	}

	if len(m.editorIndex[client.EditorID]) >= m.maxConnPerEditor {
		m.logger.Warn("max connections reached", zap.String("editor_id", client.EditorID))
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	m.editorIndex[client.EditorID][client.ID] = true

	m.logger.Info("client registered", zap.String("client_id", client.ID), zap.String("editor_id", client.EditorID))
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()

	if _, ok := m.clients[client.ID]; !ok {
		m.clientsMutex.Unlock()
		return
	}

	delete(m.clients, client.ID)
	delete(m.editorIndex[client.EditorID], client.ID)
	if len(m.editorIndex[client.EditorID]) == 0 {
		delete(m.editorIndex, client.EditorID)
	}

	var left []string
	for documentID := range m.clientRooms[client.ID] {
		m.removeFromRoom(client.ID, documentID)
		left = append(left, documentID)
	}
	delete(m.clientRooms, client.ID)

	close(client.Send)
	m.clientsMutex.Unlock()

	m.logger.Info("client unregistered", zap.String("client_id", client.ID))

	if m.messageHandler != nil {
		for _, documentID := range left {
			m.messageHandler.HandleLeave(client, documentID)
		}
	}
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		m.logger.Warn("invalid websocket message", zap.String("client_id", clientMsg.Client.ID), zap.Error(err))
		return
	}

	if m.messageHandler != nil {
		if err := m.messageHandler.HandleWebSocketMessage(clientMsg.Client, &msg); err != nil {
			m.logger.Warn("failed to handle websocket message",
				zap.String("client_id", clientMsg.Client.ID),
				zap.String("type", string(msg.Type)),
				zap.Error(err),
			)
		}
	}
}

// Join adds the client to the document's room.
func (m *Manager) Join(client *Client, documentID string) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; !ok {
		return
	}
	if m.rooms[documentID] == nil {
		m.rooms[documentID] = make(map[string]bool)
	}
	m.rooms[documentID][client.ID] = true
	if m.clientRooms[client.ID] == nil {
		m.clientRooms[client.ID] = make(map[string]bool)
	}
	m.clientRooms[client.ID][documentID] = true
}

// Leave removes the client from the document's room and reports whether it
// was a member.
func (m *Manager) Leave(client *Client, documentID string) bool {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if !m.rooms[documentID][client.ID] {
		return false
	}
	m.removeFromRoom(client.ID, documentID)
	delete(m.clientRooms[client.ID], documentID)
	return true
}

func (m *Manager) removeFromRoom(clientID, documentID string) {
	delete(m.rooms[documentID], clientID)
	if len(m.rooms[documentID]) == 0 {
		delete(m.rooms, documentID)
	}
}

// BroadcastToDocument queues message for every client in the document's
// room except excludeClientID. Clients with a full buffer are dropped.
func (m *Manager) BroadcastToDocument(documentID string, message *Message, excludeClientID string) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	var slow []*Client

	m.clientsMutex.RLock()
	for clientID := range m.rooms[documentID] {
		if clientID == excludeClientID {
			continue
		}
		client := m.clients[clientID]
		select {
		case client.Send <- messageBytes:
		default:
			m.logger.Warn("client send buffer full, closing connection", zap.String("client_id", clientID))
			slow = append(slow, client)
		}
	}
	m.clientsMutex.RUnlock()

	for _, client := range slow {
		go func(c *Client) { m.Unregister <- c }(client)
	}

	return nil
}

// SendToClient queues message for one client. Messages for a client that
// already unregistered are dropped.
func (m *Manager) SendToClient(client *Client, message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	if m.clients[client.ID] != client {
		return nil
	}

	select {
	case client.Send <- messageBytes:
	default:
		m.logger.Warn("client send buffer full", zap.String("client_id", client.ID))
	}

	return nil
}

// RevisionPublished tells everyone editing the document that a new version
// is live.
func (m *Manager) RevisionPublished(documentID, editorID string, version domain.VersionToken) error {
	msg, err := NewMessage(TypeRevisionPublished, &RevisionPublishedPayload{
		DocumentID: documentID,
		EditorID:   editorID,
		Version:    version,
	})
	if err != nil {
		return err
	}
	return m.BroadcastToDocument(documentID, msg, "")
}

func (m *Manager) RoomSize(documentID string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.rooms[documentID])
}

func (m *Manager) GetEditorConnections(editorID string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	if clients, exists := m.editorIndex[editorID]; exists {
		return len(clients)
	}
	return 0
}
