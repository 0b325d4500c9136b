package websocket

import (
	"encoding/json"
	"time"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
)

type MessageType string

const (
	TypeJoinDocument      MessageType = "join_document"
	TypeLeaveDocument     MessageType = "leave_document"
	TypePresenceReport    MessageType = "presence_report"
	TypePresenceChanged   MessageType = "presence_changed"
	TypeHeartbeat         MessageType = "heartbeat"
	TypeRevisionPublished MessageType = "revision_published"
	TypeError             MessageType = "error"
	TypePing              MessageType = "ping"
	TypePong              MessageType = "pong"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type DocumentPayload struct {
	DocumentID string `json:"document_id"`
}

type PresenceReportPayload struct {
	DocumentID          string                     `json:"document_id"`
	FocusedField        domain.FieldKey            `json:"focused_field,omitempty"`
	ModifiedFieldHashes map[domain.FieldKey]string `json:"modified_field_hashes"`
	BaselineVersion     *domain.VersionToken       `json:"baseline_version,omitempty"`
}

type PresenceChangedPayload struct {
	DocumentID string                  `json:"document_id"`
	Editors    []domain.EditorPresence `json:"editors"`
}

type RevisionPublishedPayload struct {
	DocumentID string              `json:"document_id"`
	EditorID   string              `json:"editor_id"`
	Version    domain.VersionToken `json:"version"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
