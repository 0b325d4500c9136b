package domain

import "time"

type FieldKey string

const (
	FieldTitle FieldKey = "title"
	FieldBody  FieldKey = "body"
)

type RenderKind string

const (
	RenderPlainText RenderKind = "plain"
	RenderRichText  RenderKind = "rich"
)

// Valid reports whether the kind can be compared and diffed.
func (k RenderKind) Valid() bool {
	return k == RenderPlainText || k == RenderRichText
}

// VersionToken identifies the latest published state of a document. It is
// assigned by the document store and only ever increases.
type VersionToken int64

type Document struct {
	ID        string              `json:"id"`
	Type      string              `json:"type"`
	Fields    map[FieldKey]string `json:"fields"`
	Version   VersionToken        `json:"version"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	UpdatedBy string              `json:"updated_by"`
}

// Field returns the stored value of key, or "" when unset.
func (d *Document) Field(key FieldKey) string {
	if d == nil || d.Fields == nil {
		return ""
	}
	return d.Fields[key]
}

type Revision struct {
	ID         string              `json:"id"`
	DocumentID string              `json:"document_id"`
	Version    VersionToken        `json:"version"`
	Fields     map[FieldKey]string `json:"fields"`
	EditorID   string              `json:"editor_id"`
	Autosave   bool                `json:"autosave"`
	CreatedAt  time.Time           `json:"created_at"`
}

type CreateDocumentRequest struct {
	Type   string              `json:"type" validate:"required,min=1,max=64"`
	Fields map[FieldKey]string `json:"fields"`
}

type DocumentResponse struct {
	ID        string              `json:"id"`
	Type      string              `json:"type"`
	Fields    map[FieldKey]string `json:"fields"`
	Version   VersionToken        `json:"version"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	UpdatedBy string              `json:"updated_by"`
}

func NewDocumentResponse(d *Document) *DocumentResponse {
	if d == nil {
		return nil
	}
	return &DocumentResponse{
		ID:        d.ID,
		Type:      d.Type,
		Fields:    CloneFields(d.Fields),
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		UpdatedBy: d.UpdatedBy,
	}
}

// CloneFields returns a shallow copy so callers never share a field map.
func CloneFields(fields map[FieldKey]string) map[FieldKey]string {
	out := make(map[FieldKey]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
