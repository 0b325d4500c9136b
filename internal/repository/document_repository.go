package repository

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-kivik/kivik/v4"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
)

type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	FindByID(ctx context.Context, id string) (*domain.Document, error)
	// Publish stores fields as the next published version of the document
	// and records the matching revision.
	Publish(ctx context.Context, id, editorID string, fields map[domain.FieldKey]string) (*domain.Document, error)
}

type documentRepository struct {
	db        *kivik.DB
	revisions RevisionRepository
	now       func() time.Time
}

func NewDocumentRepository(client *kivik.Client, dbName string, revisions RevisionRepository) DocumentRepository {
	return &documentRepository{
		db:        client.DB(dbName),
		revisions: revisions,
		now:       time.Now,
	}
}

func documentDocID(id string) string {
	return fmt.Sprintf("document:%s", id)
}

func (r *documentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.Put(ctx, documentDocID(doc.ID), doc)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	return nil
}

func (r *documentRepository) FindByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.Get(ctx, documentDocID(id))

	var doc domain.Document
	if err := row.ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find document: %w", err)
	}

	return &doc, nil
}

func (r *documentRepository) Publish(ctx context.Context, id, editorID string, fields map[domain.FieldKey]string) (*domain.Document, error) {
	docID := documentDocID(id)

	var existingDoc map[string]interface{}
	row := r.db.Get(ctx, docID)
	if err := row.ScanDoc(&existingDoc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch existing document for publish: %w", err)
	}

	var version domain.VersionToken
	if v, ok := existingDoc["version"].(float64); ok {
		version = domain.VersionToken(v)
	}
	version++

	merged := make(map[string]string)
	if stored, ok := existingDoc["fields"].(map[string]interface{}); ok {
		for k, v := range stored {
			if s, ok := v.(string); ok {
				merged[k] = s
			}
		}
	}
	for k, v := range fields {
		merged[string(k)] = v
	}

	now := r.now().UTC()
	existingDoc["fields"] = merged
	existingDoc["version"] = version
	existingDoc["updated_at"] = now
	existingDoc["updated_by"] = editorID

	// A stale _rev fails here with 409, so two concurrent publishes never
	// claim the same version.
	if _, err := r.db.Put(ctx, docID, existingDoc); err != nil {
		return nil, fmt.Errorf("failed to publish document: %w", err)
	}

	doc, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rev := &domain.Revision{
		ID:         fmt.Sprintf("%s:%d", doc.ID, doc.Version),
		DocumentID: doc.ID,
		Version:    doc.Version,
		Fields:     domain.CloneFields(doc.Fields),
		EditorID:   editorID,
		CreatedAt:  now,
	}
	if err := r.revisions.Save(ctx, rev); err != nil {
		return nil, err
	}

	return doc, nil
}
