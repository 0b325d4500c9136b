package repository

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-kivik/kivik/v4"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
)

const (
	revisionIndexDDoc = "revisions"
	revisionIndexName = "by-document-version"

	// DefaultHistoryLimit applies when History is called without a limit.
	DefaultHistoryLimit = 50
)

type RevisionRepository interface {
	Save(ctx context.Context, rev *domain.Revision) error
	// SaveAutosave overwrites the single autosave slot of an editor.
	SaveAutosave(ctx context.Context, rev *domain.Revision) error
	// History lists published revisions, newest first. Autosaves are never
	// included.
	History(ctx context.Context, documentID string, limit int) ([]*domain.Revision, error)
	FindAutosave(ctx context.Context, documentID, editorID string) (*domain.Revision, error)
}

type revisionRepository struct {
	db *kivik.DB
}

func NewRevisionRepository(client *kivik.Client, dbName string) RevisionRepository {
	return &revisionRepository{
		db: client.DB(dbName),
	}
}

// revisionDocID zero-pads the version so ids sort in version order.
func revisionDocID(documentID string, version domain.VersionToken) string {
	return fmt.Sprintf("revision:%s:%012d", documentID, version)
}

func (r *revisionRepository) Save(ctx context.Context, rev *domain.Revision) error {
	if _, err := r.db.Put(ctx, revisionDocID(rev.DocumentID, rev.Version), rev); err != nil {
		return fmt.Errorf("failed to save revision: %w", err)
	}

	return nil
}

func autosaveDocID(documentID, editorID string) string {
	return fmt.Sprintf("autosave:%s:%s", documentID, editorID)
}

func (r *revisionRepository) SaveAutosave(ctx context.Context, rev *domain.Revision) error {
	docID := autosaveDocID(rev.DocumentID, rev.EditorID)

	doc := map[string]interface{}{
		"id":          rev.ID,
		"document_id": rev.DocumentID,
		"version":     rev.Version,
		"fields":      rev.Fields,
		"editor_id":   rev.EditorID,
		"autosave":    true,
		"created_at":  rev.CreatedAt,
	}

	currentRev, err := r.db.GetRev(ctx, docID)
	switch {
	case err == nil:
		doc["_rev"] = currentRev
	case kivik.HTTPStatus(err) != http.StatusNotFound:
		return fmt.Errorf("failed to fetch autosave revision: %w", err)
	}

	if _, err := r.db.Put(ctx, docID, doc); err != nil {
		return fmt.Errorf("failed to save autosave: %w", err)
	}

	return nil
}

func (r *revisionRepository) FindAutosave(ctx context.Context, documentID, editorID string) (*domain.Revision, error) {
	var rev domain.Revision
	if err := r.db.Get(ctx, autosaveDocID(documentID, editorID)).ScanDoc(&rev); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, fmt.Errorf("autosave: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find autosave: %w", err)
	}

	return &rev, nil
}

// History relies on the by-document-version index for ordering; CouchDB
// caps an unlimited _find at 25 rows, so the limit is always sent.
func (r *revisionRepository) History(ctx context.Context, documentID string, limit int) ([]*domain.Revision, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"document_id": documentID,
			"autosave":    false,
		},
		"sort": []map[string]string{
			{"document_id": "desc"},
			{"version": "desc"},
		},
		"limit":     limit,
		"use_index": []string{revisionIndexDDoc, revisionIndexName},
	}

	rows := r.db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	defer rows.Close()

	var revisions []*domain.Revision
	for rows.Next() {
		var rev domain.Revision
		if err := rows.ScanDoc(&rev); err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		if rev.Autosave {
			continue
		}
		revisions = append(revisions, &rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}

	return revisions, nil
}
