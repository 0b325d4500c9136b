package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kivik/kivik/v4"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
)

// ConflictRepository is the expiring backend behind the conflict store.
// Get returns domain.ErrNotFound for missing keys. Delete of a missing key
// succeeds.
type ConflictRepository interface {
	Put(ctx context.Context, key string, record *domain.ConflictRecord) error
	Get(ctx context.Context, key string) (*domain.ConflictRecord, error)
	Delete(ctx context.Context, key string) error
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

const (
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

	conflictIndexDDoc = "conflicts"
	conflictIndexName = "by-expiry"

	purgeBatchSize = 200
)

type couchConflictRepository struct {
	db *kivik.DB
}

type conflictDoc struct {
	ID        string                                   `json:"_id"`
	Rev       string                                   `json:"_rev,omitempty"`
	DocType   string                                   `json:"doc_type"`
	Document  string                                   `json:"document_id"`
	Editor    string                                   `json:"editor_id"`
	Baseline  domain.VersionToken                      `json:"baseline_version"`
	Latest    domain.VersionToken                      `json:"latest_version"`
	Entries   map[domain.FieldKey]domain.ConflictEntry `json:"entries"`
	Detected  string                                   `json:"detected_at"`
	ExpiresAt string                                   `json:"expires_at"`
}

func NewCouchConflictRepository(client *kivik.Client, dbName string) ConflictRepository {
	return &couchConflictRepository{
		db: client.DB(dbName),
	}
}

func conflictDocID(key string) string {
	return fmt.Sprintf("conflict:%s", key)
}

func (r *couchConflictRepository) Put(ctx context.Context, key string, record *domain.ConflictRecord) error {
	doc := conflictDoc{
		ID:        conflictDocID(key),
		DocType:   "conflict",
		Document:  record.DocumentID,
		Editor:    record.EditorID,
		Baseline:  record.BaselineVersion,
		Latest:    record.LatestVersion,
		Entries:   record.Entries,
		Detected:  record.DetectedAt.UTC().Format(timeLayout),
		ExpiresAt: record.ExpiresAt.UTC().Format(timeLayout),
	}

	rev, err := r.db.GetRev(ctx, doc.ID)
	switch {
	case err == nil:
		doc.Rev = rev
	case kivik.HTTPStatus(err) != 404:
		return fmt.Errorf("failed to fetch conflict revision: %w", err)
	}

	if _, err := r.db.Put(ctx, doc.ID, doc); err != nil {
		return fmt.Errorf("failed to store conflict: %w", err)
	}

	return nil
}

func (r *couchConflictRepository) Get(ctx context.Context, key string) (*domain.ConflictRecord, error) {
	row := r.db.Get(ctx, conflictDocID(key))

	var doc conflictDoc
	if err := row.ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == 404 {
			return nil, fmt.Errorf("conflict %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}

	return docToConflict(&doc)
}

func (r *couchConflictRepository) Delete(ctx context.Context, key string) error {
	id := conflictDocID(key)

	rev, err := r.db.GetRev(ctx, id)
	if err != nil {
		if kivik.HTTPStatus(err) == 404 {
			return nil
		}
		return fmt.Errorf("failed to get conflict for delete: %w", err)
	}

	if _, err := r.db.Delete(ctx, id, rev); err != nil {
		if kivik.HTTPStatus(err) == 404 {
			return nil
		}
		return fmt.Errorf("failed to delete conflict: %w", err)
	}

	return nil
}

// PurgeExpired deletes expired conflicts in batches until a batch comes
// back short. A batch with delete failures ends the pass so the same rows
// are not fetched again.
func (r *couchConflictRepository) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.UTC().Format(timeLayout)

	purged := 0
	for {
		stale, err := r.findExpired(ctx, cutoff)
		if err != nil {
			return purged, err
		}

		var errs []error
		for _, doc := range stale {
			if _, err := r.db.Delete(ctx, doc.ID, doc.Rev); err != nil && kivik.HTTPStatus(err) != 404 {
				errs = append(errs, err)
				continue
			}
			purged++
		}

		if len(errs) > 0 {
			return purged, errors.Join(errs...)
		}
		if len(stale) < purgeBatchSize {
			return purged, nil
		}
	}
}

func (r *couchConflictRepository) findExpired(ctx context.Context, cutoff string) ([]conflictDoc, error) {
	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"doc_type":   "conflict",
			"expires_at": map[string]interface{}{"$lte": cutoff},
		},
		"fields":    []string{"_id", "_rev"},
		"limit":     purgeBatchSize,
		"use_index": []string{conflictIndexDDoc, conflictIndexName},
	}

	rows := r.db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query expired conflicts: %w", err)
	}
	defer rows.Close()

	var stale []conflictDoc
	for rows.Next() {
		var doc conflictDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		stale = append(stale, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query expired conflicts: %w", err)
	}

	return stale, nil
}

func docToConflict(doc *conflictDoc) (*domain.ConflictRecord, error) {
	detected, err := time.Parse(timeLayout, doc.Detected)
	if err != nil {
		return nil, fmt.Errorf("failed to parse detected_at: %w", err)
	}
	expires, err := time.Parse(timeLayout, doc.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expires_at: %w", err)
	}

	return &domain.ConflictRecord{
		DocumentID:      doc.Document,
		EditorID:        doc.Editor,
		BaselineVersion: doc.Baseline,
		LatestVersion:   doc.Latest,
		Entries:         doc.Entries,
		DetectedAt:      detected,
		ExpiresAt:       expires,
	}, nil
}
