package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/diff"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/registry"
)

type LatestVersionSource interface {
	Latest(ctx context.Context, documentID string) (domain.VersionToken, bool, error)
}

type DocumentReader interface {
	FindByID(ctx context.Context, id string) (*domain.Document, error)
}

type FieldSource interface {
	Fields() []domain.TrackedField
}

// ConflictDetector decides, at save time, which submitted fields may be
// persisted and which clash with a version published after the editor's
// baseline.
type ConflictDetector struct {
	versions  LatestVersionSource
	documents DocumentReader
	store     *ConflictStore
	fields    FieldSource
	logger    *zap.Logger
	now       func() time.Time
}

func NewConflictDetector(
	versions LatestVersionSource,
	documents DocumentReader,
	store *ConflictStore,
	fields FieldSource,
	logger *zap.Logger,
) *ConflictDetector {
	return &ConflictDetector{
		versions:  versions,
		documents: documents,
		store:     store,
		fields:    fields,
		logger:    logger,
		now:       time.Now,
	}
}

// CheckAndApply runs detection for one save attempt. The returned result is
// never nil; its Fields map is what should be persisted. Detection failures
// degrade to persisting as submitted and are reported in result.Warnings.
// A non-nil error means the request itself was unusable: a missing document
// id, or a missing editor id (the save may still proceed untracked).
func (d *ConflictDetector) CheckAndApply(ctx context.Context, req domain.SaveRequest) (*domain.DetectionResult, error) {
	result := &domain.DetectionResult{
		Fields:  domain.CloneFields(req.Fields),
		Outcome: domain.OutcomeUntracked,
	}

	if req.DocumentID == "" {
		return result, fmt.Errorf("save without document id: %w", domain.ErrInvalidRequest)
	}
	if req.Autosave {
		result.Outcome = domain.OutcomeAutosave
		return result, nil
	}
	if req.Baseline == nil {
		return result, nil
	}

	key := ConflictKey(req.DocumentID, req.EditorID)
	if key == "" {
		return result, fmt.Errorf("save without editor id: %w", domain.ErrInvalidRequest)
	}

	log := d.logger.With(zap.String("document_id", req.DocumentID), zap.String("editor_id", req.EditorID))

	latest, found, err := d.versions.Latest(ctx, req.DocumentID)
	if err != nil {
		log.Warn("latest version lookup failed, saving as submitted", zap.Error(err))
		result.Outcome = domain.OutcomeNoHistory
		result.Warn(err)
		return result, nil
	}
	if !found {
		result.Outcome = domain.OutcomeNoHistory
		return result, nil
	}
	result.LatestVersion = latest

	if latest == req.Baseline.Version {
		result.Outcome = domain.OutcomeClean
		if err := d.store.Delete(ctx, key); err != nil {
			log.Warn("failed to clear conflict", zap.Error(err))
			result.Warn(err)
		}
		return result, nil
	}

	doc, err := d.documents.FindByID(ctx, req.DocumentID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Warn("failed to load stored document, saving as submitted", zap.Error(err))
		}
		result.Outcome = domain.OutcomeNoHistory
		result.Warn(err)
		return result, nil
	}

	entries := make(map[domain.FieldKey]domain.ConflictEntry)
	for _, field := range d.fields.Fields() {
		if !field.Kind.Valid() {
			result.Warn(unsupportedKind(field))
			continue
		}

		submitted, ok := req.Fields[field.Key]
		if !ok {
			continue
		}

		current, found, err := registry.Value(ctx, field, doc)
		if err != nil {
			log.Warn("failed to read tracked field", zap.String("field", string(field.Key)), zap.Error(err))
			result.Warn(&FieldError{Key: field.Key, Err: err})
			continue
		}
		// Nothing stored yet, so the submitted value cannot clash.
		if !found {
			continue
		}

		if diff.Equal(current, submitted) {
			continue
		}

		entries[field.Key] = domain.ConflictEntry{
			RenderKind:     field.Kind,
			Label:          field.Label,
			SubmittedValue: submitted,
		}
		result.Fields[field.Key] = current
	}

	if len(entries) == 0 {
		result.Outcome = domain.OutcomeMerged
		if err := d.store.Delete(ctx, key); err != nil {
			log.Warn("failed to clear conflict", zap.Error(err))
			result.Warn(err)
		}
		return result, nil
	}

	record := &domain.ConflictRecord{
		DocumentID:      req.DocumentID,
		EditorID:        req.EditorID,
		BaselineVersion: req.Baseline.Version,
		LatestVersion:   latest,
		Entries:         entries,
		DetectedAt:      d.now(),
	}
	result.Outcome = domain.OutcomeConflict
	result.Record = record

	// The held back values stay in result.Record so the caller can hand
	// them back to the editor even when the store is down.
	if err := d.store.Put(ctx, key, record, 0); err != nil {
		log.Error("failed to store conflict", zap.Error(err))
		result.Warn(err)
		return result, nil
	}
	result.ConflictCreated = true

	log.Info("conflict detected",
		zap.Int64("baseline_version", int64(req.Baseline.Version)),
		zap.Int64("latest_version", int64(latest)),
		zap.Int("fields", len(entries)),
	)

	return result, nil
}
