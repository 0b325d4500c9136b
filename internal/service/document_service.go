package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/diff"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/metrics"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/registry"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/repository"
	"github.com/Surgeonito/fabrica-collaborative-editing/pkg/hash"
)

// RevisionNotifier is told about every published save.
type RevisionNotifier interface {
	RevisionPublished(documentID, editorID string, version domain.VersionToken) error
}

type DocumentServiceConfig struct {
	PollInterval    time.Duration
	SaveGuardWindow time.Duration
}

// ConflictFieldView is one conflicting field ready for manual merging.
// Text diffs the raw values; Visual is only set for rich fields.
type ConflictFieldView struct {
	Key                     domain.FieldKey   `json:"key"`
	Label                   string            `json:"label"`
	Kind                    domain.RenderKind `json:"kind"`
	SubmittedValue          string            `json:"submitted_value"`
	CurrentValue            string            `json:"current_value"`
	Text                    *diff.Result      `json:"text"`
	Visual                  *diff.Result      `json:"visual,omitempty"`
	PasteRestrictedElements []string          `json:"paste_restricted_elements,omitempty"`
}

type ConflictView struct {
	Conflict *domain.ConflictRecord `json:"conflict"`
	Fields   []ConflictFieldView    `json:"fields"`
}

// DocumentService runs the edit lifecycle: open a document with a baseline,
// save through conflict detection, and serve conflict, presence and diff
// queries.
type DocumentService struct {
	documents repository.DocumentRepository
	revisions repository.RevisionRepository
	versions  *VersionTracker
	detector  *ConflictDetector
	store     *ConflictStore
	presence  *PresenceTracker
	registry  *registry.Registry
	engine    *diff.Engine
	notifier  RevisionNotifier
	metrics   *metrics.Metrics
	cfg       DocumentServiceConfig
	logger    *zap.Logger
	now       func() time.Time
}

func NewDocumentService(
	documents repository.DocumentRepository,
	revisions repository.RevisionRepository,
	versions *VersionTracker,
	detector *ConflictDetector,
	store *ConflictStore,
	presence *PresenceTracker,
	reg *registry.Registry,
	engine *diff.Engine,
	m *metrics.Metrics,
	cfg DocumentServiceConfig,
	logger *zap.Logger,
) *DocumentService {
	return &DocumentService{
		documents: documents,
		revisions: revisions,
		versions:  versions,
		detector:  detector,
		store:     store,
		presence:  presence,
		registry:  reg,
		engine:    engine,
		metrics:   m,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *DocumentService) SetNotifier(n RevisionNotifier) {
	s.notifier = n
}

// Create stores a new document. It has no published history until its first
// save, so the first save never runs conflict detection.
func (s *DocumentService) Create(ctx context.Context, editorID string, req *domain.CreateDocumentRequest) (*domain.DocumentResponse, error) {
	now := s.now().UTC()
	doc := &domain.Document{
		ID:        uuid.New().String(),
		Type:      req.Type,
		Fields:    domain.CloneFields(req.Fields),
		CreatedAt: now,
		UpdatedAt: now,
		UpdatedBy: editorID,
	}

	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("document created", zap.String("document_id", doc.ID), zap.String("type", doc.Type))
	return domain.NewDocumentResponse(doc), nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*domain.DocumentResponse, error) {
	doc, err := s.documents.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return domain.NewDocumentResponse(doc), nil
}

// OpenForEdit captures the editor's baseline and returns the form content.
// A pending conflict pre-fills the form with the editor's held back values.
func (s *DocumentService) OpenForEdit(ctx context.Context, id, editorID string) (*domain.EditSession, error) {
	if id == "" || editorID == "" {
		return nil, fmt.Errorf("open for edit: %w", domain.ErrInvalidRequest)
	}

	doc, err := s.documents.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	log := s.logger.With(zap.String("document_id", id), zap.String("editor_id", editorID))

	form := domain.CloneFields(doc.Fields)
	tracked := make(map[domain.FieldKey]string)
	for _, field := range s.registry.Fields() {
		if !field.Kind.Valid() {
			continue
		}
		v, found, err := registry.Value(ctx, field, doc)
		if err != nil {
			log.Warn("failed to read tracked field", zap.String("field", string(field.Key)), zap.Error(err))
			continue
		}
		if !found {
			continue
		}
		form[field.Key] = v
		tracked[field.Key] = v
	}

	session := &domain.EditSession{
		Document:    domain.NewDocumentResponse(doc),
		FieldHashes: hash.Fields(tracked),
	}

	if s.registry.DocumentTypeEnabled(doc.Type) {
		latest, found, err := s.versions.Latest(ctx, id)
		switch {
		case err != nil:
			log.Warn("latest version lookup failed, editing untracked", zap.Error(err))
		case found:
			session.Baseline = &domain.Baseline{Version: latest, CapturedAt: s.now().UTC()}
		}
	}

	s.presence.Baseline(id, editorID, session.FieldHashes)

	record, found, err := s.store.Get(ctx, ConflictKey(id, editorID))
	if err != nil {
		log.Warn("failed to read pending conflict", zap.Error(err))
	}
	if found {
		session.Conflict = record
		session.HasConflict = true
		for key, entry := range record.Entries {
			form[key] = entry.SubmittedValue
		}
	}
	session.FormFields = form

	return session, nil
}

// Save publishes the fields conflict detection lets through. Detection
// problems never block the save; they come back as warnings.
func (s *DocumentService) Save(ctx context.Context, id, editorID string, req *domain.SaveDocumentRequest) (*domain.SaveResponse, error) {
	if id == "" {
		return nil, fmt.Errorf("save: %w", domain.ErrInvalidRequest)
	}

	saveReq := domain.SaveRequest{
		DocumentID: id,
		EditorID:   editorID,
		Fields:     req.Fields,
		Autosave:   req.Autosave,
	}
	if req.BaselineVersion != nil {
		saveReq.Baseline = &domain.Baseline{Version: *req.BaselineVersion}
		if req.BaselineAt != nil {
			saveReq.Baseline.CapturedAt = *req.BaselineAt
		}
	}

	log := s.logger.With(zap.String("document_id", id), zap.String("editor_id", editorID))

	result, err := s.detector.CheckAndApply(ctx, saveReq)
	if err != nil {
		log.Warn("conflict detection skipped", zap.Error(err))
		result.Warn(err)
	}

	resp := &domain.SaveResponse{Outcome: result.Outcome}

	if result.Outcome == domain.OutcomeAutosave {
		rev := &domain.Revision{
			ID:         uuid.New().String(),
			DocumentID: id,
			Fields:     result.Fields,
			EditorID:   editorID,
			Autosave:   true,
			CreatedAt:  s.now().UTC(),
		}
		if err := s.revisions.SaveAutosave(ctx, rev); err != nil {
			return nil, err
		}
		s.metrics.IncrementSaveOutcome(string(result.Outcome))
		return resp, nil
	}

	doc, err := s.documents.Publish(ctx, id, editorID, result.Fields)
	if err != nil {
		// The editor never sees a held back value from a failed save.
		if result.ConflictCreated {
			if delErr := s.store.Delete(ctx, ConflictKey(id, editorID)); delErr != nil {
				log.Warn("failed to drop conflict after publish error", zap.Error(delErr))
			}
		}
		return nil, err
	}
	s.metrics.IncrementSaveOutcome(string(result.Outcome))

	resp.Document = domain.NewDocumentResponse(doc)
	resp.ConflictCreated = result.ConflictCreated
	resp.Conflict = result.Record
	for _, w := range result.Warnings {
		resp.Warnings = append(resp.Warnings, w.Error())
	}

	if s.notifier != nil {
		if err := s.notifier.RevisionPublished(id, editorID, doc.Version); err != nil {
			log.Warn("failed to broadcast revision", zap.Error(err))
		}
	}

	log.Info("document saved",
		zap.String("outcome", string(result.Outcome)),
		zap.Int64("version", int64(doc.Version)),
	)

	return resp, nil
}

// Conflict returns the editor's pending conflict on a document.
func (s *DocumentService) Conflict(ctx context.Context, id, editorID string) (*domain.ConflictRecord, error) {
	key := ConflictKey(id, editorID)
	if key == "" {
		return nil, fmt.Errorf("conflict query: %w", domain.ErrInvalidRequest)
	}

	record, found, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("conflict: %w", domain.ErrNotFound)
	}
	return record, nil
}

// ConflictView renders the diff between every held back value and the
// current stored value. Diffs are computed on every call.
func (s *DocumentService) ConflictView(ctx context.Context, id, editorID string) (*ConflictView, error) {
	record, err := s.Conflict(ctx, id, editorID)
	if err != nil {
		return nil, err
	}

	doc, err := s.documents.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	keys := make([]domain.FieldKey, 0, len(record.Entries))
	for key := range record.Entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	view := &ConflictView{Conflict: record}
	for _, key := range keys {
		entry := record.Entries[key]

		field, ok := s.registry.Field(key)
		if !ok {
			field = domain.TrackedField{Key: key, Label: entry.Label, Kind: entry.RenderKind}
		}
		current, _, err := registry.Value(ctx, field, doc)
		if err != nil {
			return nil, err
		}

		fv := ConflictFieldView{
			Key:            key,
			Label:          entry.Label,
			Kind:           entry.RenderKind,
			SubmittedValue: entry.SubmittedValue,
			CurrentValue:   current,
		}

		fv.Text, err = s.RenderDiff(entry.SubmittedValue, current, domain.RenderPlainText)
		if err != nil {
			return nil, err
		}
		if entry.RenderKind == domain.RenderRichText {
			fv.Visual, err = s.RenderDiff(entry.SubmittedValue, current, domain.RenderRichText)
			if err != nil {
				return nil, err
			}
			fv.PasteRestrictedElements = fv.Visual.RestrictedElements
		}

		view.Fields = append(view.Fields, fv)
	}

	return view, nil
}

func (s *DocumentService) RenderDiff(left, right string, kind domain.RenderKind) (*diff.Result, error) {
	result, err := s.engine.Render(left, right, kind)
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementDiffRender(string(kind))
	return result, nil
}

// Heartbeat records a presence report and tells the editor whether a newer
// version was published since their baseline.
func (s *DocumentService) Heartbeat(ctx context.Context, report domain.PresenceReport) (*domain.HeartbeatResponse, error) {
	if _, err := s.presence.Report(report); err != nil {
		return nil, err
	}

	resp := &domain.HeartbeatResponse{
		PollIntervalSecond: int(s.cfg.PollInterval / time.Second),
		OtherEditors:       s.presence.SnapshotOthers(report.DocumentID, report.EditorID),
	}

	rev, found, err := s.versions.LatestRevision(ctx, report.DocumentID)
	if err != nil {
		s.logger.Warn("heartbeat version lookup failed",
			zap.String("document_id", report.DocumentID),
			zap.Error(err),
		)
		return resp, nil
	}
	if !found {
		return resp, nil
	}

	resp.LatestVersion = rev.Version
	if report.BaselineVersion != nil && rev.Version != *report.BaselineVersion {
		resp.HasNewerVersion = true
		resp.LatestBody = rev.Fields[domain.FieldBody]
	}

	return resp, nil
}

// Leave drops the editor from the document's presence list.
func (s *DocumentService) Leave(documentID, editorID string) []domain.EditorPresence {
	s.presence.Leave(documentID, editorID)
	return s.presence.SnapshotOthers(documentID, editorID)
}

// PrunePresence drops presence state of editors that stopped reporting.
func (s *DocumentService) PrunePresence() int {
	return s.presence.Prune()
}

// Presence lists every editor currently active on the document.
func (s *DocumentService) Presence(documentID string) []domain.EditorPresence {
	return s.presence.SnapshotOthers(documentID, "")
}

// SaveCheck reports whether another editor published within the save guard
// window, in which case the client should hold its save briefly.
func (s *DocumentService) SaveCheck(ctx context.Context, id, editorID string) (*domain.SaveCheckResponse, error) {
	if id == "" {
		return nil, fmt.Errorf("save check: %w", domain.ErrInvalidRequest)
	}

	resp := &domain.SaveCheckResponse{CanBeSaved: true}

	rev, found, err := s.versions.LatestRevision(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			return nil, err
		}
		s.logger.Warn("save check version lookup failed", zap.String("document_id", id), zap.Error(err))
		return resp, nil
	}
	if !found {
		return resp, nil
	}

	resp.LatestVersion = rev.Version
	resp.LastEditorID = rev.EditorID

	if rev.EditorID != editorID {
		age := s.now().Sub(rev.CreatedAt)
		if age >= 0 && age < s.cfg.SaveGuardWindow {
			resp.CanBeSaved = false
			resp.RetryAfter = (s.cfg.SaveGuardWindow - age).Round(time.Second).String()
		}
	}

	return resp, nil
}

func (s *DocumentService) PurgeExpiredConflicts(ctx context.Context) (int, error) {
	return s.store.PurgeExpired(ctx)
}
