package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/repository"
)

type mockRevisionRepo struct {
	mu          sync.Mutex
	revisions   map[string][]*domain.Revision
	autosaves   map[string]*domain.Revision
	historyErr  error
	historyHits int
}

func newMockRevisionRepo() *mockRevisionRepo {
	return &mockRevisionRepo{
		revisions: make(map[string][]*domain.Revision),
		autosaves: make(map[string]*domain.Revision),
	}
}

func (m *mockRevisionRepo) Save(_ context.Context, rev *domain.Revision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revisions[rev.DocumentID] = append(m.revisions[rev.DocumentID], rev)
	return nil
}

func (m *mockRevisionRepo) SaveAutosave(_ context.Context, rev *domain.Revision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autosaves[rev.DocumentID+":"+rev.EditorID] = rev
	return nil
}

func (m *mockRevisionRepo) History(_ context.Context, documentID string, limit int) ([]*domain.Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyHits++
	if m.historyErr != nil {
		return nil, m.historyErr
	}

	var out []*domain.Revision
	for _, rev := range m.revisions[documentID] {
		if !rev.Autosave {
			out = append(out, rev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockRevisionRepo) FindAutosave(_ context.Context, documentID, editorID string) (*domain.Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rev, ok := m.autosaves[documentID+":"+editorID]; ok {
		return rev, nil
	}
	return nil, domain.ErrNotFound
}

type mockDocumentRepo struct {
	mu        sync.Mutex
	documents map[string]*domain.Document
	revisions *mockRevisionRepo
	findErr    error
	publishErr error
	now        time.Time
}

func newMockDocumentRepo(revisions *mockRevisionRepo) *mockDocumentRepo {
	return &mockDocumentRepo{
		documents: make(map[string]*domain.Document),
		revisions: revisions,
		now:       time.Now(),
	}
}

func (m *mockDocumentRepo) Create(_ context.Context, doc *domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.documents[doc.ID]; exists {
		return errors.New("document exists")
	}
	stored := *doc
	stored.Fields = domain.CloneFields(doc.Fields)
	m.documents[doc.ID] = &stored
	return nil
}

func (m *mockDocumentRepo) FindByID(_ context.Context, id string) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	doc, ok := m.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	out := *doc
	out.Fields = domain.CloneFields(doc.Fields)
	return &out, nil
}

func (m *mockDocumentRepo) Publish(ctx context.Context, id, editorID string, fields map[domain.FieldKey]string) (*domain.Document, error) {
	m.mu.Lock()
	if m.publishErr != nil {
		m.mu.Unlock()
		return nil, m.publishErr
	}
	doc, ok := m.documents[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	for k, v := range fields {
		doc.Fields[k] = v
	}
	doc.Version++
	doc.UpdatedBy = editorID
	doc.UpdatedAt = m.now
	out := *doc
	out.Fields = domain.CloneFields(doc.Fields)
	m.mu.Unlock()

	err := m.revisions.Save(ctx, &domain.Revision{
		ID:         fmt.Sprintf("%s:%d", id, out.Version),
		DocumentID: id,
		Version:    out.Version,
		Fields:     domain.CloneFields(out.Fields),
		EditorID:   editorID,
		CreatedAt:  m.now,
	})
	return &out, err
}

// countingConflictRepo wraps a real backend and can fail on demand.
type countingConflictRepo struct {
	repository.ConflictRepository
	calls     int
	putErr    error
	getErr    error
	deleteErr error
}

func (c *countingConflictRepo) Put(ctx context.Context, key string, record *domain.ConflictRecord) error {
	c.calls++
	if c.putErr != nil {
		return c.putErr
	}
	return c.ConflictRepository.Put(ctx, key, record)
}

func (c *countingConflictRepo) Get(ctx context.Context, key string) (*domain.ConflictRecord, error) {
	c.calls++
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.ConflictRepository.Get(ctx, key)
}

func (c *countingConflictRepo) Delete(ctx context.Context, key string) error {
	c.calls++
	if c.deleteErr != nil {
		return c.deleteErr
	}
	return c.ConflictRepository.Delete(ctx, key)
}

type mockNotifier struct {
	published []domain.VersionToken
}

func (m *mockNotifier) RevisionPublished(_, _ string, version domain.VersionToken) error {
	m.published = append(m.published, version)
	return nil
}
