package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/diff"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/metrics"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/registry"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/repository"
)

type harness struct {
	revisions *mockRevisionRepo
	documents *mockDocumentRepo
	conflicts *countingConflictRepo
	store     *ConflictStore
	versions  *VersionTracker
	registry  *registry.Registry
	detector  *ConflictDetector
	presence  *PresenceTracker
	metrics   *metrics.Metrics
	service   *DocumentService
	notifier  *mockNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		revisions: newMockRevisionRepo(),
		conflicts: &countingConflictRepo{ConflictRepository: repository.NewMemoryConflictRepository()},
		registry:  registry.New("post"),
		metrics:   metrics.New(),
		presence:  NewPresenceTracker(time.Minute),
		notifier:  &mockNotifier{},
	}
	logger := zap.NewNop()

	h.documents = newMockDocumentRepo(h.revisions)
	h.store = NewConflictStore(h.conflicts, DefaultConflictTTL, h.metrics, logger)
	h.versions = NewVersionTracker(h.revisions)
	h.detector = NewConflictDetector(h.versions, h.documents, h.store, h.registry, logger)
	h.service = NewDocumentService(
		h.documents,
		h.revisions,
		h.versions,
		h.detector,
		h.store,
		h.presence,
		h.registry,
		diff.NewEngine(),
		h.metrics,
		DocumentServiceConfig{PollInterval: 15 * time.Second, SaveGuardWindow: 10 * time.Second},
		logger,
	)
	h.service.SetNotifier(h.notifier)

	return h
}

// seed creates a document and publishes it once, returning the version.
func (h *harness) seed(t *testing.T, id string, fields map[domain.FieldKey]string) domain.VersionToken {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, h.documents.Create(ctx, &domain.Document{
		ID:     id,
		Type:   "post",
		Fields: map[domain.FieldKey]string{},
	}))
	doc, err := h.documents.Publish(ctx, id, "author", fields)
	require.NoError(t, err)
	return doc.Version
}

func (h *harness) publish(t *testing.T, id, editor string, fields map[domain.FieldKey]string) domain.VersionToken {
	t.Helper()

	doc, err := h.documents.Publish(context.Background(), id, editor, fields)
	require.NoError(t, err)
	return doc.Version
}

func fieldSet(title, body string) map[domain.FieldKey]string {
	return map[domain.FieldKey]string{
		domain.FieldTitle: title,
		domain.FieldBody:  body,
	}
}

func baselineAt(v domain.VersionToken) *domain.Baseline {
	return &domain.Baseline{Version: v, CapturedAt: time.Now()}
}
