package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
)

func newRecord(doc, editor string, expires time.Time) *domain.ConflictRecord {
	return &domain.ConflictRecord{
		DocumentID:      doc,
		EditorID:        editor,
		BaselineVersion: 1,
		LatestVersion:   2,
		Entries: map[domain.FieldKey]domain.ConflictEntry{
			domain.FieldBody: {RenderKind: domain.RenderRichText, Label: "Content", SubmittedValue: "Hi"},
		},
		DetectedAt: expires.Add(-time.Hour).UTC().Truncate(time.Second),
		ExpiresAt:  expires.UTC().Truncate(time.Second),
	}
}

func conflictBackends(t *testing.T) map[string]ConflictRepository {
	t.Helper()

	sqliteRepo, closeDB, err := OpenSQLiteConflictRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeDB() })

	return map[string]ConflictRepository{
		"memory": NewMemoryConflictRepository(),
		"sqlite": sqliteRepo,
	}
}

func TestConflictRepository_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	for name, repo := range conflictBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.Get(ctx, "d1:e1")
			assert.True(t, errors.Is(err, domain.ErrNotFound))

			rec := newRecord("d1", "e1", now.Add(time.Hour))
			require.NoError(t, repo.Put(ctx, "d1:e1", rec))

			got, err := repo.Get(ctx, "d1:e1")
			require.NoError(t, err)
			assert.Equal(t, rec.DocumentID, got.DocumentID)
			assert.Equal(t, rec.Entries, got.Entries)
			assert.True(t, rec.ExpiresAt.Equal(got.ExpiresAt))

			rec.Entries = map[domain.FieldKey]domain.ConflictEntry{
				domain.FieldTitle: {RenderKind: domain.RenderPlainText, Label: "Title", SubmittedValue: "New"},
			}
			require.NoError(t, repo.Put(ctx, "d1:e1", rec))
			got, err = repo.Get(ctx, "d1:e1")
			require.NoError(t, err)
			assert.Len(t, got.Entries, 1)
			assert.Contains(t, got.Entries, domain.FieldTitle)

			require.NoError(t, repo.Delete(ctx, "d1:e1"))
			require.NoError(t, repo.Delete(ctx, "d1:e1"))
			_, err = repo.Get(ctx, "d1:e1")
			assert.True(t, errors.Is(err, domain.ErrNotFound))
		})
	}
}

func TestConflictRepository_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	for name, repo := range conflictBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, repo.Put(ctx, "old", newRecord("d1", "e1", now.Add(-time.Minute))))
			require.NoError(t, repo.Put(ctx, "fresh", newRecord("d1", "e2", now.Add(time.Hour))))

			n, err := repo.PurgeExpired(ctx, now)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			_, err = repo.Get(ctx, "old")
			assert.True(t, errors.Is(err, domain.ErrNotFound))
			_, err = repo.Get(ctx, "fresh")
			assert.NoError(t, err)
		})
	}
}

func TestMemoryConflictRepository_CopiesEntries(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryConflictRepository()

	rec := newRecord("d1", "e1", time.Now().Add(time.Hour))
	require.NoError(t, repo.Put(ctx, "k", rec))
	rec.Entries[domain.FieldTitle] = domain.ConflictEntry{SubmittedValue: "mutated"}

	got, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.NotContains(t, got.Entries, domain.FieldTitle)
}
