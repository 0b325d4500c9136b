package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/repository"
)

// VersionTracker resolves the latest published version of a document from
// its revision history. Autosaves never count as published.
type VersionTracker struct {
	revisions repository.RevisionRepository
}

func NewVersionTracker(revisions repository.RevisionRepository) *VersionTracker {
	return &VersionTracker{revisions: revisions}
}

// Latest returns the newest published version. found is false when the
// document has no published history yet.
func (t *VersionTracker) Latest(ctx context.Context, documentID string) (domain.VersionToken, bool, error) {
	rev, found, err := t.LatestRevision(ctx, documentID)
	if err != nil || !found {
		return 0, found, err
	}
	return rev.Version, true, nil
}

func (t *VersionTracker) LatestRevision(ctx context.Context, documentID string) (*domain.Revision, bool, error) {
	if documentID == "" {
		return nil, false, fmt.Errorf("latest version: %w", domain.ErrInvalidRequest)
	}

	history, err := t.revisions.History(ctx, documentID, 1)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("latest version of %s: %w", documentID, err)
	}

	var latest *domain.Revision
	for _, rev := range history {
		if rev.Autosave {
			continue
		}
		if latest == nil || rev.Version > latest.Version {
			latest = rev
		}
	}
	if latest == nil {
		return nil, false, nil
	}

	return latest, true, nil
}
