package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/metrics"
	"github.com/Surgeonito/fabrica-collaborative-editing/internal/repository"
)

// DefaultConflictTTL is how long an unresolved conflict is kept.
const DefaultConflictTTL = 7 * 24 * time.Hour

// ConflictKey derives the store key for an editor's conflict on a document.
// It returns "" when either identity is missing.
func ConflictKey(documentID, editorID string) string {
	if documentID == "" || editorID == "" {
		return ""
	}
	return url.QueryEscape(documentID) + ":" + url.QueryEscape(editorID)
}

// ConflictStore is an expiring keyed store of pending conflict records.
// Operations on the same key are serialized.
type ConflictStore struct {
	repo    repository.ConflictRepository
	ttl     time.Duration
	locks   *keyLock
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewConflictStore(repo repository.ConflictRepository, ttl time.Duration, m *metrics.Metrics, logger *zap.Logger) *ConflictStore {
	if ttl <= 0 {
		ttl = DefaultConflictTTL
	}
	return &ConflictStore{
		repo:    repo,
		ttl:     ttl,
		locks:   newKeyLock(),
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *ConflictStore) TTL() time.Duration {
	return s.ttl
}

// Put stores record under key until ttl elapses. A zero ttl uses the store
// default. Records without entries are rejected.
func (s *ConflictStore) Put(ctx context.Context, key string, record *domain.ConflictRecord, ttl time.Duration) error {
	if key == "" {
		return fmt.Errorf("conflict store put: %w", domain.ErrInvalidRequest)
	}
	if record.Empty() {
		return fmt.Errorf("conflict store put: empty record: %w", domain.ErrInvalidRequest)
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	stored := *record
	if stored.DetectedAt.IsZero() {
		stored.DetectedAt = s.now()
	}
	stored.ExpiresAt = s.now().Add(ttl)

	if err := s.repo.Put(ctx, key, &stored); err != nil {
		s.metrics.IncrementStoreError("put")
		return storeError("put", err)
	}

	record.DetectedAt = stored.DetectedAt
	record.ExpiresAt = stored.ExpiresAt
	return nil
}

// Get returns the live record for key. Expired records read as absent and
// are removed on a best-effort basis.
func (s *ConflictStore) Get(ctx context.Context, key string) (*domain.ConflictRecord, bool, error) {
	if key == "" {
		return nil, false, fmt.Errorf("conflict store get: %w", domain.ErrInvalidRequest)
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	record, err := s.repo.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		s.metrics.IncrementStoreError("get")
		return nil, false, storeError("get", err)
	}

	if record.Expired(s.now()) {
		if err := s.repo.Delete(ctx, key); err != nil {
			s.logger.Warn("failed to drop expired conflict", zap.String("key", key), zap.Error(err))
		}
		return nil, false, nil
	}
	if record.Empty() {
		return nil, false, nil
	}

	return record, true, nil
}

func (s *ConflictStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("conflict store delete: %w", domain.ErrInvalidRequest)
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	if err := s.repo.Delete(ctx, key); err != nil {
		s.metrics.IncrementStoreError("delete")
		return storeError("delete", err)
	}
	return nil
}

// PurgeExpired removes every record whose TTL has elapsed.
func (s *ConflictStore) PurgeExpired(ctx context.Context) (int, error) {
	n, err := s.repo.PurgeExpired(ctx, s.now())
	if n > 0 {
		s.metrics.AddPurged(n)
	}
	if err != nil {
		s.metrics.IncrementStoreError("purge")
		return n, storeError("purge", err)
	}
	return n, nil
}
