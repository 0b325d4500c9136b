package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
)

type memoryConflictRepository struct {
	mu      sync.RWMutex
	records map[string]domain.ConflictRecord
}

// NewMemoryConflictRepository keeps conflicts in process memory. Records do
// not survive a restart.
func NewMemoryConflictRepository() ConflictRepository {
	return &memoryConflictRepository{
		records: make(map[string]domain.ConflictRecord),
	}
}

func (r *memoryConflictRepository) Put(_ context.Context, key string, record *domain.ConflictRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[key] = copyRecord(record)
	return nil
}

func (r *memoryConflictRepository) Get(_ context.Context, key string) (*domain.ConflictRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[key]
	if !ok {
		return nil, fmt.Errorf("conflict %s: %w", key, domain.ErrNotFound)
	}

	out := copyRecord(&record)
	return &out, nil
}

func (r *memoryConflictRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, key)
	return nil
}

func (r *memoryConflictRepository) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for key, record := range r.records {
		if record.Expired(now) {
			delete(r.records, key)
			purged++
		}
	}
	return purged, nil
}

func copyRecord(record *domain.ConflictRecord) domain.ConflictRecord {
	out := *record
	out.Entries = make(map[domain.FieldKey]domain.ConflictEntry, len(record.Entries))
	for k, v := range record.Entries {
		out.Entries[k] = v
	}
	return out
}
