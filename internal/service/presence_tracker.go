package service

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
)

// DefaultPresenceStaleAfter drops editors that have not reported for this
// long.
const DefaultPresenceStaleAfter = 60 * time.Second

type presenceEntry struct {
	focused  domain.FieldKey
	modified []domain.FieldKey
	lastSeen time.Time
}

type loadEntry struct {
	hashes  map[domain.FieldKey]string
	touched time.Time
}

// PresenceTracker keeps the latest report per editor per document. It is
// advisory only and lives in memory.
type PresenceTracker struct {
	mu         sync.Mutex
	documents  map[string]map[string]*presenceEntry
	loadHashes map[string]*loadEntry
	staleAfter time.Duration
	lastPrune  time.Time
	now        func() time.Time
}

func NewPresenceTracker(staleAfter time.Duration) *PresenceTracker {
	if staleAfter <= 0 {
		staleAfter = DefaultPresenceStaleAfter
	}
	return &PresenceTracker{
		documents:  make(map[string]map[string]*presenceEntry),
		loadHashes: make(map[string]*loadEntry),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Baseline records the field hashes an editor's form was loaded with.
func (t *PresenceTracker) Baseline(documentID, editorID string, hashes map[domain.FieldKey]string) {
	key := ConflictKey(documentID, editorID)
	if key == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.loadHashes[key] = &loadEntry{hashes: domain.CloneFields(hashes), touched: t.now()}
}

// Report replaces the editor's previous report. A field counts as modified
// when its reported hash differs from the hash captured at load time.
func (t *PresenceTracker) Report(report domain.PresenceReport) ([]domain.FieldKey, error) {
	key := ConflictKey(report.DocumentID, report.EditorID)
	if key == "" {
		return nil, fmt.Errorf("presence report: %w", domain.ErrInvalidRequest)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var loaded map[domain.FieldKey]string
	if entry, ok := t.loadHashes[key]; ok {
		entry.touched = t.now()
		loaded = entry.hashes
	}
	modified := make([]domain.FieldKey, 0, len(report.ModifiedFieldHashes))
	for field, h := range report.ModifiedFieldHashes {
		if base, ok := loaded[field]; ok && base == h {
			continue
		}
		modified = append(modified, field)
	}
	sort.Slice(modified, func(i, j int) bool { return modified[i] < modified[j] })

	editors, ok := t.documents[report.DocumentID]
	if !ok {
		editors = make(map[string]*presenceEntry)
		t.documents[report.DocumentID] = editors
	}
	editors[report.EditorID] = &presenceEntry{
		focused:  report.FocusedField,
		modified: modified,
		lastSeen: t.now(),
	}

	return modified, nil
}

// SnapshotOthers lists every live editor of the document except the caller,
// ordered by editor id.
func (t *PresenceTracker) SnapshotOthers(documentID, excludingEditorID string) []domain.EditorPresence {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if now.Sub(t.lastPrune) >= t.staleAfter {
		t.pruneLocked(now)
	}

	editors := t.documents[documentID]
	cutoff := now.Add(-t.staleAfter)

	out := make([]domain.EditorPresence, 0, len(editors))
	for editorID, e := range editors {
		if e.lastSeen.Before(cutoff) {
			delete(editors, editorID)
			delete(t.loadHashes, ConflictKey(documentID, editorID))
			continue
		}
		if editorID == excludingEditorID {
			continue
		}
		out = append(out, domain.EditorPresence{
			EditorID:          editorID,
			FocusedField:      e.focused,
			ModifiedFieldKeys: append([]domain.FieldKey(nil), e.modified...),
			LastSeen:          e.lastSeen,
		})
	}
	if len(editors) == 0 {
		delete(t.documents, documentID)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].EditorID < out[j].EditorID })
	return out
}

// Leave forgets an editor, typically when their connection closes.
func (t *PresenceTracker) Leave(documentID, editorID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if editors, ok := t.documents[documentID]; ok {
		delete(editors, editorID)
		if len(editors) == 0 {
			delete(t.documents, documentID)
		}
	}
	delete(t.loadHashes, ConflictKey(documentID, editorID))
}

// Prune drops stale editors and the load hashes of editors that opened a
// form but stopped reporting. It returns the number of load hashes removed.
func (t *PresenceTracker) Prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pruneLocked(t.now())
}

func (t *PresenceTracker) pruneLocked(now time.Time) int {
	t.lastPrune = now
	cutoff := now.Add(-t.staleAfter)

	for documentID, editors := range t.documents {
		for editorID, e := range editors {
			if e.lastSeen.Before(cutoff) {
				delete(editors, editorID)
			}
		}
		if len(editors) == 0 {
			delete(t.documents, documentID)
		}
	}

	removed := 0
	for key, entry := range t.loadHashes {
		if entry.touched.Before(cutoff) {
			delete(t.loadHashes, key)
			removed++
		}
	}
	return removed
}
