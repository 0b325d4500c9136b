package domain

import "time"

type ConflictEntry struct {
	RenderKind     RenderKind `json:"render_kind"`
	Label          string     `json:"label"`
	SubmittedValue string     `json:"submitted_value"`
}

// ConflictRecord holds the field values an editor submitted that clashed with
// a newer published version. A stored record always has at least one entry.
type ConflictRecord struct {
	DocumentID      string                     `json:"document_id"`
	EditorID        string                     `json:"editor_id"`
	BaselineVersion VersionToken               `json:"baseline_version"`
	LatestVersion   VersionToken               `json:"latest_version"`
	Entries         map[FieldKey]ConflictEntry `json:"entries"`
	DetectedAt      time.Time                  `json:"detected_at"`
	ExpiresAt       time.Time                  `json:"expires_at"`
}

func (r *ConflictRecord) Empty() bool {
	return r == nil || len(r.Entries) == 0
}

func (r *ConflictRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}
