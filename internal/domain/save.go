package domain

import "time"

// Baseline is the published version an editor started from. It travels with
// the client and is re-submitted with every save.
type Baseline struct {
	Version    VersionToken `json:"version"`
	CapturedAt time.Time    `json:"captured_at"`
}

type SaveRequest struct {
	DocumentID string
	EditorID   string
	Baseline   *Baseline
	Fields     map[FieldKey]string
	Autosave   bool
}

type SaveDocumentRequest struct {
	BaselineVersion *VersionToken       `json:"baseline_version"`
	BaselineAt      *time.Time          `json:"baseline_captured_at"`
	Fields          map[FieldKey]string `json:"fields" validate:"required"`
	Autosave        bool                `json:"autosave"`
}

type DetectionOutcome string

const (
	OutcomeUntracked DetectionOutcome = "untracked"
	OutcomeNoHistory DetectionOutcome = "no_history"
	OutcomeClean     DetectionOutcome = "clean"
	OutcomeMerged    DetectionOutcome = "merged"
	OutcomeConflict  DetectionOutcome = "conflict"
	OutcomeAutosave  DetectionOutcome = "autosave"
)

// DetectionResult is what the detector decided for one save attempt. Fields
// is the map to persist; conflicting fields already hold the stored value.
type DetectionResult struct {
	Fields          map[FieldKey]string
	Record          *ConflictRecord
	ConflictCreated bool
	Outcome         DetectionOutcome
	LatestVersion   VersionToken
	Warnings        []error
}

func (r *DetectionResult) Warn(err error) {
	r.Warnings = append(r.Warnings, err)
}

type SaveResponse struct {
	Document        *DocumentResponse `json:"document,omitempty"`
	Outcome         DetectionOutcome  `json:"outcome"`
	ConflictCreated bool              `json:"conflict_created"`
	Conflict        *ConflictRecord   `json:"conflict,omitempty"`
	Warnings        []string          `json:"warnings,omitempty"`
}

// EditSession is returned when an editor opens a document for editing.
// Baseline is nil when conflict tracking does not apply to the document.
type EditSession struct {
	Document    *DocumentResponse   `json:"document"`
	Baseline    *Baseline           `json:"baseline,omitempty"`
	FormFields  map[FieldKey]string `json:"form_fields"`
	FieldHashes map[FieldKey]string `json:"field_hashes"`
	Conflict    *ConflictRecord     `json:"conflict,omitempty"`
	HasConflict bool                `json:"has_conflict"`
}

type SaveCheckResponse struct {
	CanBeSaved    bool         `json:"can_be_saved"`
	LatestVersion VersionToken `json:"latest_version"`
	LastEditorID  string       `json:"last_editor_id,omitempty"`
	RetryAfter    string       `json:"retry_after,omitempty"`
}
