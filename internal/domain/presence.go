package domain

import "time"

type PresenceReport struct {
	DocumentID          string              `json:"-"`
	EditorID            string              `json:"-"`
	FocusedField        FieldKey            `json:"focused_field,omitempty"`
	ModifiedFieldHashes map[FieldKey]string `json:"modified_field_hashes"`
	BaselineVersion     *VersionToken       `json:"baseline_version,omitempty"`
}

type EditorPresence struct {
	EditorID          string     `json:"editor_id"`
	FocusedField      FieldKey   `json:"focused_field,omitempty"`
	ModifiedFieldKeys []FieldKey `json:"modified_field_keys"`
	LastSeen          time.Time  `json:"last_seen"`
}

type HeartbeatResponse struct {
	LatestVersion      VersionToken     `json:"latest_version"`
	HasNewerVersion    bool             `json:"has_newer_version"`
	LatestBody         string           `json:"latest_body,omitempty"`
	PollIntervalSecond int              `json:"poll_interval_seconds"`
	OtherEditors       []EditorPresence `json:"other_editors"`
}
