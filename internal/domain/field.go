package domain

import "context"

// FieldGetter reads a custom field value that is not kept in Document.Fields.
type FieldGetter func(ctx context.Context, documentID string) (string, bool, error)

// TrackedField is a field registered for conflict detection.
type TrackedField struct {
	Key    FieldKey    `json:"key" yaml:"key"`
	Label  string      `json:"label" yaml:"label"`
	Kind   RenderKind  `json:"kind" yaml:"kind"`
	Getter FieldGetter `json:"-" yaml:"-"`
}

type RenderRequest struct {
	Left  string     `json:"left"`
	Right string     `json:"right"`
	Kind  RenderKind `json:"kind" validate:"required,oneof=plain rich"`
}
