package service

import (
	"fmt"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
)

// FieldError reports a tracked field that was skipped during detection.
type FieldError struct {
	Key domain.FieldKey
	Err error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: %v", e.Key, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func unsupportedKind(field domain.TrackedField) error {
	return &FieldError{
		Key: field.Key,
		Err: fmt.Errorf("render kind %q: %w", field.Kind, domain.ErrMalformedField),
	}
}

func storeError(op string, err error) error {
	return fmt.Errorf("conflict store %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
