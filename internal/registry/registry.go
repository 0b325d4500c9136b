// Package registry declares which document fields are conflict tracked and
// which document types have conflict tracking enabled.
package registry

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
)

type Registry struct {
	mu     sync.RWMutex
	fields map[domain.FieldKey]domain.TrackedField
	order  []domain.FieldKey
	types  map[string]bool
}

// New returns a registry holding the built-in title and body fields, enabled
// for the given document types.
func New(documentTypes ...string) *Registry {
	r := &Registry{
		fields: make(map[domain.FieldKey]domain.TrackedField),
		types:  make(map[string]bool),
	}
	r.Register(domain.TrackedField{Key: domain.FieldTitle, Label: "Title", Kind: domain.RenderPlainText})
	r.Register(domain.TrackedField{Key: domain.FieldBody, Label: "Content", Kind: domain.RenderRichText})
	r.EnableDocumentTypes(documentTypes...)
	return r
}

// Register adds or replaces a tracked field. Fields keep their first
// registration order.
func (r *Registry) Register(field domain.TrackedField) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.fields[field.Key]; !ok {
		r.order = append(r.order, field.Key)
	}
	r.fields[field.Key] = field
}

func (r *Registry) EnableDocumentTypes(types ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range types {
		t = strings.TrimSpace(t)
		if t != "" {
			r.types[t] = true
		}
	}
}

// DocumentTypeEnabled reports whether documents of this type get a baseline
// when opened for editing.
func (r *Registry) DocumentTypeEnabled(documentType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types[documentType]
}

func (r *Registry) DocumentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.types))
	for t := range r.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Fields returns every registered field in registration order, including
// fields whose kind is unsupported.
func (r *Registry) Fields() []domain.TrackedField {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.TrackedField, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.fields[key])
	}
	return out
}

func (r *Registry) Field(key domain.FieldKey) (domain.TrackedField, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.fields[key]
	return f, ok
}

// Value reads the current stored value of a tracked field. Fields with a
// getter read through it and report whether a value exists. Built-in fields
// always count as found; an unset one reads as "".
func Value(ctx context.Context, field domain.TrackedField, doc *domain.Document) (string, bool, error) {
	if field.Getter == nil {
		return doc.Field(field.Key), true, nil
	}
	v, found, err := field.Getter(ctx, doc.ID)
	if err != nil {
		return "", false, fmt.Errorf("read field %s: %w", field.Key, err)
	}
	return v, found, nil
}

type fileConfig struct {
	DocumentTypes []string      `yaml:"document_types"`
	Fields        []fieldConfig `yaml:"fields"`
}

type fieldConfig struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
	Kind  string `yaml:"kind"`
}

// LoadFile reads extra document types and custom fields from a YAML file:
//
//	document_types: [post, page, product]
//	fields:
//	  - key: summary
//	    label: Summary
//	    kind: textarea
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read registry file: %w", err)
	}
	return r.Load(data)
}

func (r *Registry) Load(data []byte) error {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse registry file: %w", err)
	}

	for _, f := range cfg.Fields {
		key := strings.TrimSpace(f.Key)
		if key == "" {
			return fmt.Errorf("registry field without key: %w", domain.ErrInvalidRequest)
		}
		label := f.Label
		if label == "" {
			label = key
		}
		r.Register(domain.TrackedField{
			Key:   domain.FieldKey(key),
			Label: label,
			Kind:  ParseKind(f.Kind),
		})
	}
	r.EnableDocumentTypes(cfg.DocumentTypes...)

	return nil
}

// ParseKind maps field type names to render kinds. Unknown names are kept
// as-is so the field stays registered but is never compared.
func ParseKind(name string) domain.RenderKind {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "plain", "text", "textarea":
		return domain.RenderPlainText
	case "rich", "wysiwyg", "html":
		return domain.RenderRichText
	}
	return domain.RenderKind(name)
}
