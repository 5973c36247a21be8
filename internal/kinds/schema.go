// Package kinds describes the synchronized entity kinds as data: each kind
// has a schema listing its wire fields, their types, validation bounds,
// defaults and references to other kinds. The sync engine and the HTTP
// layer are written once against these schemas.
package kinds

import (
	"errors"
	"fmt"

	"github.com/instalist/instalist-server/internal/domain"
)

// ErrInvalidData reports a payload that does not satisfy its kind's schema.
var ErrInvalidData = errors.New("invalid data")

// ErrInvalidUUID reports a malformed identity or reference UUID.
var ErrInvalidUUID = errors.New("invalid uuid")

// FieldType is the JSON type a field accepts.
type FieldType int

const (
	String FieldType = iota
	Number
	Integer
	Bool
	Reference
)

func (t FieldType) String() string {
	switch t {
	case String:
		return "string"
	case Number:
		return "number"
	case Integer:
		return "integer"
	case Bool:
		return "bool"
	case Reference:
		return "reference"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// Field describes one kind-specific attribute.
type Field struct {
	// Name is the JSON member name, e.g. "defaultAmount".
	Name string
	Type FieldType
	// Target is the referenced kind for Reference fields.
	Target domain.Kind
	// Required fields must be present after defaults are applied on create.
	Required bool
	// NonEmpty rejects empty strings.
	NonEmpty bool
	// Min is the inclusive lower bound for Number fields when HasMin is set.
	Min    float64
	HasMin bool
	// Default is applied on create when the field is absent.
	Default any
	// ClearFlag names a boolean member that, when true, removes an optional
	// reference (e.g. "removeUnit").
	ClearFlag string
}

// Schema is the field table of one kind.
type Schema struct {
	Kind domain.Kind
	// Path is the URL collection segment, e.g. "products".
	Path   string
	Fields []Field

	byName map[string]*Field
	flags  map[string]*Field
}

// Field returns the named field, if present.
func (s *Schema) Field(name string) (*Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// References returns the schema's reference fields in declaration order.
func (s *Schema) References() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Type == Reference {
			out = append(out, f)
		}
	}
	return out
}

// Defaults returns a fresh field set holding every declared default.
func (s *Schema) Defaults() domain.Fields {
	out := domain.Fields{}
	for _, f := range s.Fields {
		if f.Default != nil {
			out[f.Name] = f.Default
		}
	}
	return out
}

// Apply merges p into a copy of base and returns it. base is not modified.
func (s *Schema) Apply(base domain.Fields, p Patch) domain.Fields {
	out := make(domain.Fields, len(base)+len(p.Set))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range p.Set {
		out[k] = v
	}
	for _, name := range p.Clear {
		delete(out, name)
	}
	return out
}

// CheckRequired reports the first required field missing from fields.
func (s *Schema) CheckRequired(fields domain.Fields) error {
	for _, f := range s.Fields {
		if !f.Required {
			continue
		}
		if v, ok := fields[f.Name]; !ok || v == nil {
			return fmt.Errorf("%w: %s is required", ErrInvalidData, f.Name)
		}
	}
	return nil
}

func (s *Schema) index() {
	s.byName = make(map[string]*Field, len(s.Fields))
	s.flags = map[string]*Field{}
	for i := range s.Fields {
		f := &s.Fields[i]
		s.byName[f.Name] = f
		if f.ClearFlag != "" {
			s.flags[f.ClearFlag] = f
		}
	}
}
