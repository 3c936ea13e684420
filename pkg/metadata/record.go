// Package metadata implements the typed metadata of a plugin release.
//
// A Record is seeded from a canonical schema and overlaid with raw text values
// from a manifest file, a remote XML descriptor or a cached settings blob.
// Keys outside the schema are preserved as unknown string fields.
package metadata

import (
	"fmt"
	"slices"

	"github.com/glorpus-work/plugdex/pkg/errutils"
	"github.com/glorpus-work/plugdex/pkg/version"
)

// Record is the metadata of one plugin release.
type Record struct {
	fields map[string]*Field
	order  []string
	id     string
}

// NewRecord builds a record from raw text values. Known keys are imported through
// their field's importer; unknown keys become unknown string fields.
func NewRecord(raw map[string]string) (*Record, error) {
	r := &Record{fields: make(map[string]*Field, len(schema)+len(raw))}
	for _, f := range SchemaFields() {
		r.fields[f.name] = f
		r.order = append(r.order, f.name)
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		if k == "" {
			return nil, errutils.Wrap(errutils.ErrInvalidValue, "metadata key must not be empty")
		}
		if f, ok := r.fields[k]; ok {
			if err := f.SetValueString(raw[k]); err != nil {
				return nil, err
			}
			continue
		}
		f, err := NewField(k, KindString, WithValue(raw[k]), Unknown())
		if err != nil {
			return nil, err
		}
		r.fields[k] = f
		r.order = append(r.order, k)
	}

	id, _ := r.fields[FieldID].Value().(string)
	if id == "" {
		return nil, errutils.Wrap(errutils.ErrInvalidValue, "metadata has no plugin id")
	}
	r.id = id
	return r, nil
}

// FromCache rebuilds a record from the values produced by ExportCache.
func FromCache(values map[string]string) (*Record, error) {
	if values == nil {
		return nil, errutils.Wrap(errutils.ErrTypeMismatch, "cached metadata must be a mapping")
	}
	return NewRecord(values)
}

// ID returns the plugin id.
func (r *Record) ID() string { return r.id }

// Field returns the named field or nil.
func (r *Record) Field(name string) *Field { return r.fields[name] }

// Get returns the named field or ErrNotFound.
func (r *Record) Get(name string) (*Field, error) {
	f, ok := r.fields[name]
	if !ok {
		return nil, fmt.Errorf("%w: metadata field %q", errutils.ErrNotFound, name)
	}
	return f, nil
}

// Names returns field names, schema fields first.
func (r *Record) Names() []string { return slices.Clone(r.order) }

// Fields returns the fields in Names order.
func (r *Record) Fields() []*Field {
	out := make([]*Field, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.fields[name])
	}
	return out
}

// Version returns the release version, or the zero Version when unset.
func (r *Record) Version() version.Version {
	v, _ := r.fields[FieldVersion].Value().(version.Version)
	return v
}

// Bool returns the value of a bool field, falling back to its default and then false.
func (r *Record) Bool(name string) bool {
	f, ok := r.fields[name]
	if !ok {
		return false
	}
	if b, ok := f.Value().(bool); ok {
		return b
	}
	b, _ := f.Default().(bool)
	return b
}

// Text returns the value of a string field or "".
func (r *Record) Text(name string) string {
	f, ok := r.fields[name]
	if !ok {
		return ""
	}
	s, _ := f.Value().(string)
	return s
}

// ApplyDefaults sets every unset field that has a default.
func (r *Record) ApplyDefaults(names ...string) {
	for _, name := range names {
		if f, ok := r.fields[name]; ok {
			f.ApplyDefault()
		}
	}
}

// RequiredFieldsPresent reports whether every required field outside ignored
// has a value or a default.
func (r *Record) RequiredFieldsPresent(ignored ...string) bool {
	for _, f := range r.fields {
		if !f.required || slices.Contains(ignored, f.name) {
			continue
		}
		if !f.HasValue() && !f.HasDefault() {
			return false
		}
	}
	return true
}

// MissingRequiredFields lists required fields without value and default.
func (r *Record) MissingRequiredFields(ignored ...string) []string {
	var out []string
	for _, name := range r.order {
		f := r.fields[name]
		if f.required && !slices.Contains(ignored, name) && !f.HasValue() && !f.HasDefault() {
			out = append(out, name)
		}
	}
	return out
}

// Update merges other into r. Unknown fields are copied in; known fields
// take other's value when it is set.
func (r *Record) Update(other *Record) error {
	if other == nil {
		return errutils.Wrap(errutils.ErrTypeMismatch, "other metadata is nil")
	}
	if other.id != r.id {
		return errutils.Wrapf(errutils.ErrInvalidValue, "metadata id mismatch: %q vs %q", r.id, other.id)
	}
	for _, name := range other.order {
		of := other.fields[name]
		if !of.known {
			if _, exists := r.fields[name]; !exists {
				r.order = append(r.order, name)
			}
			r.fields[name] = of.Copy()
			continue
		}
		if err := r.fields[name].Update(of); err != nil {
			return err
		}
	}
	return nil
}

// Copy returns a deep copy.
func (r *Record) Copy() *Record {
	c := &Record{fields: make(map[string]*Field, len(r.fields)), order: slices.Clone(r.order), id: r.id}
	for name, f := range r.fields {
		c.fields[name] = f.Copy()
	}
	return c
}

// ExportCache returns the text form of every set field.
func (r *Record) ExportCache() (map[string]string, error) {
	out := make(map[string]string, len(r.fields))
	for _, name := range r.order {
		f := r.fields[name]
		if !f.HasValue() {
			continue
		}
		s, err := f.ValueString()
		if err != nil {
			return nil, err
		}
		out[name] = s
	}
	return out, nil
}

func (r *Record) String() string { return fmt.Sprintf("<metadata id=%q>", r.id) }
