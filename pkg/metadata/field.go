package metadata

import (
	"fmt"
	"slices"
	"strings"

	"github.com/glorpus-work/plugdex/pkg/errutils"
	"github.com/glorpus-work/plugdex/pkg/model"
	"github.com/glorpus-work/plugdex/pkg/version"
)

// Kind is the value type of a field.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindTuple
	KindVersion
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindTuple:
		return "tuple"
	case KindVersion:
		return "version"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) valid() bool { return k >= KindString && k <= KindVersion }

// Importer converts text to a typed field value.
type Importer func(string) (any, error)

// Exporter converts a typed field value to text.
type Exporter func(any) (string, error)

// Field is one named, typed metadata value. A nil value means unset.
type Field struct {
	name         string
	kind         Kind
	value        any
	defaultValue any
	importer     Importer
	exporter     Exporter
	required     bool
	i18n         bool
	known        bool
	comment      string
}

// FieldOption configures a Field.
type FieldOption func(*Field)

func WithValue(v any) FieldOption         { return func(f *Field) { f.value = v } }
func WithDefault(v any) FieldOption       { return func(f *Field) { f.defaultValue = v } }
func WithImporter(i Importer) FieldOption { return func(f *Field) { f.importer = i } }
func WithExporter(e Exporter) FieldOption { return func(f *Field) { f.exporter = e } }
func WithComment(c string) FieldOption    { return func(f *Field) { f.comment = c } }
func Required() FieldOption               { return func(f *Field) { f.required = true } }
func Translatable() FieldOption           { return func(f *Field) { f.i18n = true } }

// Unknown marks a field as not part of the canonical schema.
func Unknown() FieldOption { return func(f *Field) { f.known = false } }

// NewField validates kind and the optional value and default against it.
func NewField(name string, kind Kind, opts ...FieldOption) (*Field, error) {
	if name == "" {
		return nil, errutils.Wrap(errutils.ErrInvalidValue, "field name must not be empty")
	}
	if !kind.valid() {
		return nil, errutils.Wrapf(errutils.ErrTypeMismatch, "field %q has unknown kind %d", name, int(kind))
	}
	f := &Field{name: name, kind: kind, known: true}
	for _, opt := range opts {
		opt(f)
	}
	if f.value != nil && !f.accepts(f.value) {
		return nil, errutils.Wrapf(errutils.ErrTypeMismatch, "value of field %q is %T, want %s", name, f.value, kind)
	}
	if f.defaultValue != nil && !f.accepts(f.defaultValue) {
		return nil, errutils.Wrapf(errutils.ErrTypeMismatch, "default of field %q is %T, want %s", name, f.defaultValue, kind)
	}
	f.value = clone(f.value)
	f.defaultValue = clone(f.defaultValue)
	return f, nil
}

func (f *Field) Name() string    { return f.name }
func (f *Field) Kind() Kind      { return f.kind }
func (f *Field) Required() bool  { return f.required }
func (f *Field) Known() bool     { return f.known }
func (f *Field) I18N() bool      { return f.i18n }
func (f *Field) Comment() string { return f.comment }

// HasValue reports whether a value is set.
func (f *Field) HasValue() bool { return f.value != nil }

// HasDefault reports whether a default value is set.
func (f *Field) HasDefault() bool { return f.defaultValue != nil }

// Value returns the typed value or nil.
func (f *Field) Value() any { return clone(f.value) }

// Default returns the typed default or nil.
func (f *Field) Default() any { return clone(f.defaultValue) }

// SetValue assigns a typed value. Nil is rejected; use Clear instead.
func (f *Field) SetValue(v any) error {
	if v == nil || !f.accepts(v) {
		return errutils.Wrapf(errutils.ErrTypeMismatch, "value for field %q is %T, want %s", f.name, v, f.kind)
	}
	f.value = clone(v)
	return nil
}

// Clear unsets the value.
func (f *Field) Clear() { f.value = nil }

// ApplyDefault sets the value to the default when no value is set.
func (f *Field) ApplyDefault() {
	if f.value == nil && f.defaultValue != nil {
		f.value = clone(f.defaultValue)
	}
}

// ValueString exports the value as text.
func (f *Field) ValueString() (string, error) {
	if f.value == nil {
		return "", errutils.Wrapf(errutils.ErrInvalidValue, "field %q has no value to export", f.name)
	}
	return f.toString(f.value)
}

// DefaultString exports the default as text.
func (f *Field) DefaultString() (string, error) {
	if f.defaultValue == nil {
		return "", errutils.Wrapf(errutils.ErrInvalidValue, "field %q has no default to export", f.name)
	}
	return f.toString(f.defaultValue)
}

// SetValueString imports text through the field's importer.
func (f *Field) SetValueString(s string) error {
	importer := f.importer
	if importer == nil {
		importer = defaultImporter(f.kind)
	}
	v, err := importer(s)
	if err != nil {
		return errutils.Wrapf(err, "field %q", f.name)
	}
	return f.SetValue(v)
}

// Update copies the value of other when it is set. Name and kind must match.
func (f *Field) Update(other *Field) error {
	if other == nil {
		return errutils.Wrap(errutils.ErrTypeMismatch, "other field is nil")
	}
	if f.name != other.name {
		return errutils.Wrapf(errutils.ErrTypeMismatch, "field name mismatch: %q vs %q", f.name, other.name)
	}
	if f.kind != other.kind {
		return errutils.Wrapf(errutils.ErrTypeMismatch, "field %q kind mismatch: %s vs %s", f.name, f.kind, other.kind)
	}
	if other.value == nil {
		return nil
	}
	f.value = clone(other.value)
	return nil
}

// Copy returns a deep copy.
func (f *Field) Copy() *Field {
	c := *f
	c.value = clone(f.value)
	c.defaultValue = clone(f.defaultValue)
	return &c
}

func (f *Field) String() string {
	return fmt.Sprintf("<metadata field %s kind=%s set=%t known=%t required=%t>",
		f.name, f.kind, f.HasValue(), f.known, f.required)
}

func (f *Field) toString(v any) (string, error) {
	if f.exporter != nil {
		return f.exporter(v)
	}
	return defaultExporter(f.kind)(v)
}

func (f *Field) accepts(v any) bool {
	switch f.kind {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindTuple:
		_, ok := v.([]string)
		return ok
	case KindVersion:
		_, ok := v.(version.Version)
		return ok
	}
	return false
}

func clone(v any) any {
	if t, ok := v.([]string); ok {
		return slices.Clone(t)
	}
	return v
}

func defaultImporter(kind Kind) Importer {
	switch kind {
	case KindBool:
		return importBool
	case KindTuple:
		return importTuple
	case KindVersion:
		return func(s string) (any, error) { return version.ParsePlugin(s, false) }
	default:
		return func(s string) (any, error) { return s, nil }
	}
}

func defaultExporter(kind Kind) Exporter {
	switch kind {
	case KindBool:
		return boolExporter(model.StyleTrueFalseTitle)
	case KindTuple:
		return exportTuple
	case KindVersion:
		return func(v any) (string, error) { return v.(version.Version).String(), nil }
	default:
		return func(v any) (string, error) { return v.(string), nil }
	}
}

func importBool(s string) (any, error) { return model.ParseBool(s) }

func boolExporter(style model.BoolStyle) Exporter {
	return func(v any) (string, error) {
		b, ok := v.(bool)
		if !ok {
			return "", errutils.Wrapf(errutils.ErrTypeMismatch, "%T is not a bool", v)
		}
		return model.FormatBool(b, style), nil
	}
}

func importTuple(s string) (any, error) { return strings.Split(s, ","), nil }

func exportTuple(v any) (string, error) {
	t, ok := v.([]string)
	if !ok {
		return "", errutils.Wrapf(errutils.ErrTypeMismatch, "%T is not a tuple", v)
	}
	return strings.Join(t, ","), nil
}

func exportOriginal(v any) (string, error) {
	ver, ok := v.(version.Version)
	if !ok {
		return "", errutils.Wrapf(errutils.ErrTypeMismatch, "%T is not a version", v)
	}
	return ver.Original(), nil
}
