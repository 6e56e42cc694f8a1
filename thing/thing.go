// Package thing defines the open, partially-typed record every importer
// produces and every store persists.
package thing

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/zero-day-ai/thinggraph/sparse"
)

// Field names of the known fields. Every other field lives in Extra.
const (
	FieldID          = "id"
	FieldType        = "type"
	FieldDate        = "date"
	FieldName        = "name"
	FieldDescription = "description"
	FieldURL         = "url"
	FieldKeywords    = "keywords"
)

// Thing is one imported entity: a fixed set of known fields plus an open
// extension map for importer-specific data.
type Thing struct {
	// ID is the canonical "<tag>:<key>" identity. On input it may also hold a
	// bare key candidate such as an author-supplied slug.
	ID string

	// Type is the declared schema type name (e.g. "BlogPosting").
	Type string

	// Date is the recency signal used by the merge engine. Nil sorts oldest.
	Date *time.Time

	Name        string
	Description string
	URL         string
	Keywords    []string

	// Extra holds every field the core does not know by name. The engine
	// only ever inspects emptiness of these values, never their meaning.
	// Numbers decoded from JSON are int64 when integral and float64
	// otherwise, whatever type they were written with.
	Extra map[string]any
}

// New creates a Thing of the given type with an initialized Extra map.
func New(typ string) *Thing {
	return &Thing{
		Type:  typ,
		Extra: make(map[string]any),
	}
}

// WithID sets the ID and returns the thing for method chaining.
func (t *Thing) WithID(id string) *Thing {
	t.ID = id
	return t
}

// WithDate sets the date and returns the thing for method chaining.
func (t *Thing) WithDate(d time.Time) *Thing {
	t.Date = &d
	return t
}

// With sets a field by name, routing known names to their struct fields.
// Values for known fields are coerced; values that cannot be coerced are
// ignored. Use FromFields when coercion failures must surface.
func (t *Thing) With(field string, value any) *Thing {
	_ = t.set(field, value)
	return t
}

// Get returns a field by name, known or extra. Zero-valued known fields are
// reported as absent.
func (t *Thing) Get(field string) (any, bool) {
	v, ok := t.Fields()[field]
	return v, ok
}

// Validate checks that the thing declares a type.
func (t *Thing) Validate() error {
	if t.Type == "" {
		return errors.New("thing type is required")
	}
	return nil
}

// Fields flattens the thing into a single map. Extra entries named like a
// known field are ignored. The date is reported as a time.Time value.
func (t Thing) Fields() map[string]any {
	out := make(map[string]any, len(t.Extra)+7)
	for k, v := range t.Extra {
		if !IsKnownField(k) {
			out[k] = v
		}
	}
	setString := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	setString(FieldID, t.ID)
	setString(FieldType, t.Type)
	setString(FieldName, t.Name)
	setString(FieldDescription, t.Description)
	setString(FieldURL, t.URL)
	if t.Date != nil {
		out[FieldDate] = *t.Date
	}
	if len(t.Keywords) > 0 {
		out[FieldKeywords] = append([]string(nil), t.Keywords...)
	}
	return out
}

// IsKnownField reports whether name is one of the struct-backed fields.
func IsKnownField(name string) bool {
	switch name {
	case FieldID, FieldType, FieldDate, FieldName, FieldDescription, FieldURL, FieldKeywords:
		return true
	}
	return false
}

// Sparse returns the thing with every empty value removed, recursively.
func (t Thing) Sparse() Thing {
	s, err := FromFields(sparse.Compact(t.Fields()))
	if err != nil {
		// unreachable: Fields only emits values FromFields accepts
		panic(err)
	}
	return s
}

// Clone returns a deep copy.
func (t Thing) Clone() Thing {
	c := t
	if t.Date != nil {
		d := *t.Date
		c.Date = &d
	}
	if t.Keywords != nil {
		c.Keywords = append([]string(nil), t.Keywords...)
	}
	if t.Extra != nil {
		c.Extra = deepCopyMap(t.Extra)
	}
	return c
}

// MarshalJSON encodes the sparse, flattened form with the date as RFC 3339.
// A date outside years 0000-9999 is an error.
// Map keys are emitted in sorted order, keeping stored files diff-friendly.
func (t Thing) MarshalJSON() ([]byte, error) {
	if err := CheckDate(t.Date); err != nil {
		return nil, err
	}
	fields := sparse.Compact(t.Fields())
	if t.Date != nil {
		fields[FieldDate] = t.Date.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes a flat object. Integral numbers decode as int64 and
// other numbers as float64.
func (t *Thing) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return err
	}
	parsed, err := FromFields(fields)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopy(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
