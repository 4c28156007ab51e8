package domain

import (
	"fmt"
	"strings"
)

// FieldKind describes how a schema field is stored and resolved.
type FieldKind int

const (
	// FieldScalar holds a plain value (string, int, bool).
	FieldScalar FieldKind = iota
	// FieldRef holds a reference to a record of another model. Stored as
	// a <name>_id column; design documents may supply a nested query
	// instead of a UUID.
	FieldRef
	// FieldRefList is the reverse side of a FieldRef: a list of child
	// records whose Via field points back at this record. Assignment is
	// deferred until after the owning record saves.
	FieldRefList
	// FieldJSON holds an arbitrary document, JSON-encoded in its column.
	FieldJSON
)

// Field describes one attribute of a model.
type Field struct {
	Name string
	Kind FieldKind
	// Ref is the target model path ("app.model") for FieldRef/FieldRefList.
	Ref string
	// Via names the FieldRef on the child that points back to the parent.
	// Only meaningful for FieldRefList.
	Via string
	// Type is the SQL column type; empty means TEXT. Integer fields must
	// say so or sqlite's TEXT affinity would stringify them.
	Type string
}

// Column returns the table column backing the field.
func (f Field) Column() string {
	if f.Kind == FieldRef {
		return f.Name + "_id"
	}
	return f.Name
}

// Schema describes one addressable model.
type Schema struct {
	// App is the application label, e.g. "ipam".
	App string
	// Name is the lowercase singular model name, e.g. "prefix".
	Name string
	// Plural is the key design documents use, e.g. "prefixes".
	Plural string
	// Table is the backing sqlite table.
	Table string
	// Fields in declaration order.
	Fields []Field
	// Internal models are maintained by the system itself and cannot be
	// addressed as a top-level design document key. Checks may still
	// query them.
	Internal bool
	// Verbose is the display name, used in error messages.
	Verbose string
}

// Path returns the canonical content-type path, e.g. "ipam.prefix".
func (s *Schema) Path() string {
	return s.App + "." + s.Name
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (s *Schema) String() string {
	if s.Verbose != "" {
		return s.Verbose
	}
	return s.Path()
}

// Registry indexes schemas by plural design key and by content-type path.
type Registry struct {
	byPlural map[string]*Schema
	byPath   map[string]*Schema
	order    []*Schema
}

// NewRegistry creates an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{
		byPlural: make(map[string]*Schema),
		byPath:   make(map[string]*Schema),
	}
}

// Register adds a schema. Plural keys and paths must be unique.
func (r *Registry) Register(s *Schema) error {
	if _, exists := r.byPath[s.Path()]; exists {
		return fmt.Errorf("model %s already registered", s.Path())
	}
	if _, exists := r.byPlural[s.Plural]; exists {
		return fmt.Errorf("model key %q already registered", s.Plural)
	}
	r.byPath[s.Path()] = s
	r.byPlural[s.Plural] = s
	r.order = append(r.order, s)
	return nil
}

// ByPlural resolves a top-level design document key.
func (r *Registry) ByPlural(key string) (*Schema, bool) {
	s, ok := r.byPlural[key]
	return s, ok
}

// Resolve maps a content-type path to a schema. It accepts the canonical
// "app.model" form as well as longer dotted paths from external fixtures
// ("lodestone.ipam.models.Prefix"): the final segment names the model and any
// earlier segment may supply the app label. Matching is case-insensitive.
func (r *Registry) Resolve(path string) (*Schema, bool) {
	path = strings.ToLower(strings.TrimSpace(path))
	if s, ok := r.byPath[path]; ok {
		return s, true
	}
	parts := strings.Split(path, ".")
	if len(parts) < 2 {
		return nil, false
	}
	model := parts[len(parts)-1]
	for _, app := range parts[:len(parts)-1] {
		if s, ok := r.byPath[app+"."+model]; ok {
			return s, true
		}
	}
	return nil, false
}

// Schemas returns all registered schemas in registration order.
func (r *Registry) Schemas() []*Schema {
	return r.order
}
