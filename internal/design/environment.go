package design

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"lodestone/internal/domain"
	"lodestone/internal/repository"
)

// Environment implements designs against the record store. It owns the
// extension registry, the journal for the current run, and the model map
// design documents address by plural key.
//
// An Environment is single-use: create one per design application so
// extension state (such as !ref names) does not leak between runs.
type Environment struct {
	store    repository.Store
	registry *domain.Registry
	journal  *Journal

	attrExts  map[string]AttributeExtension
	valueExts map[string]ValueExtension
	all       []Extension
}

// Option configures a new Environment.
type Option func(*Environment) error

// WithJournal attaches a journal, usually one bound to a deployment's
// change set.
func WithJournal(j *Journal) Option {
	return func(e *Environment) error {
		e.journal = j
		return nil
	}
}

// WithExtensions registers additional action-tag extensions.
func WithExtensions(exts ...Extension) Option {
	return func(e *Environment) error {
		for _, ext := range exts {
			if err := e.RegisterExtension(ext); err != nil {
				return err
			}
		}
		return nil
	}
}

// NewEnvironment creates a build environment. The core !ref extension is
// always registered; contrib extensions arrive via WithExtensions.
func NewEnvironment(store repository.Store, registry *domain.Registry, opts ...Option) (*Environment, error) {
	env := &Environment{
		store:     store,
		registry:  registry,
		attrExts:  make(map[string]AttributeExtension),
		valueExts: make(map[string]ValueExtension),
	}
	if err := env.RegisterExtension(newRefExtension()); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(env); err != nil {
			return nil, err
		}
	}
	if env.journal == nil {
		env.journal = NewJournal(store, "")
	}
	return env, nil
}

// RegisterExtension adds an extension under its tag. Each tag may be
// registered once per environment.
func (e *Environment) RegisterExtension(ext Extension) error {
	tag := ext.Tag()
	attr, isAttr := ext.(AttributeExtension)
	value, isValue := ext.(ValueExtension)
	if !isAttr && !isValue {
		return fmt.Errorf("extension %q implements neither attribute nor value form", tag)
	}
	if isAttr {
		if _, exists := e.attrExts[tag]; exists {
			return fmt.Errorf("attribute extension %q already registered", tag)
		}
		e.attrExts[tag] = attr
	}
	if isValue {
		if _, exists := e.valueExts[tag]; exists {
			return fmt.Errorf("value extension %q already registered", tag)
		}
		e.valueExts[tag] = value
	}
	e.all = append(e.all, ext)
	return nil
}

// Store exposes the record store to extensions.
func (e *Environment) Store() repository.Store { return e.store }

// Registry exposes the schema registry to extensions.
func (e *Environment) Registry() *domain.Registry { return e.registry }

// Journal returns the journal for this run.
func (e *Environment) Journal() *Journal { return e.journal }

// applyOrder fixes the sequence top-level design keys are implemented in.
// Documents are YAML mappings, so key order is not reliable; this order
// guarantees referenced models exist before their dependents, and custom
// relationships exist before any object tries to attach associations.
var applyOrder = []string{
	"statuses",
	"custom_relationships",
	"locations",
	"vlans",
	"prefixes",
	"devices",
	"relationship_associations",
}

// Apply implements one design document: a mapping of plural model keys to
// an object or list of objects.
func (e *Environment) Apply(ctx context.Context, design map[string]any) error {
	if len(design) == 0 {
		return implementationErrorf("", "empty design")
	}

	remaining := make(map[string]bool, len(design))
	for key := range design {
		remaining[key] = true
	}

	ordered := make([]string, 0, len(design))
	for _, key := range applyOrder {
		if remaining[key] {
			ordered = append(ordered, key)
			delete(remaining, key)
		}
	}
	var rest []string
	for key := range remaining {
		rest = append(rest, key)
	}
	sort.Strings(rest)
	ordered = append(ordered, rest...)

	for _, key := range ordered {
		schema, ok := e.registry.ByPlural(key)
		if !ok {
			return implementationErrorf("", "unknown model key %q in design", key)
		}
		if schema.Internal {
			return implementationErrorf(schema.String(), "model key %q is not designable", key)
		}
		if design[key] == nil {
			continue
		}
		if err := e.createObjects(ctx, schema, design[key]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Environment) createObjects(ctx context.Context, schema *domain.Schema, value any) error {
	switch v := value.(type) {
	case map[string]any:
		_, err := e.resolveObject(ctx, schema, v)
		return err
	case []any:
		for _, item := range v {
			attrs, ok := item.(map[string]any)
			if !ok {
				return implementationErrorf(schema.String(), "design entries must be mappings, got %T", item)
			}
			if _, err := e.resolveObject(ctx, schema, attrs); err != nil {
				return err
			}
		}
		return nil
	default:
		return implementationErrorf(schema.String(), "design entries must be a mapping or list, got %T", value)
	}
}

// resolveObject runs the full lifecycle for one designed object: attribute
// processing, load, field assignment, save and deferred work.
func (e *Environment) resolveObject(ctx context.Context, schema *domain.Schema, attrs map[string]any) (*Object, error) {
	obj, err := e.newObject(ctx, schema, attrs)
	if err != nil {
		return nil, err
	}
	if err := obj.resolve(ctx); err != nil {
		return nil, err
	}
	return obj, nil
}

// resolveValue evaluates a single value: strings of the form "!tag:arg"
// dispatch to the matching value extension, anything else passes through.
func (e *Environment) resolveValue(ctx context.Context, value any) (any, error) {
	s, ok := value.(string)
	if !ok || !strings.HasPrefix(s, "!") {
		return value, nil
	}
	if !isTagValue(s) {
		return nil, implementationErrorf("", "unknown attribute extension %q", s)
	}
	tag, arg, err := tagValueParts(s)
	if err != nil {
		return nil, err
	}
	ext, ok := e.valueExts[tag]
	if !ok {
		return nil, implementationErrorf("", "unknown attribute extension %q", s)
	}
	return ext.Value(ctx, e, arg)
}

// resolveValues evaluates action tags across a value tree. Lists and maps
// are copied one level deep so the input document stays untouched.
func (e *Environment) resolveValues(ctx context.Context, value any) (any, error) {
	switch v := value.(type) {
	case string:
		return e.resolveValue(ctx, v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := e.resolveValue(ctx, item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			resolved, err := e.resolveValue(ctx, item)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

// Query finds records by a query that may contain dotted keys
// ("status__name") and nested mappings; both resolve against referenced
// models before the store is consulted.
func (e *Environment) Query(ctx context.Context, model string, query map[string]any) ([]domain.Record, error) {
	schema, ok := e.registry.Resolve(model)
	if !ok {
		return nil, implementationErrorf("", "unknown model %q", model)
	}
	resolved, err := e.resolveQuery(ctx, schema, query)
	if err != nil {
		return nil, err
	}
	return e.store.Find(ctx, schema.Path(), resolved)
}

// GetRecord is Query for exactly one record.
func (e *Environment) GetRecord(ctx context.Context, model string, query map[string]any) (domain.Record, error) {
	schema, ok := e.registry.Resolve(model)
	if !ok {
		return nil, implementationErrorf("", "unknown model %q", model)
	}
	resolved, err := e.resolveQuery(ctx, schema, query)
	if err != nil {
		return nil, err
	}
	return e.store.Get(ctx, schema.Path(), resolved)
}

// resolveQuery rewrites dotted keys into nested reference lookups and
// resolves nested mappings to the records they identify.
func (e *Environment) resolveQuery(ctx context.Context, schema *domain.Schema, query map[string]any) (domain.Record, error) {
	resolved := domain.Record{}
	nested := map[string]map[string]any{}

	for key, value := range query {
		if fieldName, sub, found := strings.Cut(key, "__"); found {
			if nested[fieldName] == nil {
				nested[fieldName] = map[string]any{}
			}
			nested[fieldName][sub] = value
			continue
		}
		if inner, ok := value.(map[string]any); ok {
			if nested[key] == nil {
				nested[key] = map[string]any{}
			}
			for k, v := range inner {
				nested[key][strings.TrimPrefix(k, "!get:")] = v
			}
			continue
		}
		resolved[key] = value
	}

	for fieldName, subQuery := range nested {
		field, ok := schema.Field(fieldName)
		if !ok || field.Kind != domain.FieldRef {
			return nil, implementationErrorf(schema.String(), "%s is not a reference field", fieldName)
		}
		refSchema, ok := e.registry.Resolve(field.Ref)
		if !ok {
			return nil, implementationErrorf(schema.String(), "unknown referenced model %q", field.Ref)
		}
		inner, err := e.resolveQuery(ctx, refSchema, subQuery)
		if err != nil {
			return nil, err
		}
		record, err := e.store.Get(ctx, refSchema.Path(), inner)
		if err != nil {
			return nil, err
		}
		resolved[fieldName] = record
	}
	return resolved, nil
}

// CommitExtensions notifies extensions that the design has been committed.
func (e *Environment) CommitExtensions(ctx context.Context) error {
	for _, ext := range e.all {
		if committer, ok := ext.(Committer); ok {
			if err := committer.Commit(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// RollbackExtensions lets extensions undo side effects the database
// rollback cannot cover.
func (e *Environment) RollbackExtensions(ctx context.Context) {
	for _, ext := range e.all {
		if handler, ok := ext.(RollbackHandler); ok {
			handler.Rollback(ctx)
		}
	}
}

// relationshipFor finds a custom relationship whose key matches an
// attribute name on the given model, if one exists.
func (e *Environment) relationshipFor(ctx context.Context, schema *domain.Schema, key string) (domain.Record, error) {
	matches, err := e.store.Find(ctx, domain.ModelRelationship, domain.Record{"key": key})
	if err != nil {
		return nil, err
	}
	for _, rel := range matches {
		source, _ := e.registry.Resolve(rel.String("source_type"))
		destination, _ := e.registry.Resolve(rel.String("destination_type"))
		if source == schema || destination == schema {
			return rel, nil
		}
	}
	return nil, nil
}

func logSave(schema *domain.Schema, record domain.Record, created bool) {
	verb := "Updated"
	if created {
		verb = "Created"
	}
	name := record.String("name")
	if name == "" {
		name = record.String("prefix")
	}
	if name == "" {
		name = record.String("key")
	}
	if name == "" {
		name = record.ID()
	}
	log.Printf("%s %s %q", verb, schema, name)
}
