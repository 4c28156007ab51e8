package design

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"lodestone/internal/domain"
	"lodestone/internal/repository"
)

// action is the database operation a designed object requests.
type action string

const (
	actionGet            action = "get"
	actionCreate         action = "create"
	actionUpdate         action = "update"
	actionCreateOrUpdate action = "create_or_update"
)

func isAction(name string) bool {
	switch action(name) {
	case actionGet, actionCreate, actionUpdate, actionCreateOrUpdate:
		return true
	}
	return false
}

// Object is one entry of a design document in flight: the parsed action,
// the query filter collected from action tags, the attributes to assign,
// and - once loaded or created - the stored record.
type Object struct {
	env    *Environment
	schema *domain.Schema

	action    action
	actionSet bool
	filter    map[string]any

	attrs     map[string]any
	attrOrder []string

	record  domain.Record
	before  domain.Record
	created bool

	deferred []func(ctx context.Context) error
}

// Record returns the object's stored state. Valid after resolve.
func (o *Object) Record() domain.Record { return o.record }

// Created reports whether resolving this object inserted a new record.
func (o *Object) Created() bool { return o.created }

// Schema returns the object's model schema.
func (o *Object) Schema() *domain.Schema { return o.schema }

// newObject processes raw design attributes into an Object. Action tags,
// extension tags, dotted query paths and custom relationship keys are all
// recognized here; remaining keys must be schema fields.
func (e *Environment) newObject(ctx context.Context, schema *domain.Schema, raw map[string]any) (*Object, error) {
	obj := &Object{
		env:    e,
		schema: schema,
		filter: map[string]any{},
		attrs:  map[string]any{},
	}

	pending := make(map[string]any, len(raw))
	queue := make([]string, 0, len(raw))
	for key, value := range raw {
		pending[key] = value
		queue = append(queue, key)
	}
	// Map iteration order is random; stable processing keeps error
	// messages and extension side effects deterministic.
	sort.Strings(queue)

	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		value := pending[key]

		switch {
		case strings.HasPrefix(key, "!"):
			tag, args := tagParts(key)
			resolved, err := e.resolveValues(ctx, value)
			if err != nil {
				return nil, err
			}
			if ext, ok := e.attrExts[tag]; ok {
				result, err := ext.Attribute(ctx, e, args, resolved, obj)
				if err != nil {
					return nil, err
				}
				extra := make([]string, 0, len(result))
				for k, v := range result {
					pending[k] = v
					extra = append(extra, k)
				}
				sort.Strings(extra)
				queue = append(queue, extra...)
				continue
			}
			if !isAction(tag) {
				return nil, implementationErrorf(schema.String(), "unknown action tag %q", key)
			}
			if len(args) != 1 {
				return nil, implementationErrorf(schema.String(), "action tag %q requires exactly one field", key)
			}
			if err := obj.setAction(action(tag)); err != nil {
				return nil, err
			}
			obj.filter[args[0]] = resolved

		case strings.Contains(key, "__"):
			fieldName, sub, _ := strings.Cut(key, "__")
			field, ok := schema.Field(fieldName)
			if !ok || field.Kind != domain.FieldRef {
				return nil, implementationErrorf(schema.String(), "%s is not a property", fieldName)
			}
			obj.setAttr(fieldName, map[string]any{"!get:" + sub: value})

		default:
			if _, ok := schema.Field(key); ok {
				resolved, err := e.resolveValues(ctx, value)
				if err != nil {
					return nil, err
				}
				obj.setAttr(key, resolved)
				continue
			}
			rel, err := e.relationshipFor(ctx, schema, key)
			if err != nil {
				return nil, err
			}
			if rel == nil {
				return nil, implementationErrorf(schema.String(), "%s is not a field of %s", key, schema.Path())
			}
			resolved, err := e.resolveValues(ctx, value)
			if err != nil {
				return nil, err
			}
			obj.deferred = append(obj.deferred, func(ctx context.Context) error {
				return obj.applyAssociations(ctx, rel, resolved)
			})
		}
	}
	return obj, nil
}

func (o *Object) setAction(a action) error {
	if o.actionSet && o.action != a {
		return implementationErrorf(o.schema.String(),
			"can perform only one action for a model, got both %s and %s", o.action, a)
	}
	o.action = a
	o.actionSet = true
	return nil
}

func (o *Object) setAttr(key string, value any) {
	if _, exists := o.attrs[key]; !exists {
		o.attrOrder = append(o.attrOrder, key)
	}
	o.attrs[key] = value
}

func (o *Object) effectiveAction() action {
	if !o.actionSet {
		return actionCreate
	}
	return o.action
}

// resolve runs the object lifecycle: load or create the record, assign
// attributes, validate, save, then run deferred work (child lists and
// relationship associations).
func (o *Object) resolve(ctx context.Context) error {
	if err := o.load(ctx); err != nil {
		return err
	}

	if o.effectiveAction() == actionGet {
		if len(o.attrs) > 0 {
			return implementationErrorf(o.schema.String(), "cannot update fields when using the get action")
		}
		return o.runDeferred(ctx)
	}

	dirty := domain.Record{}
	for _, key := range o.attrOrder {
		value := o.attrs[key]
		field, _ := o.schema.Field(key)
		switch field.Kind {
		case domain.FieldRef:
			resolved, err := o.resolveRefValue(ctx, field, value)
			if err != nil {
				return err
			}
			dirty[key] = resolved
		case domain.FieldRefList:
			items, ok := value.([]any)
			if !ok {
				return implementationErrorf(o.schema.String(), "%s must be a list", key)
			}
			o.deferChildren(field, items)
		default:
			dirty[key] = value
		}
	}

	if err := o.validate(dirty); err != nil {
		return err
	}

	var stored domain.Record
	var err error
	if o.created {
		stored, err = o.env.store.Insert(ctx, o.schema.Path(), dirty)
	} else {
		stored, err = o.env.store.Update(ctx, o.schema.Path(), o.record.ID(), dirty)
	}
	if err != nil {
		return err
	}
	o.record = stored

	added, removed := domain.DiffRecord(o.before, stored)
	if err := o.env.journal.Log(ctx, o.schema.Path(), stored, o.created, added, removed); err != nil {
		return err
	}
	logSave(o.schema, stored, o.created)

	return o.runDeferred(ctx)
}

func (o *Object) runDeferred(ctx context.Context) error {
	for _, fn := range o.deferred {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	o.deferred = nil
	return nil
}

// load finds the record named by the query filter, or arranges for one to
// be created, according to the object's action.
func (o *Object) load(ctx context.Context) error {
	query := domain.Record{}
	fieldValues := domain.Record{}

	// Dotted filter keys become nested reference lookups first.
	rewritten := map[string]any{}
	for key, value := range o.filter {
		fieldName, sub, found := strings.Cut(key, "__")
		if !found {
			continue
		}
		nested, ok := rewritten[fieldName].(map[string]any)
		if !ok {
			nested, _ = o.filter[fieldName].(map[string]any)
		}
		if nested == nil {
			nested = map[string]any{}
		}
		nested["!get:"+sub] = value
		rewritten[fieldName] = nested
	}
	for key := range o.filter {
		if strings.Contains(key, "__") {
			delete(o.filter, key)
		}
	}
	for key, value := range rewritten {
		o.filter[key] = value
	}

	for key, value := range o.filter {
		if inner, ok := value.(map[string]any); ok {
			field, found := o.schema.Field(key)
			if !found || field.Kind != domain.FieldRef {
				return implementationErrorf(o.schema.String(), "%s is not a reference field", key)
			}
			refSchema, found := o.env.registry.Resolve(field.Ref)
			if !found {
				return implementationErrorf(o.schema.String(), "unknown referenced model %q", field.Ref)
			}
			child, err := o.env.newObject(ctx, refSchema, inner)
			if err != nil {
				return err
			}
			// A get or update names existing records, so an untagged
			// nested mapping in its filter looks up instead of creating;
			// its keys become the lookup query.
			switch o.effectiveAction() {
			case actionGet, actionUpdate:
				if !child.actionSet {
					child.action = actionGet
					child.actionSet = true
					for _, attr := range child.attrOrder {
						child.filter[attr] = child.attrs[attr]
					}
					child.attrs = map[string]any{}
					child.attrOrder = nil
				}
			}
			if child.effectiveAction() == actionGet {
				if err := child.load(ctx); err != nil {
					return err
				}
			} else if err := child.resolve(ctx); err != nil {
				return err
			}
			query[key] = child.record
			fieldValues[key] = child.record
			continue
		}
		query[key] = value
		fieldValues[key] = value
	}

	switch o.effectiveAction() {
	case actionGet, actionUpdate:
		record, err := o.env.store.Get(ctx, o.schema.Path(), query)
		if err != nil {
			return err
		}
		o.record = record
		o.before = record.Clone()
		return nil

	case actionCreateOrUpdate:
		record, err := o.env.store.Get(ctx, o.schema.Path(), query)
		if err == nil {
			o.record = record
			o.before = record.Clone()
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

	case actionCreate:
		// Fall through to creation.

	default:
		return implementationErrorf(o.schema.String(), "unknown database action %s", o.action)
	}

	// The record was not found (or the action is create): fold the query
	// values back into the attributes so they are set on the new record.
	o.created = true
	o.record = domain.Record{}
	o.before = domain.Record{}
	for key, value := range fieldValues {
		if _, exists := o.attrs[key]; !exists {
			o.setAttr(key, value)
		}
	}
	return nil
}

// resolveRefValue turns a reference attribute value into a stored record.
// Mappings resolve as child objects; records and IDs pass through.
func (o *Object) resolveRefValue(ctx context.Context, field domain.Field, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case domain.Record:
		return v, nil
	case string:
		return v, nil
	case map[string]any:
		refSchema, ok := o.env.registry.Resolve(field.Ref)
		if !ok {
			return nil, implementationErrorf(o.schema.String(), "unknown referenced model %q", field.Ref)
		}
		child, err := o.env.newObject(ctx, refSchema, v)
		if err != nil {
			return nil, err
		}
		if child.effectiveAction() == actionGet {
			if err := child.load(ctx); err != nil {
				return nil, err
			}
		} else if err := child.resolve(ctx); err != nil {
			return nil, err
		}
		return child.record, nil
	default:
		return nil, implementationErrorf(o.schema.String(),
			"cannot assign %T to reference field %s", value, field.Name)
	}
}

// deferChildren schedules reverse-reference children (e.g. the prefixes
// list under a location) for after the parent saves, since each child needs
// the parent's ID.
func (o *Object) deferChildren(field domain.Field, items []any) {
	o.deferred = append(o.deferred, func(ctx context.Context) error {
		childSchema, ok := o.env.registry.Resolve(field.Ref)
		if !ok {
			return implementationErrorf(o.schema.String(), "unknown referenced model %q", field.Ref)
		}
		for _, item := range items {
			attrs, ok := item.(map[string]any)
			if !ok {
				return implementationErrorf(o.schema.String(), "%s entries must be mappings, got %T", field.Name, item)
			}
			child := make(map[string]any, len(attrs)+1)
			for k, v := range attrs {
				child[k] = v
			}
			child[field.Via] = o.record
			if _, err := o.env.resolveObject(ctx, childSchema, child); err != nil {
				return err
			}
		}
		return nil
	})
}

// applyAssociations attaches records to this object through a custom
// relationship, honoring its cardinality.
func (o *Object) applyAssociations(ctx context.Context, rel domain.Record, value any) error {
	items, ok := value.([]any)
	if !ok {
		items = []any{value}
	}

	srcSchema, _ := o.env.registry.Resolve(rel.String("source_type"))
	dstSchema, _ := o.env.registry.Resolve(rel.String("destination_type"))
	if srcSchema == nil || dstSchema == nil {
		return implementationErrorf(o.schema.String(), "relationship %s has unresolvable endpoint types", rel.String("key"))
	}

	objIsSource := srcSchema == o.schema
	otherSchema := dstSchema
	if !objIsSource {
		otherSchema = srcSchema
	}

	for _, item := range items {
		var other domain.Record
		switch v := item.(type) {
		case domain.Record:
			other = v
		case map[string]any:
			child, err := o.env.resolveObject(ctx, otherSchema, v)
			if err != nil {
				return err
			}
			other = child.record
		default:
			return implementationErrorf(o.schema.String(),
				"relationship %s entries must be mappings or records, got %T", rel.String("key"), item)
		}

		source, destination := o.record, other
		if !objIsSource {
			source, destination = other, o.record
		}
		if err := o.saveAssociation(ctx, rel, source, destination); err != nil {
			return err
		}
	}
	return nil
}

// saveAssociation create-or-updates one relationship association. For
// one-to-one and one-to-many relationships the destination may belong to
// only one source, so an existing association for the destination is
// repointed rather than duplicated.
func (o *Object) saveAssociation(ctx context.Context, rel, source, destination domain.Record) error {
	store := o.env.store
	base := domain.Record{"relationship": rel.ID()}

	query := base.Clone()
	switch domain.RelationshipType(rel.String("type")) {
	case domain.RelationshipOneToOne, domain.RelationshipOneToMany:
		query["destination_id"] = destination.ID()
	default:
		query["source_id"] = source.ID()
		query["destination_id"] = destination.ID()
	}

	existing, err := store.Find(ctx, domain.ModelRelationshipAssociation, query)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		current := existing[0]
		if current.String("source_id") == source.ID() && current.String("destination_id") == destination.ID() {
			return nil
		}
		before := current.Clone()
		updated, err := store.Update(ctx, domain.ModelRelationshipAssociation, current.ID(), domain.Record{
			"source_id":      source.ID(),
			"destination_id": destination.ID(),
		})
		if err != nil {
			return err
		}
		added, removed := domain.DiffRecord(before, updated)
		return o.env.journal.Log(ctx, domain.ModelRelationshipAssociation, updated, false, added, removed)
	}

	fields := domain.Record{
		"relationship":     rel.ID(),
		"source_type":      rel.String("source_type"),
		"source_id":        source.ID(),
		"destination_type": rel.String("destination_type"),
		"destination_id":   destination.ID(),
	}
	stored, err := store.Insert(ctx, domain.ModelRelationshipAssociation, fields)
	if err != nil {
		return err
	}
	added, removed := domain.DiffRecord(domain.Record{}, stored)
	return o.env.journal.Log(ctx, domain.ModelRelationshipAssociation, stored, true, added, removed)
}

// validate applies model-specific rules to the fields about to be written.
func (o *Object) validate(dirty domain.Record) error {
	switch o.schema.Path() {
	case domain.ModelPrefix:
		if cidr, ok := dirty["prefix"].(string); ok {
			parsed, err := domain.ParsePrefix(cidr)
			if err != nil {
				return &ValidationError{Model: o.schema.String(), Msg: err.Error(), Err: err}
			}
			dirty["prefix"] = parsed.String()
		} else if o.created {
			return &ValidationError{Model: o.schema.String(), Msg: "a prefix requires a CIDR value"}
		}

	case domain.ModelRelationship:
		merged := o.before.Clone()
		for k, v := range dirty {
			merged[k] = v
		}
		if err := domain.ValidateRelationship(o.env.registry, merged); err != nil {
			return &ValidationError{Model: o.schema.String(), Msg: err.Error(), Err: err}
		}
		if !o.created {
			if newType, ok := dirty["type"]; ok && !domain.ScalarEqual(o.before["type"], newType) {
				return &ValidationError{
					Model: o.schema.String(),
					Msg: fmt.Sprintf("relationship %s: cardinality cannot change from %s to %v",
						merged.String("key"), o.before.String("type"), newType),
				}
			}
		}

	case domain.ModelVLAN:
		if o.created {
			if _, ok := dirty.Int("vid"); !ok {
				return &ValidationError{Model: o.schema.String(), Msg: "a VLAN requires a vid"}
			}
		}
	}

	if o.created {
		if _, hasName := o.schema.Field("name"); hasName && o.schema.Path() != domain.ModelVLAN {
			if dirty.String("name") == "" && o.schema.Path() != domain.ModelPrefix {
				return &ValidationError{Model: o.schema.String(), Msg: "a name is required"}
			}
		}
	}
	return nil
}

