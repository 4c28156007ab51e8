package design

import (
	"context"
	"fmt"
	"strings"
)

// Extension is an action-tag handler. Extensions come in two flavors:
// attribute extensions fire on mapping keys ("!lookup:source_type": {...})
// and value extensions fire on string values ("!ref:parent_prefix").
// A single extension may be both.
type Extension interface {
	// Tag is the name used in documents, without the leading "!".
	Tag() string
}

// AttributeExtension handles "!tag" or "!tag:arg[:arg]" attribute keys.
// The returned map is merged back into the object's attributes and
// re-processed, so an extension can delegate to action tags
// ({"!create_or_update:name": ...}) or plain fields ({"prefix": ...}).
type AttributeExtension interface {
	Extension
	Attribute(ctx context.Context, env *Environment, args []string, value any, obj *Object) (map[string]any, error)
}

// ValueExtension handles "!tag:arg" string values.
type ValueExtension interface {
	Extension
	Value(ctx context.Context, env *Environment, arg string) (any, error)
}

// Committer is implemented by extensions that act after a design is
// successfully committed.
type Committer interface {
	Commit(ctx context.Context) error
}

// RollbackHandler is implemented by extensions that must undo side effects
// the database rollback cannot cover.
type RollbackHandler interface {
	Rollback(ctx context.Context)
}

// refExtension implements the core "!ref" tag: the attribute form stores the
// enclosing object under a name, the value form retrieves it (optionally
// descending into a field with "name.field").
type refExtension struct {
	refs map[string]*Object
}

func newRefExtension() *refExtension {
	return &refExtension{refs: make(map[string]*Object)}
}

func (r *refExtension) Tag() string { return "ref" }

func (r *refExtension) Attribute(_ context.Context, _ *Environment, args []string, value any, obj *Object) (map[string]any, error) {
	name := ""
	if len(args) > 0 {
		name = args[0]
	} else if s, ok := value.(string); ok {
		name = s
	}
	if name == "" {
		return nil, implementationErrorf(obj.schema.String(), "the !ref tag requires a name")
	}
	r.refs[name] = obj
	return nil, nil
}

func (r *refExtension) Value(_ context.Context, _ *Environment, arg string) (any, error) {
	name, attr, hasAttr := strings.Cut(arg, ".")
	obj, ok := r.refs[name]
	if !ok {
		return nil, implementationErrorf("", "no ref named %q has been saved in the design", name)
	}
	if hasAttr {
		value, exists := obj.Record()[attr]
		if !exists {
			return nil, implementationErrorf(obj.schema.String(), "ref %q has no attribute %q", name, attr)
		}
		return value, nil
	}
	return obj.Record(), nil
}

// tagParts splits an action-tag key ("!tag:arg1:arg2") into its tag name
// and arguments.
func tagParts(key string) (string, []string) {
	trimmed := strings.TrimPrefix(key, "!")
	parts := strings.Split(trimmed, ":")
	return parts[0], parts[1:]
}

// isTagValue reports whether a string value is an action tag reference.
func isTagValue(s string) bool {
	if !strings.HasPrefix(s, "!") {
		return false
	}
	return strings.Contains(s, ":")
}

func tagValueParts(s string) (string, string, error) {
	trimmed := strings.TrimPrefix(s, "!")
	tag, arg, ok := strings.Cut(trimmed, ":")
	if !ok {
		return "", "", fmt.Errorf("malformed action tag %q", s)
	}
	return tag, arg, nil
}
