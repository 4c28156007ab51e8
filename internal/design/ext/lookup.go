package ext

import (
	"context"
	"fmt"

	"lodestone/internal/design"
	"lodestone/internal/domain"
)

// LookupExtension implements the !lookup attribute tag. It resolves an
// arbitrary record (or model path) and assigns it to the tagged attribute:
//
//	"!lookup:source_type":
//	  content-type: "ipam.prefix"
//
//	"!lookup:vlan":
//	  content-type: "ipam.vlan"
//	  name: "Video"
//
// The content-type key (or the app_label/model pair) selects the model to
// query. Without it the model is taken from the tagged attribute's
// reference field. When the query holds nothing besides the model
// selector, the result is the canonical "app.model" path string, which is
// how relationship endpoint types are expressed.
type LookupExtension struct{}

// Tag implements design.Extension.
func (*LookupExtension) Tag() string { return "lookup" }

// Attribute implements design.AttributeExtension.
func (*LookupExtension) Attribute(ctx context.Context, env *design.Environment, args []string, value any, obj *design.Object) (map[string]any, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("no attribute given for the !lookup tag")
	}
	attribute := args[0]

	var query map[string]any
	switch v := value.(type) {
	case string:
		if len(args) < 2 {
			return nil, fmt.Errorf("!lookup:%s: no query attribute was given", attribute)
		}
		query = map[string]any{args[1]: v}
	case map[string]any:
		query = make(map[string]any, len(v))
		for k, val := range v {
			query[k] = val
		}
	default:
		return nil, fmt.Errorf("!lookup:%s requires a query attribute and value or a query mapping", attribute)
	}

	schema, err := lookupSchema(env, obj, attribute, query)
	if err != nil {
		return nil, err
	}

	// A bare model selector resolves to the canonical model path. This is
	// the form relationship source and destination types take.
	if len(query) == 0 {
		return map[string]any{attribute: schema.Path()}, nil
	}

	record, err := env.GetRecord(ctx, schema.Path(), query)
	if err != nil {
		return nil, fmt.Errorf("!lookup:%s: %w", attribute, err)
	}
	return map[string]any{attribute: record}, nil
}

// lookupSchema picks the model to query, consuming the selector keys from
// the query as it goes.
func lookupSchema(env *design.Environment, obj *design.Object, attribute string, query map[string]any) (*domain.Schema, error) {
	path, _ := query["content-type"].(string)
	delete(query, "content-type")

	if path == "" {
		app, _ := query["app_label"].(string)
		model, _ := query["model"].(string)
		if app != "" && model != "" {
			delete(query, "app_label")
			delete(query, "model")
			path = app + "." + model
		}
	}

	if path == "" {
		field, ok := obj.Schema().Field(attribute)
		if !ok || field.Ref == "" {
			return nil, fmt.Errorf("!lookup:%s: no content-type given and %s is not a reference field of %s",
				attribute, attribute, obj.Schema().Path())
		}
		path = field.Ref
	}

	schema, ok := env.Registry().Resolve(path)
	if !ok {
		return nil, fmt.Errorf("!lookup:%s: could not find model class for %q", attribute, path)
	}
	return schema, nil
}
