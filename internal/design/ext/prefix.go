package ext

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"lodestone/internal/design"
	"lodestone/internal/domain"
)

// NextPrefixExtension implements the !next_prefix attribute tag: provision
// the next free child prefix of a requested length from a set of parent
// prefixes.
//
//	prefixes:
//	  - "!next_prefix":
//	      prefix:
//	        - "10.0.0.0/23"
//	        - "10.0.2.0/23"
//	      length: 24
//	    status__name: "Active"
type NextPrefixExtension struct{}

// Tag implements design.Extension.
func (*NextPrefixExtension) Tag() string { return "next_prefix" }

// Attribute implements design.AttributeExtension.
func (*NextPrefixExtension) Attribute(ctx context.Context, env *design.Environment, _ []string, value any, _ *design.Object) (map[string]any, error) {
	query, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("the next_prefix tag requires a mapping of arguments")
	}
	query = cloneQuery(query)

	rawLength, ok := query["length"]
	if !ok {
		return nil, fmt.Errorf("the next_prefix tag requires a prefix length")
	}
	delete(query, "length")
	length, err := intValue(rawLength)
	if err != nil {
		return nil, fmt.Errorf("next_prefix length: %w", err)
	}

	if len(query) == 0 {
		return nil, fmt.Errorf("no search criteria specified for parent prefixes")
	}

	parents, err := findParents(ctx, env, query)
	if err != nil {
		return nil, err
	}

	existing, err := env.Store().Find(ctx, domain.ModelPrefix, nil)
	if err != nil {
		return nil, err
	}

	for _, parent := range parents {
		parentPfx, err := domain.ParsePrefix(parent.String("prefix"))
		if err != nil {
			continue
		}
		var taken []netip.Prefix
		for _, rec := range existing {
			pfx, err := domain.ParsePrefix(rec.String("prefix"))
			if err != nil || pfx == parentPfx {
				continue
			}
			if domain.PrefixContains(parentPfx, pfx) {
				taken = append(taken, pfx)
			}
		}
		next, err := domain.NextAvailablePrefix(parentPfx, length, taken)
		if err == nil {
			return map[string]any{"prefix": next.String()}, nil
		}
	}
	return nil, fmt.Errorf("no available prefixes could be found from %s", parentList(parents))
}

// findParents resolves the parent prefix candidates. A prefix key narrows
// the search to the named CIDRs; any other keys filter as a normal query.
func findParents(ctx context.Context, env *design.Environment, query map[string]any) ([]domain.Record, error) {
	cidrs, err := prefixCriteria(query["prefix"])
	if err != nil {
		return nil, err
	}
	delete(query, "prefix")

	if len(cidrs) == 0 {
		return env.Query(ctx, domain.ModelPrefix, query)
	}

	var parents []domain.Record
	for _, cidr := range cidrs {
		canonical, err := domain.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("next_prefix parent %q: %w", cidr, err)
		}
		q := cloneQuery(query)
		q["prefix"] = canonical.String()
		matches, err := env.Query(ctx, domain.ModelPrefix, q)
		if err != nil {
			return nil, err
		}
		parents = append(parents, matches...)
	}
	return parents, nil
}

func prefixCriteria(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{strings.TrimSpace(v)}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("next_prefix parents must be CIDR strings, got %T", item)
			}
			out = append(out, strings.TrimSpace(s))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("next_prefix parents should be a string or a list, got %T", value)
	}
}

// ChildPrefixExtension implements the !child_prefix attribute tag: compute
// parent + offset in CIDR notation. The parent may be a literal CIDR or a
// previously referenced prefix record.
//
//	prefixes:
//	  - "!child_prefix":
//	      parent: "!ref:parent_prefix"
//	      offset: "0.0.0.128/25"
//	    status__name: "Active"
type ChildPrefixExtension struct{}

// Tag implements design.Extension.
func (*ChildPrefixExtension) Tag() string { return "child_prefix" }

// Attribute implements design.AttributeExtension.
func (*ChildPrefixExtension) Attribute(_ context.Context, _ *design.Environment, _ []string, value any, _ *design.Object) (map[string]any, error) {
	args, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("the child_prefix tag requires a mapping of arguments")
	}

	var parent string
	switch v := args["parent"].(type) {
	case string:
		parent = v
	case domain.Record:
		parent = v.String("prefix")
	default:
		return nil, fmt.Errorf("child_prefix requires a parent prefix or a reference to one, got %T", args["parent"])
	}
	if parent == "" {
		return nil, fmt.Errorf("child_prefix requires a parent prefix")
	}

	offset, _ := args["offset"].(string)
	if offset == "" {
		return nil, fmt.Errorf("child_prefix requires an offset")
	}

	child, err := domain.PrefixOffset(parent, offset)
	if err != nil {
		return nil, err
	}
	return map[string]any{"prefix": child}, nil
}

func cloneQuery(query map[string]any) map[string]any {
	out := make(map[string]any, len(query))
	for k, v := range query {
		out[k] = v
	}
	return out
}

func intValue(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("expected an integer, got %T", value)
	}
}

func parentList(parents []domain.Record) string {
	names := make([]string, 0, len(parents))
	for _, p := range parents {
		names = append(names, p.String("prefix"))
	}
	return strings.Join(names, ", ")
}
