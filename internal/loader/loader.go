// Package loader reads design documents and test fixtures from YAML.
//
// A fixture file has the top-level keys extensions, depends_on, designs
// and checks. A file without any of those keys is treated as a single
// bare design document. YAML local tags (!lookup, !get:name, !ref:...)
// are normalized into the attribute-key form the design engine consumes,
// so both spellings work.
package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Fixture is one parsed design file.
type Fixture struct {
	// Path is the file the fixture was loaded from.
	Path string

	// Extensions names the optional design extensions the file requires.
	Extensions []string

	// DependsOn is a single filename, relative to the fixture's
	// directory, that must be applied before this fixture.
	DependsOn string

	// Designs holds the design documents to apply, in order.
	Designs []map[string]any

	// Checks holds the post-conditions to evaluate after the designs.
	Checks []Check
}

// Check is a single post-condition from a fixture's checks block.
type Check struct {
	Kind string
	Args map[string]any
}

var fixtureKeys = map[string]bool{
	"extensions": true,
	"depends_on": true,
	"designs":    true,
	"checks":     true,
}

// Load parses one design file without following its dependencies.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading design file: %w", err)
	}
	fixture, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	fixture.Path = path
	return fixture, nil
}

// Parse parses design file contents.
func Parse(data []byte) (*Fixture, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	decoded, err := decodeNode(&root)
	if err != nil {
		return nil, err
	}
	doc, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("design file must be a mapping, got %T", decoded)
	}

	if !hasFixtureKeys(doc) {
		return &Fixture{Designs: []map[string]any{doc}}, nil
	}

	fixture := &Fixture{}
	for key, value := range doc {
		switch key {
		case "extensions":
			names, err := stringList(value)
			if err != nil {
				return nil, fmt.Errorf("extensions: %w", err)
			}
			fixture.Extensions = names
		case "depends_on":
			name, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("depends_on must be a single filename, got %T", value)
			}
			fixture.DependsOn = name
		case "designs":
			designs, err := designList(value)
			if err != nil {
				return nil, err
			}
			fixture.Designs = designs
		case "checks":
			checks, err := checkList(value)
			if err != nil {
				return nil, err
			}
			fixture.Checks = checks
		default:
			return nil, fmt.Errorf("unknown fixture key %q", key)
		}
	}
	return fixture, nil
}

// LoadChain loads a fixture and its depends_on ancestors, returned
// base-first. Dependency cycles are an error.
func LoadChain(path string) ([]*Fixture, error) {
	var chain []*Fixture
	seen := map[string]bool{}

	for path != "" {
		clean, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		if seen[clean] {
			return nil, fmt.Errorf("dependency cycle through %s", path)
		}
		seen[clean] = true

		fixture, err := Load(path)
		if err != nil {
			return nil, err
		}
		chain = append([]*Fixture{fixture}, chain...)

		if fixture.DependsOn == "" {
			break
		}
		path = filepath.Join(filepath.Dir(path), fixture.DependsOn)
	}
	return chain, nil
}

func hasFixtureKeys(doc map[string]any) bool {
	for key := range doc {
		if fixtureKeys[key] {
			return true
		}
	}
	return false
}

func stringList(value any) ([]string, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", value)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}

func designList(value any) ([]map[string]any, error) {
	switch v := value.(type) {
	case map[string]any:
		return []map[string]any{v}, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			design, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("designs entries must be mappings, got %T", item)
			}
			out = append(out, design)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("designs must be a mapping or a list of mappings, got %T", value)
	}
}

func checkList(value any) ([]Check, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("checks must be a list, got %T", value)
	}
	out := make([]Check, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok || len(entry) != 1 {
			return nil, fmt.Errorf("each check must be a single-key mapping, got %v", item)
		}
		for kind, args := range entry {
			argMap, ok := args.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("check %s: arguments must be a mapping, got %T", kind, args)
			}
			out = append(out, Check{Kind: kind, Args: argMap})
		}
	}
	return out, nil
}
