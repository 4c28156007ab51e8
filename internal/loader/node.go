package loader

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// decodeNode converts a YAML node tree into plain Go values, rewriting
// local tags into the key form the design engine understands:
//
//	location: !get:name "Site"        -> location: {"!get:name": "Site"}
//	source_type: !lookup {model: x}   -> "!lookup:source_type": {model: x}
//	"!create_or_update:name": "v101"  -> unchanged (already key form)
func decodeNode(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, nil
		}
		return decodeNode(node.Content[0])

	case yaml.MappingNode:
		out := make(map[string]any, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode, valNode := node.Content[i], node.Content[i+1]
			var key string
			if err := keyNode.Decode(&key); err != nil {
				return nil, fmt.Errorf("line %d: mapping key: %w", keyNode.Line, err)
			}
			value, err := decodeNode(valNode)
			if err != nil {
				return nil, err
			}
			if tag := localTag(valNode); tag != "" {
				switch valNode.Kind {
				case yaml.MappingNode, yaml.SequenceNode:
					// The tag names the directive, the key names the
					// target attribute.
					hoisted := tag
					if !strings.Contains(tag, ":") {
						hoisted = tag + ":" + key
					}
					out[hoisted] = value
					continue
				default:
					out[key] = map[string]any{tag: value}
					continue
				}
			}
			out[key] = value
		}
		return out, nil

	case yaml.SequenceNode:
		out := make([]any, 0, len(node.Content))
		for _, item := range node.Content {
			value, err := decodeNode(item)
			if err != nil {
				return nil, err
			}
			if tag := localTag(item); tag != "" && item.Kind == yaml.ScalarNode {
				value = map[string]any{tag: value}
			}
			out = append(out, value)
		}
		return out, nil

	case yaml.ScalarNode:
		scalar := *node
		if localTag(node) != "" {
			scalar.Tag = ""
			scalar.Style = 0
		}
		var value any
		if err := scalar.Decode(&value); err != nil {
			return nil, fmt.Errorf("line %d: %w", node.Line, err)
		}
		return value, nil

	case yaml.AliasNode:
		return decodeNode(node.Alias)

	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node kind %v", node.Line, node.Kind)
	}
}

// localTag returns a node's custom tag ("!lookup", "!get:name") or "" for
// standard YAML tags.
func localTag(node *yaml.Node) string {
	if strings.HasPrefix(node.Tag, "!") && !strings.HasPrefix(node.Tag, "!!") {
		return node.Tag
	}
	return ""
}
