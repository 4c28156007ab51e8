package domain

import "fmt"

// RelationshipType is the cardinality of a custom relationship.
type RelationshipType string

const (
	RelationshipOneToOne   RelationshipType = "one-to-one"
	RelationshipOneToMany  RelationshipType = "one-to-many"
	RelationshipManyToMany RelationshipType = "many-to-many"
)

// ValidRelationshipType reports whether t is a known cardinality.
func ValidRelationshipType(t string) bool {
	switch RelationshipType(t) {
	case RelationshipOneToOne, RelationshipOneToMany, RelationshipManyToMany:
		return true
	}
	return false
}

// ValidateRelationship checks a relationship record against the registry:
// the cardinality must be known, both endpoint types must resolve, and the
// key must not shadow a built-in field of either endpoint model.
func ValidateRelationship(reg *Registry, rec Record) error {
	key := rec.String("key")
	if key == "" {
		return fmt.Errorf("relationship requires a key")
	}
	if t := rec.String("type"); !ValidRelationshipType(t) {
		return fmt.Errorf("relationship %s: unknown type %q", key, t)
	}
	for _, side := range []string{"source_type", "destination_type"} {
		path := rec.String(side)
		schema, ok := reg.Resolve(path)
		if !ok {
			return fmt.Errorf("relationship %s: unknown %s %q", key, side, path)
		}
		if _, exists := schema.Field(key); exists {
			return fmt.Errorf("relationship %s: key shadows built-in field of %s", key, schema.Path())
		}
	}
	return nil
}
