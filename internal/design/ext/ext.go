// Package ext contains the optional design extensions that documents opt
// into through their extensions list. The core !ref extension is always
// available and lives with the engine itself.
package ext

import (
	"fmt"

	"lodestone/internal/design"
)

// ByName returns a fresh instance of a named extension. Extension state is
// per environment, so every design run gets its own instances.
func ByName(name string) (design.Extension, error) {
	switch name {
	case "lookup":
		return &LookupExtension{}, nil
	case "next_prefix":
		return &NextPrefixExtension{}, nil
	case "child_prefix":
		return &ChildPrefixExtension{}, nil
	}
	return nil, fmt.Errorf("unknown design extension %q", name)
}

// Names lists the extensions loadable through ByName.
func Names() []string {
	return []string{"lookup", "next_prefix", "child_prefix"}
}
