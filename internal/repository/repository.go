// Package repository defines the persistence contract for lodestone models.
//
// The store is schema-driven rather than per-entity: every registered model
// is addressed by its content-type path and records travel as field maps.
// The design engine resolves models dynamically from YAML documents, so it
// cannot know entity structs up front.
package repository

import (
	"context"
	"errors"

	"lodestone/internal/domain"
)

// ErrNotFound is returned by Get when no record matches the query.
var ErrNotFound = errors.New("record not found")

// ErrMultiple is returned by Get when more than one record matches.
var ErrMultiple = errors.New("multiple records match")

// Store is the generic record store. model arguments are content-type paths
// such as "ipam.prefix"; query and field maps use schema field names, with
// reference fields accepting either a UUID or a full record.
type Store interface {
	// Find returns all records matching the query, in insertion order.
	// An empty query matches everything.
	Find(ctx context.Context, model string, query domain.Record) ([]domain.Record, error)

	// Get returns exactly one matching record, ErrNotFound when there is
	// none and ErrMultiple when the query is ambiguous.
	Get(ctx context.Context, model string, query domain.Record) (domain.Record, error)

	// Count returns the number of matching records.
	Count(ctx context.Context, model string, query domain.Record) (int, error)

	// Insert stores a new record and returns it with its generated ID and
	// timestamps filled in.
	Insert(ctx context.Context, model string, fields domain.Record) (domain.Record, error)

	// Update applies the given fields to an existing record and returns
	// the stored result.
	Update(ctx context.Context, model string, id string, fields domain.Record) (domain.Record, error)

	// Delete removes a record by ID. Deleting a missing record is an error.
	Delete(ctx context.Context, model string, id string) error
}

// Transactor runs a function against a transactional view of the store.
// The transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	Transact(ctx context.Context, fn func(Store) error) error
}
