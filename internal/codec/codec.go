// Package codec serializes record store snapshots for export.
package codec

import (
	"io"

	"lodestone/internal/domain"
)

// Snapshot is an exportable view of the record store: records grouped by
// model plural key, the same shape design documents use.
type Snapshot map[string][]domain.Record

// Exporter writes a snapshot in a specific format.
type Exporter interface {
	Export(snap Snapshot, w io.Writer) error
	Format() string
}
