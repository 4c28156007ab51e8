// Package adapter integrates external data sources with the record store.
// Adapters discover devices on the network and hand them to a reconcile
// function that merges them into the source of truth.
package adapter

import (
	"context"

	"lodestone/internal/domain"
)

// AdapterType defines how an adapter interacts with its data source
type AdapterType string

const (
	// AdapterTypePolling - adapter pulls data on a schedule
	AdapterTypePolling AdapterType = "polling"
	// AdapterTypeOneShot - manual trigger only
	AdapterTypeOneShot AdapterType = "oneshot"
)

// AdapterConfig holds configuration for an adapter instance
type AdapterConfig struct {
	// Enabled determines if the adapter should run
	Enabled bool `json:"enabled"`
	// PollInterval for polling adapters (e.g., "30s", "5m")
	PollInterval string `json:"poll_interval,omitempty"`
}

// Adapter defines the interface for data source integrations. Sync
// returns discovered device records in the designable record shape.
type Adapter interface {
	// Name returns the unique identifier for this adapter
	Name() string

	// Type returns how this adapter interacts with its source
	Type() AdapterType

	// Start initializes the adapter (called once on startup)
	Start(ctx context.Context) error

	// Stop gracefully shuts down the adapter
	Stop() error

	// Sync pulls data from the source. Called on schedule for polling
	// adapters, or manually for oneshot.
	Sync(ctx context.Context) ([]domain.Record, error)
}

// AdapterInfo describes a registered adapter
type AdapterInfo struct {
	Name         string      `json:"name"`
	Type         AdapterType `json:"type"`
	Enabled      bool        `json:"enabled"`
	PollInterval string      `json:"poll_interval,omitempty"`
}
