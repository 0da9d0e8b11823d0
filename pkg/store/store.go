// Package store is the write-of-record for accepted indices.
//
// Every accepted submission appends one Record. Records are never updated or
// deleted, there is no primary key, and duplicate numbers are expected when
// the same index is submitted more than once.
package store

import "context"

// DefaultTable is the table holding accepted indices.
const DefaultTable = "values"

// Record is one accepted index.
type Record struct {
	Number int `json:"number"`
}

// Store is the interface for the durable store.
// Implementations (Postgres, SQLite, MySQL, Memory) must be thread-safe.
type Store interface {
	// Append persists one record.
	Append(ctx context.Context, rec Record) error

	// ScanAll returns every record in store-defined order. An empty table
	// yields an empty, non-nil slice.
	ScanAll(ctx context.Context) ([]Record, error)

	// Ping probes the connection and updates Ready.
	Ping(ctx context.Context) error

	// Ready reports whether the last probe succeeded.
	Ready() bool
}

// Migrator is implemented by stores that can create their own schema.
type Migrator interface {
	InitSchema(ctx context.Context) error
}
