// Package store provides the case record store: a SQLite implementation with a
// live snapshot stream.
package store

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/casefile/internal/model"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrClosed        = errors.New("store closed")
)

// Store defines the record storage contract.
type Store interface {
	// Create inserts a new record. The id must not have been used before.
	Create(ctx context.Context, r model.Record) error

	// Update replaces the stored fields of an existing record.
	Update(ctx context.Context, r model.Record) error

	// Delete removes a record. Deleting an unknown id is a no-op.
	Delete(ctx context.Context, id ulid.ULID) error

	// Get returns a record by id, or ErrNotFound.
	Get(ctx context.Context, id ulid.ULID) (model.Record, error)

	// Observe streams full snapshots in creation order. The current snapshot
	// is delivered immediately, then one after every mutation. A slow reader
	// skips intermediate snapshots but always receives the latest. The
	// channel closes when ctx is done or the store is closed.
	Observe(ctx context.Context) (<-chan model.Snapshot, error)

	// Close closes the store.
	Close() error
}
