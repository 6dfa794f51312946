// Package snapshot persists the state of context partitions so that a
// restarted agent instance can be warmed by a preload action before any
// event is dispatched to it.
package snapshot

import (
	"errors"
	"time"
)

// Store persists partition snapshots.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores the snapshot of one partition of a statement,
	// replacing any previous snapshot of that partition.
	Save(statement, partition string, data []byte) error

	// Load retrieves a snapshot. Returns ErrNotFound if none exists.
	Load(statement, partition string) ([]byte, error)

	// List returns the snapshots of a statement ordered by sequence.
	// Returns an empty slice, not an error, when there are none.
	List(statement string) ([]Info, error)

	// Delete removes one snapshot. Missing snapshots are not an error.
	Delete(statement, partition string) error

	// DeleteStatement removes every snapshot of a statement.
	DeleteStatement(statement string) error

	// Close releases the store.
	Close() error
}

// Info describes a snapshot without its payload.
type Info struct {
	Statement string
	Partition string
	Sequence  int
	Timestamp time.Time
	Size      int64
}

// Sentinel errors for snapshot operations.
var (
	// ErrNotFound indicates no snapshot exists for the partition.
	ErrNotFound = errors.New("snapshot not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("snapshot store closed")
)
