// Package store provides the durable key-value snapshot store used by the
// wallet ledger and the track catalog. The in-memory state of those
// components stays authoritative for the session; a failed save degrades to
// a warning, it never blocks the mutation that triggered it.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Load when no snapshot exists for the key.
	ErrNotFound = errors.New("store: key not found")

	// ErrStorageFull is returned by Save when the backing store is out of
	// space. Callers treat it as a non-fatal warning.
	ErrStorageFull = errors.New("store: storage full")
)

// Store is the durable snapshot store. Values are opaque JSON blobs; the
// caller owns serialization.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
}
