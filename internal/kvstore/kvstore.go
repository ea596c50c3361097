// Package kvstore provides the key-value persistence layer for alert and
// preference state. Values are JSON blobs under fixed keys; state is read at
// startup and written after every mutating operation.
package kvstore

import (
	"context"
	"errors"
)

// Store errors.
var (
	ErrKeyNotFound = errors.New("key not found")
)

// Well-known keys.
const (
	// KeyActiveWaitingAlerts holds the serialized waiting-alert list.
	KeyActiveWaitingAlerts = "activeWaitingAlerts"

	// KeyPreferences holds the rider preference document.
	KeyPreferences = "preferences"
)

// Store is a key-value store for JSON-encoded state.
type Store interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
}
