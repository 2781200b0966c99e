// Package kvstore provides the device-local durable key-value storage used for
// the offline trail list and the recording snapshot.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist
var ErrNotFound = errors.New("key not found")

// Backend names accepted by configuration
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Store is a durable key-value store. Implementations must make a successful
// Set visible to a subsequent Get after a process restart.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
