// Package storage provides the key-value persistence backends behind the
// conversation store. The backend is injectable so the engine can run
// against a plain directory of files, a sqlite database, or an in-memory
// map in tests.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when a key has never been written.
var ErrNotFound = errors.New("storage: key not found")

// ErrQuotaExceeded is returned by Set when the backend cannot accept a value
// of the given size. The conversation store reacts by retrying with a
// reduced retention window instead of dropping the transcript.
var ErrQuotaExceeded = errors.New("storage: quota exceeded")

// Event describes a key written by another execution context. Value is the
// raw stored bytes at the time the change was observed.
type Event struct {
	Key   string
	Value []byte
}

// Backend is a durable key-value store with external-change notification.
// Writes from two contexts can race; the last write wins.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Watch reports writes made by other contexts until ctx is cancelled or
	// the backend is closed. A backend's own writes are not reported.
	Watch(ctx context.Context) (<-chan Event, error)
	Close() error
}
