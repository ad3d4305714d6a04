package storage

import (
	"bytes"
	"context"
	"sync"
)

// MemoryBackend is a map-backed Backend for tests and embedding. A non-zero
// MaxBytes puts a per-value size cap in place so quota handling can be
// exercised without a real constrained store.
type MemoryBackend struct {
	mu       sync.Mutex
	data     map[string][]byte
	maxBytes int
	watchers []chan Event
	closed   bool
}

func NewMemoryBackend(maxBytes int) *MemoryBackend {
	return &MemoryBackend{
		data:     make(map[string][]byte),
		maxBytes: maxBytes,
	}
}

func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	value, ok := b.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(value), nil
}

func (b *MemoryBackend) Set(ctx context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxBytes > 0 && len(value) > b.maxBytes {
		return ErrQuotaExceeded
	}
	b.data[key] = bytes.Clone(value)
	return nil
}

func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

func (b *MemoryBackend) Watch(ctx context.Context) (<-chan Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, 16)
	b.watchers = append(b.watchers, ch)
	return ch, nil
}

// Inject simulates a write from another execution context: the value is
// stored and every watcher is notified, which a backend's own Set never does.
func (b *MemoryBackend) Inject(key string, value []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.data[key] = bytes.Clone(value)
	for _, ch := range b.watchers {
		select {
		case ch <- Event{Key: key, Value: bytes.Clone(value)}:
		default:
		}
	}
}

func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, ch := range b.watchers {
		close(ch)
	}
	b.watchers = nil
	return nil
}
