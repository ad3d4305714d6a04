package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileBackend persists each key as one file under a data directory. Writes
// go through a temp file and an atomic rename, so a concurrent reader never
// observes a torn value. External writers to the same directory (another
// process hosting the same widget) are surfaced through Watch via fsnotify.
type FileBackend struct {
	dir      string
	maxBytes int

	mu sync.Mutex
	// lastWrite remembers this backend's own writes so Watch can suppress
	// the echo events fsnotify raises for them.
	lastWrite map[string][]byte
}

const fileExt = ".json"

// NewFileBackend creates the data directory if needed. maxBytes of zero
// disables the per-value size cap.
func NewFileBackend(dir string, maxBytes int) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileBackend{
		dir:       dir,
		maxBytes:  maxBytes,
		lastWrite: make(map[string][]byte),
	}, nil
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.dir, key+fileExt)
}

func (b *FileBackend) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := os.ReadFile(b.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", key, err)
	}
	return value, nil
}

func (b *FileBackend) Set(ctx context.Context, key string, value []byte) error {
	if b.maxBytes > 0 && len(value) > b.maxBytes {
		return ErrQuotaExceeded
	}

	tmp, err := os.CreateTemp(b.dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("could not create temp file for %s: %w", key, err)
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("could not write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("could not close temp file for %s: %w", key, err)
	}

	b.mu.Lock()
	b.lastWrite[key] = bytes.Clone(value)
	b.mu.Unlock()

	if err := os.Rename(tmp.Name(), b.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("could not persist %s: %w", key, err)
	}
	return nil
}

func (b *FileBackend) Delete(ctx context.Context, key string) error {
	if err := os.Remove(b.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not delete %s: %w", key, err)
	}
	return nil
}

// Watch reports value files rewritten by other processes. The backend's own
// writes are filtered out by comparing against the last value it persisted.
func (b *FileBackend) Watch(ctx context.Context) (<-chan Event, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create watcher: %w", err)
	}
	if err := watcher.Add(b.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("could not watch %s: %w", b.dir, err)
	}

	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				name := filepath.Base(ev.Name)
				if !strings.HasSuffix(name, fileExt) || strings.Contains(name, ".tmp-") {
					continue
				}
				key := strings.TrimSuffix(name, fileExt)
				value, err := os.ReadFile(ev.Name)
				if err != nil {
					continue
				}
				b.mu.Lock()
				own := bytes.Equal(b.lastWrite[key], value)
				b.mu.Unlock()
				if own {
					continue
				}
				select {
				case ch <- Event{Key: key, Value: value}:
				case <-ctx.Done():
					return
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return ch, nil
}

func (b *FileBackend) Close() error { return nil }
