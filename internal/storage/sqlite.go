package storage

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SQLiteBackend stores values in a kv table with a per-key revision counter.
// Watch polls the revision column; there is no push channel in sqlite, so
// external writers are observed with up to one poll interval of delay.
type SQLiteBackend struct {
	db           *sql.DB
	maxBytes     int
	pollInterval time.Duration

	mu        sync.Mutex
	lastWrite map[string][]byte
}

// NewSQLiteBackend wraps an already-migrated database handle. The handle is
// owned by the caller and is not closed here. maxBytes of zero disables the
// per-value size cap.
func NewSQLiteBackend(db *sql.DB, maxBytes int, pollInterval time.Duration) *SQLiteBackend {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &SQLiteBackend{
		db:           db,
		maxBytes:     maxBytes,
		pollInterval: pollInterval,
		lastWrite:    make(map[string][]byte),
	}
}

func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", key, err)
	}
	return value, nil
}

func (b *SQLiteBackend) Set(ctx context.Context, key string, value []byte) error {
	if b.maxBytes > 0 && len(value) > b.maxBytes {
		return ErrQuotaExceeded
	}
	query := `
		INSERT INTO kv (key, value, revision, updated_at) VALUES (?, ?, 1, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			revision = kv.revision + 1,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := b.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("could not persist %s: %w", key, err)
	}
	b.mu.Lock()
	b.lastWrite[key] = bytes.Clone(value)
	b.mu.Unlock()
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("could not delete %s: %w", key, err)
	}
	return nil
}

// Watch polls for revision changes. The first poll establishes a baseline;
// own writes are suppressed by value comparison, same as the file backend.
func (b *SQLiteBackend) Watch(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		seen := make(map[string]int64)
		baseline := true
		ticker := time.NewTicker(b.pollInterval)
		defer ticker.Stop()
		for {
			if err := b.poll(ctx, ch, seen, baseline); err != nil {
				slog.Warn("kv poll failed", "error", err)
			}
			baseline = false
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return ch, nil
}

func (b *SQLiteBackend) poll(ctx context.Context, ch chan<- Event, seen map[string]int64, baseline bool) error {
	rows, err := b.db.QueryContext(ctx, "SELECT key, value, revision FROM kv")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var value []byte
		var revision int64
		if err := rows.Scan(&key, &value, &revision); err != nil {
			return err
		}
		changed := !baseline && revision != seen[key]
		seen[key] = revision
		if !changed {
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
			return ctx.Err()
		}
	}
	return rows.Err()
}

func (b *SQLiteBackend) Close() error { return nil }
