package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura-assist/engine/internal/storage"
)

func TestSQLiteBackend_Get(t *testing.T) {
	ctx := context.Background()
	db, mockDB, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	backend := storage.NewSQLiteBackend(db, 0, time.Second)

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"value"}).AddRow([]byte(`[]`))
		mockDB.ExpectQuery("SELECT value FROM kv").WithArgs("chatMessages").WillReturnRows(rows)

		value, err := backend.Get(ctx, "chatMessages")
		require.NoError(t, err)
		assert.Equal(t, `[]`, string(value))
	})

	t.Run("absent key maps to ErrNotFound", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT value FROM kv").WithArgs("conversationId").
			WillReturnRows(sqlmock.NewRows([]string{"value"}))

		_, err := backend.Get(ctx, "conversationId")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestSQLiteBackend_Set(t *testing.T) {
	ctx := context.Background()
	db, mockDB, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	t.Run("upserts with revision bump", func(t *testing.T) {
		backend := storage.NewSQLiteBackend(db, 0, time.Second)
		mockDB.ExpectExec("INSERT INTO kv").WithArgs("chatMessages", []byte(`[]`)).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, backend.Set(ctx, "chatMessages", []byte(`[]`)))
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("quota rejects before touching the database", func(t *testing.T) {
		backend := storage.NewSQLiteBackend(db, 4, time.Second)
		err := backend.Set(ctx, "chatMessages", []byte("over the cap"))
		assert.ErrorIs(t, err, storage.ErrQuotaExceeded)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestSQLiteBackend_WatchEmitsExternalRevisions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, mockDB, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// First poll is the baseline, second shows an external revision bump.
	mockDB.ExpectQuery("SELECT key, value, revision FROM kv").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value", "revision"}).
			AddRow("chatMessages", []byte(`[]`), 1))
	mockDB.ExpectQuery("SELECT key, value, revision FROM kv").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value", "revision"}).
			AddRow("chatMessages", []byte(`[{"role":"user"}]`), 2))

	backend := storage.NewSQLiteBackend(db, 0, 10*time.Millisecond)
	events, err := backend.Watch(ctx)
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, "chatMessages", ev.Key)
		assert.Equal(t, `[{"role":"user"}]`, string(ev.Value))
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for revision change event")
	}
}
