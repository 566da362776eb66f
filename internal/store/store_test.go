package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-bot-go/internal/config"
	"solana-trade-bot-go/internal/database"
)

type sample struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

func newSQLStore(t *testing.T) *SQLStore {
	db, err := database.NewDatabase("file::memory:")
	require.NoError(t, err)
	return NewSQLStore(db)
}

func TestStores_RoundTrip(t *testing.T) {
	stores := map[string]Store{
		"sql":    newSQLStore(t),
		"file":   NewFileStore(filepath.Join(t.TempDir(), "data")),
		"memory": NewMemoryStore(),
	}

	for name, st := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var missing sample
			err := st.Load(ctx, "strategy", &missing)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, st.Save(ctx, "strategy", sample{Name: "first", Items: []string{"a"}}))
			require.NoError(t, st.Save(ctx, "strategy", sample{Name: "second", Items: []string{"a", "b"}}))

			var got sample
			require.NoError(t, st.Load(ctx, "strategy", &got))
			assert.Equal(t, "second", got.Name)
			assert.Equal(t, []string{"a", "b"}, got.Items)
		})
	}
}

func TestFileStore_CorruptDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "positions.json"), []byte("{not json"), 0o644))

	st := NewFileStore(dir)
	var got sample
	err := st.Load(context.Background(), "positions", &got)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestFileStore_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	st := NewFileStore(dir)
	require.NoError(t, st.Save(context.Background(), "positions", sample{Name: "x"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "positions.json", entries[0].Name())
}

func TestMemoryStore_SaveError(t *testing.T) {
	st := NewMemoryStore()
	st.SaveErr = errors.New("disk full")

	err := st.Save(context.Background(), "positions", sample{})
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, err.Error(), "disk full")
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	st, err := Open(config.Database{Driver: config.DriverSQLite, DSN: filepath.Join(dir, "nested", "trading.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, st)
	assert.FileExists(t, filepath.Join(dir, "nested", "trading.db"))

	st, err = Open(config.Database{Driver: config.DriverFile, Dir: dir})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, st)

	st, err = Open(config.Database{Driver: config.DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, st)

	_, err = Open(config.Database{Driver: "mongo"})
	assert.Error(t, err)
}
