package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return map[string]Backend{
		"sqlite": db,
		"memory": NewMemory(),
	}
}

func TestBackend(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Get("cards")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, b.Set("cards", []byte(`[1]`)))
			got, err := b.Get("cards")
			require.NoError(t, err)
			assert.Equal(t, `[1]`, string(got))

			require.NoError(t, b.Set("cards", []byte(`[1,2]`)))
			got, err = b.Get("cards")
			require.NoError(t, err)
			assert.Equal(t, `[1,2]`, string(got))

			require.NoError(t, b.Delete("cards"))
			require.NoError(t, b.Delete("cards"))
			_, err = b.Get("cards")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemory_CopiesValues(t *testing.T) {
	m := NewMemory()
	v := []byte("abc")
	require.NoError(t, m.Set("k", v))
	v[0] = 'x'

	got, err := m.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestDB_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Set("decks", []byte(`[]`)))
	require.NoError(t, db.Set("cards", []byte(`[]`)))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	for _, key := range []string{"decks", "cards"} {
		got, err := db.Get(key)
		require.NoError(t, err)
		assert.Equal(t, "[]", string(got))
	}
}
