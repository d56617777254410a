package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]*Local {
	t.Helper()

	mem, err := Open("")
	require.NoError(t, err)

	disk, err := Open(filepath.Join(t.TempDir(), "flx.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		mem.Close()
		disk.Close()
	})
	return map[string]*Local{"memory": mem, "bolt": disk}
}

func TestLocal(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("absent key", func(t *testing.T) {
				v, ok, err := s.Get("missing")
				require.NoError(t, err)
				assert.False(t, ok)
				assert.Nil(t, v)
			})

			t.Run("put then get", func(t *testing.T) {
				require.NoError(t, s.Put("flx_my_list", []byte(`[]`)))

				v, ok, err := s.Get("flx_my_list")
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, `[]`, string(v))
			})

			t.Run("returned slices are copies", func(t *testing.T) {
				require.NoError(t, s.Put("k", []byte("abc")))
				v, _, _ := s.Get("k")
				v[0] = 'z'

				again, _, _ := s.Get("k")
				assert.Equal(t, "abc", string(again))
			})

			t.Run("delete", func(t *testing.T) {
				require.NoError(t, s.Put("gone", []byte("1")))
				require.NoError(t, s.Delete("gone"))
				require.NoError(t, s.Delete("never-existed"))

				_, ok, err := s.Get("gone")
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("keys", func(t *testing.T) {
				keys, err := s.Keys()
				require.NoError(t, err)
				assert.Contains(t, keys, "flx_my_list")
				assert.NotContains(t, keys, "gone")
			})
		})
	}
}

func TestLocalPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "flx.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put("flx_liked_items", []byte(`[{"id":"1"}]`)))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.Get("flx_liked_items")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":"1"}]`, string(v))
	assert.Equal(t, path, reopened.Path())
}

func TestLocalLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flx.db")

	first, err := Open(path)
	require.NoError(t, err)
	defer first.Close()

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestCatalogCache(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			c := s.Catalog()

			_, _, ok := c.Get("/movie/popular?page=1")
			assert.False(t, ok)

			require.NoError(t, c.Put("/movie/popular?page=1", []byte(`{"page":1}`), now))
			require.NoError(t, c.Put("/tv/popular?page=1", []byte(`{"page":1}`), now.Add(-2*time.Hour)))

			body, at, ok := c.Get("/movie/popular?page=1")
			require.True(t, ok)
			assert.JSONEq(t, `{"page":1}`, string(body))
			assert.True(t, at.Equal(now))

			assert.Error(t, c.Put("bad", []byte("not json"), now))

			removed, err := c.Purge(now.Add(-time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			_, _, ok = c.Get("/tv/popular?page=1")
			assert.False(t, ok)
			_, _, ok = c.Get("/movie/popular?page=1")
			assert.True(t, ok)
		})
	}
}
