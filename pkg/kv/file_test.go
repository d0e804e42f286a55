package kv

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "storage.json")

	s, err := OpenFileStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "techhouse:wishlist", []byte("[3,4]")))
	require.NoError(t, s.Close())

	s2, err := OpenFileStore(path, nil)
	require.NoError(t, err)
	defer s2.Close()
	v, found, err := s2.Get(ctx, "techhouse:wishlist")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "[3,4]", string(v))
}

func TestFileStore_CorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	s, err := OpenFileStore(path, nil)
	require.NoError(t, err)
	defer s.Close()
	_, found, err := s.Get(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFileStore_RemoteChangeObserved(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "storage.json")

	writer, err := OpenFileStore(path, nil)
	require.NoError(t, err)
	defer writer.Close()
	reader, err := OpenFileStore(path, nil)
	require.NoError(t, err)
	defer reader.Close()

	var (
		mu  sync.Mutex
		got []Change
	)
	reader.Subscribe(func(c Change) {
		mu.Lock()
		got = append(got, c)
		mu.Unlock()
	})

	require.NoError(t, writer.Set(ctx, "techhouse:cart", []byte(`[{"id":1,"qty":1}]`)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range got {
			if c.Key == "techhouse:cart" && c.Remote {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)
}

func TestDiffKeys(t *testing.T) {
	before := map[string]string{"a": "1", "b": "2", "c": "3"}
	after := map[string]string{"a": "1", "b": "x", "d": "4"}
	assert.ElementsMatch(t, []string{"b", "c", "d"}, diffKeys(before, after))
}
