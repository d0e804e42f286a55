package wishlist

import (
	"context"
	"testing"

	"storefront/internal/model"
	"storefront/pkg/kv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type products map[int64]model.Product

func (p products) ByID(id int64) (model.Product, bool) {
	v, ok := p[id]
	return v, ok
}

func newSet(t *testing.T, store kv.Store) *Set {
	t.Helper()
	s := New(store, kv.NewKeys("").Wishlist(), products{1: {ID: 1, Slug: "a"}, 2: {ID: 2, Slug: "b"}}, nil)
	t.Cleanup(s.Close)
	return s
}

func TestToggle(t *testing.T) {
	ctx := context.Background()
	s := newSet(t, kv.NewMemoryStore())

	added, err := s.Toggle(ctx, 1)
	require.NoError(t, err)
	assert.True(t, added)
	assert.True(t, s.Contains(ctx, 1))

	added, err = s.Toggle(ctx, 1)
	require.NoError(t, err)
	assert.False(t, added)
	assert.False(t, s.Contains(ctx, 1))
}

func TestAddRemoveIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newSet(t, kv.NewMemoryStore())

	require.NoError(t, s.Add(ctx, 2))
	require.NoError(t, s.Add(ctx, 2))
	require.NoError(t, s.Add(ctx, 99))
	assert.Equal(t, []int64{2, 99}, s.IDs(ctx))
	assert.Equal(t, 2, s.Count(ctx))

	details := s.Details(ctx)
	require.Len(t, details, 1)
	assert.Equal(t, "b", details[0].Slug)

	require.NoError(t, s.Remove(ctx, 99))
	require.NoError(t, s.Remove(ctx, 99))
	assert.Equal(t, []int64{2}, s.IDs(ctx))
}

func TestWishlistChangedEvents(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	s := newSet(t, store)
	peer := newSet(t, store.Share())

	var counts []int
	peer.Subscribe(func(n int) { counts = append(counts, n) })

	require.NoError(t, s.Add(ctx, 1))
	require.NoError(t, s.Add(ctx, 1))
	require.NoError(t, s.Add(ctx, 2))
	assert.Equal(t, []int{1, 2}, counts)
}
