package recent

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

func TestAddMovesToFrontAndCaps(t *testing.T) {
	ctx := context.Background()
	l := New(kv.NewMemoryStore(), kv.NewKeys("").RecentlyViewed(), products{}, nil)

	for id := int64(1); id <= 12; id++ {
		require.NoError(t, l.Add(ctx, id))
	}
	ids := l.IDs(ctx)
	assert.Len(t, ids, Limit)
	assert.Equal(t, int64(12), ids[0])
	assert.Equal(t, int64(3), ids[Limit-1])

	require.NoError(t, l.Add(ctx, 5))
	ids = l.IDs(ctx)
	assert.Len(t, ids, Limit)
	assert.Equal(t, []int64{5, 12, 11, 10}, ids[:4])
}

func TestDetails(t *testing.T) {
	ctx := context.Background()
	l := New(kv.NewMemoryStore(), "recent", products{1: {ID: 1}, 2: {ID: 2}}, nil)
	for _, id := range []int64{1, 99, 2} {
		require.NoError(t, l.Add(ctx, id))
	}

	got := l.Details(ctx, 2)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Len(t, l.Details(ctx), 2)
}
