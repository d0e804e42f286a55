package cart

import (
	"context"
	"math"
	"slices"
	"testing"

	"storefront/internal/apperr"
	"storefront/internal/model"
	"storefront/pkg/kv"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type products map[int64]model.Product

func (p products) ByID(id int64) (model.Product, bool) {
	v, ok := p[id]
	return v, ok
}

func testProducts() products {
	return products{
		1: {ID: 1, Slug: "mixer", Name: "Mixer", Price: decimal.NewFromInt(100), Stock: 3, Images: []string{"a.jpg"}},
		2: {ID: 2, Slug: "dryer", Name: "Dryer", Price: decimal.RequireFromString("89.50"), Stock: 10},
		5: {ID: 5, Slug: "oven", Name: "Oven", Price: decimal.NewFromInt(189), Stock: 0},
	}
}

func newLedger(t *testing.T, store kv.Store) *Ledger {
	t.Helper()
	l := NewLedger(store, kv.NewKeys("").Cart(), testProducts(), DefaultPricing(), nil)
	t.Cleanup(l.Close)
	return l
}

func TestAddClampsToStock(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, kv.NewMemoryStore())

	for range 5 {
		ok, err := l.Add(ctx, 1, 1)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, []model.CartLine{{ProductID: 1, Quantity: 3}}, l.Lines(ctx))

	ok, err := l.Add(ctx, 2, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, l.Count(ctx))
}

func TestAddUnavailable(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, kv.NewMemoryStore())

	for _, id := range []int64{5, 404} {
		ok, err := l.Add(ctx, id, 1)
		assert.False(t, ok)
		assert.ErrorIs(t, err, apperr.ErrProductUnavailable)
	}
	assert.True(t, l.IsEmpty(ctx))
}

func TestSetQuantity(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, kv.NewMemoryStore())

	ok, err := l.SetQuantity(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, ok, "no line yet")

	_, err = l.Add(ctx, 1, 1)
	require.NoError(t, err)

	ok, err = l.SetQuantity(ctx, 1, 99)
	require.NoError(t, err)
	assert.True(t, ok)
	items := slices.Collect(l.Details(ctx))
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)

	ok, err = l.SetQuantity(ctx, 1, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, l.IsEmpty(ctx))
}

func TestIncrementDecrement(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, kv.NewMemoryStore())
	_, err := l.Add(ctx, 2, 1)
	require.NoError(t, err)

	_, err = l.Increment(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Count(ctx))

	_, err = l.Decrement(ctx, 2)
	require.NoError(t, err)
	_, err = l.Decrement(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, l.Lines(ctx))

	ok, err := l.Increment(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddHugeQuantityOnExistingLine(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, kv.NewMemoryStore())

	_, err := l.Add(ctx, 2, 1)
	require.NoError(t, err)
	ok, err := l.Add(ctx, 2, math.MaxInt)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []model.CartLine{{ProductID: 2, Quantity: 10}}, l.Lines(ctx))
	assert.True(t, l.Subtotal(ctx).Equal(decimal.NewFromInt(895)))

	ok, err = l.Add(ctx, 1, math.MaxInt)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 13, l.Count(ctx))
}

func TestIncrementAtStockKeepsLine(t *testing.T) {
	ctx := context.Background()
	catalog := testProducts()
	l := NewLedger(kv.NewMemoryStore(), kv.NewKeys("").Cart(), catalog, DefaultPricing(), nil)
	t.Cleanup(l.Close)

	_, err := l.Add(ctx, 1, 3)
	require.NoError(t, err)
	ok, err := l.Increment(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok, "line still exists")
	assert.Equal(t, []model.CartLine{{ProductID: 1, Quantity: 3}}, l.Lines(ctx))

	// 商品售罄后递增也不能把行删掉
	soldOut := catalog[1]
	soldOut.Stock = 0
	catalog[1] = soldOut
	ok, err = l.Increment(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []model.CartLine{{ProductID: 1, Quantity: 3}}, l.Lines(ctx))

	_, err = l.Decrement(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, l.Lines(ctx), "decrement still clamps to current stock")
}

func TestTotals(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, kv.NewMemoryStore())

	_, err := l.Add(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, l.Subtotal(ctx).Equal(decimal.NewFromInt(200)))
	assert.True(t, l.ShippingFee(ctx).Equal(decimal.NewFromInt(15)))
	assert.True(t, l.Total(ctx).Equal(decimal.NewFromInt(215)))

	_, err = l.Add(ctx, 1, 1)
	require.NoError(t, err)
	s := l.Summary(ctx)
	assert.Equal(t, 3, s.Count)
	assert.True(t, s.Subtotal.Equal(decimal.NewFromInt(300)))
	assert.True(t, s.Shipping.IsZero())
	assert.True(t, s.Total.Equal(decimal.NewFromInt(300)))
}

func TestDetailsDropsUnknownAndRestarts(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	key := kv.NewKeys("").Cart()
	require.NoError(t, store.Set(ctx, key, []byte(`[{"id":1,"qty":1},{"id":77,"qty":4}]`)))
	l := newLedger(t, store)

	seq := l.Details(ctx)
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	require.Len(t, first, 1)
	assert.Equal(t, first, second)
	assert.Equal(t, "a.jpg", first[0].Image)
	assert.True(t, first[0].InStock)
	assert.True(t, l.Subtotal(ctx).Equal(decimal.NewFromInt(100)))
}

func TestCorruptCartReadsEmpty(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(ctx, kv.NewKeys("").Cart(), []byte("{not json")))
	l := newLedger(t, store)

	assert.True(t, l.IsEmpty(ctx))
	ok, err := l.Add(ctx, 2, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, l.Count(ctx))
}

func TestCartChangedEvents(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	l := newLedger(t, store)
	other := newLedger(t, store.Share())

	var local, remote []int
	l.Subscribe(func(s model.CartSummary) { local = append(local, s.Count) })
	other.Subscribe(func(s model.CartSummary) { remote = append(remote, s.Count) })

	_, err := l.Add(ctx, 2, 2)
	require.NoError(t, err)
	require.NoError(t, l.Clear(ctx))

	assert.Equal(t, []int{2, 0}, local)
	assert.Equal(t, []int{2, 0}, remote)
}

func TestCheckout(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	l := newLedger(t, store)

	err := store.Update(ctx, func(tx kv.Txn) error {
		_, err := l.Checkout(ctx, tx)
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrEmptyCart)

	_, err = l.Add(ctx, 1, 2)
	require.NoError(t, err)
	before := slices.Collect(l.Details(ctx))

	var snap Snapshot
	require.NoError(t, store.Update(ctx, func(tx kv.Txn) error {
		var err error
		snap, err = l.Checkout(ctx, tx)
		return err
	}))
	assert.Equal(t, before, snap.Items)
	assert.True(t, snap.Total.Equal(decimal.NewFromInt(215)))
	assert.True(t, l.IsEmpty(ctx))
}

func TestPricingShipping(t *testing.T) {
	p := DefaultPricing()
	assert.True(t, p.Shipping(decimal.NewFromInt(298)).Equal(decimal.NewFromInt(15)))
	assert.True(t, p.Shipping(decimal.NewFromInt(299)).IsZero())
}
