// Package recent 记录最近浏览的商品。
package recent

import (
	"context"
	"fmt"
	"slices"

	"storefront/internal/model"
	"storefront/pkg/kv"

	"go.uber.org/zap"
)

// Limit 最多保留的条数。
const Limit = 10

type ProductLookup interface {
	ByID(id int64) (model.Product, bool)
}

// List 最近浏览，最新的在前，不重复。
type List struct {
	store    kv.Store
	key      string
	products ProductLookup
	log      *zap.Logger
}

func New(store kv.Store, key string, products ProductLookup, log *zap.Logger) *List {
	if log == nil {
		log = zap.NewNop()
	}
	return &List{store: store, key: key, products: products, log: log.With(zap.String("component", "recent"))}
}

func (l *List) read(ctx context.Context, r kv.Reader) []int64 {
	ids, err := kv.GetJSON(ctx, r, l.key, []int64{})
	if err != nil {
		l.log.Warn("read recently viewed failed, using empty list", zap.String("key", l.key), zap.Error(err))
	}
	return ids
}

// Add 把 id 移到最前面，超出 Limit 的旧记录被丢弃。
func (l *List) Add(ctx context.Context, id int64) error {
	err := l.store.Update(ctx, func(tx kv.Txn) error {
		ids := slices.DeleteFunc(l.read(ctx, tx), func(v int64) bool { return v == id })
		ids = slices.Insert(ids, 0, id)
		if len(ids) > Limit {
			ids = ids[:Limit]
		}
		return kv.PutJSON(ctx, tx, l.key, ids)
	})
	if err != nil {
		return fmt.Errorf("update recently viewed: %w", err)
	}
	return nil
}

// IDs 返回最近浏览的 id。
func (l *List) IDs(ctx context.Context) []int64 { return l.read(ctx, l.store) }

// Details 返回商品，可排除当前正在看的商品；目录里已不存在的 id 被跳过。
func (l *List) Details(ctx context.Context, exclude ...int64) []model.Product {
	var out []model.Product
	for _, id := range l.IDs(ctx) {
		if slices.Contains(exclude, id) {
			continue
		}
		if p, ok := l.products.ByID(id); ok {
			out = append(out, p)
		}
	}
	return out
}
