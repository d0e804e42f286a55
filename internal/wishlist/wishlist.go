// Package wishlist 收藏夹：保存在 store 中的商品 id 集合。
package wishlist

import (
	"context"
	"fmt"
	"slices"

	"storefront/internal/model"
	"storefront/pkg/kv"
	"storefront/pkg/notify"

	"go.uber.org/zap"
)

// ProductLookup 按 id 取商品。
type ProductLookup interface {
	ByID(id int64) (model.Product, bool)
}

// Set 收藏夹。id 按加入顺序保存，不重复。
type Set struct {
	store    kv.Store
	key      string
	products ProductLookup
	log      *zap.Logger

	feed  notify.Feed[int]
	unsub func()
}

func New(store kv.Store, key string, products ProductLookup, log *zap.Logger) *Set {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Set{
		store:    store,
		key:      key,
		products: products,
		log:      log.With(zap.String("component", "wishlist")),
	}
	s.unsub = store.Subscribe(func(c kv.Change) {
		if c.Key != s.key || s.feed.Len() == 0 {
			return
		}
		s.feed.Emit(s.Count(context.Background()))
	})
	return s
}

// Subscribe 监听 "wishlist changed"，参数为当前数量。
func (s *Set) Subscribe(fn func(count int)) (cancel func()) { return s.feed.Subscribe(fn) }

// Broadcast 主动推送一次当前数量。
func (s *Set) Broadcast(ctx context.Context) { s.feed.Emit(s.Count(ctx)) }

func (s *Set) Close() { s.unsub() }

func (s *Set) read(ctx context.Context, r kv.Reader) []int64 {
	ids, err := kv.GetJSON(ctx, r, s.key, []int64{})
	if err != nil {
		s.log.Warn("read wishlist failed, using empty list", zap.String("key", s.key), zap.Error(err))
	}
	return ids
}

func (s *Set) mutate(ctx context.Context, fn func(ids []int64) ([]int64, bool)) error {
	err := s.store.Update(ctx, func(tx kv.Txn) error {
		ids, changed := fn(s.read(ctx, tx))
		if !changed {
			return nil
		}
		return kv.PutJSON(ctx, tx, s.key, ids)
	})
	if err != nil {
		return fmt.Errorf("update wishlist: %w", err)
	}
	return nil
}

// IDs 返回收藏的商品 id。
func (s *Set) IDs(ctx context.Context) []int64 { return s.read(ctx, s.store) }

// Contains 判断是否已收藏。
func (s *Set) Contains(ctx context.Context, id int64) bool {
	return slices.Contains(s.IDs(ctx), id)
}

// Count 收藏数量。
func (s *Set) Count(ctx context.Context) int { return len(s.IDs(ctx)) }

// Add 幂等加入。
func (s *Set) Add(ctx context.Context, id int64) error {
	return s.mutate(ctx, func(ids []int64) ([]int64, bool) {
		if slices.Contains(ids, id) {
			return nil, false
		}
		return append(ids, id), true
	})
}

// Remove 幂等移除。
func (s *Set) Remove(ctx context.Context, id int64) error {
	return s.mutate(ctx, func(ids []int64) ([]int64, bool) {
		i := slices.Index(ids, id)
		if i < 0 {
			return nil, false
		}
		return slices.Delete(ids, i, i+1), true
	})
}

// Toggle 已收藏则移除，否则加入；返回操作后是否处于收藏状态。
func (s *Set) Toggle(ctx context.Context, id int64) (added bool, err error) {
	err = s.mutate(ctx, func(ids []int64) ([]int64, bool) {
		if i := slices.Index(ids, id); i >= 0 {
			added = false
			return slices.Delete(ids, i, i+1), true
		}
		added = true
		return append(ids, id), true
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

// Details 返回收藏的商品，目录里已不存在的 id 被跳过。
func (s *Set) Details(ctx context.Context) []model.Product {
	ids := s.IDs(ctx)
	out := make([]model.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products.ByID(id); ok {
			out = append(out, p)
		}
	}
	return out
}
