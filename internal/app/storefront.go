// Package app 组装目录、购物车、收藏、账号与订单，供 HTTP 层与命令行工具使用。
package app

import (
	"context"
	"fmt"

	"storefront/internal/account"
	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/model"
	"storefront/internal/order"
	"storefront/internal/recent"
	"storefront/internal/validate"
	"storefront/internal/wishlist"
	"storefront/pkg/kv"

	"go.uber.org/zap"
)

// Options 可选依赖，零值使用默认实现。
type Options struct {
	Keys    kv.Keys
	Pricing *cart.Pricing
	Hasher  account.PasswordHasher
	Clock   account.Clock
	Logger  *zap.Logger
}

// Storefront 一个店铺实例：全部组件共享同一个 store。
type Storefront struct {
	Catalog  *catalog.Catalog
	Cart     *cart.Ledger
	Wishlist *wishlist.Set
	Accounts *account.Directory
	Orders   *order.Journal
	Recent   *recent.List

	store kv.Store
	keys  kv.Keys
	log   *zap.Logger
}

func New(store kv.Store, cat *catalog.Catalog, opts Options) *Storefront {
	if opts.Keys.Prefix == "" {
		opts.Keys = kv.NewKeys("")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = account.SystemClock()
	}
	pricing := cart.DefaultPricing()
	if opts.Pricing != nil {
		pricing = *opts.Pricing
	}
	v := validate.New()
	keys := opts.Keys

	accounts := account.NewDirectory(store, account.Options{
		UsersKey:   keys.Users(),
		SessionKey: keys.Session(),
		Hasher:     opts.Hasher,
		Clock:      opts.Clock,
		Validator:  v,
		Logger:     opts.Logger,
	})
	return &Storefront{
		Catalog:  cat,
		Cart:     cart.NewLedger(store, keys.Cart(), cat, pricing, opts.Logger),
		Wishlist: wishlist.New(store, keys.Wishlist(), cat, opts.Logger),
		Accounts: accounts,
		Orders:   order.NewJournal(store, keys.Orders(), accounts, opts.Clock, v, opts.Logger),
		Recent:   recent.New(store, keys.RecentlyViewed(), cat, opts.Logger),
		store:    store,
		keys:     keys,
		log:      opts.Logger,
	}
}

// Init 为缺失的 key 写入空列表，然后推送一次当前状态。
func (s *Storefront) Init(ctx context.Context) error {
	defaults := []string{s.keys.Cart(), s.keys.Wishlist(), s.keys.Orders(), s.keys.Users()}
	err := s.store.Update(ctx, func(tx kv.Txn) error {
		for _, key := range defaults {
			_, found, err := tx.Get(ctx, key)
			if err != nil {
				return err
			}
			if found {
				continue
			}
			if err := tx.Set(ctx, key, []byte("[]")); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	s.Cart.Broadcast(ctx)
	s.Wishlist.Broadcast(ctx)
	s.Accounts.Broadcast(ctx)
	return nil
}

// Close 取消各组件对 store 的订阅；store 由调用方关闭。
func (s *Storefront) Close() {
	s.Cart.Close()
	s.Wishlist.Close()
	s.Accounts.Close()
}

// 事件类型
const (
	EventCart        = "cart"
	EventWishlist    = "wishlist"
	EventSession     = "session"
	EventOrderPlaced = "order"
	EventOrderStatus = "order_status"
)

// Event 是推送给前端的变更通知。
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// WishlistState 是 "wishlist changed" 的负载。
type WishlistState struct {
	Count int `json:"count"`
}

// SessionState 是 "session changed" 的负载，未登录时 User 为 nil。
type SessionState struct {
	User *model.Profile `json:"user"`
}

// SubscribeEvents 把各组件的通知合并为一个 Event 流。
func (s *Storefront) SubscribeEvents(fn func(Event)) (cancel func()) {
	cancels := []func(){
		s.Cart.Subscribe(func(sum model.CartSummary) { fn(Event{Type: EventCart, Data: sum}) }),
		s.Wishlist.Subscribe(func(n int) { fn(Event{Type: EventWishlist, Data: WishlistState{Count: n}}) }),
		s.Accounts.Subscribe(func(p *model.Profile) { fn(Event{Type: EventSession, Data: SessionState{User: p}}) }),
		s.Orders.OnPlaced(func(o model.Order) { fn(Event{Type: EventOrderPlaced, Data: o}) }),
		s.Orders.OnStatusChanged(func(o model.Order) { fn(Event{Type: EventOrderStatus, Data: o}) }),
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

// Snapshot 返回当前状态，供新连接的订阅者初始化。
func (s *Storefront) Snapshot(ctx context.Context) []Event {
	return []Event{
		{Type: EventCart, Data: s.Cart.Summary(ctx)},
		{Type: EventWishlist, Data: WishlistState{Count: s.Wishlist.Count(ctx)}},
		{Type: EventSession, Data: SessionState{User: s.Accounts.CurrentUser(ctx)}},
	}
}
