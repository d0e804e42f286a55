package kv

// DefaultPrefix 是持久化 key 的默认命名空间。
const DefaultPrefix = "techhouse"

// Keys 统一约定各组件使用的 key 名。
type Keys struct {
	Prefix string
}

// NewKeys 以 prefix 为命名空间；空串使用 DefaultPrefix。
func NewKeys(prefix string) Keys {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Keys{Prefix: prefix}
}

// Cart 购物车明细 [{id, qty}]。
func (k Keys) Cart() string { return k.Prefix + ":cart" }

// Wishlist 收藏的商品 id 列表。
func (k Keys) Wishlist() string { return k.Prefix + ":wishlist" }

// Session 当前登录用户（不含密码）。
func (k Keys) Session() string { return k.Prefix + ":session" }

// Users 全部注册账号。
func (k Keys) Users() string { return k.Prefix + ":users" }

// Orders 订单流水，新单在前。
func (k Keys) Orders() string { return k.Prefix + ":orders" }

// RecentlyViewed 最近浏览的商品 id。
func (k Keys) RecentlyViewed() string { return k.Prefix + ":recently_viewed" }

// Changes 是 redis 后端广播变更的 Pub/Sub 频道。
func (k Keys) Changes() string { return k.Prefix + ":changes" }
