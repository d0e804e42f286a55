package cart

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"storefront/internal/apperr"
	"storefront/internal/model"
	"storefront/pkg/kv"
	"storefront/pkg/notify"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductLookup 按 id 取商品，由 catalog.Catalog 实现。
type ProductLookup interface {
	ByID(id int64) (model.Product, bool)
}

// Ledger 购物车。明细以 [{id, qty}] 的形式保存在 store 的单个 key 下，
// 每次修改都是 store.Update 里的一次读改写。
type Ledger struct {
	store    kv.Store
	key      string
	products ProductLookup
	pricing  Pricing
	log      *zap.Logger

	feed  notify.Feed[model.CartSummary]
	unsub func()
}

// NewLedger 创建购物车并订阅 key 的变更；本地与其他句柄的写入都会触发 "cart changed"。
func NewLedger(store kv.Store, key string, products ProductLookup, pricing Pricing, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Ledger{
		store:    store,
		key:      key,
		products: products,
		pricing:  pricing,
		log:      log.With(zap.String("component", "cart")),
	}
	l.unsub = store.Subscribe(func(c kv.Change) {
		if c.Key != l.key || l.feed.Len() == 0 {
			return
		}
		l.feed.Emit(l.Summary(context.Background()))
	})
	return l
}

// Subscribe 监听 "cart changed"。
func (l *Ledger) Subscribe(fn func(model.CartSummary)) (cancel func()) {
	return l.feed.Subscribe(fn)
}

// Broadcast 主动推送一次当前汇总。
func (l *Ledger) Broadcast(ctx context.Context) { l.feed.Emit(l.Summary(ctx)) }

// Close 取消对 store 的订阅，不关闭 store。
func (l *Ledger) Close() { l.unsub() }

// Key 返回购物车所在的 store key。
func (l *Ledger) Key() string { return l.key }

// Pricing 返回运费规则。
func (l *Ledger) Pricing() Pricing { return l.pricing }

func (l *Ledger) read(ctx context.Context, r kv.Reader) []model.CartLine {
	lines, err := kv.GetJSON(ctx, r, l.key, []model.CartLine{})
	if err != nil {
		l.log.Warn("read cart failed, using empty cart", zap.String("key", l.key), zap.Error(err))
	}
	return lines
}

func (l *Ledger) mutate(ctx context.Context, fn func(lines []model.CartLine) ([]model.CartLine, bool)) (bool, error) {
	var changed bool
	err := l.store.Update(ctx, func(tx kv.Txn) error {
		lines, ok := fn(l.read(ctx, tx))
		changed = ok
		if !ok {
			return nil
		}
		return kv.PutJSON(ctx, tx, l.key, lines)
	})
	if err != nil {
		return false, fmt.Errorf("update cart: %w", err)
	}
	return changed, nil
}

// Lines 返回原始明细。
func (l *Ledger) Lines(ctx context.Context) []model.CartLine {
	return l.read(ctx, l.store)
}

// Add 加入 qty 件（qty < 1 按 1 处理），与已有数量合计后不超过库存。
// 商品不存在或无货时不修改购物车，返回 false 与 apperr.ErrProductUnavailable。
func (l *Ledger) Add(ctx context.Context, productID int64, qty int) (bool, error) {
	if qty < 1 {
		qty = 1
	}
	p, ok := l.products.ByID(productID)
	if !ok || !p.InStock() {
		return false, apperr.ErrProductUnavailable
	}
	return l.mutate(ctx, func(lines []model.CartLine) ([]model.CartLine, bool) {
		i := indexOf(lines, productID)
		if i < 0 {
			return append(lines, model.CartLine{ProductID: productID, Quantity: min(qty, p.Stock)}), true
		}
		// 先比较剩余额度再相加，qty 很大时不会溢出
		lines[i].Quantity += min(qty, p.Stock-lines[i].Quantity)
		return lines, true
	})
}

// Remove 删除明细；不存在时什么也不做。
func (l *Ledger) Remove(ctx context.Context, productID int64) error {
	_, err := l.mutate(ctx, func(lines []model.CartLine) ([]model.CartLine, bool) {
		i := indexOf(lines, productID)
		if i < 0 {
			return nil, false
		}
		return slices.Delete(lines, i, i+1), true
	})
	return err
}

// SetQuantity 设置数量：qty <= 0 删除该行，否则按库存截断。没有该行时返回 false。
func (l *Ledger) SetQuantity(ctx context.Context, productID int64, qty int) (bool, error) {
	return l.mutate(ctx, func(lines []model.CartLine) ([]model.CartLine, bool) {
		i := indexOf(lines, productID)
		if i < 0 {
			return nil, false
		}
		return l.setAt(lines, i, qty), true
	})
}

// Increment 数量 +1；已达库存上限时保持原数量，不会删除该行。
func (l *Ledger) Increment(ctx context.Context, productID int64) (bool, error) {
	return l.step(ctx, productID, 1)
}

// Decrement 数量 -1，减到 0 等同于 Remove。
func (l *Ledger) Decrement(ctx context.Context, productID int64) (bool, error) {
	return l.step(ctx, productID, -1)
}

// step 返回 false 表示购物车里没有该商品。
func (l *Ledger) step(ctx context.Context, productID int64, delta int) (bool, error) {
	found := false
	_, err := l.mutate(ctx, func(lines []model.CartLine) ([]model.CartLine, bool) {
		i := indexOf(lines, productID)
		found = i >= 0
		if !found {
			return nil, false
		}
		next := lines[i].Quantity + delta
		if delta > 0 {
			if p, ok := l.products.ByID(productID); !ok || next > p.Stock {
				return nil, false
			}
			lines[i].Quantity = next
			return lines, true
		}
		return l.setAt(lines, i, next), true
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (l *Ledger) setAt(lines []model.CartLine, i, qty int) []model.CartLine {
	if p, ok := l.products.ByID(lines[i].ProductID); ok {
		qty = min(qty, p.Stock)
	}
	if qty <= 0 {
		return slices.Delete(lines, i, i+1)
	}
	lines[i].Quantity = qty
	return lines
}

// Clear 清空购物车。
func (l *Ledger) Clear(ctx context.Context) error {
	if err := l.store.Update(ctx, func(tx kv.Txn) error {
		return kv.PutJSON(ctx, tx, l.key, []model.CartLine{})
	}); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// Count 件数合计。
func (l *Ledger) Count(ctx context.Context) int {
	n := 0
	for _, line := range l.Lines(ctx) {
		n += line.Quantity
	}
	return n
}

// IsEmpty 件数合计为 0。
func (l *Ledger) IsEmpty(ctx context.Context) bool { return l.Count(ctx) == 0 }

// Details 惰性遍历与当前商品数据关联后的明细；找不到商品的行被跳过。
// 每次 range 都重新读取 store。
func (l *Ledger) Details(ctx context.Context) iter.Seq[model.CartItem] {
	return l.details(ctx, l.store)
}

func (l *Ledger) details(ctx context.Context, r kv.Reader) iter.Seq[model.CartItem] {
	return func(yield func(model.CartItem) bool) {
		for _, line := range l.read(ctx, r) {
			p, ok := l.products.ByID(line.ProductID)
			if !ok {
				continue
			}
			if !yield(enrich(p, line.Quantity)) {
				return
			}
		}
	}
}

func enrich(p model.Product, qty int) model.CartItem {
	return model.CartItem{
		ProductID: p.ID,
		Slug:      p.Slug,
		Name:      p.Name,
		Price:     p.Price,
		OldPrice:  p.OldPrice,
		Quantity:  qty,
		Subtotal:  p.Price.Mul(decimal.NewFromInt(int64(qty))),
		Image:     p.PrimaryImage(),
		InStock:   p.InStock(),
		Stock:     p.Stock,
	}
}

// Subtotal 每次调用都按当前价格重新计算 Σ price × qty。
func (l *Ledger) Subtotal(ctx context.Context) decimal.Decimal {
	return subtotal(l.Details(ctx))
}

func subtotal(items iter.Seq[model.CartItem]) decimal.Decimal {
	sum := decimal.Zero
	for it := range items {
		sum = sum.Add(it.Subtotal)
	}
	return sum
}

// ShippingFee 按 Pricing 计算运费。
func (l *Ledger) ShippingFee(ctx context.Context) decimal.Decimal {
	return l.pricing.Shipping(l.Subtotal(ctx))
}

// Total 小计 + 运费。
func (l *Ledger) Total(ctx context.Context) decimal.Decimal {
	return l.Summary(ctx).Total
}

// Summary 一次读取得到 count/subtotal/shipping/total。
func (l *Ledger) Summary(ctx context.Context) model.CartSummary {
	lines := l.Lines(ctx)
	s := model.CartSummary{Subtotal: decimal.Zero}
	for _, line := range lines {
		s.Count += line.Quantity
		if p, ok := l.products.ByID(line.ProductID); ok {
			s.Subtotal = s.Subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}
	}
	s.Shipping = l.pricing.Shipping(s.Subtotal)
	s.Total = s.Subtotal.Add(s.Shipping)
	return s
}

// Snapshot 是结账时刻的购物车内容。
type Snapshot struct {
	Items    []model.CartItem
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// Checkout 在调用方的事务里读取明细并清空购物车，供下单与清空在同一次提交中完成。
// 没有可识别的明细时返回 apperr.ErrEmptyCart，且不写入任何内容。
func (l *Ledger) Checkout(ctx context.Context, tx kv.Txn) (Snapshot, error) {
	items := slices.Collect(l.details(ctx, tx))
	if len(items) == 0 {
		return Snapshot{}, apperr.ErrEmptyCart
	}
	sub := subtotal(slices.Values(items))
	ship := l.pricing.Shipping(sub)
	if err := kv.PutJSON(ctx, tx, l.key, []model.CartLine{}); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Items: items, Subtotal: sub, Shipping: ship, Total: sub.Add(ship)}, nil
}

// Preview 返回当前购物车的快照，不做修改。
func (l *Ledger) Preview(ctx context.Context) Snapshot {
	items := slices.Collect(l.Details(ctx))
	sub := subtotal(slices.Values(items))
	ship := l.pricing.Shipping(sub)
	return Snapshot{Items: items, Subtotal: sub, Shipping: ship, Total: sub.Add(ship)}
}

func indexOf(lines []model.CartLine, productID int64) int {
	return slices.IndexFunc(lines, func(l model.CartLine) bool { return l.ProductID == productID })
}
