// Package order 订单流水：结账时对购物车做快照，新单插在最前面。
package order

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/cart"
	"storefront/internal/model"
	"storefront/internal/validate"
	"storefront/pkg/kv"
	"storefront/pkg/notify"

	"go.uber.org/zap"
)

// IDPrefix 订单号前缀。
const IDPrefix = "TH-"

// Sessions 提供当前登录用户，由 account.Directory 实现。
type Sessions interface {
	CurrentUser(ctx context.Context) *model.Profile
}

// Clock 生成下单时间与订单号。
type Clock interface {
	Now() time.Time
}

// CheckoutForm 结账表单。配送方式为 delivery 时地址和城市必填。
type CheckoutForm struct {
	Name           string `json:"name" validate:"required"`
	Phone          string `json:"phone" validate:"required"`
	Email          string `json:"email" validate:"omitempty,email"`
	DeliveryMethod string `json:"deliveryMethod" validate:"omitempty,oneof=pickup delivery"`
	Address        string `json:"address" validate:"required_if=DeliveryMethod delivery"`
	City           string `json:"city" validate:"required_if=DeliveryMethod delivery"`
	PostalCode     string `json:"postalCode"`
	PaymentMethod  string `json:"paymentMethod" validate:"omitempty,oneof=cash card"`
}

func (f CheckoutForm) normalized() CheckoutForm {
	f.Name = strings.TrimSpace(f.Name)
	f.Phone = strings.TrimSpace(f.Phone)
	f.Email = strings.TrimSpace(f.Email)
	f.DeliveryMethod = strings.TrimSpace(f.DeliveryMethod)
	f.Address = strings.TrimSpace(f.Address)
	f.City = strings.TrimSpace(f.City)
	f.PostalCode = strings.TrimSpace(f.PostalCode)
	f.PaymentMethod = strings.TrimSpace(f.PaymentMethod)
	if f.DeliveryMethod == "" {
		f.DeliveryMethod = model.DeliveryPickup
	}
	if f.PaymentMethod == "" {
		f.PaymentMethod = model.PaymentCash
	}
	return f
}

// Journal 订单流水，保存在 store 的单个 key 下。
type Journal struct {
	store     kv.Store
	key       string
	sessions  Sessions
	clock     Clock
	validator *validate.Validator
	log       *zap.Logger

	placed notify.Feed[model.Order]
	status notify.Feed[model.Order]
}

func NewJournal(store kv.Store, key string, sessions Sessions, clock Clock, v *validate.Validator, log *zap.Logger) *Journal {
	if v == nil {
		v = validate.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Journal{
		store:     store,
		key:       key,
		sessions:  sessions,
		clock:     clock,
		validator: v,
		log:       log.With(zap.String("component", "order")),
	}
}

// OnPlaced 监听 "order placed"。
func (j *Journal) OnPlaced(fn func(model.Order)) (cancel func()) { return j.placed.Subscribe(fn) }

// OnStatusChanged 监听订单状态变化。
func (j *Journal) OnStatusChanged(fn func(model.Order)) (cancel func()) { return j.status.Subscribe(fn) }

func (j *Journal) read(ctx context.Context, r kv.Reader) []model.Order {
	orders, err := kv.GetJSON(ctx, r, j.key, []model.Order{})
	if err != nil {
		j.log.Warn("read orders failed, using empty journal", zap.String("key", j.key), zap.Error(err))
	}
	return orders
}

// PlaceOrder 校验表单，对购物车做快照生成订单，并在同一次 store 提交中清空购物车。
func (j *Journal) PlaceOrder(ctx context.Context, ledger *cart.Ledger, form CheckoutForm) (model.Order, error) {
	if len(ledger.Preview(ctx).Items) == 0 {
		return model.Order{}, apperr.ErrEmptyCart
	}
	form = form.normalized()
	if err := j.validator.Struct(form); err != nil {
		return model.Order{}, err
	}

	var userID *int64
	if u := j.sessions.CurrentUser(ctx); u != nil {
		id := u.ID
		userID = &id
	}

	var placed model.Order
	err := j.store.Update(ctx, func(tx kv.Txn) error {
		orders := j.read(ctx, tx)
		snap, err := ledger.Checkout(ctx, tx)
		if err != nil {
			return err
		}
		now := j.clock.Now()
		placed = model.Order{
			ID:       nextID(orders, now.UnixMilli()),
			UserID:   userID,
			Items:    snapshotItems(snap.Items),
			Subtotal: snap.Subtotal,
			Shipping: snap.Shipping,
			Total:    snap.Total,
			Customer: model.CustomerInfo{Name: form.Name, Phone: form.Phone, Email: form.Email},
			Delivery: model.DeliveryInfo{
				Method:     form.DeliveryMethod,
				Address:    form.Address,
				City:       form.City,
				PostalCode: form.PostalCode,
			},
			Payment:   model.PaymentInfo{Method: form.PaymentMethod},
			Status:    model.OrderPending,
			CreatedAt: now,
		}
		return kv.PutJSON(ctx, tx, j.key, slices.Insert(orders, 0, placed))
	})
	if err != nil {
		return model.Order{}, err
	}
	j.log.Info("order placed",
		zap.String("order_id", placed.ID),
		zap.Int("items", placed.ItemCount()),
		zap.String("total", placed.Total.String()))
	j.placed.Emit(placed)
	return placed, nil
}

func snapshotItems(items []model.CartItem) []model.OrderItem {
	out := make([]model.OrderItem, 0, len(items))
	for _, it := range items {
		out = append(out, model.OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal,
			Image:     it.Image,
		})
	}
	return out
}

// nextID 生成 "TH-<毫秒>"，与已有订单冲突时向后顺延。
func nextID(orders []model.Order, millis int64) string {
	for {
		id := IDPrefix + strconv.FormatInt(millis, 10)
		if !slices.ContainsFunc(orders, func(o model.Order) bool { return o.ID == id }) {
			return id
		}
		millis++
	}
}

// Orders 全部订单，新单在前。
func (j *Journal) Orders(ctx context.Context) []model.Order {
	return j.read(ctx, j.store)
}

// OrdersForUser 指定用户的订单。
func (j *Journal) OrdersForUser(ctx context.Context, userID int64) []model.Order {
	var out []model.Order
	for _, o := range j.Orders(ctx) {
		if o.UserID != nil && *o.UserID == userID {
			out = append(out, o)
		}
	}
	return out
}

// OrdersForCurrentUser 未登录时返回空。
func (j *Journal) OrdersForCurrentUser(ctx context.Context) []model.Order {
	u := j.sessions.CurrentUser(ctx)
	if u == nil {
		return nil
	}
	return j.OrdersForUser(ctx, u.ID)
}

// OrderByID 查找订单。
func (j *Journal) OrderByID(ctx context.Context, id string) (model.Order, bool) {
	for _, o := range j.Orders(ctx) {
		if o.ID == id {
			return o, true
		}
	}
	return model.Order{}, false
}

// SetStatus 修改订单状态，只允许 pending → completed；重复设置相同状态不报错。
func (j *Journal) SetStatus(ctx context.Context, id string, status model.OrderStatus) (model.Order, error) {
	if !status.Valid() {
		return model.Order{}, apperr.Validation("status", fmt.Sprintf("unknown status %q", status))
	}
	var updated model.Order
	changed := false
	err := j.store.Update(ctx, func(tx kv.Txn) error {
		orders := j.read(ctx, tx)
		i := slices.IndexFunc(orders, func(o model.Order) bool { return o.ID == id })
		if i < 0 {
			return apperr.NotFound("order not found")
		}
		cur := orders[i].Status
		if cur == status {
			updated = orders[i]
			return nil
		}
		if cur == model.OrderCompleted {
			return apperr.Validation("status", "completed order cannot change status")
		}
		orders[i].Status = status
		updated, changed = orders[i], true
		return kv.PutJSON(ctx, tx, j.key, orders)
	})
	if err != nil {
		return model.Order{}, err
	}
	if changed {
		j.log.Info("order status changed", zap.String("order_id", id), zap.String("status", string(status)))
		j.status.Emit(updated)
	}
	return updated, nil
}
