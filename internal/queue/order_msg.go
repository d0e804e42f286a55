package queue

import (
	"fmt"
	"time"

	"storefront/internal/model"
)

// OrderEvent 是写入 Kafka 的 "order placed" 事件。
type OrderEvent struct {
	OrderID   string    `json:"order_id"`
	UserID    *int64    `json:"user_id"`
	ItemCount int       `json:"item_count"`
	Total     string    `json:"total"`
	Delivery  string    `json:"delivery"`
	Payment   string    `json:"payment"`
	CreatedAt time.Time `json:"created_at"`
}

// NewOrderEvent 从订单生成事件；金额用十进制字符串，避免浮点误差。
func NewOrderEvent(o model.Order) OrderEvent {
	return OrderEvent{
		OrderID:   o.ID,
		UserID:    o.UserID,
		ItemCount: o.ItemCount(),
		Total:     o.Total.StringFixed(2),
		Delivery:  o.Delivery.Method,
		Payment:   o.Payment.Method,
		CreatedAt: o.CreatedAt,
	}
}

// Validate 做最小字段校验，防止下游处理脏消息。
func (m OrderEvent) Validate() error {
	if m.OrderID == "" {
		return fmt.Errorf("order_id is required")
	}
	if m.ItemCount <= 0 {
		return fmt.Errorf("item_count must be > 0")
	}
	if m.Total == "" {
		return fmt.Errorf("total is required")
	}
	return nil
}

// StatusUpdate 是从 Kafka 消费的订单状态变更指令。
type StatusUpdate struct {
	OrderID string            `json:"order_id"`
	Status  model.OrderStatus `json:"status"`
}

func (m StatusUpdate) Validate() error {
	if m.OrderID == "" {
		return fmt.Errorf("order_id is required")
	}
	if !m.Status.Valid() {
		return fmt.Errorf("unknown status %q", m.Status)
	}
	return nil
}
