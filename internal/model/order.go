package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus 订单状态，下单后只有它允许变化。
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
)

// Valid 判断是否为已知状态。
func (s OrderStatus) Valid() bool {
	return s == OrderPending || s == OrderCompleted
}

const (
	DeliveryPickup = "pickup"
	DeliveryHome   = "delivery"

	PaymentCash = "cash"
	PaymentCard = "card"
)

// OrderItem 下单时刻的明细快照，之后商品数据变化不影响它。
type OrderItem struct {
	ProductID int64           `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"qty"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Image     string          `json:"image"`
}

type CustomerInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type DeliveryInfo struct {
	Method     string `json:"method"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
}

type PaymentInfo struct {
	Method string `json:"method"`
}

// Order 结账生成的订单。UserID 为空表示游客下单。
type Order struct {
	ID        string          `json:"id"`
	UserID    *int64          `json:"userId"`
	Items     []OrderItem     `json:"items"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Shipping  decimal.Decimal `json:"shipping"`
	Total     decimal.Decimal `json:"total"`
	Customer  CustomerInfo    `json:"customer"`
	Delivery  DeliveryInfo    `json:"delivery"`
	Payment   PaymentInfo     `json:"payment"`
	Status    OrderStatus     `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ItemCount 返回件数合计。
func (o Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}
