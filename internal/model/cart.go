package model

import "github.com/shopspring/decimal"

// CartLine 是持久化的购物车明细，沿用 {id, qty} 的存储格式。
type CartLine struct {
	ProductID int64 `json:"id"`
	Quantity  int   `json:"qty"`
}

// CartItem 是与当前商品数据关联后的明细。
type CartItem struct {
	ProductID int64            `json:"id"`
	Slug      string           `json:"slug"`
	Name      string           `json:"name"`
	Price     decimal.Decimal  `json:"price"`
	OldPrice  *decimal.Decimal `json:"oldPrice"`
	Quantity  int              `json:"qty"`
	Subtotal  decimal.Decimal  `json:"subtotal"`
	Image     string           `json:"image"`
	InStock   bool             `json:"inStock"`
	Stock     int              `json:"stock"`
}

// CartSummary 是 "cart changed" 通知携带的汇总。
type CartSummary struct {
	Count    int             `json:"count"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}
