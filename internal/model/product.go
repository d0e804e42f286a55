package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PlaceholderImage 在商品没有图片时使用。
const PlaceholderImage = "assets/images/placeholder.jpg"

// Product 商品参考数据，由 catalog 持有，运行期不修改。
type Product struct {
	ID           int64            `json:"id" yaml:"id"`
	Slug         string           `json:"slug" yaml:"slug"`
	Name         string           `json:"name" yaml:"name"`
	Description  string           `json:"description" yaml:"description"`
	Price        decimal.Decimal  `json:"price" yaml:"price"`
	OldPrice     *decimal.Decimal `json:"oldPrice" yaml:"old_price"`
	Images       []string         `json:"images" yaml:"images"`
	Stock        int              `json:"stock" yaml:"stock"`
	Category     string           `json:"category" yaml:"category"`
	Brand        string           `json:"brand" yaml:"brand"`
	Rating       float64          `json:"rating" yaml:"rating"`
	ReviewsCount int              `json:"reviewsCount" yaml:"reviews_count"`
}

// InStock 由库存推导。
func (p Product) InStock() bool { return p.Stock > 0 }

// PrimaryImage 返回第一张图，没有则返回占位图。
func (p Product) PrimaryImage() string {
	if len(p.Images) > 0 && p.Images[0] != "" {
		return p.Images[0]
	}
	return PlaceholderImage
}

// MarshalJSON 额外输出推导字段 inStock。
func (p Product) MarshalJSON() ([]byte, error) {
	type plain Product
	return json.Marshal(struct {
		plain
		InStock bool `json:"inStock"`
	}{plain(p), p.InStock()})
}

// FormatPrice 按 "$12.50" 格式输出金额。
func FormatPrice(d decimal.Decimal) string {
	return fmt.Sprintf("$%s", d.StringFixed(2))
}

// RenderStars 把评分四舍五入为 0-5 颗星。
func RenderStars(rating float64) string {
	full := int(rating + 0.5)
	if full < 0 {
		full = 0
	}
	if full > 5 {
		full = 5
	}
	return strings.Repeat("★", full) + strings.Repeat("☆", 5-full)
}
