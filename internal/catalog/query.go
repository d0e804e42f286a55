package catalog

import (
	"cmp"
	"slices"
	"strings"

	"storefront/internal/model"

	"github.com/shopspring/decimal"
)

// PerPage 是列表页默认每页数量。
const PerPage = 12

// SortOrder 列表排序方式。
type SortOrder string

const (
	SortPopular   SortOrder = "popular"
	SortPriceAsc  SortOrder = "price-asc"
	SortPriceDesc SortOrder = "price-desc"
	SortRating    SortOrder = "rating"
	SortNewest    SortOrder = "newest"
)

// Query 描述列表页的筛选条件。Categories/Brands 为空或包含 "all" 时不过滤。
type Query struct {
	Search     string
	Categories []string
	Brands     []string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	Sort       SortOrder
	Page       int
	PerPage    int
}

// Page 是一页结果。
type Page struct {
	Items   []model.Product `json:"items"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	Pages   int             `json:"pages"`
	PerPage int             `json:"perPage"`
}

// Filter 返回满足条件并排序后的全部商品（不分页）。
func (c *Catalog) Filter(q Query) []model.Product {
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]model.Product, 0, len(c.products))
	for _, p := range c.products {
		if needle != "" && !matches(p, needle) {
			continue
		}
		if !inSet(q.Categories, p.Category) || !inSet(q.Brands, p.Brand) {
			continue
		}
		if q.MinPrice != nil && p.Price.LessThan(*q.MinPrice) {
			continue
		}
		if q.MaxPrice != nil && p.Price.GreaterThan(*q.MaxPrice) {
			continue
		}
		out = append(out, p)
	}

	switch q.Sort {
	case SortPriceAsc:
		slices.SortStableFunc(out, func(a, b model.Product) int { return a.Price.Cmp(b.Price) })
	case SortPriceDesc:
		slices.SortStableFunc(out, func(a, b model.Product) int { return b.Price.Cmp(a.Price) })
	case SortRating:
		slices.SortStableFunc(out, func(a, b model.Product) int { return cmp.Compare(b.Rating, a.Rating) })
	case SortNewest:
		slices.SortStableFunc(out, func(a, b model.Product) int { return cmp.Compare(b.ID, a.ID) })
	default:
		slices.SortStableFunc(out, func(a, b model.Product) int { return cmp.Compare(b.ReviewsCount, a.ReviewsCount) })
	}
	return out
}

// Find 过滤、排序并分页。Page 越界时返回空 Items，但 Total/Pages 仍然有效。
func (c *Catalog) Find(q Query) Page {
	all := c.Filter(q)
	per := q.PerPage
	if per <= 0 {
		per = PerPage
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	pages := (len(all) + per - 1) / per
	start := (page - 1) * per
	items := []model.Product{}
	if start < len(all) {
		items = all[start:min(start+per, len(all))]
	}
	return Page{Items: items, Total: len(all), Page: page, Pages: pages, PerPage: per}
}

func matches(p model.Product, needle string) bool {
	return strings.Contains(strings.ToLower(p.Name), needle) ||
		strings.Contains(strings.ToLower(p.Slug), needle) ||
		strings.Contains(strings.ToLower(p.Description), needle) ||
		strings.Contains(strings.ToLower(p.Brand), needle)
}

func inSet(set []string, v string) bool {
	if len(set) == 0 || slices.Contains(set, "all") {
		return true
	}
	return slices.Contains(set, v)
}
