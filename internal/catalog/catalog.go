package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"storefront/internal/model"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed products.yaml
var defaultCatalog []byte

// Catalog 是只读的商品目录，按 id / slug 建索引。
type Catalog struct {
	products []model.Product
	byID     map[int64]int
	bySlug   map[string]int
}

type catalogFile struct {
	Products []model.Product `yaml:"products"`
}

// New 校验并索引商品列表：id、slug 唯一，价格与库存非负。
func New(products []model.Product) (*Catalog, error) {
	c := &Catalog{
		products: make([]model.Product, 0, len(products)),
		byID:     make(map[int64]int, len(products)),
		bySlug:   make(map[string]int, len(products)),
	}
	for _, p := range products {
		if p.ID <= 0 {
			return nil, fmt.Errorf("product %q: id must be > 0", p.Slug)
		}
		if p.Slug == "" {
			return nil, fmt.Errorf("product %d: slug is required", p.ID)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("product %d: duplicate id", p.ID)
		}
		if _, dup := c.bySlug[p.Slug]; dup {
			return nil, fmt.Errorf("product %d: duplicate slug %q", p.ID, p.Slug)
		}
		if p.Price.IsNegative() {
			return nil, fmt.Errorf("product %d: price must be >= 0", p.ID)
		}
		if p.Stock < 0 {
			return nil, fmt.Errorf("product %d: stock must be >= 0", p.ID)
		}
		p.Images = slices.Clone(p.Images)
		c.byID[p.ID] = len(c.products)
		c.bySlug[p.Slug] = len(c.products)
		c.products = append(c.products, p)
	}
	return c, nil
}

// Parse 解析 YAML 格式的目录。
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(f.Products)
}

// LoadFile 从文件加载目录。
func LoadFile(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Default 返回内置目录。内置数据在测试中校验过，解析失败视为程序错误。
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

// ByID 按 id 查找。
func (c *Catalog) ByID(id int64) (model.Product, bool) {
	i, ok := c.byID[id]
	if !ok {
		return model.Product{}, false
	}
	return c.products[i], true
}

// BySlug 按 slug 查找。
func (c *Catalog) BySlug(slug string) (model.Product, bool) {
	i, ok := c.bySlug[slug]
	if !ok {
		return model.Product{}, false
	}
	return c.products[i], true
}

// All 返回全部商品的副本。
func (c *Catalog) All() []model.Product {
	return slices.Clone(c.products)
}

func (c *Catalog) Len() int { return len(c.products) }

// PriceRange 返回最低价与最高价；空目录返回 0, 0。
func (c *Catalog) PriceRange() (lo, hi decimal.Decimal) {
	for i, p := range c.products {
		if i == 0 || p.Price.LessThan(lo) {
			lo = p.Price
		}
		if i == 0 || p.Price.GreaterThan(hi) {
			hi = p.Price
		}
	}
	return lo, hi
}

// Categories 返回出现过的分类，按首次出现顺序。
func (c *Catalog) Categories() []string {
	return c.distinct(func(p model.Product) string { return p.Category })
}

// Brands 返回出现过的品牌，按首次出现顺序。
func (c *Catalog) Brands() []string {
	return c.distinct(func(p model.Product) string { return p.Brand })
}

func (c *Catalog) distinct(field func(model.Product) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range c.products {
		v := field(p)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
