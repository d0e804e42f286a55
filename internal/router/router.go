package router

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/account"
	"storefront/internal/app"
	"storefront/internal/apperr"
	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/order"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Setup 注册全部 HTTP 路由。rdb 为 nil 时不启用登录限流。
func Setup(r *gin.Engine, s *app.Storefront, rdb *rd.Client, cfg config.AppConfig, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	api := r.Group("/api")
	// Products
	api.GET("/products", listProducts(s))
	api.GET("/products/facets", productFacets(s))
	api.GET("/products/:slug", getProduct(s, log))
	api.GET("/recent", recentlyViewed(s))
	// Cart
	api.GET("/cart", getCart(s))
	api.DELETE("/cart", clearCart(s))
	api.POST("/cart/items", addToCart(s))
	api.PUT("/cart/items/:id", setQuantity(s))
	api.POST("/cart/items/:id/increment", stepQuantity(s, 1))
	api.POST("/cart/items/:id/decrement", stepQuantity(s, -1))
	api.DELETE("/cart/items/:id", removeFromCart(s))
	// Wishlist
	api.GET("/wishlist", getWishlist(s))
	api.POST("/wishlist/:id/toggle", toggleWishlist(s))
	api.PUT("/wishlist/:id", addToWishlist(s))
	api.DELETE("/wishlist/:id", removeFromWishlist(s))
	// Auth & profile
	login := []gin.HandlerFunc{loginHandler(s)}
	if rdb != nil {
		login = append([]gin.HandlerFunc{middleware.LoginRateLimit(rdb, cfg.KeyPrefix, cfg.LoginRateLimit, cfg.LoginRateWindow, log)}, login...)
	}
	api.POST("/auth/register", register(s))
	api.POST("/auth/login", login...)
	api.POST("/auth/logout", logout(s))
	api.GET("/me", me(s))
	api.PATCH("/me", updateProfile(s))
	api.PUT("/me/password", changePassword(s))
	// Orders
	api.GET("/orders", myOrders(s))
	api.POST("/orders", placeOrder(s))
	api.GET("/orders/:id", getOrder(s))
	// Server-Sent Events
	api.GET("/events", events(s))
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": data})
}

// fail 把业务错误映射为状态码；非业务错误不向客户端暴露细节。
func fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	body := gin.H{"code": status, "msg": err.Error()}
	if e, isApp := apperr.As(err); isApp {
		body["kind"] = e.Kind
		if e.Field != "" {
			body["field"] = e.Field
		}
	} else {
		_ = c.Error(err)
		body["msg"] = "internal error"
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": msg})
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid product id")
		return 0, false
	}
	return id, true
}

// listProducts 商品列表：搜索、筛选、排序、分页。
func listProducts(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := catalog.Query{
			Search:     c.Query("search"),
			Categories: csv(c.Query("category")),
			Brands:     csv(c.Query("brand")),
			Sort:       catalog.SortOrder(c.DefaultQuery("sort", string(catalog.SortPopular))),
		}
		var err error
		if q.MinPrice, err = queryDecimal(c, "min_price"); err != nil {
			badRequest(c, "invalid min_price")
			return
		}
		if q.MaxPrice, err = queryDecimal(c, "max_price"); err != nil {
			badRequest(c, "invalid max_price")
			return
		}
		q.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
		q.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(catalog.PerPage)))
		ok(c, s.Catalog.Find(q))
	}
}

func csv(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func queryDecimal(c *gin.Context, key string) (*decimal.Decimal, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// productFacets 返回分类、品牌与价格区间，用于筛选栏。
func productFacets(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) {
		lo, hi := s.Catalog.PriceRange()
		ok(c, gin.H{
			"categories": s.Catalog.Categories(),
			"brands":     s.Catalog.Brands(),
			"minPrice":   lo,
			"maxPrice":   hi,
		})
	}
}

// getProduct 商品详情，同时记入最近浏览。
func getProduct(s *app.Storefront, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, found := s.Catalog.BySlug(c.Param("slug"))
		if !found {
			fail(c, apperr.NotFound("product not found"))
			return
		}
		if err := s.Recent.Add(c.Request.Context(), p.ID); err != nil {
			log.Warn("record recently viewed failed", zap.Int64("product_id", p.ID), zap.Error(err))
		}
		ok(c, gin.H{
			"product":    p,
			"price":      model.FormatPrice(p.Price),
			"stars":      model.RenderStars(p.Rating),
			"wishlisted": s.Wishlist.Contains(c.Request.Context(), p.ID),
		})
	}
}

func recentlyViewed(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) {
		var exclude []int64
		if v := c.Query("exclude"); v != "" {
			if id, err := strconv.ParseInt(v, 10, 64); err == nil {
				exclude = append(exclude, id)
			}
		}
		ok(c, s.Recent.Details(c.Request.Context(), exclude...))
	}
}

func cartView(c *gin.Context, s *app.Storefront) {
	snap := s.Cart.Preview(c.Request.Context())
	items := snap.Items
	if items == nil {
		items = []model.CartItem{}
	}
	ok(c, gin.H{
		"items":    items,
		"count":    s.Cart.Count(c.Request.Context()),
		"subtotal": snap.Subtotal,
		"shipping": snap.Shipping,
		"total":    snap.Total,
	})
}

func getCart(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) { cartView(c, s) }
}

func clearCart(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Cart.Clear(c.Request.Context()); err != nil {
			fail(c, err)
			return
		}
		cartView(c, s)
	}
}

// addToCart 加入购物车；数量超过库存时按库存截断。
func addToCart(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			ID  int64 `json:"id" binding:"required,min=1"`
			Qty int   `json:"qty"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if _, err := s.Cart.Add(c.Request.Context(), req.ID, req.Qty); err != nil {
			fail(c, err)
			return
		}
		cartView(c, s)
	}
}

func setQuantity(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := paramID(c)
		if !valid {
			return
		}
		var req struct {
			Qty *int `json:"qty" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		changed, err := s.Cart.SetQuantity(c.Request.Context(), id, *req.Qty)
		if err != nil {
			fail(c, err)
			return
		}
		if !changed {
			fail(c, apperr.NotFound("product is not in the cart"))
			return
		}
		cartView(c, s)
	}
}

func stepQuantity(s *app.Storefront, delta int) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := paramID(c)
		if !valid {
			return
		}
		step := s.Cart.Increment
		if delta < 0 {
			step = s.Cart.Decrement
		}
		changed, err := step(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		if !changed {
			fail(c, apperr.NotFound("product is not in the cart"))
			return
		}
		cartView(c, s)
	}
}

func removeFromCart(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := paramID(c)
		if !valid {
			return
		}
		if err := s.Cart.Remove(c.Request.Context(), id); err != nil {
			fail(c, err)
			return
		}
		cartView(c, s)
	}
}

func wishlistView(c *gin.Context, s *app.Storefront) {
	items := s.Wishlist.Details(c.Request.Context())
	ok(c, gin.H{"items": items, "count": len(s.Wishlist.IDs(c.Request.Context()))})
}

func getWishlist(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) { wishlistView(c, s) }
}

func toggleWishlist(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := paramID(c)
		if !valid {
			return
		}
		if _, found := s.Catalog.ByID(id); !found {
			fail(c, apperr.NotFound("product not found"))
			return
		}
		added, err := s.Wishlist.Toggle(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"added": added, "count": s.Wishlist.Count(c.Request.Context())})
	}
}

func addToWishlist(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := paramID(c)
		if !valid {
			return
		}
		if _, found := s.Catalog.ByID(id); !found {
			fail(c, apperr.NotFound("product not found"))
			return
		}
		if err := s.Wishlist.Add(c.Request.Context(), id); err != nil {
			fail(c, err)
			return
		}
		wishlistView(c, s)
	}
}

func removeFromWishlist(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := paramID(c)
		if !valid {
			return
		}
		if err := s.Wishlist.Remove(c.Request.Context(), id); err != nil {
			fail(c, err)
			return
		}
		wishlistView(c, s)
	}
}

func register(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req account.RegisterInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		p, err := s.Accounts.Register(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": p})
	}
}

// loginHandler 支持邮箱或手机号登录。
func loginHandler(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email    string `json:"email"`
			Phone    string `json:"phone"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		var (
			p   model.Profile
			err error
		)
		if strings.TrimSpace(req.Email) == "" && req.Phone != "" {
			p, err = s.Accounts.LoginByPhone(c.Request.Context(), req.Phone, req.Password)
		} else {
			p, err = s.Accounts.Login(c.Request.Context(), req.Email, req.Password)
		}
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, p)
	}
}

func logout(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Accounts.Logout(c.Request.Context()); err != nil {
			fail(c, err)
			return
		}
		ok(c, nil)
	}
}

func me(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := s.Accounts.CurrentUser(c.Request.Context())
		if p == nil {
			fail(c, apperr.ErrNotAuthenticated)
			return
		}
		ok(c, p)
	}
}

func updateProfile(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req account.ProfileUpdate
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		p, err := s.Accounts.UpdateProfile(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, p)
	}
}

func changePassword(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			OldPassword string `json:"oldPassword"`
			NewPassword string `json:"newPassword"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := s.Accounts.ChangePassword(c.Request.Context(), req.OldPassword, req.NewPassword); err != nil {
			fail(c, err)
			return
		}
		ok(c, nil)
	}
}

func myOrders(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.Accounts.IsLoggedIn(c.Request.Context()) {
			fail(c, apperr.ErrNotAuthenticated)
			return
		}
		orders := s.Orders.OrdersForCurrentUser(c.Request.Context())
		if orders == nil {
			orders = []model.Order{}
		}
		ok(c, orders)
	}
}

// placeOrder 结账：快照购物车生成订单并清空购物车。
func placeOrder(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) {
		var form order.CheckoutForm
		if err := c.ShouldBindJSON(&form); err != nil {
			badRequest(c, err.Error())
			return
		}
		o, err := s.Orders.PlaceOrder(c.Request.Context(), s.Cart, form)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": o})
	}
}

func getOrder(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, found := s.Orders.OrderByID(c.Request.Context(), c.Param("id"))
		if !found {
			fail(c, apperr.NotFound("order not found"))
			return
		}
		ok(c, o)
	}
}

// events 以 SSE 推送变更通知；连接建立时先推送一次当前状态。
// 客户端读得慢时丢弃中间事件，后续事件仍携带完整状态。
func events(s *app.Storefront) gin.HandlerFunc {
	return func(c *gin.Context) {
		ch := make(chan app.Event, 32)
		cancel := s.SubscribeEvents(func(e app.Event) {
			select {
			case ch <- e:
			default:
			}
		})
		defer cancel()

		for _, e := range s.Snapshot(c.Request.Context()) {
			c.SSEvent(e.Type, e.Data)
		}
		c.Writer.Flush()

		c.Stream(func(w io.Writer) bool {
			select {
			case <-c.Request.Context().Done():
				return false
			case e := <-ch:
				c.SSEvent(e.Type, e.Data)
				return true
			}
		})
	}
}
