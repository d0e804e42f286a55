package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storefront/internal/account"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// luaSlidingWindow：Redis 滑动窗口限流（原子操作）
// KEYS[1]=限流key，ARGV[1]=当前毫秒时间戳，ARGV[2]=窗口毫秒数，ARGV[3]=本次请求成员，ARGV[4]=上限
// 返回窗口内的请求数；超限返回 -1 且不记录本次请求
const luaSlidingWindow = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
if count >= tonumber(ARGV[4]) then
  return -1
end

redis.call('ZADD', key, now, ARGV[3])
redis.call('PEXPIRE', key, window)
return count + 1
`

// LoginRateLimit 按登录邮箱或手机号（都没有时按 IP）限流，防止暴力尝试密码。
// Redis 不可用时放行。
func LoginRateLimit(rdb *rd.Client, prefix string, limit int, window time.Duration, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:rate_limit:login:ip:%s", prefix, c.ClientIP())
		if kind, id := extractLogin(c); id != "" {
			key = fmt.Sprintf("%s:rate_limit:login:%s:%s", prefix, kind, id)
		}

		now := time.Now().UnixMilli()
		res, err := rdb.Eval(c.Request.Context(), luaSlidingWindow, []string{key},
			now, window.Milliseconds(), uuid.NewString(), limit).Int()
		if err != nil {
			log.Warn("rate limit check failed, allowing request", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		if res < 0 {
			c.Header("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": 429,
				"msg":  "too many login attempts, try again later",
			})
			return
		}
		c.Next()
	}
}

// extractLogin 从请求 body 中解析登录标识（读完后重置 body，后续 handler 可再次读取）。
// 有 email 时按邮箱，否则按归一化后的手机号，与登录 handler 的判断一致。
func extractLogin(c *gin.Context) (kind, id string) {
	if c.Request.Body == nil {
		return "", ""
	}
	bodyBytes, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", ""
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var req struct {
		Email string `json:"email"`
		Phone string `json:"phone"`
	}
	if err := json.Unmarshal(bodyBytes, &req); err != nil {
		return "", ""
	}
	if email := strings.ToLower(strings.TrimSpace(req.Email)); email != "" {
		return "email", email
	}
	return "phone", account.NormalizePhone(req.Phone)
}
