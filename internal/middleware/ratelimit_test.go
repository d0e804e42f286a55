package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, rdb *rd.Client, limit int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/login", LoginRateLimit(rdb, "test", limit, time.Minute, nil), func(c *gin.Context) {
		var body struct {
			Email string `json:"email"`
		}
		require.NoError(t, c.ShouldBindJSON(&body))
		c.JSON(http.StatusOK, gin.H{"email": body.Email})
	})
	return r
}

func login(r *gin.Engine, email string) *httptest.ResponseRecorder {
	return postLogin(r, `{"email":"`+email+`"}`)
}

func postLogin(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestLoginRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	r := newEngine(t, rdb, 2)

	w := login(r, "Ann@example.com")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Ann@example.com", "body is still readable downstream")

	assert.Equal(t, http.StatusOK, login(r, "ann@example.com").Code)
	w = login(r, " ANN@example.com ")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, login(r, "bob@example.com").Code, "limit is per email")
}

func TestLoginRateLimitByPhone(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	r := newEngine(t, rdb, 2)

	assert.Equal(t, http.StatusOK, postLogin(r, `{"phone":"+1 (555) 010-2030","password":"x"}`).Code)
	assert.Equal(t, http.StatusOK, postLogin(r, `{"phone":"15550102030","password":"x"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, postLogin(r, `{"phone":"1-555-010-2030","password":"x"}`).Code,
		"formatting variants share one counter")
	assert.True(t, mr.Exists("test:rate_limit:login:phone:15550102030"))

	assert.Equal(t, http.StatusOK, postLogin(r, `{"phone":"15550109999","password":"x"}`).Code, "limit is per phone")
	assert.Equal(t, http.StatusOK, login(r, "ann@example.com").Code)
}

func TestLoginRateLimitFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	r := newEngine(t, rdb, 1)
	mr.Close()

	assert.Equal(t, http.StatusOK, login(r, "ann@example.com").Code)
	assert.Equal(t, http.StatusOK, login(r, "ann@example.com").Code)
}
