package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noseryoung/course-rating/internal/config"
	"github.com/noseryoung/course-rating/internal/logging"
	"github.com/noseryoung/course-rating/internal/utils"
)

const testSecret = "test-secret"

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T, uid uint64, roles ...string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(testSecret, uid, roles, 5)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		uid, ok := UserID(c)
		if !ok {
			return c.NoContent(http.StatusTeapot)
		}
		return c.JSON(http.StatusOK, echo.Map{"id": uid, "roles": Roles(c)})
	}, JWTAuth(testSecret))

	t.Run("missing header", func(t *testing.T) {
		rec := serve(e, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
	t.Run("garbage", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer nope")
		assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)
	})
	t.Run("wrong secret", func(t *testing.T) {
		tok, err := utils.NewAccessToken("other", 1, nil, 5)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+tok.Token)
		assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)
	})
	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", bearer(t, 7, "ADMIN"))
		rec := serve(e, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"id":7,"roles":["ADMIN"]}`, rec.Body.String())
	})
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	e.GET("/admin", okHandler, JWTAuth(testSecret), RequireRole("ADMIN"))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", bearer(t, 1, "USER"))
	assert.Equal(t, http.StatusForbidden, serve(e, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", bearer(t, 1, "USER", "ADMIN"))
	assert.Equal(t, http.StatusOK, serve(e, req).Code)
}

func TestRequireRoleWithoutAuth(t *testing.T) {
	e := echo.New()
	e.GET("/admin", okHandler, RequireRole("ADMIN"))
	assert.Equal(t, http.StatusForbidden, serve(e, httptest.NewRequest(http.MethodGet, "/admin", nil)).Code)
}

func TestSubject(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assert.Equal(t, "anon", subject(c))
	c.Set(ctxUserID, uint64(42))
	assert.Equal(t, "42", subject(c))
}

func TestRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/ratings", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/ratings")
	c.Set(ctxUserID, uint64(3))

	cfg := config.RateLimitConfig{Prefix: "rl"}
	assert.Equal(t, "rl:ip:10.0.0.1:user:3:route:POST /v1/ratings", rateKey(cfg, c))
	cfg.KeyStrategy = "user"
	assert.Equal(t, "rl:user:3", rateKey(cfg, c))
	cfg.KeyStrategy = "ip_route"
	assert.Equal(t, "rl:ip:10.0.0.1:route:POST /v1/ratings", rateKey(cfg, c))
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 0, retryAfterSeconds(-5))
	assert.Equal(t, 0, retryAfterSeconds(0))
	assert.Equal(t, 1, retryAfterSeconds(1))
	assert.Equal(t, 6, retryAfterSeconds(5001))
}

// unreachableRedis returns a client whose commands fail fast.
func unreachableRedis(t *testing.T) *redis.Client {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestTokenBucketFailsOpen(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute}
	e := echo.New()
	e.POST("/x", okHandler, NewTokenBucket(cfg, unreachableRedis(t), logging.NewNop()))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(e, httptest.NewRequest(http.MethodPost, "/x", nil)).Code)
	}
}

func TestTokenBucketDisabled(t *testing.T) {
	e := echo.New()
	e.POST("/x", okHandler, NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, logging.NewNop()))
	rec := serve(e, httptest.NewRequest(http.MethodPost, "/x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestResponseCacheMissWithoutRedis(t *testing.T) {
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, Prefix: "c", TTL: time.Minute}
	calls := 0
	e := echo.New()
	rc := NewResponseCache(cfg, unreachableRedis(t), logging.NewNop())
	e.GET("/courses", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"n": calls})
	}, rc.Middleware())

	for i := 1; i <= 2; i++ {
		rec := serve(e, httptest.NewRequest(http.MethodGet, "/courses", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	}
	assert.Equal(t, 2, calls)
	assert.Error(t, rc.Invalidate(t.Context()))
}

func TestResponseCacheDisabled(t *testing.T) {
	rc := NewResponseCache(config.CacheConfig{Enabled: false}, nil, logging.NewNop())
	e := echo.New()
	e.GET("/courses", okHandler, rc.Middleware())
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/courses", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.NoError(t, rc.Invalidate(t.Context()))
}

func TestCacheKey(t *testing.T) {
	e := echo.New()
	mk := func(target string) echo.Context {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
		c.SetPath("/v1/courses")
		return c
	}
	cfg := config.CacheConfig{Prefix: "rating:cache"}

	a := cacheKey(cfg, mk("/v1/courses?page=1"))
	b := cacheKey(cfg, mk("/v1/courses?page=2"))
	assert.True(t, strings.HasPrefix(a, "rating:cache:"))
	assert.NotEqual(t, a, b)

	cfg.KeyStrategy = "route"
	assert.Equal(t, cacheKey(cfg, mk("/v1/courses?page=1")), cacheKey(cfg, mk("/v1/courses?page=2")))
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)

	status, gotHdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", gotHdr.Get("Content-Type"))
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload(bs[:5])
	assert.False(t, ok)
	_, _, _, ok = decodePayload([]byte{0, 0, 0, 200, 0, 0, 1, 0})
	assert.False(t, ok)
}

func TestCaptureWriterLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	_, _ = cw.Write([]byte("abc"))
	assert.False(t, cw.truncated())
	_, _ = cw.Write([]byte("def"))
	assert.True(t, cw.truncated())
	assert.Equal(t, "abcd", cw.buf.String())
	assert.Equal(t, "abcdef", rec.Body.String())
}
