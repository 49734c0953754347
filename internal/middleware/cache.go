package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/noseryoung/course-rating/internal/config"
	"github.com/noseryoung/course-rating/internal/logging"
)

// ResponseCache keeps successful GET responses in Redis.  Status, headers
// and body are stored together so a hit is byte-for-byte the original
// response.
type ResponseCache struct {
	cfg config.CacheConfig
	rdb *redis.Client
	log logging.Logger
}

// NewResponseCache returns a cache that stores nothing when cfg.Enabled is
// false or rdb is nil.
func NewResponseCache(cfg config.CacheConfig, rdb *redis.Client, log logging.Logger) *ResponseCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	return &ResponseCache{cfg: cfg, rdb: rdb, log: log.With("component", "response-cache")}
}

func (rc *ResponseCache) active() bool { return rc.cfg.Enabled && rc.rdb != nil }

// Middleware serves hits from Redis and records 200 responses on a miss.
// Redis errors are treated as a miss.
func (rc *ResponseCache) Middleware() echo.MiddlewareFunc {
	if !rc.active() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rc.cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}
			ctx := c.Request().Context()
			key := cacheKey(rc.cfg, c)

			if bs, err := rc.rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					return replay(c, status, hdr, body)
				}
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(rc.cfg.MaxBodyBytes)}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			// a truncated body must not be replayed
			if cw.status != http.StatusOK || cw.truncated() {
				return nil
			}
			payload, err := encodePayload(cw.status, c.Response().Header().Clone(), cw.buf.Bytes())
			if err != nil {
				return nil
			}
			// the request context may already be cancelled once the body is written
			if err := rc.rdb.SetEx(context.WithoutCancel(ctx), key, payload, rc.cfg.TTL).Err(); err != nil {
				rc.log.Warn(ctx, "cache store failed", "key", key, "err", err)
			}
			return nil
		}
	}
}

// Invalidate drops every cached response under the configured prefix.  It
// is called after writes that change cached listings.
func (rc *ResponseCache) Invalidate(ctx context.Context) error {
	if !rc.active() {
		return nil
	}
	iter := rc.rdb.Scan(ctx, 0, rc.cfg.Prefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := rc.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete cache keys: %w", err)
	}
	return nil
}

func replay(c echo.Context, status int, hdr http.Header, body []byte) error {
	h := c.Response().Header()
	for k, vals := range hdr {
		// echo sets Content-Length itself
		if strings.EqualFold(k, "Content-Length") || strings.EqualFold(k, "X-Cache") {
			continue
		}
		for _, v := range vals {
			h.Add(k, v)
		}
	}
	h.Set("X-Cache", "HIT")
	c.Response().WriteHeader(status)
	if len(body) > 0 {
		_, _ = c.Response().Write(body)
	}
	return nil
}

// captureWriter copies up to limit bytes of the response while passing
// everything through to the client.  limit <= 0 means no limit.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	switch remain := cw.limit - cw.size; {
	case cw.limit <= 0:
		cw.buf.Write(b)
	case remain >= int64(len(b)):
		cw.buf.Write(b)
	case remain > 0:
		cw.buf.Write(b[:remain])
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

func (cw *captureWriter) truncated() bool { return cw.limit > 0 && cw.size > cw.limit }

// cacheKey hashes the parts selected by cfg.KeyStrategy under cfg.Prefix.
func cacheKey(cfg config.CacheConfig, c echo.Context) string {
	r := c.Request()
	var parts []string
	switch strings.ToLower(cfg.KeyStrategy) {
	case "route":
		parts = []string{"route", c.Path()}
	case "method_route":
		parts = []string{"method", r.Method, "route", c.Path()}
	case "method_route_query":
		parts = []string{"method", r.Method, "route", c.Path(), "q", r.URL.RawQuery}
	default: // route_query
		parts = []string{"route", c.Path(), "q", r.URL.RawQuery}
	}
	sum := sha1.Sum([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("%s:%x", cfg.Prefix, sum[:])
}

// encodePayload packs [4 bytes status][4 bytes header length][header JSON][body].
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdr, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8, 8+len(hdr)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdr)))
	out = append(out, hdr...)
	return append(out, body...), nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}
