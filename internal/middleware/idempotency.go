package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/go-petr/mini-bank/pkg/web"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// IdempotencyKeyHeader carries the client request id.
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader is set on responses that repeat an earlier result.
	ReplayedHeader = "Idempotent-Replayed"

	idempotencyPrefix = "idempotency:v1:"
	inProgressMarker  = "__in_progress__"
	cacheTimeout      = 2 * time.Second
)

type storedResponse struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
}

type bodyWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// IdempotencyKey returns the cache key of the caller's request id.
func IdempotencyKey(userID int64, key string) string {
	return idempotencyPrefix + strconv.FormatInt(userID, 10) + ":" + key
}

// requestFingerprint hashes the route and the raw body and puts the body back
// for the handler.
func requestFingerprint(c *gin.Context) (string, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	h := sha256.New()
	h.Write([]byte(c.Request.Method + " " + c.Request.URL.Path + "\n"))
	h.Write(body)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Idempotency replays successful responses of POST requests that carry an
// Idempotency-Key header. It must run after AuthMiddleware. A key reused for
// another route or body fails with domain.ErrIdempotencyKeyReuse. Any Redis
// failure lets the request through, the ledger's own request id check still applies.
func Idempotency(cache *redis.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if cache == nil || c.Request.Method != http.MethodPost || key == "" {
			c.Next()
			return
		}

		principal, ok := Principal(c)
		if !ok {
			c.Next()
			return
		}

		l := zerolog.Ctx(c.Request.Context())
		cacheKey := IdempotencyKey(principal.UserID, key)

		fingerprint, err := requestFingerprint(c)
		if err != nil {
			RespondBindError(c, err)
			c.Abort()

			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cacheTimeout)
		defer cancel()

		cached, err := cache.Get(ctx, cacheKey).Result()

		switch {
		case err == nil && cached == inProgressMarker:
			c.AbortWithStatusJSON(http.StatusConflict, web.Error(domain.ErrRequestInProgress))
			return
		case err == nil:
			var stored storedResponse
			if err := json.Unmarshal([]byte(cached), &stored); err != nil {
				l.Warn().Err(err).Str("key", cacheKey).Msg("undecodable cached response")
				c.Next()

				return
			}

			if stored.Fingerprint != fingerprint {
				RespondError(c, domain.ErrIdempotencyKeyReuse)
				c.Abort()

				return
			}

			c.Header(ReplayedHeader, "true")
			c.Data(stored.Status, stored.ContentType, []byte(stored.Body))
			c.Abort()

			return
		case !errors.Is(err, redis.Nil):
			l.Warn().Err(err).Str("key", cacheKey).Msg("idempotency lookup failed")
			c.Next()

			return
		}

		reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
		if err != nil {
			l.Warn().Err(err).Str("key", cacheKey).Msg("idempotency reservation failed")
			c.Next()

			return
		}

		if !reserved {
			c.AbortWithStatusJSON(http.StatusConflict, web.Error(domain.ErrRequestInProgress))
			return
		}

		w := &bodyWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		persistCtx, persistCancel := context.WithTimeout(context.Background(), cacheTimeout)
		defer persistCancel()

		status := w.Status()
		if status < 200 || status >= 300 {
			cache.Del(persistCtx, cacheKey)
			return
		}

		payload, err := json.Marshal(storedResponse{
			Fingerprint: fingerprint,
			Status:      status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.String(),
		})
		if err != nil {
			l.Error().Err(err).Msg("encode idempotent response")
			cache.Del(persistCtx, cacheKey)

			return
		}

		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			l.Warn().Err(err).Str("key", cacheKey).Msg("persist idempotent response")
			cache.Del(persistCtx, cacheKey)
		}
	}
}
