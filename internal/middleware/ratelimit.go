package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-petr/mini-bank/pkg/web"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrTooManyAttempts is returned when a client exceeds the login attempt limit.
var ErrTooManyAttempts = errors.New("Too many login attempts, please try again later")

const loginWindow = time.Minute

// LoginAttemptsKey returns the counter key of the client ip.
func LoginAttemptsKey(clientIP string) string {
	return "rl:login:" + clientIP
}

// LoginRateLimit allows at most maxPerMin login attempts per client ip and
// minute. Without Redis, or when Redis fails, every attempt is allowed.
func LoginRateLimit(cache *redis.Client, maxPerMin int) gin.HandlerFunc {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}

	return func(c *gin.Context) {
		if cache == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := LoginAttemptsKey(c.ClientIP())

		cnt, err := cache.Incr(ctx, key).Result()
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("login rate limit lookup failed")
			c.Next()

			return
		}

		if cnt == 1 {
			cache.Expire(ctx, key, loginWindow)
		}

		if cnt > int64(maxPerMin) {
			c.Header("Retry-After", strconv.Itoa(int(loginWindow.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, web.Error(ErrTooManyAttempts))

			return
		}

		c.Next()
	}
}
