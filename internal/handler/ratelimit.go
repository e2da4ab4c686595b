package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimit counts requests per client address in fixed windows stored in
// Redis. A nil client disables limiting. Redis failures let the request
// through.
func RateLimit(rdb *redis.Client, scope string, limit int, window time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rdb == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := "rate_limit:" + scope + ":" + r.RemoteAddr

			current, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				logger.Warn("rate limit unavailable", zap.String("scope", scope), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if current == 1 {
				rdb.Expire(ctx, key, window)
			}
			if current > int64(limit) {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
