package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rate limit scopes. Each scope has its own bucket per caller, so polling the
// task status does not eat into the budget for launching analyses.
const (
	ScopeAnalyse = "ia-analyse"
	ScopeStatus  = "ia-status"
	ScopeResult  = "ia-result"
)

// Per-minute quotas per scope.
const (
	AnalyseQuota = 10
	StatusQuota  = 120
	ResultQuota  = 60
)

// RateLimiter is a redis fixed-window limiter. It fails open: when redis is
// unreachable the request goes through rather than taking the API down with it.
type RateLimiter struct {
	client *redis.Client
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

func (rl *RateLimiter) checkRateLimit(ctx context.Context, key string, perMinute int) (allowed bool, remaining int, resetAt time.Time) {
	now := time.Now()
	window := now.Truncate(time.Minute)
	windowKey := fmt.Sprintf("%s:%d", key, window.Unix())

	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, time.Minute+time.Second)
	_, err := pipe.Exec(ctx)
	if err != nil {
		slog.Error("rate limit check failed, allowing request", "key", key, "error", err)
		return true, perMinute, window.Add(time.Minute)
	}

	count := incr.Val()
	remaining = perMinute - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return count <= int64(perMinute), remaining, window.Add(time.Minute)
}

// Limit returns middleware enforcing the given per-minute quota for one scope.
// Buckets are keyed by authenticated user when available, by remote address
// otherwise.
func (rl *RateLimiter) Limit(scope string, perMinute int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := r.RemoteAddr
			if user, ok := UserFromContext(r.Context()); ok {
				caller = user.UserId.String()
			}
			key := fmt.Sprintf("ratelimit:%s:%s", scope, caller)

			allowed, remaining, resetAt := rl.checkRateLimit(r.Context(), key, perMinute)

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", perMinute))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetAt.Unix()))

			if !allowed {
				slog.Warn("rate limit exceeded", "scope", scope, "caller", caller, "path", r.URL.Path)
				w.Header().Set("Retry-After", fmt.Sprintf("%d", resetAt.Unix()-time.Now().Unix()))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
