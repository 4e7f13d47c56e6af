package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// rateLimiter throttles chat traffic per user so one noisy client cannot
// starve the shared execution slots.
type rateLimiter struct {
	mu     sync.Mutex
	limits map[string]*rate.Limiter
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		limits: make(map[string]*rate.Limiter),
	}
}

// getLimiter gets or creates a limiter for the given key.
// 10 requests per second, with burst of 20.
func (rl *rateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.limits[key]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(rate.Every(time.Second/10), 20)
	rl.limits[key] = limiter
	return limiter
}

func (rl *rateLimiter) allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// middleware keys the limit on the userId query parameter when present,
// falling back to the client IP for requests carrying the user in the body.
func (rl *rateLimiter) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.QueryParam("userId")
		if key == "" {
			key = c.RealIP()
		}
		if !rl.allow(key) {
			return c.JSON(http.StatusTooManyRequests, map[string]any{
				"ok":    false,
				"error": "rate_limited",
			})
		}
		return next(c)
	}
}
