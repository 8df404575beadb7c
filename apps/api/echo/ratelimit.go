package echoapi

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// rateLimitMiddleware throttles per client IP. Stale limiters are pruned
// on the fly so the map does not grow unbounded.
func rateLimitMiddleware(limit rate.Limit, burst int) echo.MiddlewareFunc {
	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var (
		mutex   sync.Mutex
		clients = make(map[string]*client)
	)
	staleAfter := 10 * time.Minute

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ip := ctx.RealIP()

			mutex.Lock()
			c, ok := clients[ip]
			if !ok {
				c = &client{limiter: rate.NewLimiter(limit, burst)}
				clients[ip] = c
			}
			c.lastSeen = time.Now()
			for addr, cl := range clients {
				if time.Since(cl.lastSeen) > staleAfter {
					delete(clients, addr)
				}
			}
			allowed := c.limiter.Allow()
			mutex.Unlock()

			if !allowed {
				return errRateLimited
			}
			return next(ctx)
		}
	}
}
