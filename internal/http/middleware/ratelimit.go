package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/yungbote/echoworld-backend/internal/http/response"
	"github.com/yungbote/echoworld-backend/internal/observability"
	"github.com/yungbote/echoworld-backend/internal/platform/ctxutil"
)

const limiterIdleTTL = 10 * time.Minute

type userLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per authenticated user.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	users     map[uuid.UUID]*userLimiter
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit: rate.Limit(perSecond),
		burst: burst,
		users: map[uuid.UUID]*userLimiter{},
		now:   time.Now,
	}
}

func (rl *RateLimiter) Allow(userID uuid.UUID) (bool, time.Duration) {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if now.Sub(rl.lastSweep) > limiterIdleTTL {
		for id, ul := range rl.users {
			if now.Sub(ul.lastSeen) > limiterIdleTTL {
				delete(rl.users, id)
			}
		}
		rl.lastSweep = now
	}
	ul := rl.users[userID]
	if ul == nil {
		ul = &userLimiter{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.users[userID] = ul
	}
	ul.lastSeen = now
	r := ul.lim.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Limit rejects requests beyond the caller's budget with 429. A nil limiter or
// a non-positive rate disables it. Must run after RequireAuth.
func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || rl.limit <= 0 {
			c.Next()
			return
		}
		uid := ctxutil.UserID(c.Request.Context())
		if uid == uuid.Nil {
			c.Next()
			return
		}
		ok, retry := rl.Allow(uid)
		if !ok {
			observability.Current().IncRateLimited(c.FullPath())
			secs := int(retry.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			response.RespondError(c, http.StatusTooManyRequests, "rate_limited", errRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}

const errRateLimited = middlewareError("too many messages, slow down")
