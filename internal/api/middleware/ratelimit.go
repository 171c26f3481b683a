package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/vibeup/pkg/response"
)

const sweepThreshold = 10000

type visitor struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter 按 key（用户 ID 或客户端 IP）分配令牌桶
type Limiter struct {
	rps   rate.Limit
	burst int
	idle  time.Duration

	mu       sync.Mutex
	visitors map[string]*visitor
}

func NewLimiter(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{rps: rate.Limit(rps), burst: burst, idle: 10 * time.Minute, visitors: make(map[string]*visitor)}
}

func (l *Limiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		if len(l.visitors) >= sweepThreshold {
			l.sweepLocked(now)
		}
		v = &visitor{lim: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()
	return v.lim.AllowN(now, 1)
}

// Len 当前跟踪的 key 数
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

func (l *Limiter) sweepLocked(now time.Time) {
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idle {
			delete(l.visitors, k)
		}
	}
}

// RateLimit 需放在 Auth 之后，已登录用户按用户限流
func RateLimit(l *Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if s, ok := SessionFrom(c); ok {
			key = "user:" + s.UserID
		}
		if !l.Allow(key) {
			response.TooManyRequests(c, "rate limit exceeded")
			return
		}
		c.Next()
	}
}
