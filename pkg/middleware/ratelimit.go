package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shopgate/pkg/apperror"
	"github.com/nao1215/shopgate/pkg/metrics"
	"golang.org/x/time/rate"
)

// limiterIdleTTL はこの時間アクセスの無いクライアントのリミッタを破棄する。
const limiterIdleTTL = 10 * time.Minute

// clientLimiter はクライアント1件分のトークンバケット。
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter はクライアントIPごとのリミッタを保持する。
type ipRateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

// allow はクライアントのリクエストを許可するかどうかを返す。
func (l *ipRateLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > time.Minute {
		for key, cl := range l.clients {
			if now.Sub(cl.lastSeen) > limiterIdleTTL {
				delete(l.clients, key)
			}
		}
		l.lastSweep = now
	}

	cl, ok := l.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// RateLimit はクライアントIPごとにリクエスト数を制限するGinミドルウェアを返す。
// rpsが0以下の場合は制限しない。/health と /metrics は対象外。
// 制限を超えた場合はRetry-Afterを付けて429を返す。
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}

	l := &ipRateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*clientLimiter),
	}
	retryAfter := strconv.Itoa(max(1, int(1/rps)))

	return func(c *gin.Context) {
		switch c.Request.URL.Path {
		case "/health", "/metrics":
			c.Next()
			return
		}

		if !l.allow(c.ClientIP(), time.Now()) {
			metrics.RateLimitedTotal.Inc()
			c.Header("Retry-After", retryAfter)
			apperror.Abort(c, apperror.New(apperror.KindTooManyRequests, "リクエストが多すぎます。しばらくしてから再試行してください"))
			return
		}
		c.Next()
	}
}
