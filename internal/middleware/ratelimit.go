package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docvault/internal/pkg/errcode"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
	"github.com/xxxsen/docvault/internal/pkg/response"
)

// rateLimiter admits one request per key and window. Keys are
// client ip, user id and route.
type rateLimiter struct {
	mu            sync.Mutex
	window        time.Duration
	last          map[string]time.Time
	sweepInterval time.Duration
	lastSweep     time.Time
	now           func() time.Time
}

func RateLimit(window time.Duration) gin.HandlerFunc {
	limiter := &rateLimiter{
		window:        window,
		last:          make(map[string]time.Time),
		sweepInterval: time.Minute,
		now:           time.Now,
	}
	return limiter.handle
}

func (l *rateLimiter) handle(c *gin.Context) {
	if l.window <= 0 {
		c.Next()
		return
	}
	ip := c.ClientIP()
	uid := "0"
	if v, ok := c.Get(ContextUserIDKey); ok {
		if id, ok := v.(string); ok && id != "" {
			uid = id
		}
	}
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	key := strings.Join([]string{ip, uid, path}, "|")

	now := l.now()
	l.mu.Lock()
	if now.Sub(l.lastSweep) >= l.sweepInterval {
		l.cleanupExpiredLocked(now)
	}
	last, exists := l.last[key]
	if exists && now.Sub(last) < l.window {
		l.mu.Unlock()
		logutil.GetLogger(c.Request.Context()).Warn("rate limit hit",
			zap.String("ip", ip),
			zap.String("user_id", uid),
			zap.String("path", path),
		)
		kind := appErr.KindTooMany
		response.Error(c, http.StatusTooManyRequests, string(kind), errcode.FromKind(kind), http.StatusText(http.StatusTooManyRequests))
		c.Abort()
		return
	}
	l.last[key] = now
	l.mu.Unlock()
	c.Next()
}

// cleanupExpiredLocked drops keys whose window has passed. l.mu must be
// held.
func (l *rateLimiter) cleanupExpiredLocked(now time.Time) {
	for key, ts := range l.last {
		if now.Sub(ts) >= l.window {
			delete(l.last, key)
		}
	}
	l.lastSweep = now
}
