package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsHeaders = "Authorization, Content-Type, X-Request-Id"
	corsExpose  = "Content-Disposition, X-Request-Id"
)

func CORS(allowlist []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowlist))
	for _, origin := range allowlist {
		trimmed := strings.TrimRight(strings.TrimSpace(origin), "/")
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}
	allowAll := len(allowed) == 0
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		h := c.Writer.Header()
		if allowAll {
			h.Set("Access-Control-Allow-Origin", "*")
		} else if _, ok := allowed[origin]; ok && origin != "" {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}
		if h.Get("Access-Control-Allow-Origin") != "" {
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", corsHeaders)
			h.Set("Access-Control-Expose-Headers", corsExpose)
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
