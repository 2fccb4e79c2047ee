package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ContextRequestIDKey = "request_id"
	requestIDHeader     = "X-Request-Id"
)

// RequestID keeps a well formed client supplied id or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(ContextRequestIDKey, id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}
