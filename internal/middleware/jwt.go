package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docvault/internal/access"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
	"github.com/xxxsen/docvault/internal/pkg/response"
)

const (
	ContextUserIDKey  = "user_id"
	ContextSubjectKey = "subject"
)

// Authenticator resolves a bearer token into the current subject.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (access.Subject, error)
}

// JWTAuth authenticates every request. When allowQuery is set a token in
// the "token" query parameter is accepted as well, for links opened by the
// browser directly.
func JWTAuth(auth Authenticator, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c, allowQuery)
		if err != nil {
			response.Fail(c, err)
			c.Abort()
			return
		}
		subject, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.Fail(c, err)
			c.Abort()
			return
		}
		c.Set(ContextUserIDKey, subject.UserID)
		c.Set(ContextSubjectKey, subject)
		c.Next()
	}
}

func bearerToken(c *gin.Context, allowQuery bool) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if allowQuery {
			if token := c.Query("token"); token != "" {
				return token, nil
			}
		}
		return "", appErr.Unauthorized("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", appErr.Unauthorized("invalid authorization")
	}
	return strings.TrimSpace(parts[1]), nil
}

// RequireAdmin must run after JWTAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, ok := SubjectFrom(c)
		if !ok {
			response.Fail(c, appErr.Unauthorized("missing authorization"))
			c.Abort()
			return
		}
		if !access.CanAdminister(subject.Role) {
			response.Fail(c, appErr.Forbidden("administrator role required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func SubjectFrom(c *gin.Context) (access.Subject, bool) {
	v, ok := c.Get(ContextSubjectKey)
	if !ok {
		return access.Subject{}, false
	}
	subject, ok := v.(access.Subject)
	return subject, ok
}
