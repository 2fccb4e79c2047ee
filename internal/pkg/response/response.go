package response

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docvault/internal/pkg/errcode"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
)

type APIError struct {
	Kind    string `json:"kind"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, data)
}

func Accepted(c *gin.Context, data interface{}) {
	c.JSON(202, data)
}

// Error writes the error body. Detail repeats the message for clients that
// read the detail field.
func Error(c *gin.Context, status int, kind string, code int, message string) {
	c.JSON(status, APIError{Kind: kind, Code: code, Message: message, Detail: message})
}

// Fail writes err using its kind for status and code. Internal errors are
// reported without their cause.
func Fail(c *gin.Context, err error) {
	kind := appErr.KindOf(err)
	Error(c, errcode.HTTPStatus(kind), string(kind), errcode.FromKind(kind), appErr.MessageOf(err))
}
