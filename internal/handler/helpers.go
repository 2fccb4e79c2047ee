package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docvault/internal/access"
	"github.com/xxxsen/docvault/internal/middleware"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
	"github.com/xxxsen/docvault/internal/pkg/response"
)

func getSubject(c *gin.Context) access.Subject {
	subject, _ := middleware.SubjectFrom(c)
	return subject
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get(middleware.ContextRequestIDKey)
	userID, _ := c.Get(middleware.ContextUserIDKey)
	fields := []zap.Field{
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Any("user_id", userID),
		zap.String("kind", string(appErr.KindOf(err))),
		zap.Error(err),
	}
	logger := logutil.GetLogger(c.Request.Context())
	if appErr.KindOf(err) == appErr.KindInternal {
		logger.Error("request failed", fields...)
	} else {
		logger.Info("request rejected", fields...)
	}
	response.Fail(c, err)
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		handleError(c, appErr.Invalid("invalid request body"))
		return false
	}
	return true
}

// readFormFile reads the multipart "file" field, refusing anything larger
// than limit bytes.
func readFormFile(c *gin.Context, limit int64) (string, []byte, error) {
	file, err := c.FormFile("file")
	if err != nil {
		if isBodyTooLarge(err) {
			return "", nil, appErr.Invalidf("file exceeds the %s upload limit", formatUploadLimit(limit))
		}
		return "", nil, appErr.Invalid("file is required")
	}
	if file.Size > limit {
		return "", nil, appErr.Invalidf("file exceeds the %s upload limit", formatUploadLimit(limit))
	}
	opened, err := file.Open()
	if err != nil {
		return "", nil, appErr.Invalid("failed to open file")
	}
	defer opened.Close()
	data, err := io.ReadAll(io.LimitReader(opened, limit+1))
	if err != nil {
		return "", nil, appErr.Invalid("failed to read file")
	}
	if int64(len(data)) > limit {
		return "", nil, appErr.Invalidf("file exceeds the %s upload limit", formatUploadLimit(limit))
	}
	return file.Filename, data, nil
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func sendFile(c *gin.Context, disposition, filename, contentType string, body io.Reader) {
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": filename}))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, body); err != nil {
		logutil.GetLogger(c.Request.Context()).Warn("write file response failed", zap.String("filename", filename), zap.Error(err))
	}
}

func formBool(c *gin.Context, key string) bool {
	switch c.PostForm(key) {
	case "1", "true", "TRUE", "True", "on", "yes":
		return true
	}
	return false
}
