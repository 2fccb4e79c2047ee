package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docvault/internal/middleware"
)

type RouterDeps struct {
	Auth      *AuthHandler
	Documents *DocumentHandler
	Upload    *UploadHandler
	Ask       *AskHandler
	Templates *TemplateHandler
	Users     *UserHandler
	// Authenticator verifies bearer tokens and loads the current subject.
	Authenticator   middleware.Authenticator
	LoginRateWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api.POST("/auth/login", middleware.RateLimit(deps.LoginRateWindow), deps.Auth.Login)

	// Browser links to the original file carry the token in the query.
	fileGroup := api.Group("")
	fileGroup.Use(middleware.JWTAuth(deps.Authenticator, true))
	fileGroup.GET("/document/:id/pdf", deps.Documents.PDF)
	fileGroup.GET("/document/:id/download", deps.Documents.Download)

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.Authenticator, false))
	authGroup.GET("/auth/me", deps.Auth.Me)
	authGroup.GET("/documents", deps.Documents.List)
	authGroup.GET("/document/:id/check-pdf", deps.Documents.CheckPDF)
	authGroup.POST("/page", deps.Documents.Page)
	authGroup.POST("/upload", deps.Upload.Upload)
	authGroup.GET("/ingest/jobs/:id", deps.Upload.Job)
	authGroup.POST("/ask", deps.Ask.Ask)
	authGroup.GET("/templates", deps.Templates.List)
	authGroup.GET("/templates/:id/fields", deps.Templates.Fields)
	authGroup.POST("/templates/:id/generate", deps.Templates.Generate)

	adminGroup := authGroup.Group("")
	adminGroup.Use(middleware.RequireAdmin())
	adminGroup.DELETE("/documents/:id", deps.Documents.Delete)
	adminGroup.POST("/templates", deps.Templates.Upload)
	adminGroup.DELETE("/templates/:id", deps.Templates.Delete)
	adminGroup.GET("/admin/users", deps.Users.List)
	adminGroup.POST("/admin/users", deps.Users.Create)
	adminGroup.PUT("/admin/users/:id", deps.Users.Update)
	adminGroup.DELETE("/admin/users/:id", deps.Users.Delete)
	adminGroup.PUT("/admin/documents/:id/classification", deps.Documents.Reclassify)
	adminGroup.POST("/admin/documents/:id/reindex", deps.Documents.Reindex)
}
