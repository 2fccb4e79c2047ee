package handler

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docvault/internal/pkg/response"
	"github.com/xxxsen/docvault/internal/service"
)

const maxTemplateUpload = 20 << 20

type TemplateHandler struct {
	templates *service.TemplateService
}

func NewTemplateHandler(templates *service.TemplateService) *TemplateHandler {
	return &TemplateHandler{templates: templates}
}

func (h *TemplateHandler) List(c *gin.Context) {
	items, err := h.templates.List(c.Request.Context(), getSubject(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"templates": items})
}

func (h *TemplateHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxTemplateUpload+multipartOverhead)
	filename, data, err := readFormFile(c, maxTemplateUpload)
	if err != nil {
		handleError(c, err)
		return
	}
	view, err := h.templates.Upload(c.Request.Context(), getSubject(c), service.TemplateUploadInput{
		Name:           c.PostForm("name"),
		DocType:        c.PostForm("doc_type"),
		Language:       c.PostForm("language"),
		Classification: c.PostForm("classification"),
		Filename:       filename,
		Data:           data,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, view)
}

func (h *TemplateHandler) Fields(c *gin.Context) {
	fields, err := h.templates.Fields(c.Request.Context(), getSubject(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, fields)
}

type generateRequest struct {
	Values map[string]string `json:"values"`
}

func (h *TemplateHandler) Generate(c *gin.Context) {
	var req generateRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.templates.Generate(c.Request.Context(), getSubject(c), c.Param("id"), req.Values)
	if err != nil {
		handleError(c, err)
		return
	}
	sendFile(c, "attachment", out.Filename, out.ContentType, bytes.NewReader(out.Data))
}

func (h *TemplateHandler) Delete(c *gin.Context) {
	if err := h.templates.Delete(c.Request.Context(), getSubject(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
