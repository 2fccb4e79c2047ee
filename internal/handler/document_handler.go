package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docvault/internal/pkg/response"
	"github.com/xxxsen/docvault/internal/service"
)

type DocumentHandler struct {
	documents *service.DocumentService
	ingest    *service.IngestService
}

func NewDocumentHandler(documents *service.DocumentService, ingest *service.IngestService) *DocumentHandler {
	return &DocumentHandler{documents: documents, ingest: ingest}
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documents.List(c.Request.Context(), getSubject(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"documents": docs, "total": len(docs)})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.documents.Delete(c.Request.Context(), getSubject(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

type pageRequest struct {
	Filename   string `json:"filename"`
	PageNumber int    `json:"page_number"`
}

func (h *DocumentHandler) Page(c *gin.Context) {
	var req pageRequest
	if !bindJSON(c, &req) {
		return
	}
	page, err := h.documents.PageContent(c.Request.Context(), getSubject(c), req.Filename, req.PageNumber)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, page)
}

func (h *DocumentHandler) CheckPDF(c *gin.Context) {
	ok, err := h.documents.CheckOriginal(c.Request.Context(), getSubject(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"exists": ok})
}

func (h *DocumentHandler) PDF(c *gin.Context) {
	h.serveOriginal(c, "inline")
}

func (h *DocumentHandler) Download(c *gin.Context) {
	h.serveOriginal(c, "attachment")
}

func (h *DocumentHandler) serveOriginal(c *gin.Context, disposition string) {
	orig, err := h.documents.OpenOriginal(c.Request.Context(), getSubject(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	defer orig.Body.Close()
	sendFile(c, disposition, orig.Document.Filename, orig.ContentType, orig.Body)
}

type reclassifyRequest struct {
	Classification   string `json:"classification"`
	ConfirmDowngrade bool   `json:"confirm_downgrade"`
}

func (h *DocumentHandler) Reclassify(c *gin.Context) {
	var req reclassifyRequest
	if !bindJSON(c, &req) {
		return
	}
	doc, err := h.documents.Reclassify(c.Request.Context(), getSubject(c), c.Param("id"), req.Classification, req.ConfirmDowngrade)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Reindex(c *gin.Context) {
	n, err := h.ingest.Reindex(c.Request.Context(), getSubject(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"doc_id": c.Param("id"), "total_chunks": n})
}
