package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docvault/internal/pkg/response"
	"github.com/xxxsen/docvault/internal/service"
)

type AskHandler struct {
	qa *service.QAService
}

func NewAskHandler(qa *service.QAService) *AskHandler {
	return &AskHandler{qa: qa}
}

func (h *AskHandler) Ask(c *gin.Context) {
	var req service.AskInput
	if !bindJSON(c, &req) {
		return
	}
	answer, err := h.qa.Ask(c.Request.Context(), getSubject(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, answer)
}
