package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docvault/internal/pkg/response"
	"github.com/xxxsen/docvault/internal/service"
)

type UserHandler struct {
	users *service.UserService
}

func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) List(c *gin.Context) {
	users, err := h.users.List(c.Request.Context(), getSubject(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"users": users})
}

func (h *UserHandler) Create(c *gin.Context) {
	var req service.CreateUserInput
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.Create(c.Request.Context(), getSubject(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, user)
}

func (h *UserHandler) Update(c *gin.Context) {
	var req service.UpdateUserInput
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.Update(c.Request.Context(), getSubject(c), c.Param("id"), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, user)
}

func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.users.Delete(c.Request.Context(), getSubject(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
