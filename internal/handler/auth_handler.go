package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docvault/internal/access"
	"github.com/xxxsen/docvault/internal/pkg/response"
	"github.com/xxxsen/docvault/internal/service"
)

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

type meResponse struct {
	UserID    string       `json:"user_id"`
	Username  string       `json:"username"`
	Role      access.Role  `json:"role"`
	MaxLevel  access.Level `json:"max_level"`
	CanUpload bool         `json:"can_upload"`
	IsAdmin   bool         `json:"is_admin"`
}

func (h *AuthHandler) Me(c *gin.Context) {
	s := getSubject(c)
	response.Success(c, meResponse{
		UserID:    s.UserID,
		Username:  s.Username,
		Role:      s.Role,
		MaxLevel:  s.MaxLevel,
		CanUpload: access.CanUpload(s.Role, s.MaxLevel),
		IsAdmin:   access.CanAdminister(s.Role),
	})
}
