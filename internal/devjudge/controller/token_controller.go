package controller

import (
	"ojwatch/internal/devjudge/service"
	appErr "ojwatch/pkg/errors"
	"ojwatch/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// TokenController issues development access tokens.
type TokenController struct {
	authService *service.AuthService
}

// NewTokenController creates a new TokenController.
func NewTokenController(authService *service.AuthService) *TokenController {
	return &TokenController{authService: authService}
}

// Issue signs a token for the requested user.
func (h *TokenController) Issue(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, appErr.InvalidParams, "Invalid request parameters")
		return
	}
	token, expiresAt, err := h.authService.IssueToken(req.UserID, req.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, TokenResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.Unix(),
	})
}

// TokenRequest defines token issue payload.
type TokenRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Role   string `json:"role"`
}

// TokenResponse defines token issue response payload.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}
