package middleware

import (
	"context"
	"strings"

	"ojwatch/internal/devjudge/service"
	appErr "ojwatch/pkg/errors"
	"ojwatch/pkg/utils/contextkey"
	"ojwatch/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const (
	UserIDKey   = "user_id"
	UserRoleKey = "user_role"
)

// AuthMiddleware rejects requests without a valid bearer token.
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authService == nil {
			response.AbortWithErrorCode(c, appErr.ServiceUnavailable, "auth service unavailable")
			return
		}

		token := extractBearerToken(c.GetHeader("Authorization"))
		info, err := authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}

		c.Set(UserIDKey, info.ID)
		c.Set(UserRoleKey, info.Role)
		ctx := context.WithValue(c.Request.Context(), contextkey.UserID, info.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// UserID returns the authenticated caller id.
func UserID(c *gin.Context) (int64, bool) {
	value, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(int64)
	return id, ok
}

func extractBearerToken(authHeader string) string {
	parts := strings.SplitN(strings.TrimSpace(authHeader), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
