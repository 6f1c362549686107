package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yourusername/portal-api/internal/pkg/errors"
	"github.com/yourusername/portal-api/internal/service"
)

// SessionCookieName — имя куки с токеном сессии
const SessionCookieName = "session_token"

// AuthMiddleware обеспечивает аутентификацию для защищенных маршрутов.
// Токен сессии принимается из куки или из заголовка Authorization: Bearer.
type AuthMiddleware struct {
	sessionService *service.SessionService
	userService    *service.UserService
}

func NewAuthMiddleware(sessionService *service.SessionService, userService *service.UserService) *AuthMiddleware {
	return &AuthMiddleware{
		sessionService: sessionService,
		userService:    userService,
	}
}

// RequireAuth resolves the caller's session token to a user id and stores it
// in the gin context. Runs on every authenticated request.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "token_missing"})
			c.Abort()
			return
		}

		userID, err := m.sessionService.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, apperrors.ErrUnauthorized) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session", "error_type": "session_invalid"})
			} else {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable", "error_type": "storage_unavailable"})
			}
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Set("session_token", token)
		c.Next()
	}
}

// AdminOnly проверяет, является ли пользователь администратором
func (m *AuthMiddleware) AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("user_id")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		user, err := m.userService.GetByID(c.Request.Context(), userID.(uint))
		if err != nil || !user.IsAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin rights required"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// TokenFromRequest извлекает токен сессии из куки или заголовка Authorization
func TokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie != "" {
		return cookie
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
