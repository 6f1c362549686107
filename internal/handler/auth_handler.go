package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/portal-api/internal/middleware"
	apperrors "github.com/yourusername/portal-api/internal/pkg/errors"
	"github.com/yourusername/portal-api/internal/service"
)

// AuthHandler обрабатывает HTTP-запросы passwordless-аутентификации.
// Токен сессии возвращается и в JSON (для мобильных клиентов), и в куке
// (для браузера).
type AuthHandler struct {
	authService    *service.AuthService
	sessionService *service.SessionService
	userService    *service.UserService
	throttle       *service.ThrottleService

	cookieSecure  bool
	sessionMaxAge time.Duration
}

func NewAuthHandler(
	authService *service.AuthService,
	sessionService *service.SessionService,
	userService *service.UserService,
	throttle *service.ThrottleService,
	cookieSecure bool,
	sessionMaxAge time.Duration,
) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		sessionService: sessionService,
		userService:    userService,
		throttle:       throttle,
		cookieSecure:   cookieSecure,
		sessionMaxAge:  sessionMaxAge,
	}
}

// --- Request/response DTOs ---

// InitiateRequest — запрос на отправку кода входа
type InitiateRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// VerifyRequest — запрос на подтверждение кода входа
type VerifyRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Code     string `json:"code" binding:"required,len=6"`
	DeviceID string `json:"device_id"`
	Remember bool   `json:"remember"`
}

// VerifyResponse — ответ при успешном входе
type VerifyResponse struct {
	UserID       uint   `json:"userId"`
	SessionToken string `json:"sessionToken"`
}

// --- Handlers ---

// InitiateAuth отправляет одноразовый код входа на email.
// Код никогда не попадает в ответ — только в письмо.
func (h *AuthHandler) InitiateAuth(c *gin.Context) {
	var req InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	err := h.authService.InitiateAuth(c.Request.Context(), service.InitiateInput{
		Email:    req.Email,
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Verification code sent. Check your email."})
}

// VerifyCode подтверждает код и создает сессию
func (h *AuthHandler) VerifyCode(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	result, err := h.authService.VerifyCode(c.Request.Context(), service.VerifyInput{
		Email:          req.Email,
		Code:           req.Code,
		ClientIP:       c.ClientIP(),
		DeviceInfo:     deviceInfoFromRequest(c, req.DeviceID),
		RememberDevice: req.Remember,
	})
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	c.SetCookie(
		middleware.SessionCookieName,
		result.SessionToken,
		int(h.sessionMaxAge.Seconds()),
		"/",
		"",
		h.cookieSecure,
		true,
	)
	c.JSON(http.StatusOK, VerifyResponse{
		UserID:       result.UserID,
		SessionToken: result.SessionToken,
	})
}

// Logout отзывает текущую сессию; идемпотентно
func (h *AuthHandler) Logout(c *gin.Context) {
	token := middleware.TokenFromRequest(c)
	if token != "" {
		if err := h.sessionService.Revoke(c.Request.Context(), token); err != nil {
			h.handleAuthError(c, err)
			return
		}
	}

	c.SetCookie(middleware.SessionCookieName, "", -1, "/", "", h.cookieSecure, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// ListSessions возвращает активные сессии пользователя, новые первыми
func (h *AuthHandler) ListSessions(c *gin.Context) {
	userID := c.GetUint("user_id")

	sessions, err := h.sessionService.ListActive(c.Request.Context(), userID)
	if err != nil {
		h.handleAuthError(c, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(sessions))
	for i := range sessions {
		out = append(out, sessions[i].SessionInfo())
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// RevokeSession отзывает одну сессию пользователя по ID из списка сессий.
// Чужие и несуществующие сессии неразличимы в ответе.
func (h *AuthHandler) RevokeSession(c *gin.Context) {
	userID := c.GetUint("user_id")

	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session id", "error_type": "validation_failed"})
		return
	}

	if err := h.sessionService.RevokeByID(c.Request.Context(), userID, uint(sessionID)); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found", "error_type": "session_not_found"})
			return
		}
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session revoked"})
}

// Me возвращает профиль текущего пользователя
func (h *AuthHandler) Me(c *gin.Context) {
	userID := c.GetUint("user_id")

	user, err := h.userService.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "user_not_found"})
			return
		}
		h.handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// ThrottleStats — статистика лимитера для админки
func (h *AuthHandler) ThrottleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.throttle.Stats())
}

// handleAuthError переводит ошибки auth-потока в HTTP-ответы со стабильным
// error_type. Формулировки единые и не раскрывают, зарегистрирован ли email.
func (h *AuthHandler) handleAuthError(c *gin.Context, err error) {
	var throttled *service.ThrottledError
	switch {
	case errors.As(err, &throttled):
		retryAfter := int(throttled.RetryAfter.Seconds())
		c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Too many attempts. Please try again in %dm %ds.",
				retryAfter/60, retryAfter%60),
			"error_type":  "rate_limited",
			"retry_after": retryAfter,
		})
	case errors.Is(err, service.ErrInvalidCode):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "Invalid verification code",
			"error_type": "invalid_code",
		})
	case errors.Is(err, service.ErrCodeExpired):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "Verification code has expired. Please request a new one.",
			"error_type": "code_expired",
		})
	case errors.Is(err, service.ErrTooManyAttempts):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "Too many invalid attempts. Please request a new code.",
			"error_type": "too_many_attempts",
		})
	case errors.Is(err, service.ErrEmailDelivery):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":      "Error sending verification code. Please try again.",
			"error_type": "email_delivery_failed",
		})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "Invalid request data",
			"error_type": "validation_failed",
		})
	case errors.Is(err, service.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":      "Service temporarily unavailable. Please try again.",
			"error_type": "storage_unavailable",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Internal server error",
			"error_type": "internal",
		})
	}
}

// deviceInfoFromRequest берет идентификатор устройства из запроса, иначе
// User-Agent клиента.
func deviceInfoFromRequest(c *gin.Context, deviceID string) string {
	if deviceID != "" {
		return deviceID
	}
	return c.Request.UserAgent()
}
