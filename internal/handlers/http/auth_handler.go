package http

import (
	"net/http"
	"time"

	"telemed/internal/core/services"
	"telemed/pkg/errors"

	"github.com/gin-gonic/gin"
)

// AuthHandler re-issues tokens for callers that already hold a valid one.
// Initial tokens are minted out of band with `qualityd token`.
type AuthHandler struct {
	authService services.AuthService
	tokenTTL    time.Duration
}

func NewAuthHandler(authService services.AuthService, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		tokenTTL:    tokenTTL,
	}
}

// SetupRoutes expects group to sit behind the bearer auth middleware.
func (h *AuthHandler) SetupRoutes(group *gin.RouterGroup) {
	group.POST("/auth/refresh", h.RefreshToken)
}

func (h *AuthHandler) RefreshToken(c *gin.Context) {
	subject := c.GetString("subject")
	if subject == "" {
		_ = c.Error(errors.NewUnauthorizedError("bearer token required"))
		return
	}

	token, err := h.authService.GenerateToken(subject)
	if err != nil {
		_ = c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to generate token", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(h.tokenTTL / time.Second),
	})
}
