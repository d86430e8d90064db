package middleware

import (
	"errors"
	"strings"

	"telemed/internal/core/services"
	apperrors "telemed/pkg/errors"
	"telemed/pkg/logger"

	"github.com/gin-gonic/gin"
)

// SubjectKey is the gin context key holding the authenticated subject.
const SubjectKey = "subject"

// BearerAuth rejects requests without a valid bearer token. The websocket
// route may pass the token as the access_token query parameter because
// browsers cannot set headers on the upgrade request.
func BearerAuth(auth services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abortWith(c, apperrors.NewUnauthorizedError("bearer token required"))
			return
		}

		claims, err := auth.ValidateToken(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, services.ErrExpiredToken) {
				msg = "token expired"
			}
			abortWith(c, apperrors.NewUnauthorizedError(msg))
			return
		}

		c.Set(SubjectKey, claims.Subject)
		c.Request = c.Request.WithContext(logger.WithSubject(c.Request.Context(), claims.Subject))
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return c.Query("access_token")
}

func abortWith(c *gin.Context, appErr *apperrors.AppError) {
	c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
		"error":   string(appErr.Code),
		"message": appErr.Message,
	})
}
