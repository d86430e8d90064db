package middleware

import (
	"time"

	"telemed/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const RequestIDHeader = "X-Request-ID"

// RequestID tags each request with an id, reusing the caller's when given,
// and logs the request once it completes.
func RequestID(log *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))

		start := time.Now()
		c.Next()

		if log != nil {
			log.LogRequest(c.Request.Context(), c.Request.Method, c.FullPath(), c.Writer.Status(),
				time.Since(start).Milliseconds())
		}
	}
}

// NopContextLogger returns a ContextLogger that discards output.
func NopContextLogger() *logger.ContextLogger {
	return logger.NewContextLogger(zap.NewNop())
}
