package ports

import "github.com/gin-gonic/gin"

type HTTPHandler interface {
	ListSessions(c *gin.Context)
	GetQuality(c *gin.Context)
	GetAdaptation(c *gin.Context)
	GetStats(c *gin.Context)
	ForceLevel(c *gin.Context)
	ResetLevel(c *gin.Context)
	EndSession(c *gin.Context)
	StreamQuality(c *gin.Context)
}
