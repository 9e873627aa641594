package v1

import (
	"github.com/gin-gonic/gin"
)

// Version is reported by the health endpoint.
var Version = "dev"

// HealthCheck handles the health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  "ok",
		"service": "deploykit-api",
		"version": Version,
	})
}
