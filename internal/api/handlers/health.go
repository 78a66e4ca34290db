package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/typephoon/backend/internal/services"
)

func HealthAlive(health *services.HealthcheckService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// HealthReady reports whether this instance can take traffic; the broker
// must answer its probe.
func HealthReady(health *services.HealthcheckService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := health.Ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
