package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/typephoon/backend/internal/services"
)

const (
	defaultGraphSize   = 20
	defaultHistorySize = 10
)

func ProfileStatistics(profile *services.ProfileService, validator services.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := identity(c, validator)
		if !ok {
			return
		}
		stats, err := profile.Statistics(c.Request.Context(), claims.Subject)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func ProfileGraph(profile *services.ProfileService, validator services.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := identity(c, validator)
		if !ok {
			return
		}
		size := intQuery(c, "size", defaultGraphSize)
		items, err := profile.Graph(c.Request.Context(), claims.Subject, size)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": items})
	}
}

func ProfileHistory(profile *services.ProfileService, validator services.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := identity(c, validator)
		if !ok {
			return
		}
		page := intQuery(c, "page", 1)
		size := intQuery(c, "size", defaultHistorySize)
		if page < 1 || size < 1 {
			failValidation(c, "page and size must be positive")
			return
		}

		history, err := profile.History(c.Request.Context(), claims.Subject, page, size)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, history)
	}
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}
