package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/typephoon/backend/internal/services"
)

func GameCountdown(game *services.GameService) gin.HandlerFunc {
	return func(c *gin.Context) {
		gameID, ok := gameIDParam(c)
		if !ok {
			return
		}
		left, err := game.GetCountdown(c.Request.Context(), gameID)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"countdown": left})
	}
}

// WriteStatistics records the caller's finish report and assigns the rank.
func WriteStatistics(game *services.GameService, validator services.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := identity(c, validator)
		if !ok {
			return
		}

		var stats services.GameStatistics
		if err := c.ShouldBindJSON(&stats); err != nil {
			failValidation(c, "game_id is required")
			return
		}

		if err := game.WriteStatistics(c.Request.Context(), stats, claims.Subject, claims.UserType); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusOK)
	}
}

// GameResult returns the scoreboard sorted by rank.
func GameResult(game *services.GameService) gin.HandlerFunc {
	return func(c *gin.Context) {
		gameID, ok := gameIDParam(c)
		if !ok {
			return
		}
		ranking, err := game.GetResult(c.Request.Context(), gameID)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": ranking})
	}
}

func GameWords(game *services.GameService) gin.HandlerFunc {
	return func(c *gin.Context) {
		gameID, ok := gameIDParam(c)
		if !ok {
			return
		}
		words, err := game.GetWords(c.Request.Context(), gameID)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"words": words})
	}
}
