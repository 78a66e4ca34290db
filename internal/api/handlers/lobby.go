package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/typephoon/backend/internal/services"
)

func LobbyCountdown(lobby *services.LobbyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		gameID, ok := gameIDParam(c)
		if !ok {
			return
		}
		left, err := lobby.GetCountdown(c.Request.Context(), gameID)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"countdown": left})
	}
}

// LobbyPlayers returns the lobby membership split into me/others.
func LobbyPlayers(lobby *services.LobbyService, validator services.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := identity(c, validator)
		if !ok {
			return
		}
		gameID, ok := gameIDParam(c)
		if !ok {
			return
		}

		players, err := lobby.GetPlayers(c.Request.Context(), gameID, claims.Subject)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, players)
	}
}

// LobbyLeave withdraws the caller from a lobby before the game starts.
func LobbyLeave(lobby *services.LobbyService, validator services.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := identity(c, validator)
		if !ok {
			return
		}

		var req struct {
			GameID int64 `json:"game_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			failValidation(c, "game_id is required")
			return
		}

		if err := lobby.Leave(c.Request.Context(), req.GameID, claims.Subject); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusOK)
	}
}
