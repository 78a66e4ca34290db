// Package api wires the HTTP and websocket surface onto gin.
package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/typephoon/backend/internal/api/handlers"
	"github.com/typephoon/backend/internal/config"
	"github.com/typephoon/backend/internal/services"
)

// Services bundles everything the route tree depends on.
type Services struct {
	Auth       *services.AuthService
	QueueIn    *services.QueueInService
	Lobby      *services.LobbyService
	Game       *services.GameService
	GameEvents *services.GameEventService
	Profile    *services.ProfileService
	Health     *services.HealthcheckService
	Validator  services.TokenValidator
}

// SetupRoutes configures all API routes.
func SetupRoutes(router *gin.Engine, svcs *Services, cfg *config.Config, log *logrus.Logger) {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = cfg.CORSAllowOrigins
	corsCfg.AllowCredentials = true
	router.Use(cors.New(corsCfg))

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/google/login", handlers.Login(svcs.Auth))
			auth.GET("/google/login-redirect", handlers.LoginRedirect(svcs.Auth, cfg))
			auth.POST("/logout", handlers.Logout(svcs.Auth, cfg))
			auth.POST("/token-refresh", handlers.TokenRefresh(svcs.Auth, cfg))
			auth.GET("/guest-token", handlers.GuestToken(svcs.Auth, cfg))
		}

		lobby := v1.Group("/lobby")
		{
			lobby.GET("/players", handlers.LobbyPlayers(svcs.Lobby, svcs.Validator))
			lobby.GET("/countdown", handlers.LobbyCountdown(svcs.Lobby))
			lobby.POST("/leave", handlers.LobbyLeave(svcs.Lobby, svcs.Validator))
			lobby.GET("/queue-in/ws", handlers.QueueInWS(svcs.QueueIn, log))
		}

		game := v1.Group("/game")
		{
			game.GET("/countdown", handlers.GameCountdown(svcs.Game))
			game.POST("/statistics", handlers.WriteStatistics(svcs.Game, svcs.Validator))
			game.GET("/statistics", handlers.GameResult(svcs.Game))
			game.GET("/words", handlers.GameWords(svcs.Game))
			game.GET("/ws", handlers.GameWS(svcs.GameEvents, log))
		}

		profile := v1.Group("/profile")
		{
			profile.GET("/statistics", handlers.ProfileStatistics(svcs.Profile, svcs.Validator))
			profile.GET("/graph", handlers.ProfileGraph(svcs.Profile, svcs.Validator))
			profile.GET("/history", handlers.ProfileHistory(svcs.Profile, svcs.Validator))
		}

		health := v1.Group("/healthcheck")
		{
			health.GET("/alive", handlers.HealthAlive(svcs.Health))
			health.GET("/ready", handlers.HealthReady(svcs.Health))
		}
	}
}
