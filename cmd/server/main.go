package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/typephoon/backend/internal/api"
	"github.com/typephoon/backend/internal/broker"
	"github.com/typephoon/backend/internal/cache"
	"github.com/typephoon/backend/internal/config"
	"github.com/typephoon/backend/internal/consumers"
	"github.com/typephoon/backend/internal/database"
	"github.com/typephoon/backend/internal/migrations"
	"github.com/typephoon/backend/internal/oauth"
	"github.com/typephoon/backend/internal/redis"
	"github.com/typephoon/backend/internal/services"
	"github.com/typephoon/backend/internal/store"
	"github.com/typephoon/backend/internal/token"
	"github.com/typephoon/backend/internal/words"
	"github.com/typephoon/backend/internal/ws"
)

func main() {
	cfg := config.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment != "production" {
		log.SetLevel(logrus.DebugLevel)
		log.SetFormatter(&logrus.TextFormatter{})
	}
	log.WithField("server_name", cfg.ServerName).Info("starting typephoon backend")

	db, err := database.Connect(cfg.DB.DSN(), cfg.DB.PoolSize)
	if err != nil {
		log.WithError(err).Fatal("database connect failed")
	}
	defer db.Close()

	if os.Getenv("MIGRATE_ON_START") == "true" {
		if err := migrations.RunMigrations(cfg.DB.DSN()); err != nil {
			log.WithError(err).Fatal("migrations failed")
		}
		log.Info("migrations applied")
	}

	rdb, err := redis.Connect(cfg.Redis)
	if err != nil {
		log.WithError(err).Fatal("redis connect failed")
	}
	defer rdb.Close()

	br, err := broker.Dial(cfg.AMQP, log)
	if err != nil {
		log.WithError(err).Fatal("broker dial failed")
	}
	defer br.Close()
	if err := br.DeclareTopology(); err != nil {
		log.WithError(err).Fatal("topology declare failed")
	}

	publisher, err := broker.NewConfirmPublisher(br)
	if err != nil {
		log.WithError(err).Fatal("publisher setup failed")
	}
	defer publisher.Close()

	wordGen, err := words.Load(cfg.Game.WordFile)
	if err != nil {
		log.WithError(err).Fatal("word list load failed")
	}

	tokenGen, err := token.NewGenerator(cfg.Token)
	if err != nil {
		log.WithError(err).Fatal("token generator setup failed")
	}
	validator, err := token.NewValidator(cfg.Token)
	if err != nil {
		log.WithError(err).Fatal("token validator setup failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := ws.NewManager(time.Duration(cfg.PingInterval)*time.Second, log)
	go manager.Run(ctx)

	gameStore := services.NewGameStore(store.NewGameRepo(db, cfg.Game.PlayerLimit))
	userRepo := store.NewUserRepo(db)
	resultRepo := store.NewGameResultRepo(db)

	lobbyCache := cache.NewLobbyCache(rdb, cfg.Redis, log)
	gameCache := cache.NewGameCache(rdb, cfg.Redis, log)
	guestTokens := cache.NewGuestTokenStore(rdb, cfg.Redis)
	oauthStates := cache.NewOAuthStateStore(rdb, cfg.Redis)

	events := services.NewEvents(publisher, cfg)
	lifecycle := services.NewLifecycle(lobbyCache, gameCache, wordGen, events, cfg.Game, log)

	svcs := &api.Services{
		Auth: services.NewAuthService(
			oauth.NewGoogle(cfg.Google), oauthStates, userRepo, tokenGen, validator, guestTokens, log),
		QueueIn: services.NewQueueInService(
			gameStore, lobbyCache, guestTokens, tokenGen, validator, manager, events, lifecycle, cfg.Game, log),
		Lobby:      services.NewLobbyService(gameStore, lobbyCache, manager, events, log),
		Game:       services.NewGameService(gameStore, gameCache, log),
		GameEvents: services.NewGameEventService(gameCache, validator, manager, events, log),
		Profile:    services.NewProfileService(resultRepo, log),
		Health:     services.NewHealthcheckService(br),
		Validator:  validator,
	}

	all := []*consumers.Consumer{
		consumers.New("lobby-notify", cfg.AMQP.LobbyNotifyQueue, cfg.AMQP.PrefetchCount,
			consumers.NewLobbyNotifyHandler(manager, log), log),
		consumers.New("lobby-countdown", cfg.AMQP.LobbyCountdownQueue, cfg.AMQP.PrefetchCount,
			consumers.NewLobbyCountdownHandler(gameStore, lifecycle, log), log),
		consumers.New("game-start", cfg.AMQP.GameStartQueue, cfg.AMQP.PrefetchCount,
			consumers.NewGameStartHandler(manager, log), log),
		consumers.New("game-keystroke", cfg.AMQP.GameKeystrokeQueue, cfg.AMQP.PrefetchCount,
			consumers.NewKeystrokeHandler(manager, cfg.ServerName, cfg.SkipKeystrokeEcho, log), log),
		consumers.New("game-cleanup", cfg.AMQP.GameCleanupQueue, cfg.AMQP.PrefetchCount,
			consumers.NewGameCleanupHandler(gameStore, lobbyCache, gameCache, log), log),
	}
	for _, c := range all {
		if err := c.Start(ctx, br); err != nil {
			log.WithError(err).Fatal("consumer start failed")
		}
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	api.SetupRoutes(router, svcs, cfg, log)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		log.WithField("port", cfg.Port).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown failed")
	}

	for _, c := range all {
		c.Stop()
	}
	manager.Cleanup(nil)

	log.Info("bye")
}
