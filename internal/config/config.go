package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type DBConfig struct {
	Username string
	Password string
	Host     string
	Port     int
	Name     string
	PoolSize int
}

// DSN assembles the postgres connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Username, c.Password, c.Host, c.Port, c.Name)
}

type RedisConfig struct {
	Host string
	Port int
	DB   int

	// TTLs in seconds
	ExpireTime            int
	InGameCacheExpireTime int
	ResultCacheExpireTime int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type AMQPConfig struct {
	User          string
	Password      string
	Host          string
	VHost         string
	PrefetchCount int

	// exchanges
	LobbyNotifyExchange    string
	LobbyCountdownExchange string
	GameKeystrokeExchange  string
	GameCleanupExchange    string
	GameStartExchange      string

	// active queues (consumers attached)
	LobbyNotifyQueue      string
	LobbyCountdownQueue   string
	LobbyCountdownRoutKey string
	GameKeystrokeQueue    string
	GameStartQueue        string
	GameCleanupQueue      string
	GameCleanupRoutKey    string

	// wait queue base names; deadletter policies connect them to the
	// exchanges above. Publish only, no consumers.
	LobbyCountdownWaitQueue string
	GameStartWaitQueue      string
	GameCleanupWaitQueue    string
}

func (c AMQPConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s/%s", c.User, c.Password, c.Host, c.VHost)
}

type GameConfig struct {
	StartCountdown   int // seconds between GAME_START and the playable-now tick
	LobbyCountdown   int // seconds a lobby waits before force-starting
	PlayerLimit      int
	CleanupCountdown int // seconds before a game is archived
	WordFile         string
	WordCount        int
}

type TokenConfig struct {
	PublicKey       string
	PrivateKey      string
	RefreshEndpoint string
	AccessDuration  int // seconds
	RefreshDuration int // seconds
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type Config struct {
	Environment string

	DB     DBConfig
	Redis  RedisConfig
	AMQP   AMQPConfig
	Game   GameConfig
	Token  TokenConfig
	Google GoogleConfig

	Port             string
	CORSAllowOrigins []string
	FrontEndEndpoint string
	ErrorRedirect    string

	// ServerName must be unique per instance; instance-scoped queues are
	// suffixed with it so every instance gets its own copy of fan-out events.
	ServerName string

	PingInterval int // seconds between health-check pings

	// drop keystroke messages whose source header is this instance
	SkipKeystrokeEcho bool
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),

		DB: DBConfig{
			Username: getEnv("DB_USERNAME", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "typephoon"),
			PoolSize: getEnvInt("DB_POOL_SIZE", 5),
		},

		Redis: RedisConfig{
			Host:                  getEnv("REDIS_HOST", "localhost"),
			Port:                  getEnvInt("REDIS_PORT", 6379),
			DB:                    getEnvInt("REDIS_DB", 0),
			ExpireTime:            getEnvInt("REDIS_EXPIRE_TIME", 60),
			InGameCacheExpireTime: getEnvInt("REDIS_IN_GAME_CACHE_EXPIRE_TIME", 60*15),
			ResultCacheExpireTime: getEnvInt("REDIS_RESULT_CACHE_EXPIRE_TIME", 60*15),
		},

		AMQP: AMQPConfig{
			User:          getEnv("AMQP_USER", "guest"),
			Password:      getEnv("AMQP_PASSWORD", "guest"),
			Host:          getEnv("AMQP_HOST", "localhost"),
			VHost:         getEnv("AMQP_VHOST", "typephoon"),
			PrefetchCount: getEnvInt("AMQP_PREFETCH_COUNT", 50),

			LobbyNotifyExchange:    getEnv("AMQP_LOBBY_NOTIFY_EXCHANGE", "lobby.notify"),
			LobbyCountdownExchange: getEnv("AMQP_LOBBY_COUNTDOWN_EXCHANGE", "lobby.countdown"),
			GameKeystrokeExchange:  getEnv("AMQP_GAME_KEYSTROKE_EXCHANGE", "game.keystroke"),
			GameCleanupExchange:    getEnv("AMQP_GAME_CLEANUP_EXCHANGE", "game.cleanup"),
			GameStartExchange:      getEnv("AMQP_GAME_START_EXCHANGE", "game.start"),

			LobbyNotifyQueue:      getEnv("AMQP_LOBBY_NOTIFY_QUEUE", "lobby.notify"),
			LobbyCountdownQueue:   getEnv("AMQP_LOBBY_COUNTDOWN_QUEUE", "lobby.countdown"),
			LobbyCountdownRoutKey: getEnv("AMQP_LOBBY_COUNTDOWN_ROUTING_KEY", "lobby.countdown"),
			GameKeystrokeQueue:    getEnv("AMQP_GAME_KEYSTROKE_QUEUE", "game.keystroke"),
			GameStartQueue:        getEnv("AMQP_GAME_START_QUEUE", "game.start"),
			GameCleanupQueue:      getEnv("AMQP_GAME_CLEANUP_QUEUE", "game.cleanup"),
			GameCleanupRoutKey:    getEnv("AMQP_GAME_CLEANUP_ROUTING_KEY", "game.cleanup"),

			LobbyCountdownWaitQueue: getEnv("AMQP_LOBBY_COUNTDOWN_WAIT_QUEUE", "lobby.countdown.wait"),
			GameStartWaitQueue:      getEnv("AMQP_GAME_START_WAIT_QUEUE", "game.start.wait"),
			GameCleanupWaitQueue:    getEnv("AMQP_GAME_CLEANUP_WAIT_QUEUE", "game.cleanup.wait"),
		},

		Game: GameConfig{
			StartCountdown:   getEnvInt("GAME_START_COUNTDOWN", 5),
			LobbyCountdown:   getEnvInt("GAME_LOBBY_COUNTDOWN", 5),
			PlayerLimit:      getEnvInt("GAME_PLAYER_LIMIT", 5),
			CleanupCountdown: getEnvInt("GAME_CLEANUP_COUNTDOWN", 60*15),
			WordFile:         getEnv("GAME_WORD_FILE", "./data/words.txt"),
			WordCount:        getEnvInt("GAME_WORD_COUNT", 25),
		},

		Token: TokenConfig{
			PublicKey:       getEnv("TOKEN_PUBLIC_KEY", ""),
			PrivateKey:      getEnv("TOKEN_PRIVATE_KEY", ""),
			RefreshEndpoint: getEnv("TOKEN_REFRESH_ENDPOINT", "/api/v1/auth/token-refresh"),
			AccessDuration:  getEnvInt("TOKEN_ACCESS_DURATION", 60*15),
			RefreshDuration: getEnvInt("TOKEN_REFRESH_DURATION", 60*60*24*30),
		},

		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/v1/auth/login-redirect"),
		},

		Port:             getEnv("SERVER_PORT", "8080"),
		CORSAllowOrigins: getEnvList("CORS_ALLOW_ORIGINS", "http://localhost:3000"),
		FrontEndEndpoint: getEnv("FRONT_END_ENDPOINT", "http://localhost:3000"),
		ErrorRedirect:    getEnv("ERROR_REDIRECT", "http://localhost:3000/error"),

		ServerName:   getEnv("SERVER_NAME", defaultServerName()),
		PingInterval: getEnvInt("BG_PING_INTERVAL", 5),

		SkipKeystrokeEcho: getEnvBool("KEYSTROKE_SKIP_SELF_ECHO", false),
	}

	// Fan-out queues must be unique per instance, otherwise a single shared
	// queue would round-robin events instead of copying them to everyone.
	if cfg.ServerName != "" {
		cfg.AMQP.LobbyNotifyQueue = cfg.AMQP.LobbyNotifyQueue + "." + cfg.ServerName
		cfg.AMQP.GameKeystrokeQueue = cfg.AMQP.GameKeystrokeQueue + "." + cfg.ServerName
		cfg.AMQP.GameStartQueue = cfg.AMQP.GameStartQueue + "." + cfg.ServerName
	}

	return cfg
}

func defaultServerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "typephoon-1"
	}
	return host
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
