package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"task_tracker/internal/logger"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type Config struct {
	AppPort     string
	DatabaseURL string
	DevMode     bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// InstanceID scopes presence keys to this process
	InstanceID  string
	PresenceTTL time.Duration

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	BotToken    string // пустой токен отключает доставку в Telegram
	BotUsername string
	BotEntryURL string

	LinkTokenTTL        time.Duration
	LinkConfirmCooldown time.Duration

	SweepInterval     time.Duration
	NotifySendTimeout time.Duration

	AllowedOrigin string
	LogLevel      string
	LogJSON       bool

	// Rate limits
	APIRateLimit       int
	APIRateWindow      time.Duration
	MutationRateLimit  int
	MutationRateWindow time.Duration
}

// BotConfig настройки отдельного процесса бота привязки.
type BotConfig struct {
	BotToken     string
	ConfirmURL   string
	RequestLimit time.Duration
	LogLevel     string
	LogJSON      bool
}

// Загрузка конфига из env
func Load() *Config {
	_ = godotenv.Load()

	devMode := os.Getenv("DEV_MODE") == "true"

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" && !devMode {
		logger.Fatal("DATABASE_URL is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	return &Config{
		AppPort:     port,
		DatabaseURL: dbURL,
		DevMode:     devMode,

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       intEnv("REDIS_DB", 0),

		InstanceID:  instanceID,
		PresenceTTL: secondsEnv("PRESENCE_TTL_SECONDS", 90*time.Second),

		JWTSecret:       jwtSecret,
		AccessTokenTTL:  secondsEnv("ACCESS_TOKEN_TTL_SECONDS", 30*time.Minute),
		RefreshTokenTTL: secondsEnv("REFRESH_TOKEN_TTL_SECONDS", 7*24*time.Hour),

		BotToken:    os.Getenv("BOT_TOKEN"),
		BotUsername: os.Getenv("BOT_USERNAME"),
		BotEntryURL: strings.TrimRight(os.Getenv("BOT_ENTRY_URL"), "/"),

		LinkTokenTTL:        secondsEnv("LINK_TOKEN_TTL_SECONDS", 10*time.Minute),
		LinkConfirmCooldown: secondsEnv("LINK_CONFIRM_COOLDOWN_SECONDS", 10*time.Second),

		SweepInterval:     secondsEnv("SWEEP_INTERVAL_SECONDS", 5*time.Minute),
		NotifySendTimeout: secondsEnv("NOTIFY_SEND_TIMEOUT_SECONDS", 15*time.Second),

		AllowedOrigin: os.Getenv("ALLOWED_ORIGIN"),
		LogLevel:      logLevel,
		LogJSON:       os.Getenv("LOG_JSON") == "true",

		APIRateLimit:       intEnv("API_RATE_LIMIT", 120),
		APIRateWindow:      secondsEnv("API_RATE_WINDOW_SECONDS", time.Minute),
		MutationRateLimit:  intEnv("MUTATION_RATE_LIMIT", 60),
		MutationRateWindow: secondsEnv("MUTATION_RATE_WINDOW_SECONDS", time.Minute),
	}
}

const defaultBotUsername = "TaskTrackerBot"

// EntryURL is the deep-link base for account linking. BOT_ENTRY_URL wins, then
// BOT_USERNAME, then the username the Bot API reported for BOT_TOKEN.
func (c *Config) EntryURL(authorizedBot string) string {
	if c.BotEntryURL != "" {
		return c.BotEntryURL
	}
	name := c.BotUsername
	if name == "" {
		name = authorizedBot
	}
	if name == "" {
		name = defaultBotUsername
	}
	return "https://t.me/" + name
}

// LoadBot загружает конфиг бота привязки аккаунтов.
func LoadBot() *BotConfig {
	_ = godotenv.Load()

	botToken := os.Getenv("BOT_TOKEN")
	if botToken == "" {
		logger.Fatal("BOT_TOKEN is not set")
	}

	confirmURL := strings.TrimRight(os.Getenv("API_CONFIRM_URL"), "/")
	if confirmURL == "" {
		confirmURL = "http://127.0.0.1:8080/api/v1/auth/telegram/confirm"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return &BotConfig{
		BotToken:     botToken,
		ConfirmURL:   confirmURL,
		RequestLimit: secondsEnv("API_CONFIRM_TIMEOUT_SECONDS", 10*time.Second),
		LogLevel:     logLevel,
		LogJSON:      os.Getenv("LOG_JSON") == "true",
	}
}

func intEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

// secondsEnv читает длительность в секундах; неположительные значения игнорируются.
func secondsEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
