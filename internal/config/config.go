package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	JWTSecret              string
	JWTRefreshSecret       string
	ChatChannel            string
	ChatHistoryLimit       int
	ConnectionMaxRetries   int
	ConnectionRetryWait    time.Duration
	MessagesPerMinute      int
	AIProvider             string
	AIModel                string
	OpenAIAPIKey           string
	StudyGuideCacheTTL     time.Duration
	NotificationsKeepAlive time.Duration
	ShutdownTimeout        time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("LINGUA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "LinguaHub API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("chat.channel", "linguahub")
	v.SetDefault("chat.history_limit", 50)
	v.SetDefault("connections.max_retries", 3)
	v.SetDefault("connections.retry_wait", "500ms")
	v.SetDefault("ratelimit.messages_per_minute", 60)
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("study_guide.cache_ttl", "24h")
	v.SetDefault("notifications.keepalive", "30s")
	v.SetDefault("shutdown.timeout", "5s")

	retryWait, err := parseDuration(v, "connections.retry_wait")
	if err != nil {
		return Config{}, err
	}
	guideTTL, err := parseDuration(v, "study_guide.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	keepAlive, err := parseDuration(v, "notifications.keepalive")
	if err != nil {
		return Config{}, err
	}
	shutdownTimeout, err := parseDuration(v, "shutdown.timeout")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		JWTSecret:              v.GetString("jwt.secret"),
		JWTRefreshSecret:       v.GetString("jwt.refresh_secret"),
		ChatChannel:            v.GetString("chat.channel"),
		ChatHistoryLimit:       v.GetInt("chat.history_limit"),
		ConnectionMaxRetries:   v.GetInt("connections.max_retries"),
		ConnectionRetryWait:    retryWait,
		MessagesPerMinute:      v.GetInt("ratelimit.messages_per_minute"),
		AIProvider:             strings.ToLower(v.GetString("ai.provider")),
		AIModel:                v.GetString("ai.model"),
		OpenAIAPIKey:           v.GetString("openai_api_key"),
		StudyGuideCacheTTL:     guideTTL,
		NotificationsKeepAlive: keepAlive,
		ShutdownTimeout:        shutdownTimeout,
	}

	if cfg.JWTSecret == "" || cfg.JWTRefreshSecret == "" {
		return Config{}, fmt.Errorf("jwt secrets must be provided")
	}

	if cfg.ChatHistoryLimit <= 0 || cfg.ChatHistoryLimit > 100 {
		cfg.ChatHistoryLimit = 50
	}

	if cfg.ConnectionMaxRetries < 0 {
		cfg.ConnectionMaxRetries = 0
	}

	if cfg.MessagesPerMinute <= 0 {
		cfg.MessagesPerMinute = 60
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return duration, nil
}
