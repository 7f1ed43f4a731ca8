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
	AppName          string
	AppEnv           string
	AppPort          string
	DatabaseURL      string
	RedisURL         string
	NatsURL          string
	JWTSecret        string
	EventChannelBase string
	ArchiveTTL       time.Duration
	ReportRateMax    int
	ReportRateWindow time.Duration
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
	v.SetEnvPrefix("SERVINEO")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Servineo API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("events.channel_base", "servineo")
	v.SetDefault("archive.ttl", "720h")
	v.SetDefault("report.rate_max", 5)
	v.SetDefault("report.rate_window", "1m")

	archiveTTL, err := time.ParseDuration(v.GetString("archive.ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid archive ttl: %w", err)
	}

	rateWindow, err := time.ParseDuration(v.GetString("report.rate_window"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid report rate window: %w", err)
	}

	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		DatabaseURL:      v.GetString("database.url"),
		RedisURL:         v.GetString("redis.url"),
		NatsURL:          v.GetString("nats.url"),
		JWTSecret:        v.GetString("jwt.secret"),
		EventChannelBase: v.GetString("events.channel_base"),
		ArchiveTTL:       archiveTTL,
		ReportRateMax:    v.GetInt("report.rate_max"),
		ReportRateWindow: rateWindow,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.ReportRateMax <= 0 {
		cfg.ReportRateMax = 5
	}

	return cfg, nil
}
