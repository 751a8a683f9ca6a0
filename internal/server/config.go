package server

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/flatroom/flat-server-go/internal/core"
)

// Cache drivers.
const (
	CacheDriverNATS  = "nats"
	CacheDriverRedis = "redis"
)

// Config holds server configuration from environment variables.
type Config struct {
	Port     string `env:"FLAT_PORT"      envDefault:"8080"`
	GRPCPort string `env:"FLAT_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"FLAT_LOG_LEVEL" envDefault:"info"`

	NatsURL     string `env:"NATS_URL"          envDefault:"nats://localhost:4222"`
	RedisURL    string `env:"FLAT_REDIS_URL"`
	CacheDriver string `env:"FLAT_CACHE_DRIVER" envDefault:"nats"`
	SQLitePath  string `env:"FLAT_SQLITE_PATH"  envDefault:"data/flat.db"`

	JWTSecret string        `env:"FLAT_JWT_SECRET"`
	JWTIssuer string        `env:"FLAT_JWT_ISSUER" envDefault:"flat-server"`
	JWTTTL    time.Duration `env:"FLAT_JWT_TTL"    envDefault:"696h"`

	WhiteboardBaseURL         string        `env:"FLAT_WHITEBOARD_BASE_URL"          envDefault:"https://api.netless.link"`
	WhiteboardSDKToken        string        `env:"FLAT_WHITEBOARD_SDK_TOKEN"`
	WhiteboardAccessKey       string        `env:"FLAT_WHITEBOARD_ACCESS_KEY"`
	WhiteboardSecretAccessKey string        `env:"FLAT_WHITEBOARD_SECRET_ACCESS_KEY"`
	WhiteboardTaskTokenTTL    time.Duration `env:"FLAT_WHITEBOARD_TASK_TOKEN_TTL"    envDefault:"24h"`
	WhiteboardRegion          string        `env:"FLAT_WHITEBOARD_REGION"            envDefault:"cn-hz"`

	GithubClientID     string `env:"FLAT_GITHUB_CLIENT_ID"`
	GithubClientSecret string `env:"FLAT_GITHUB_CLIENT_SECRET"`
	GithubRedirectURI  string `env:"FLAT_GITHUB_REDIRECT_URI"`

	ReconcileSchedule string        `env:"FLAT_RECONCILE_SCHEDULE" envDefault:"@every 1m"`
	ReconcileAge      time.Duration `env:"FLAT_RECONCILE_AGE"      envDefault:"5m"`
	ReconcileLimit    int           `env:"FLAT_RECONCILE_LIMIT"    envDefault:"100"`

	OTELEndpoint string `env:"FLAT_OTEL_ENDPOINT"`

	ReadTimeout     time.Duration `env:"FLAT_READ_TIMEOUT"     envDefault:"10s"`
	WriteTimeout    time.Duration `env:"FLAT_WRITE_TIMEOUT"    envDefault:"30s"`
	IdleTimeout     time.Duration `env:"FLAT_IDLE_TIMEOUT"     envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"FLAT_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// LoadConfig reads configuration from environment variables and validates it.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that have no usable default.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("FLAT_JWT_SECRET is required"))
	}
	switch c.CacheDriver {
	case CacheDriverNATS:
	case CacheDriverRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("FLAT_REDIS_URL is required when FLAT_CACHE_DRIVER=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown FLAT_CACHE_DRIVER %q", c.CacheDriver))
	}
	if !core.ValidRegion(core.Region(c.WhiteboardRegion)) {
		errs = append(errs, fmt.Errorf("unknown FLAT_WHITEBOARD_REGION %q", c.WhiteboardRegion))
	}
	if c.WhiteboardTaskTokenTTL <= 0 {
		errs = append(errs, errors.New("FLAT_WHITEBOARD_TASK_TOKEN_TTL must be positive"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.ReconcileAge <= 0 {
		errs = append(errs, errors.New("FLAT_RECONCILE_AGE must be positive"))
	}
	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid FLAT_LOG_LEVEL %q", c.LogLevel)
	}
	return level, nil
}
