// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

// Mute store backends selectable through MUTE_STORE.
const (
	StoreBadger   = "badger"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

var validate = validator.New()

type Config struct {
	Port     int    `envconfig:"PORT" default:"8080" validate:"gte=1,lte=65535"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"required"`

	// MUTE_STORE picks where mute lists live between connections.
	MuteStore      string `envconfig:"MUTE_STORE" default:"badger" validate:"oneof=badger redis postgres memory"`
	BadgerPath     string `envconfig:"BADGER_PATH" default:"mute_lists" validate:"required_if=MuteStore badger"`
	RedisAddr      string `envconfig:"REDIS_ADDR" default:"localhost:6379" validate:"required_if=MuteStore redis"`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0" validate:"gte=0"`
	RedisKeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"mutes:"`
	DatabaseURL    string `envconfig:"DATABASE_URL" validate:"required_if=MuteStore postgres"`

	OutboxSize   int           `envconfig:"OUTBOX_SIZE" default:"32" validate:"gte=1"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"5s" validate:"gt=0"`
	PingInterval time.Duration `envconfig:"PING_INTERVAL" default:"30s" validate:"gt=0"`
	StoreTimeout time.Duration `envconfig:"STORE_TIMEOUT" default:"5s" validate:"gt=0"`
}

// Load reads the process environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Level returns the parsed log level, falling back to info.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
