// Package config reads the server configuration from the environment, with an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/DoyleJ11/dungeon-club/internal/mail"
	"github.com/DoyleJ11/dungeon-club/internal/ws"
)

type Config struct {
	Addr           string        `env:"ADDR" envDefault:":8080"`
	DatabaseDriver string        `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseURL    string        `env:"DATABASE_URL" envDefault:"file:dungeon-club.db?cache=shared"`
	AssetDir       string        `env:"ASSET_DIR" envDefault:"assets"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	JWTSecret      string        `env:"JWT_SECRET,required"`
	TokenTTL       time.Duration `env:"TOKEN_TTL" envDefault:"168h"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownGrace  time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`

	WS   WSConfig    `envPrefix:"WS_"`
	Mail mail.Config `envPrefix:"MAIL_"`
}

type WSConfig struct {
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
	PingInterval    time.Duration `env:"PING_INTERVAL" envDefault:"30s"`
	OutboxSize      int           `env:"OUTBOX_SIZE" envDefault:"64"`
	FramesPerSecond float64       `env:"FRAMES_PER_SECOND" envDefault:"30"`
	FrameBurst      int           `env:"FRAME_BURST" envDefault:"60"`
	ReadLimit       int64         `env:"READ_LIMIT" envDefault:"65536"`
	OriginPatterns  []string      `env:"ORIGIN_PATTERNS" envSeparator:","`
}

func (c WSConfig) Options() ws.Options {
	return ws.Options{
		WriteTimeout:    c.WriteTimeout,
		PingInterval:    c.PingInterval,
		OutboxSize:      c.OutboxSize,
		FramesPerSecond: c.FramesPerSecond,
		FrameBurst:      c.FrameBurst,
		ReadLimit:       c.ReadLimit,
		OriginPatterns:  c.OriginPatterns,
	}
}

// Load reads .env files when present, then the process environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}
	return parse(env.Options{})
}

func parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.MaxUploadBytes <= 0 {
		return Config{}, fmt.Errorf("config.Load: MAX_UPLOAD_BYTES must be positive")
	}
	return cfg, nil
}
