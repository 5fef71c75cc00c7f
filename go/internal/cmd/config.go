package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/kiosk/go/internal/menu"
	"github.com/mcdev12/kiosk/go/internal/presence"
)

// Config is the kiosk API server configuration. Values come from an optional
// YAML file and are then overridden by environment variables.
type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
		// GatewayAuth gates the realtime socket and presence routes behind
		// kitchen access
		GatewayAuth bool `yaml:"gateway_auth"`
	} `yaml:"auth"`

	Clock struct {
		Interval time.Duration `yaml:"interval"`
	} `yaml:"clock"`

	Presence struct {
		Room string `yaml:"room"`
	} `yaml:"presence"`

	NATS struct {
		URL     string `yaml:"url"`
		Enabled bool   `yaml:"enabled"`
	} `yaml:"nats"`

	Images menu.ImageStoreConfig `yaml:"images"`
}

func defaultConfig() *Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Auth.TokenTTL = 12 * time.Hour
	cfg.Auth.GatewayAuth = true
	cfg.Clock.Interval = time.Second
	cfg.Presence.Room = presence.DefaultRoom
	cfg.NATS.URL = "nats://localhost:4222"
	cfg.Images.Region = "us-east-1"
	cfg.Images.PresignTTL = 15 * time.Minute
	return &cfg
}

// loadConfig reads path over the defaults. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables
func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.TokenTTL = getEnvAsDuration("TOKEN_TTL", c.Auth.TokenTTL)
	c.Auth.GatewayAuth = getEnvAsBool("GATEWAY_AUTH", c.Auth.GatewayAuth)

	c.Clock.Interval = getEnvAsDuration("CLOCK_INTERVAL", c.Clock.Interval)
	c.Presence.Room = getEnv("PRESENCE_ROOM", c.Presence.Room)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Enabled = getEnvAsBool("NATS_ENABLED", c.NATS.Enabled)

	c.Images.Bucket = getEnv("S3_BUCKET", c.Images.Bucket)
	c.Images.Region = getEnv("S3_REGION", c.Images.Region)
	c.Images.Endpoint = getEnv("S3_ENDPOINT", c.Images.Endpoint)
	c.Images.AccessKeyID = getEnv("S3_ACCESS_KEY_ID", c.Images.AccessKeyID)
	c.Images.SecretAccessKey = getEnv("S3_SECRET_ACCESS_KEY", c.Images.SecretAccessKey)
	c.Images.PublicBaseURL = getEnv("S3_PUBLIC_BASE_URL", c.Images.PublicBaseURL)
	c.Images.UsePathStyle = getEnvAsBool("S3_USE_PATH_STYLE", c.Images.UsePathStyle)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
