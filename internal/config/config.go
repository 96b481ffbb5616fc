package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port          int    `envconfig:"PORT" default:"8080"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	DatabaseURL   string `envconfig:"DATABASE_URL" required:"true"`
	Version       string `envconfig:"VERSION" default:"dev"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"true"`

	Argon2Time      uint32 `envconfig:"ARGON2_TIME" default:"1"`
	Argon2MemoryKiB uint32 `envconfig:"ARGON2_MEMORY_KIB" default:"65536"`
	Argon2Threads   uint8  `envconfig:"ARGON2_THREADS" default:"2"`

	// Roles granted to self-registered accounts.
	RegistrationRoleIDs []int `envconfig:"REGISTRATION_ROLE_IDS" default:"2"`

	LoginRateLimit  int           `envconfig:"LOGIN_RATE_LIMIT" default:"10"`
	LoginRateWindow time.Duration `envconfig:"LOGIN_RATE_WINDOW" default:"1m"`

	// Empty RedisAddr keeps rate limiting in process memory.
	RedisAddr     string `envconfig:"REDIS_ADDR" default:""`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Empty S3Bucket disables image uploads.
	S3Endpoint  string `envconfig:"S3_ENDPOINT" default:""`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:""`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY" default:""`
	S3SecretKey string `envconfig:"S3_SECRET_KEY" default:""`

	MaxUploadBytes int64 `envconfig:"MAX_UPLOAD_BYTES" default:"5242880"`
}

// Load reads configuration from environment variables into a Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// S3Enabled reports whether image uploads are configured.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// RedisEnabled reports whether the rate limiter should use Redis.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func (c *Config) validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if c.Argon2Time == 0 {
		errs = append(errs, errors.New("ARGON2_TIME must be positive"))
	}
	if c.Argon2Threads == 0 {
		errs = append(errs, errors.New("ARGON2_THREADS must be positive"))
	}
	if c.LoginRateLimit < 1 {
		errs = append(errs, fmt.Errorf("LOGIN_RATE_LIMIT must be positive: %d", c.LoginRateLimit))
	}
	if c.LoginRateWindow <= 0 {
		errs = append(errs, fmt.Errorf("LOGIN_RATE_WINDOW must be positive: %s", c.LoginRateWindow))
	}
	if c.MaxUploadBytes < 1 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive: %d", c.MaxUploadBytes))
	}
	return errors.Join(errs...)
}
