package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config defines the Electra backend configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"ELECTRA_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN string `yaml:"dsn" env:"ELECTRA_DATABASE_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"ELECTRA_REDIS_ADDR"`
		Password string `yaml:"password" env:"ELECTRA_REDIS_PASSWORD"`
	} `yaml:"redis"`
	JWT struct {
		Secret        string `yaml:"secret" env:"ELECTRA_JWT_SECRET"`
		ExpiryMinutes int    `yaml:"expiryMinutes" env:"ELECTRA_JWT_EXPIRY_MINUTES"`
	} `yaml:"jwt"`
	Assets struct {
		Dir     string `yaml:"dir" env:"ELECTRA_ASSETS_DIR"`
		BaseURL string `yaml:"baseUrl" env:"ELECTRA_ASSETS_BASE_URL"`
	} `yaml:"assets"`
	Payments struct {
		ExpiryMinutes int `yaml:"expiryMinutes" env:"ELECTRA_PAYMENT_EXPIRY_MINUTES"`
	} `yaml:"payments"`
}

// Load reads configuration from YAML file and environment.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8080"
	cfg.JWT.ExpiryMinutes = 60
	cfg.Assets.Dir = "./uploads"
	cfg.Assets.BaseURL = "/assets"
	cfg.Payments.ExpiryMinutes = 15

	if err := load(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return nil, errors.New("config: jwt secret required")
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	return cfg, nil
}

// HTTPAddress returns the :port listen address.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// JWTExpiry returns the access-token lifetime.
func (c *Config) JWTExpiry() time.Duration {
	if c.JWT.ExpiryMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.JWT.ExpiryMinutes) * time.Minute
}

// PaymentExpiry returns how long initiated/pending payments stay fresh.
func (c *Config) PaymentExpiry() time.Duration {
	if c.Payments.ExpiryMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Payments.ExpiryMinutes) * time.Minute
}
