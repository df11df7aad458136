// Package config loads service configuration: defaults first, then an
// optional YAML file, then environment variable overrides (EBOOKS_ prefix,
// double underscores mapping to dots: EBOOKS_POSTGRES__HOST -> postgres.host).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar overrides the config file path.
const PathEnvVar = "EBOOKS_CONFIG"

const envPrefix = "EBOOKS_"

type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Postgres    PostgresConfig    `koanf:"postgres"`
	Redis       RedisConfig       `koanf:"redis"`
	AuditLog    AuditLogConfig    `koanf:"auditlog"`
	Auth        AuthConfig        `koanf:"auth"`
	Download    DownloadConfig    `koanf:"download"`
	MercadoPago MercadoPagoConfig `koanf:"mercadopago"`
	Coinbase    CoinbaseConfig    `koanf:"coinbase"`
	Resend      ResendConfig      `koanf:"resend"`
	RateLimit   RateLimitConfig   `koanf:"ratelimit"`
}

type ServerConfig struct {
	Addr      string `koanf:"addr"`
	AppURL    string `koanf:"app_url"`
	StoreName string `koanf:"store_name"`
}

type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"dbname"`
	SSLMode  string `koanf:"sslmode"`
}

type RedisConfig struct {
	Addr string `koanf:"addr"`
}

type AuditLogConfig struct {
	Path string `koanf:"path"`
}

type AuthConfig struct {
	Secret string `koanf:"secret"`
}

type DownloadConfig struct {
	Secret string        `koanf:"secret"`
	TTL    time.Duration `koanf:"ttl"`
}

type MercadoPagoConfig struct {
	AccessToken     string `koanf:"access_token"`
	NotificationURL string `koanf:"notification_url"`
}

type CoinbaseConfig struct {
	APIKey        string `koanf:"api_key"`
	WebhookSecret string `koanf:"webhook_secret"`
	RedirectURL   string `koanf:"redirect_url"`
	CancelURL     string `koanf:"cancel_url"`
}

type ResendConfig struct {
	APIKey string `koanf:"api_key"`
	From   string `koanf:"from"`
}

type RateLimitConfig struct {
	CheckoutRequests int           `koanf:"checkout_requests"`
	CheckoutWindow   time.Duration `koanf:"checkout_window"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      ":8080",
			AppURL:    "http://localhost:8080",
			StoreName: "Fude Kotoba",
		},
		Postgres: PostgresConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "ebooks",
			DBName:  "ebooks",
			SSLMode: "disable",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		AuditLog: AuditLogConfig{
			Path: "./data/activity.db",
		},
		Download: DownloadConfig{
			TTL: 72 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			CheckoutRequests: 5,
			CheckoutWindow:   10 * time.Minute,
		},
	}
}

// Load builds the configuration. A missing config file is not an error;
// missing required secrets are.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	path := os.Getenv(PathEnvVar)
	if path == "" {
		path = "config.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.Secret == "" {
		return fmt.Errorf("config: auth.secret is required")
	}
	if c.Download.Secret == "" {
		return fmt.Errorf("config: download.secret is required")
	}
	return nil
}

// PostgresDSN renders the lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User, c.Postgres.Password, c.Postgres.Host,
		c.Postgres.Port, c.Postgres.DBName, c.Postgres.SSLMode,
	)
}
