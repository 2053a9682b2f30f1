package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Auth     AuthConfig     `yaml:"auth"`
	Email    EmailConfig    `yaml:"email"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

type JWTConfig struct {
	Secret           string `yaml:"secret"`
	AccessTTLMinutes int    `yaml:"access_ttl_minutes"`
	// AssertionSecret verifies externally issued login assertions
	// (oauth exchange). Empty disables the exchange endpoint.
	AssertionSecret string `yaml:"assertion_secret"`
}

// AuthConfig tunes the account security policy and credential lifetimes.
type AuthConfig struct {
	RefreshTTLDays          int `yaml:"refresh_ttl_days"`
	MaxFailedAttempts       int `yaml:"max_failed_attempts"`
	LockoutSeconds          int `yaml:"lockout_seconds"`
	PasswordHistoryLimit    int `yaml:"password_history_limit"`
	PasscodeTTLMinutes      int `yaml:"passcode_ttl_minutes"`
	PasscodeCooldownSeconds int `yaml:"passcode_cooldown_seconds"`
	AuditRetentionDays      int `yaml:"audit_retention_days"`
}

type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	UseTLS   bool   `yaml:"use_tls"`
}

// RedisConfig enables the async email dispatch queue.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func (c *JWTConfig) AccessTTL() time.Duration {
	return time.Duration(c.AccessTTLMinutes) * time.Minute
}

func (c *AuthConfig) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLDays) * 24 * time.Hour
}

func (c *AuthConfig) LockoutDuration() time.Duration {
	return time.Duration(c.LockoutSeconds) * time.Second
}

func (c *AuthConfig) PasscodeTTL() time.Duration {
	return time.Duration(c.PasscodeTTLMinutes) * time.Minute
}

func (c *AuthConfig) PasscodeCooldown() time.Duration {
	return time.Duration(c.PasscodeCooldownSeconds) * time.Second
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	var cfg *Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg = DefaultConfig()
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		cfg = DefaultConfig()
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.overrideFromEnv()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "backoffice.db",
		},
		JWT: JWTConfig{
			Secret:           "backoffice-secret-key-change-in-production",
			AccessTTLMinutes: 15,
		},
		Auth: AuthConfig{
			RefreshTTLDays:          7,
			MaxFailedAttempts:       5,
			LockoutSeconds:          1800,
			PasswordHistoryLimit:    5,
			PasscodeTTLMinutes:      5,
			PasscodeCooldownSeconds: 60,
			AuditRetentionDays:      90,
		},
		Email: EmailConfig{
			Enabled: false,
			Port:    587,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if secret := os.Getenv("ASSERTION_SECRET"); secret != "" {
		c.JWT.AssertionSecret = secret
	}
	if v := os.Getenv("ACCESS_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.JWT.AccessTTLMinutes = n
		}
	}
	if v := os.Getenv("REFRESH_TTL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Auth.RefreshTTLDays = n
		}
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Enabled = true
		c.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		c.Redis.Password = pw
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}
