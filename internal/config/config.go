package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultJWTSecret signs sessions when JWT_SECRET is unset. Only an explicit
// APP_ENV=production refuses it.
const DefaultJWTSecret = "insecure-default-session-secret"

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env string `yaml:"env" env:"APP_ENV"`

	Server struct {
		Port           string `yaml:"port" env:"PORT"`
		HealthGRPCPort string `yaml:"health_grpc_port" env:"HEALTH_GRPC_PORT"`
		TrustedProxies string `yaml:"trusted_proxies" env:"TRUSTED_PROXIES"`
	} `yaml:"server"`

	Database struct {
		URL             string        `yaml:"url" env:"DATABASE_URL"`
		Driver          string        `yaml:"driver" env:"DB_DRIVER"`
		MaxConns        int           `yaml:"max_conns" env:"DB_MAX_CONNS"`
		AcquireTimeout  time.Duration `yaml:"acquire_timeout" env:"DB_ACQUIRE_TIMEOUT"`
		IdleTimeout     time.Duration `yaml:"idle_timeout" env:"DB_IDLE_TIMEOUT"`
		ConnectAttempts int           `yaml:"connect_attempts" env:"DB_CONNECT_ATTEMPTS"`
		ConnectDelay    time.Duration `yaml:"connect_delay" env:"DB_CONNECT_DELAY"`
		ReconnectDelay  time.Duration `yaml:"reconnect_delay" env:"DB_RECONNECT_DELAY"`
	} `yaml:"database"`

	Auth struct {
		AdminToken       string        `yaml:"admin_token" env:"ADMIN_TOKEN"`
		JWTSecret        string        `yaml:"jwt_secret" env:"JWT_SECRET"`
		SessionTTL       time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`
		BcryptCost       int           `yaml:"bcrypt_cost" env:"BCRYPT_COST"`
		LockoutThreshold int           `yaml:"lockout_threshold" env:"LOGIN_LOCKOUT_THRESHOLD"`
	} `yaml:"auth"`

	Appointments struct {
		AdminEditTerminal bool   `yaml:"admin_edit_terminal" env:"ADMIN_EDIT_TERMINAL"`
		Timezone          string `yaml:"timezone" env:"TIMEZONE"`
	} `yaml:"appointments"`

	RateLimit struct {
		Window   time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW"`
		Max      int           `yaml:"max" env:"RATE_LIMIT_MAX"`
		RedisURL string        `yaml:"redis_url" env:"REDIS_URL"`
	} `yaml:"rate_limit"`

	Log struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Pretty bool   `yaml:"pretty" env:"LOG_PRETTY"`
	} `yaml:"log"`

	Seed struct {
		Username string `yaml:"username" env:"SEED_USERNAME"`
		Password string `yaml:"password" env:"SEED_PASSWORD"`
	} `yaml:"seed"`

	defaultSecret bool
}

// Load layers defaults, the optional YAML file at path, .env and the process
// environment, in that order. An empty path falls back to CONFIG_FILE, then
// config.yaml if it exists.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	setDefaults(cfg)

	if path == "" {
		path = env("CONFIG_FILE", "config.yaml")
	}
	if raw, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		cfg.Auth.JWTSecret = DefaultJWTSecret
		cfg.defaultSecret = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// APP_ENV has no default. Unset means neither development (no error detail in
// responses) nor production (default secret allowed).
func setDefaults(c *Config) {
	c.Server.Port = "3000"

	c.Database.Driver = "pgx"
	c.Database.MaxConns = 20
	c.Database.AcquireTimeout = 5 * time.Second
	c.Database.IdleTimeout = 30 * time.Second
	c.Database.ConnectAttempts = 5
	c.Database.ConnectDelay = 5 * time.Second
	c.Database.ReconnectDelay = 5 * time.Second

	c.Auth.SessionTTL = 24 * time.Hour
	c.Auth.BcryptCost = 12

	c.Appointments.AdminEditTerminal = true
	c.Appointments.Timezone = "UTC"

	c.RateLimit.Window = 15 * time.Minute
	c.RateLimit.Max = 100

	c.Log.Level = "info"
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	switch c.Database.Driver {
	case "pgx", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Database.MaxConns <= 0 {
		return errors.New("DB_MAX_CONNS must be positive")
	}
	if c.Database.ConnectAttempts <= 0 {
		return errors.New("DB_CONNECT_ATTEMPTS must be positive")
	}
	if c.defaultSecret && c.Env == EnvProduction {
		return errors.New("JWT_SECRET is required in production")
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit window and max must be positive")
	}
	if c.Auth.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if _, err := time.LoadLocation(c.Appointments.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}
	return nil
}

// Development reports whether error details may be shown to clients.
func (c *Config) Development() bool { return c.Env == EnvDevelopment }

// DefaultSecretInUse reports whether sessions are signed with DefaultJWTSecret.
func (c *Config) DefaultSecretInUse() bool { return c.defaultSecret }

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Appointments.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) Proxies() []string {
	var out []string
	for _, p := range strings.Split(c.Server.TrustedProxies, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
