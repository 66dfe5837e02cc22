package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/echoworld-backend/internal/data/db"
	"github.com/yungbote/echoworld-backend/internal/observability"
	"github.com/yungbote/echoworld-backend/internal/platform/envutil"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
	"github.com/yungbote/echoworld-backend/internal/realtime/bus"
	"github.com/yungbote/echoworld-backend/internal/realtime/presence"
)

const serviceName = "echoworld"

type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

type AuthConfig struct {
	JWTSecretKey string `yaml:"jwt_secret_key"`
	Issuer       string `yaml:"issuer"`
}

type SendConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

type PresenceConfig struct {
	Heartbeat time.Duration `yaml:"heartbeat"`
	TTL       time.Duration `yaml:"ttl"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Addr serves /metrics on its own listener when set, in addition to the API router.
	Addr string `yaml:"addr"`
}

type Config struct {
	Env     string `yaml:"env"`
	Version string `yaml:"version"`
	LogMode string `yaml:"log_mode"`
	Migrate bool   `yaml:"migrate"`

	HTTP     HTTPConfig               `yaml:"http"`
	Auth     AuthConfig               `yaml:"auth"`
	Postgres db.PostgresConfig        `yaml:"postgres"`
	Redis    bus.RedisConfig          `yaml:"redis"`
	Send     SendConfig               `yaml:"send"`
	Presence PresenceConfig           `yaml:"presence"`
	Metrics  MetricsConfig            `yaml:"metrics"`
	Otel     observability.OtelConfig `yaml:"otel"`
}

func defaultConfig() Config {
	return Config{
		Env:     "development",
		Version: "dev",
		LogMode: "development",
		Migrate: true,
		HTTP: HTTPConfig{
			Addr:          ":8080",
			ShutdownGrace: 10 * time.Second,
		},
		Auth: AuthConfig{
			JWTSecretKey: "defaultsecret",
			Issuer:       serviceName,
		},
		Postgres: db.PostgresConfig{
			Host:         "localhost",
			Port:         "5432",
			User:         "postgres",
			Name:         serviceName,
			SSLMode:      "disable",
			MaxOpenConns: 20,
			MaxIdleConns: 10,
		},
		Send: SendConfig{
			RatePerSecond: 5,
			Burst:         10,
		},
		Presence: PresenceConfig{
			Heartbeat: presence.DefaultHeartbeat,
			TTL:       presence.DefaultTTL,
		},
		Metrics: MetricsConfig{Enabled: true},
		Otel:    observability.OtelConfig{SampleRatio: 0.1},
	}
}

// LoadConfig reads .env, then the YAML file named by ECHOWORLD_CONFIG, then environment overrides.
func LoadConfig(log *logger.Logger) (Config, error) {
	_ = godotenv.Load(".env")

	cfg := defaultConfig()
	if path := envutil.String("ECHOWORLD_CONFIG", ""); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
		if log != nil {
			log.Info("Loaded config file", "path", path)
		}
	}
	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if log != nil && cfg.Auth.JWTSecretKey == "defaultsecret" {
		log.Warn("JWT_SECRET_KEY not set; using the development secret")
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("APP_ENV", cfg.Env)
	cfg.Version = envutil.String("APP_VERSION", cfg.Version)
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.Migrate = envutil.Bool("AUTO_MIGRATE", cfg.Migrate)

	cfg.HTTP.Addr = envutil.String("HTTP_ADDR", cfg.HTTP.Addr)
	if raw := envutil.String("CORS_ORIGINS", ""); raw != "" {
		cfg.HTTP.AllowedOrigins = splitList(raw)
	}
	cfg.HTTP.ShutdownGrace = envutil.Duration("SHUTDOWN_GRACE", cfg.HTTP.ShutdownGrace)

	cfg.Auth.JWTSecretKey = envutil.String("JWT_SECRET_KEY", cfg.Auth.JWTSecretKey)
	cfg.Auth.Issuer = envutil.String("JWT_ISSUER", cfg.Auth.Issuer)

	cfg.Postgres.DSN = envutil.String("POSTGRES_DSN", cfg.Postgres.DSN)
	cfg.Postgres.Host = envutil.String("POSTGRES_HOST", cfg.Postgres.Host)
	cfg.Postgres.Port = envutil.String("POSTGRES_PORT", cfg.Postgres.Port)
	cfg.Postgres.User = envutil.String("POSTGRES_USER", cfg.Postgres.User)
	cfg.Postgres.Password = envutil.String("POSTGRES_PASSWORD", cfg.Postgres.Password)
	cfg.Postgres.Name = envutil.String("POSTGRES_NAME", cfg.Postgres.Name)
	cfg.Postgres.SSLMode = envutil.String("POSTGRES_SSLMODE", cfg.Postgres.SSLMode)
	cfg.Postgres.MaxOpenConns = envutil.Int("POSTGRES_MAX_OPEN_CONNS", cfg.Postgres.MaxOpenConns)
	cfg.Postgres.MaxIdleConns = envutil.Int("POSTGRES_MAX_IDLE_CONNS", cfg.Postgres.MaxIdleConns)

	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envutil.String("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envutil.Int("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Channel = envutil.String("REDIS_CHANNEL", cfg.Redis.Channel)

	cfg.Send.RatePerSecond = envutil.Float("SEND_RATE_PER_SEC", cfg.Send.RatePerSecond)
	cfg.Send.Burst = envutil.Int("SEND_RATE_BURST", cfg.Send.Burst)

	cfg.Presence.Heartbeat = envutil.Duration("PRESENCE_HEARTBEAT", cfg.Presence.Heartbeat)
	cfg.Presence.TTL = envutil.Duration("PRESENCE_TTL", cfg.Presence.TTL)

	cfg.Metrics.Enabled = envutil.Bool("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Addr = envutil.String("METRICS_ADDR", cfg.Metrics.Addr)

	cfg.Otel.ServiceName = serviceName
	cfg.Otel.Environment = cfg.Env
	cfg.Otel.Version = cfg.Version
	cfg.Otel = observability.OtelConfigFromEnv(cfg.Otel)
}

func (c Config) validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return fmt.Errorf("http addr required")
	}
	if strings.TrimSpace(c.Auth.JWTSecretKey) == "" {
		return fmt.Errorf("jwt secret required")
	}
	if c.Presence.Heartbeat <= 0 || c.Presence.TTL <= 0 {
		return fmt.Errorf("presence heartbeat and ttl must be positive")
	}
	if c.Presence.TTL <= c.Presence.Heartbeat {
		return fmt.Errorf("presence ttl (%s) must exceed heartbeat (%s)", c.Presence.TTL, c.Presence.Heartbeat)
	}
	if c.Send.RatePerSecond < 0 || c.Send.Burst < 0 {
		return fmt.Errorf("send rate limit must not be negative")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
