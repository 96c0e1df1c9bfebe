package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverFile   = "file"
)

// Config is the process configuration of the autoflow server and CLI.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Engine    EngineConfig    `yaml:"engine"`
	Log       LogConfig       `yaml:"log"`
	Providers ProvidersConfig `yaml:"providers"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxEventBytes   int           `yaml:"max_event_bytes"`
}

type StorageConfig struct {
	Driver         string      `yaml:"driver"`
	Redis          RedisConfig `yaml:"redis"`
	Dir            string      `yaml:"dir"`
	RunLogCapacity int         `yaml:"run_log_capacity"`
	// EncryptionKey enables at-rest encryption of node secrets (32 bytes, hex or raw).
	EncryptionKey string `yaml:"encryption_key"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type SchedulerConfig struct {
	Schedule string `yaml:"schedule"`
}

type EngineConfig struct {
	Cooldown     time.Duration `yaml:"cooldown"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

type ProvidersConfig struct {
	Gemini GeminiConfig `yaml:"gemini"`
	Twilio TwilioConfig `yaml:"twilio"`
	Mail   MailConfig   `yaml:"mail"`
}

type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	From       string `yaml:"from"`
	BaseURL    string `yaml:"base_url"`
}

type MailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	FromName string `yaml:"from_name"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":3000",
			ShutdownTimeout: 10 * time.Second,
			MaxEventBytes:   64 * 1024,
		},
		Storage: StorageConfig{
			Driver:         DriverMemory,
			Redis:          RedisConfig{Addr: "localhost:6379", Prefix: "autoflow:workflow:"},
			Dir:            ".autoflow/workflows",
			RunLogCapacity: 100,
		},
		Scheduler: SchedulerConfig{Schedule: "@every 1m"},
		Engine: EngineConfig{
			Cooldown:     5 * time.Second,
			FetchTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Providers: ProvidersConfig{
			Gemini: GeminiConfig{Model: "gemini-2.5-flash"},
			Mail:   MailConfig{Host: "smtp.gmail.com", Port: 587, FromName: "AutoFlow"},
		},
	}
}

// Load reads a YAML file on top of the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
// Provider credentials keep the variable names used by existing deployments.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("GEMINI_KEY", &c.Providers.Gemini.APIKey)
	str("TWILIO_SID", &c.Providers.Twilio.AccountSID)
	str("TWILIO_AUTH_TOKEN", &c.Providers.Twilio.AuthToken)
	str("TWILIO_PHONE", &c.Providers.Twilio.From)
	str("GMAIL_USER", &c.Providers.Mail.Username)
	str("GMAIL_PASS", &c.Providers.Mail.Password)

	str("AUTOFLOW_ADDR", &c.Server.Addr)
	str("AUTOFLOW_STORAGE", &c.Storage.Driver)
	str("AUTOFLOW_REDIS_ADDR", &c.Storage.Redis.Addr)
	str("AUTOFLOW_REDIS_PASSWORD", &c.Storage.Redis.Password)
	str("AUTOFLOW_STORAGE_DIR", &c.Storage.Dir)
	str("AUTOFLOW_ENCRYPTION_KEY", &c.Storage.EncryptionKey)
	str("AUTOFLOW_SCHEDULE", &c.Scheduler.Schedule)
	str("AUTOFLOW_LOG_LEVEL", &c.Log.Level)
	str("AUTOFLOW_LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("AUTOFLOW_REDIS_DB"); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid AUTOFLOW_REDIS_DB %q: %w", v, err)
		}
		c.Storage.Redis.DB = db
	}
	if v, ok := lookup("AUTOFLOW_COOLDOWN"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid AUTOFLOW_COOLDOWN %q: %w", v, err)
		}
		c.Engine.Cooldown = d
	}
	return nil
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverMemory, DriverRedis, DriverFile:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Storage.Driver == DriverRedis && c.Storage.Redis.Addr == "" {
		errs = append(errs, errors.New("storage.redis.addr is required for the redis driver"))
	}
	if c.Storage.Driver == DriverFile && c.Storage.Dir == "" {
		errs = append(errs, errors.New("storage.dir is required for the file driver"))
	}
	if c.Engine.Cooldown < 0 || c.Engine.FetchTimeout < 0 {
		errs = append(errs, errors.New("engine durations must not be negative"))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
