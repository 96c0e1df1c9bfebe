package cli

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/autoflow"
	"github.com/aretw0/autoflow/internal/config"
	"github.com/aretw0/autoflow/pkg/adapters/file"
	"github.com/aretw0/autoflow/pkg/adapters/memory"
	"github.com/aretw0/autoflow/pkg/adapters/redis"
	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/aretw0/autoflow/pkg/observability"
	"github.com/aretw0/autoflow/pkg/persistence/middleware"
	"github.com/aretw0/autoflow/pkg/ports"
	"github.com/aretw0/autoflow/pkg/providers/gemini"
	"github.com/aretw0/autoflow/pkg/providers/mail"
	"github.com/aretw0/autoflow/pkg/providers/twilio"
	"github.com/prometheus/client_golang/prometheus"
	backend "github.com/redis/go-redis/v9"
)

// Runtime is an engine wired from configuration, plus what the commands need around it.
type Runtime struct {
	Engine  *autoflow.Engine
	Metrics *observability.Metrics
	Logger  *slog.Logger

	closers []func() error
}

// Close releases storage connections. Call it after Engine.Shutdown.
func (r *Runtime) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// NewEngine initializes an AutoFlow engine with standard CLI conventions:
// storage from cfg.Storage (with secret encryption and PII masking),
// providers whose credentials are present, Prometheus metrics and debug hooks.
// extra hooks (the HTTP event stream, for instance) run after the built-in ones.
func NewEngine(cfg *config.Config, logger *slog.Logger, extra ...domain.LifecycleHooks) (*Runtime, error) {
	rt := &Runtime{Logger: logger}

	repo, runLog, err := rt.storage(cfg.Storage)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	rt.Metrics = observability.NewMetrics(prometheus.NewRegistry())
	hooks := append([]domain.LifecycleHooks{observability.LoggingHooks(logger)}, extra...)

	engine, err := autoflow.New(repo,
		autoflow.WithLogger(logger),
		autoflow.WithLifecycleHooks(domain.CombineHooks(hooks...)),
		autoflow.WithProviders(Providers(cfg.Providers, logger)),
		autoflow.WithRunLog(runLog),
		autoflow.WithMetrics(rt.Metrics),
		autoflow.WithSchedule(cfg.Scheduler.Schedule),
		autoflow.WithCooldown(cfg.Engine.Cooldown),
		autoflow.WithFetchTimeout(cfg.Engine.FetchTimeout),
	)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	rt.Engine = engine
	return rt, nil
}

func (rt *Runtime) storage(cfg config.StorageConfig) (ports.WorkflowRepository, ports.RunLog, error) {
	var (
		repo   ports.WorkflowRepository
		runLog ports.RunLog
	)

	switch cfg.Driver {
	case config.DriverRedis:
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, client.Close)

		var opts []redis.Option
		if cfg.Redis.Prefix != "" {
			opts = append(opts, redis.WithPrefix(cfg.Redis.Prefix))
		}
		repo = redis.NewFromClient(client, opts...)
		runLog = redis.NewRunLog(client, cfg.RunLogCapacity)
	case config.DriverFile:
		repo = file.NewRepository(cfg.Dir)
		runLog = memory.NewRunLog(cfg.RunLogCapacity)
	default:
		repo = memory.NewRepository()
		runLog = memory.NewRunLog(cfg.RunLogCapacity)
	}

	if cfg.EncryptionKey != "" {
		key, err := ParseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, nil, err
		}
		encrypt, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return nil, nil, err
		}
		repo = encrypt(repo)
	}

	runLog = middleware.NewPIIMiddleware(middleware.DefaultPIIPatterns)(runLog)
	return repo, runLog, nil
}

// Providers builds the external clients whose credentials are configured.
// A missing client leaves the matching capability failing with a configuration reason.
func Providers(cfg config.ProvidersConfig, logger *slog.Logger) ports.Providers {
	var p ports.Providers

	if cfg.Gemini.APIKey != "" {
		var opts []gemini.Option
		if cfg.Gemini.Model != "" {
			opts = append(opts, gemini.WithModel(cfg.Gemini.Model))
		}
		if cfg.Gemini.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(cfg.Gemini.BaseURL))
		}
		p.Text = gemini.New(cfg.Gemini.APIKey, opts...)
	} else {
		logger.Warn("text generator not configured, transform nodes will fail")
	}

	if cfg.Twilio.AccountSID != "" && cfg.Twilio.AuthToken != "" {
		var opts []twilio.Option
		if cfg.Twilio.BaseURL != "" {
			opts = append(opts, twilio.WithBaseURL(cfg.Twilio.BaseURL))
		}
		p.Message = twilio.New(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From, opts...)
	}

	if cfg.Mail.Username != "" && cfg.Mail.Password != "" {
		p.Mail = mail.New(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.Username, cfg.Mail.Password,
			mail.WithFromName(cfg.Mail.FromName))
	}
	return p
}

// ParseKey accepts a 32 byte key as 64 hex characters or as raw text.
func ParseKey(s string) ([]byte, error) {
	if len(s) == 64 {
		if key, err := hex.DecodeString(s); err == nil {
			return key, nil
		}
	}
	if len(s) == 32 {
		return []byte(s), nil
	}
	return nil, fmt.Errorf("encryption key must be 32 bytes or 64 hex characters, got %d characters", len(s))
}
