package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/amishk599/autoapply/internal/adapter"
	"github.com/amishk599/autoapply/internal/ai"
	"github.com/amishk599/autoapply/internal/config"
	"github.com/amishk599/autoapply/internal/dedupe"
	"github.com/amishk599/autoapply/internal/model"
	"github.com/amishk599/autoapply/internal/quota"
	"github.com/amishk599/autoapply/internal/ranker"
	"github.com/amishk599/autoapply/internal/ratelimit"
	"github.com/amishk599/autoapply/internal/retry"
	"github.com/amishk599/autoapply/internal/scheduler"
	"github.com/amishk599/autoapply/internal/store"
	"github.com/amishk599/autoapply/internal/submit"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "autoapply",
	Short: "Autonomous job application orchestrator",
	Long:  "AutoApply discovers job postings, ranks them against each user's profile and submits applications within daily and hourly quotas.",
	// Default to `start` so that `autoapply` with no args runs the daemon.
	RunE:         runStart,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: "+config.EnvConfigPath+" env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
func loadConfig(path string) (*config.Config, error) {
	return config.Load(config.ResolvePath(path))
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// services holds everything a command needs and what must be closed after.
type services struct {
	orch  *scheduler.Orchestrator
	store model.Store
	redis *redis.Client
}

func (s *services) close(logger *slog.Logger) {
	if err := s.store.Close(); err != nil {
		logger.Error("failed to close store", "error", err)
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			logger.Error("failed to close redis", "error", err)
		}
	}
}

// buildServices wires sources, text generation, storage, quota and the
// orchestrator from cfg, and registers every configured user.
func buildServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*services, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	sources := buildSources(cfg, httpClient, logger)
	if len(sources) == 0 {
		return nil, fmt.Errorf("no job sources enabled")
	}

	gen, err := setupGenerator(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	svc := &services{store: st}

	opts := []quota.Option{quota.WithLocation(time.Local)}
	if cfg.Quota.RedisURL != "" {
		client, err := quota.NewRedisClient(ctx, cfg.Quota.RedisURL)
		if err != nil {
			svc.close(logger)
			return nil, err
		}
		svc.redis = client
		opts = append(opts, quota.WithLocker(quota.NewRedisLocker(client, cfg.Quota.LockTTL)))
		logger.Info("quota lock enabled", "backend", "redis", "ttl", cfg.Quota.LockTTL.String())
	}
	tracker := quota.NewTracker(st, quota.Limits{
		MaxPerDay:  cfg.Limits.MaxJobsPerDay,
		MaxPerHour: cfg.Limits.MaxApplicationsPerHour,
	}, logger, opts...)

	submitClient := &http.Client{Timeout: cfg.Submission.Timeout}
	channels, err := submit.NewFactory(cfg.Submission.Type, cfg.Submission.BaseURL, submitClient, logger)
	if err != nil {
		svc.close(logger)
		return nil, err
	}

	orch, err := scheduler.New(cfg.SchedulerConfig(), scheduler.Deps{
		Sources:  sources,
		Dedupe:   dedupe.New(cfg.Discovery.NormalizeKeys),
		Ranker:   ranker.New(gen, logger),
		Quota:    tracker,
		Store:    st,
		Channels: channels,
		Logger:   logger,
	})
	if err != nil {
		svc.close(logger)
		return nil, err
	}
	svc.orch = orch

	for _, u := range cfg.Users {
		if err := orch.AddUser(u); err != nil {
			orch.Close()
			svc.close(logger)
			return nil, fmt.Errorf("register user %s: %w", u.UserID, err)
		}
	}
	return svc, nil
}

// buildSources creates one JobSource per enabled board. Each is rate limited
// per backend and retried on transient failures; retries go back through the
// limiter.
func buildSources(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) []model.JobSource {
	limiter := ratelimit.NewBackendLimiter(cfg.RateLimit.MinDelay, cfg.RateLimit.SourceOverrides)
	policy := retry.Policy{MaxRetries: cfg.Retry.MaxRetries, BaseDelay: cfg.Retry.BaseDelay}
	logger.Info("source rate limit", "min_delay", cfg.RateLimit.MinDelay.String(), "overrides", len(cfg.RateLimit.SourceOverrides))

	var sources []model.JobSource
	add := func(backend model.Source, src model.JobSource) {
		limited := ratelimit.NewSource(src, limiter, string(backend))
		sources = append(sources, retry.NewSource(limited, policy, logger))
		logger.Info("registered source", "source", src.Name())
	}

	s := cfg.Sources
	if s.Adzuna.Enabled {
		add(model.SourceAdzuna, adapter.NewAdzunaAdapter(s.Adzuna.AppID, s.Adzuna.AppKey, s.Adzuna.Country, httpClient))
	}
	if s.RemoteOK.Enabled {
		add(model.SourceRemoteOK, adapter.NewRemoteOKAdapter(httpClient))
	}
	for _, b := range s.Greenhouse {
		if b.Enabled {
			add(model.SourceGreenhouse, adapter.NewGreenhouseAdapter(b.Token, b.Company, httpClient))
		}
	}
	for _, b := range s.Lever {
		if b.Enabled {
			add(model.SourceLever, adapter.NewLeverAdapter(b.Token, b.Company, httpClient))
		}
	}
	return sources
}

// setupGenerator returns nil when AI is disabled; the ranker then uses its
// deterministic fallbacks.
func setupGenerator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (model.TextGenerator, error) {
	if !cfg.AI.Enabled {
		logger.Info("text generation disabled, using fallback scoring")
		return nil, nil
	}

	var provider ai.LLMProvider
	switch cfg.AI.Provider {
	case "gemini":
		p, err := ai.NewGeminiProvider(ctx, cfg.AI.APIKey, cfg.AI.Model)
		if err != nil {
			return nil, fmt.Errorf("gemini provider: %w", err)
		}
		provider = p
	default:
		provider = ai.NewOpenAIProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, &http.Client{Timeout: cfg.AI.Timeout})
	}
	if cfg.AI.RequestsPerMinute > 0 {
		provider = ai.NewRateLimitedProvider(provider, cfg.AI.RequestsPerMinute)
	}

	logger.Info("text generation enabled", "provider", cfg.AI.Provider, "model", cfg.AI.Model)
	return ai.NewLLMTextGenerator(provider), nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (model.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.DSN)
	case "none":
		return store.NewNopStore(), nil
	default:
		return store.NewSQLiteStore(cfg.Path)
	}
}
