package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/amishk599/autoapply/internal/cycle"
	"github.com/amishk599/autoapply/internal/model"
	"github.com/amishk599/autoapply/internal/scheduler"
)

// EnvConfigPath names the environment variable that overrides the default
// config location.
const EnvConfigPath = "AUTOAPPLY_CONFIG"

const (
	defaultConfigPath    = "config.yaml"
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultGeminiModel   = "gemini-2.0-flash"
)

// Config is the root configuration for the application orchestrator.
type Config struct {
	Limits     LimitsConfig
	Schedule   ScheduleConfig
	Discovery  DiscoveryConfig
	Sources    SourcesConfig
	RateLimit  RateLimitConfig
	Retry      RetryConfig
	AI         AIConfig
	Submission SubmissionConfig
	Storage    StorageConfig
	Quota      QuotaConfig
	API        APIConfig
	Users      []model.UserRegistration
}

// LimitsConfig holds the quota ceilings and submission pacing.
type LimitsConfig struct {
	MaxJobsPerDay          int
	MaxApplicationsPerHour int
	MinMatchScore          float64
	DelayMin               time.Duration
	DelayMax               time.Duration
}

// ScheduleConfig controls when cycles are triggered.
type ScheduleConfig struct {
	DailyTimes        []string // "HH:MM" local time
	DiscoveryInterval time.Duration
	Maintenance       string // standard 5-field cron expression
	PollInterval      time.Duration
}

// DiscoveryConfig controls fetching and deduplication.
type DiscoveryConfig struct {
	Location       string
	LimitPerSource int
	NormalizeKeys  bool
	BacklogSize    int
}

// SourcesConfig lists the job boards to search.
type SourcesConfig struct {
	Adzuna     AdzunaConfig  `yaml:"adzuna"`
	RemoteOK   ToggleConfig  `yaml:"remoteok"`
	Greenhouse []BoardConfig `yaml:"greenhouse"`
	Lever      []BoardConfig `yaml:"lever"`
}

// AdzunaConfig holds Adzuna API credentials.
type AdzunaConfig struct {
	Enabled bool   `yaml:"enabled"`
	AppID   string `yaml:"app_id"`
	AppKey  string `yaml:"app_key"`
	Country string `yaml:"country"` // defaults to "us"
}

// ToggleConfig is a source with no settings beyond on/off.
type ToggleConfig struct {
	Enabled bool `yaml:"enabled"`
}

// BoardConfig describes one company board on a hosted ATS.
type BoardConfig struct {
	Company string `yaml:"company"`
	Token   string `yaml:"token"` // Greenhouse board token or Lever company slug
	Enabled bool   `yaml:"enabled"`
}

// EnabledCount returns how many sources are switched on.
func (s SourcesConfig) EnabledCount() int {
	n := 0
	if s.Adzuna.Enabled {
		n++
	}
	if s.RemoteOK.Enabled {
		n++
	}
	for _, b := range s.Greenhouse {
		if b.Enabled {
			n++
		}
	}
	for _, b := range s.Lever {
		if b.Enabled {
			n++
		}
	}
	return n
}

// RateLimitConfig controls per-backend request spacing.
type RateLimitConfig struct {
	MinDelay        time.Duration            // minimum gap between requests to the same backend
	SourceOverrides map[string]time.Duration // per-backend overrides, keyed by source name
}

// RetryConfig controls retries of transient source failures.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// AIConfig controls the optional text generation service.
type AIConfig struct {
	Enabled           bool
	Provider          string // "openai" or "gemini"
	BaseURL           string // OpenAI-compatible endpoint
	Model             string
	APIKey            string // expanded from env var by Load
	Timeout           time.Duration
	RequestsPerMinute int
}

// SubmissionConfig selects the submission channel.
type SubmissionConfig struct {
	Type    string // "log" or "http"
	BaseURL string
	Timeout time.Duration
}

// StorageConfig selects the durable store.
type StorageConfig struct {
	Driver string // "sqlite", "postgres" or "none"
	Path   string
	DSN    string
}

// QuotaConfig configures the optional cross-process quota lock.
type QuotaConfig struct {
	RedisURL string
	LockTTL  time.Duration
}

// APIConfig configures the HTTP control surface. Empty Listen disables it.
type APIConfig struct {
	Listen string
}

// SchedulerConfig converts the schedule and limits into orchestrator settings.
func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		DailyTimes:        c.Schedule.DailyTimes,
		DiscoveryInterval: c.Schedule.DiscoveryInterval,
		Maintenance:       c.Schedule.Maintenance,
		PollInterval:      c.Schedule.PollInterval,
		Cycle: cycle.Config{
			MinMatchScore:  c.Limits.MinMatchScore,
			DelayMin:       c.Limits.DelayMin,
			DelayMax:       c.Limits.DelayMax,
			Location:       c.Discovery.Location,
			LimitPerSource: c.Discovery.LimitPerSource,
			BacklogSize:    c.Discovery.BacklogSize,
		},
	}
}

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as strings).
type rawConfig struct {
	Limits     rawLimitsConfig     `yaml:"limits"`
	Schedule   rawScheduleConfig   `yaml:"schedule"`
	Discovery  rawDiscoveryConfig  `yaml:"discovery"`
	Sources    SourcesConfig       `yaml:"sources"`
	RateLimit  rawRateLimitConfig  `yaml:"rate_limit"`
	Retry      rawRetryConfig      `yaml:"retry"`
	AI         rawAIConfig         `yaml:"ai"`
	Submission rawSubmissionConfig `yaml:"submission"`
	Storage    rawStorageConfig    `yaml:"storage"`
	Quota      rawQuotaConfig      `yaml:"quota"`
	API        rawAPIConfig        `yaml:"api"`
	Users      []rawUser           `yaml:"users"`
}

type rawLimitsConfig struct {
	MaxJobsPerDay          *int     `yaml:"max_jobs_per_day"`
	MaxApplicationsPerHour *int     `yaml:"max_applications_per_hour"`
	MinMatchScore          *float64 `yaml:"min_match_score"`
	DelayMin               string   `yaml:"application_delay_min"`
	DelayMax               string   `yaml:"application_delay_max"`
}

type rawScheduleConfig struct {
	DailyTimes        []string `yaml:"daily_times"`
	DiscoveryInterval string   `yaml:"discovery_interval"`
	Maintenance       *string  `yaml:"maintenance"`
	PollInterval      string   `yaml:"poll_interval"`
}

type rawDiscoveryConfig struct {
	Location       string `yaml:"location"`
	LimitPerSource int    `yaml:"limit_per_source"`
	NormalizeKeys  *bool  `yaml:"normalize_keys"`
	BacklogSize    int    `yaml:"backlog_size"`
}

type rawRateLimitConfig struct {
	MinDelay        string            `yaml:"min_delay"`
	SourceOverrides map[string]string `yaml:"source_overrides"`
}

type rawRetryConfig struct {
	MaxRetries *int   `yaml:"max_retries"`
	BaseDelay  string `yaml:"base_delay"`
}

type rawAIConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Provider          string `yaml:"provider"`
	BaseURL           string `yaml:"base_url"`
	Model             string `yaml:"model"`
	APIKey            string `yaml:"api_key"`
	Timeout           string `yaml:"timeout"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

type rawSubmissionConfig struct {
	Type    string `yaml:"type"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

type rawStorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type rawQuotaConfig struct {
	RedisURL string `yaml:"redis_url"`
	LockTTL  string `yaml:"lock_ttl"`
}

type rawAPIConfig struct {
	Listen string `yaml:"listen"`
}

type rawUser struct {
	UserID        string            `yaml:"user_id"`
	AuthToken     string            `yaml:"auth_token"`
	SearchQueries []string          `yaml:"search_queries"`
	Location      string            `yaml:"location"`
	Profile       model.UserProfile `yaml:"profile"`
}

// ResolvePath picks the config file: an explicit flag value wins, then the
// AUTOAPPLY_CONFIG environment variable, then ./config.yaml.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return defaultConfigPath
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
// A .env file next to the config is loaded first so ${VAR} references can use it;
// variables already set in the environment win.
func Load(path string) (*Config, error) {
	dotenv := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(dotenv); err == nil {
		if err := godotenv.Load(dotenv); err != nil {
			return nil, fmt.Errorf("load %s: %w", dotenv, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes, applying defaults and validation.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	d := durationParser{}
	cfg := &Config{
		Limits: LimitsConfig{
			MaxJobsPerDay:          intOr(raw.Limits.MaxJobsPerDay, 100),
			MaxApplicationsPerHour: intOr(raw.Limits.MaxApplicationsPerHour, 10),
			MinMatchScore:          0.7,
			DelayMin:               d.parse("limits.application_delay_min", raw.Limits.DelayMin, 30*time.Second),
			DelayMax:               d.parse("limits.application_delay_max", raw.Limits.DelayMax, 120*time.Second),
		},
		Schedule: ScheduleConfig{
			DailyTimes:        raw.Schedule.DailyTimes,
			DiscoveryInterval: d.parse("schedule.discovery_interval", raw.Schedule.DiscoveryInterval, time.Hour),
			Maintenance:       "0 10 * * MON",
			PollInterval:      d.parse("schedule.poll_interval", raw.Schedule.PollInterval, time.Minute),
		},
		Discovery: DiscoveryConfig{
			Location:       orDefault(raw.Discovery.Location, "Remote"),
			LimitPerSource: raw.Discovery.LimitPerSource,
			NormalizeKeys:  true,
			BacklogSize:    raw.Discovery.BacklogSize,
		},
		Sources: raw.Sources,
		RateLimit: RateLimitConfig{
			MinDelay:        d.parse("rate_limit.min_delay", raw.RateLimit.MinDelay, 2*time.Second),
			SourceOverrides: make(map[string]time.Duration),
		},
		Retry: RetryConfig{
			MaxRetries: intOr(raw.Retry.MaxRetries, 3),
			BaseDelay:  d.parse("retry.base_delay", raw.Retry.BaseDelay, 2*time.Second),
		},
		AI: AIConfig{
			Enabled:           raw.AI.Enabled,
			Provider:          orDefault(raw.AI.Provider, "openai"),
			BaseURL:           orDefault(raw.AI.BaseURL, defaultOpenAIBaseURL),
			Model:             raw.AI.Model,
			APIKey:            raw.AI.APIKey,
			Timeout:           d.parse("ai.timeout", raw.AI.Timeout, 30*time.Second),
			RequestsPerMinute: raw.AI.RequestsPerMinute,
		},
		Submission: SubmissionConfig{
			Type:    orDefault(raw.Submission.Type, "log"),
			BaseURL: raw.Submission.BaseURL,
			Timeout: d.parse("submission.timeout", raw.Submission.Timeout, 30*time.Second),
		},
		Storage: StorageConfig{
			Driver: orDefault(raw.Storage.Driver, "sqlite"),
			Path:   orDefault(raw.Storage.Path, "autoapply.db"),
			DSN:    raw.Storage.DSN,
		},
		Quota: QuotaConfig{
			RedisURL: raw.Quota.RedisURL,
			LockTTL:  d.parse("quota.lock_ttl", raw.Quota.LockTTL, 2*time.Minute),
		},
		API: APIConfig{Listen: raw.API.Listen},
	}
	if d.err != nil {
		return nil, d.err
	}

	if raw.Limits.MinMatchScore != nil {
		cfg.Limits.MinMatchScore = *raw.Limits.MinMatchScore
	}
	if raw.Schedule.DailyTimes == nil {
		cfg.Schedule.DailyTimes = []string{"09:00", "14:00", "18:00"}
	}
	if raw.Schedule.Maintenance != nil {
		cfg.Schedule.Maintenance = *raw.Schedule.Maintenance
	}
	if cfg.Discovery.LimitPerSource == 0 {
		cfg.Discovery.LimitPerSource = 10
	}
	if raw.Discovery.NormalizeKeys != nil {
		cfg.Discovery.NormalizeKeys = *raw.Discovery.NormalizeKeys
	}
	if cfg.Discovery.BacklogSize == 0 {
		cfg.Discovery.BacklogSize = 20
	}
	if cfg.Sources.Adzuna.Country == "" {
		cfg.Sources.Adzuna.Country = "us"
	}
	if cfg.AI.RequestsPerMinute == 0 {
		cfg.AI.RequestsPerMinute = 60
	}
	if cfg.AI.Provider == "gemini" && cfg.AI.Model == "" {
		cfg.AI.Model = defaultGeminiModel
	}

	for name, v := range raw.RateLimit.SourceOverrides {
		dur, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse rate_limit.source_overrides[%q]: %w", name, err)
		}
		cfg.RateLimit.SourceOverrides[name] = dur
	}

	for _, u := range raw.Users {
		cfg.Users = append(cfg.Users, model.UserRegistration{
			UserID:        strings.TrimSpace(u.UserID),
			AuthToken:     u.AuthToken,
			Profile:       u.Profile,
			SearchQueries: u.SearchQueries,
			Location:      u.Location,
		})
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// User returns the registration for userID.
func (c *Config) User(userID string) (model.UserRegistration, error) {
	for _, u := range c.Users {
		if u.UserID == userID {
			return u, nil
		}
	}
	return model.UserRegistration{}, fmt.Errorf("%s: %w", userID, model.ErrUserNotFound)
}

func validate(cfg *Config) error {
	l := cfg.Limits
	if l.MaxJobsPerDay <= 0 {
		return fmt.Errorf("limits.max_jobs_per_day must be positive, got %d", l.MaxJobsPerDay)
	}
	if l.MaxApplicationsPerHour <= 0 {
		return fmt.Errorf("limits.max_applications_per_hour must be positive, got %d", l.MaxApplicationsPerHour)
	}
	if l.MaxApplicationsPerHour > l.MaxJobsPerDay {
		return fmt.Errorf("limits.max_applications_per_hour (%d) exceeds max_jobs_per_day (%d)",
			l.MaxApplicationsPerHour, l.MaxJobsPerDay)
	}
	if l.MinMatchScore < 0 || l.MinMatchScore > 1 {
		return fmt.Errorf("limits.min_match_score must be within [0, 1], got %v", l.MinMatchScore)
	}
	if l.DelayMin < 0 || l.DelayMin > l.DelayMax {
		return fmt.Errorf("limits.application_delay_min (%v) must be between 0 and application_delay_max (%v)",
			l.DelayMin, l.DelayMax)
	}

	for _, t := range cfg.Schedule.DailyTimes {
		if _, _, err := scheduler.ParseClock(t); err != nil {
			return fmt.Errorf("schedule.daily_times: %w", err)
		}
	}
	if cfg.Schedule.DiscoveryInterval < time.Minute {
		return fmt.Errorf("schedule.discovery_interval must be at least 1m, got %v", cfg.Schedule.DiscoveryInterval)
	}
	if cfg.Schedule.PollInterval <= 0 {
		return fmt.Errorf("schedule.poll_interval must be positive, got %v", cfg.Schedule.PollInterval)
	}
	if cfg.Schedule.Maintenance != "" {
		if _, err := cron.ParseStandard(cfg.Schedule.Maintenance); err != nil {
			return fmt.Errorf("schedule.maintenance %q: %w", cfg.Schedule.Maintenance, err)
		}
	}

	if cfg.Sources.EnabledCount() == 0 {
		return errors.New("at least one source must be enabled")
	}
	if a := cfg.Sources.Adzuna; a.Enabled && (a.AppID == "" || a.AppKey == "") {
		return errors.New("sources.adzuna.app_id and app_key are required when adzuna is enabled")
	}
	for _, b := range slices.Concat(cfg.Sources.Greenhouse, cfg.Sources.Lever) {
		if b.Enabled && b.Token == "" {
			return fmt.Errorf("board %q: token is required", b.Company)
		}
	}

	if cfg.AI.Enabled {
		switch cfg.AI.Provider {
		case "openai", "gemini":
		default:
			return fmt.Errorf("ai.provider must be \"openai\" or \"gemini\", got %q", cfg.AI.Provider)
		}
		if cfg.AI.APIKey == "" {
			return errors.New("ai.api_key is required when ai.enabled is true")
		}
		if cfg.AI.Model == "" {
			return errors.New("ai.model is required when ai.enabled is true")
		}
	}

	switch cfg.Submission.Type {
	case "log":
	case "http":
		if cfg.Submission.BaseURL == "" {
			return errors.New("submission.base_url is required when type is \"http\"")
		}
	default:
		return fmt.Errorf("submission.type must be \"log\" or \"http\", got %q", cfg.Submission.Type)
	}

	switch cfg.Storage.Driver {
	case "sqlite", "none":
	case "postgres":
		if cfg.Storage.DSN == "" {
			return errors.New("storage.dsn is required when driver is \"postgres\"")
		}
	default:
		return fmt.Errorf("storage.driver must be sqlite, postgres or none, got %q", cfg.Storage.Driver)
	}

	seen := make(map[string]bool, len(cfg.Users))
	for i, u := range cfg.Users {
		if u.UserID == "" {
			return fmt.Errorf("users[%d]: user_id is required", i)
		}
		if seen[u.UserID] {
			return fmt.Errorf("users[%d]: duplicate user_id %q", i, u.UserID)
		}
		seen[u.UserID] = true
		if len(u.SearchQueries) == 0 {
			return fmt.Errorf("user %s: at least one search query is required", u.UserID)
		}
		if cfg.Submission.Type == "http" && u.AuthToken == "" {
			return fmt.Errorf("user %s: auth_token is required for http submission", u.UserID)
		}
	}
	return nil
}

// durationParser keeps the first parse error so defaults can be applied
// inline.
type durationParser struct {
	err error
}

func (p *durationParser) parse(key, raw string, def time.Duration) time.Duration {
	if raw == "" || p.err != nil {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.err = fmt.Errorf("parse %s %q: %w", key, raw, err)
		return def
	}
	return d
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
