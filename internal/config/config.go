// Package config loads the digger configuration. A YAML file provides the
// base values and environment variables override them.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pysugar/creator-insights/internal/insights"
	"github.com/pysugar/creator-insights/internal/logging"
	"github.com/robfig/cron/v3"
)

// Config holds every setting of the digger binary.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       logging.Config  `koanf:"log"`
	Digger    DiggerConfig    `koanf:"digger"`
	Insights  InsightsConfig  `koanf:"insights"`
	Redis     RedisConfig     `koanf:"redis"`
	Reports   ReportsConfig   `koanf:"reports"`
	Platforms PlatformsConfig `koanf:"platforms"`
	Secrets   Secrets         `koanf:"secrets"`
}

type ServerConfig struct {
	Host          string `koanf:"host"`
	Port          int    `koanf:"port"`
	AdminPassword string `koanf:"admin_password"`
	// MaskAPIKey hides the middle of the API key in config responses.
	MaskAPIKey bool `koanf:"mask_api_key"`
	// Mode "release" binds to all interfaces when Host is empty.
	Mode string `koanf:"mode"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	host := s.Host
	if host == "" {
		host = "127.0.0.1"
		if s.Mode == "release" {
			host = "0.0.0.0"
		}
	}
	return fmt.Sprintf("%s:%d", host, s.Port)
}

type DatabaseConfig struct {
	Path    string `koanf:"path"`
	Verbose bool   `koanf:"verbose"`
}

type DiggerConfig struct {
	Schedule             string        `koanf:"schedule"`
	TokenRefreshSchedule string        `koanf:"token_refresh_schedule"`
	TokenRefreshLead     time.Duration `koanf:"token_refresh_lead"`
	RequestTimeout       time.Duration `koanf:"request_timeout"`
	RunTimeout           time.Duration `koanf:"run_timeout"`
	MaxRetries           int           `koanf:"max_retries"`
	ReportWindowDays     int           `koanf:"report_window_days"`
}

type InsightsConfig struct {
	RangeMode string `koanf:"range_mode"`
}

// RedisConfig enables the distributed handle lock when Addr is set.
type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	LockTTL  time.Duration `koanf:"lock_ttl"`
	Prefix   string        `koanf:"prefix"`
}

type ReportsConfig struct {
	CatalogPath string `koanf:"catalog_path"`
}

type YouTubeConfig struct {
	DataURL      string `koanf:"data_url"`
	AnalyticsURL string `koanf:"analytics_url"`
	RedirectURL  string `koanf:"redirect_url"`
}

type InstagramConfig struct {
	GraphURL     string `koanf:"graph_url"`
	InstagramURL string `koanf:"instagram_url"`
}

type PlatformsConfig struct {
	YouTube   YouTubeConfig   `koanf:"youtube"`
	Instagram InstagramConfig `koanf:"instagram"`
}

// Configuration validation errors.
var (
	ErrInvalidPort       = errors.New("port must be between 1 and 65535")
	ErrInvalidRangeMode  = errors.New("insights.range_mode must be overlap or legacy")
	ErrInvalidSchedule   = errors.New("invalid cron schedule")
	ErrInvalidWindow     = errors.New("digger.report_window_days must be positive")
	ErrInvalidRetries    = errors.New("digger.max_retries must not be negative")
	ErrMissingDatabase   = errors.New("database.path is required")
	ErrInvalidRunTimeout = errors.New("digger.run_timeout must be positive")
)

// Defaults for settings missing from both file and environment.
const (
	DefaultPort             = 8080
	DefaultDatabasePath     = "data/digger.db"
	DefaultSchedule         = "0 2 * * *"
	DefaultTokenSchedule    = "*/30 * * * *"
	DefaultTokenLead        = 10 * time.Minute
	DefaultRequestTimeout   = 30 * time.Second
	DefaultRunTimeout       = 2 * time.Hour
	DefaultMaxRetries       = 3
	DefaultReportWindowDays = 7
	DefaultLockTTL          = 10 * time.Minute
	DefaultLockPrefix       = "digger:lock:"
)

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: DefaultPort},
		Database: DatabaseConfig{Path: DefaultDatabasePath},
		Log:      logging.DefaultConfig(),
		Digger: DiggerConfig{
			Schedule:             DefaultSchedule,
			TokenRefreshSchedule: DefaultTokenSchedule,
			TokenRefreshLead:     DefaultTokenLead,
			RequestTimeout:       DefaultRequestTimeout,
			RunTimeout:           DefaultRunTimeout,
			MaxRetries:           DefaultMaxRetries,
			ReportWindowDays:     DefaultReportWindowDays,
		},
		Insights: InsightsConfig{RangeMode: string(insights.RangeOverlap)},
		Redis:    RedisConfig{LockTTL: DefaultLockTTL, Prefix: DefaultLockPrefix},
		Secrets:  Secrets{},
	}
}

// Load reads configuration from an optional YAML file and the environment.
// Environment variables take precedence over file values. A file that
// cannot be read is returned as the only error; otherwise every validation
// error is returned at once.
func Load(configFilePath string) (*Config, []error) {
	cfg := Default()
	k := koanf.New(".")

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
		if err := k.Unmarshal("", cfg); err != nil {
			return nil, []error{fmt.Errorf("failed to decode config file %s: %w", configFilePath, err)}
		}
	}
	if cfg.Secrets == nil {
		cfg.Secrets = Secrets{}
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg.Server.Host = getEnvOrDefault("HOST", cfg.Server.Host)
	cfg.Server.Mode = getEnvOrDefault("DIGGER_MODE", cfg.Server.Mode)
	cfg.Server.AdminPassword = getEnvOrDefault("DIGGER_ADMIN_PASSWORD", cfg.Server.AdminPassword)
	port, err := getEnvInt("PORT", cfg.Server.Port)
	collect(err)
	cfg.Server.Port = port
	cfg.Server.MaskAPIKey, err = getEnvBool("DIGGER_MASK_SENSITIVE", cfg.Server.MaskAPIKey)
	collect(err)

	cfg.Database.Path = getEnvOrDefault("DIGGER_DB_PATH", cfg.Database.Path)
	cfg.Log.Level = getEnvOrDefault("DIGGER_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnvOrDefault("DIGGER_LOG_FORMAT", cfg.Log.Format)

	cfg.Digger.Schedule = getEnvOrDefault("DIGGER_SCHEDULE", cfg.Digger.Schedule)
	cfg.Digger.TokenRefreshSchedule = getEnvOrDefault("DIGGER_TOKEN_REFRESH_SCHEDULE", cfg.Digger.TokenRefreshSchedule)
	cfg.Digger.RunTimeout, err = getEnvDuration("DIGGER_RUN_TIMEOUT", cfg.Digger.RunTimeout)
	collect(err)
	cfg.Digger.RequestTimeout, err = getEnvDuration("DIGGER_REQUEST_TIMEOUT", cfg.Digger.RequestTimeout)
	collect(err)
	cfg.Digger.MaxRetries, err = getEnvInt("DIGGER_MAX_RETRIES", cfg.Digger.MaxRetries)
	collect(err)
	cfg.Digger.ReportWindowDays, err = getEnvInt("DIGGER_REPORT_WINDOW_DAYS", cfg.Digger.ReportWindowDays)
	collect(err)

	cfg.Insights.RangeMode = getEnvOrDefault("DIGGER_RANGE_MODE", cfg.Insights.RangeMode)
	cfg.Redis.Addr = getEnvOrDefault("DIGGER_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnvOrDefault("DIGGER_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Reports.CatalogPath = getEnvOrDefault("DIGGER_REPORTS_FILE", cfg.Reports.CatalogPath)

	errs = append(errs, cfg.Validate()...)
	if len(errs) > 0 {
		return cfg, errs
	}
	return cfg, nil
}

// Validate checks the loaded values and returns every problem found.
func (c *Config) Validate() []error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, ErrMissingDatabase)
	}
	if _, err := insights.ParseRangeMode(c.Insights.RangeMode); err != nil {
		errs = append(errs, ErrInvalidRangeMode)
	}
	for _, spec := range []string{c.Digger.Schedule, c.Digger.TokenRefreshSchedule} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("%w %q: %v", ErrInvalidSchedule, spec, err))
		}
	}
	if c.Digger.ReportWindowDays < 1 {
		errs = append(errs, ErrInvalidWindow)
	}
	if c.Digger.MaxRetries < 0 {
		errs = append(errs, ErrInvalidRetries)
	}
	if c.Digger.RunTimeout <= 0 {
		errs = append(errs, ErrInvalidRunTimeout)
	}
	return errs
}

// RangeMode returns the validated insights range mode.
func (c *Config) RangeMode() insights.RangeMode {
	mode, err := insights.ParseRangeMode(c.Insights.RangeMode)
	if err != nil {
		return insights.RangeOverlap
	}
	return mode
}

func getEnvOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
