package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file or environment leaves values unset.
const (
	DefaultListenAddr              = ":8317"
	DefaultAccuracyThresholdPct    = 5.0
	DefaultResetHourUTC            = 0
	DefaultReconcileInterval       = time.Minute
	DefaultTierName                = "free"
	DefaultUsageRetentionDays      = 90
	DefaultClassifierMinAccuracy   = 90.0
	DefaultProviderInvokeTimeoutMS = 30000
)

// TierLimits defines daily limits and cost ceilings for one tier.
type TierLimits struct {
	Level1DailyLimit int64   `yaml:"level1-daily-limit"`
	Level2DailyLimit int64   `yaml:"level2-daily-limit"`
	DailyTokenLimit  int64   `yaml:"daily-token-limit"`
	DailyCostUSD     float64 `yaml:"daily-cost-usd"`
	MonthlyCostUSD   float64 `yaml:"monthly-cost-usd"`
}

// Provider describes one routable provider/model pair.
type Provider struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Accuracy    float64 `yaml:"accuracy"`
	CostPerUnit float64 `yaml:"cost-per-unit"`
	LatencyMS   int64   `yaml:"latency-ms"`
	NoRetention bool    `yaml:"no-retention"`
}

// Routing holds policy-matcher and selector settings.
type Routing struct {
	// MergeStrategy selects how overlapping rule actions combine:
	// "highest-wins" or "last-write-wins".
	MergeStrategy        string  `yaml:"merge-strategy"`
	AccuracyThresholdPct float64 `yaml:"accuracy-threshold-percent"`
	// ClassifierMinAccuracy is the required-accuracy bound at or above which
	// a request is classified as level-1.
	ClassifierMinAccuracy float64 `yaml:"classifier-min-accuracy"`
}

// Quota holds ledger settings.
type Quota struct {
	// LimitResolution selects tier limit resolution: "snapshot" (limits fixed
	// at record creation) or "per-request" (re-resolved on every admission).
	LimitResolution    string `yaml:"limit-resolution"`
	ResetHourUTC       int    `yaml:"reset-hour-utc"`
	UsageRetentionDays int    `yaml:"usage-retention-days"`
	DefaultTier        string `yaml:"default-tier"`
}

// Log holds logging settings.
type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Config is the process configuration, loaded from a YAML file with
// environment variable overrides.
type Config struct {
	ListenAddr  string `yaml:"listen"`
	DatabaseDSN string `yaml:"database"`
	RedisAddr   string `yaml:"redis-addr"`
	AdminSecret string `yaml:"admin-secret"`

	ReconcileInterval time.Duration `yaml:"reconcile-interval"`

	Routing   Routing               `yaml:"routing"`
	Quota     Quota                 `yaml:"quota"`
	Tiers     map[string]TierLimits `yaml:"tiers"`
	Providers []Provider            `yaml:"providers"`
	Log       Log                   `yaml:"log"`
}

// Load reads the config file at path (optional), layers .env and process
// environment overrides on top, and applies defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		data, errRead := os.ReadFile(path)
		if errRead != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, errRead)
		}
		if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if errValidate := cfg.validate(); errValidate != nil {
		return nil, errValidate
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MODELGATE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("MODELGATE_DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("MODELGATE_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("MODELGATE_ADMIN_SECRET"); v != "" {
		cfg.AdminSecret = v
	}
	if v := os.Getenv("MODELGATE_MERGE_STRATEGY"); v != "" {
		cfg.Routing.MergeStrategy = v
	}
	if v := os.Getenv("MODELGATE_LIMIT_RESOLUTION"); v != "" {
		cfg.Quota.LimitResolution = v
	}
	if v := os.Getenv("MODELGATE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("MODELGATE_RECONCILE_INTERVAL"); v != "" {
		if d, errParse := time.ParseDuration(v); errParse == nil && d > 0 {
			cfg.ReconcileInterval = d
		}
	}
	if v := os.Getenv("MODELGATE_ACCURACY_THRESHOLD_PERCENT"); v != "" {
		if f, errParse := strconv.ParseFloat(v, 64); errParse == nil && f >= 0 {
			cfg.Routing.AccuracyThresholdPct = f
		}
	}
	if v := os.Getenv("MODELGATE_RESET_HOUR_UTC"); v != "" {
		if h, errParse := strconv.Atoi(v); errParse == nil && h >= 0 && h <= 23 {
			cfg.Quota.ResetHourUTC = h
		}
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		cfg.DatabaseDSN = "file:modelgate.db"
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = DefaultReconcileInterval
	}
	if strings.TrimSpace(cfg.Routing.MergeStrategy) == "" {
		cfg.Routing.MergeStrategy = "highest-wins"
	}
	if cfg.Routing.AccuracyThresholdPct <= 0 {
		cfg.Routing.AccuracyThresholdPct = DefaultAccuracyThresholdPct
	}
	if cfg.Routing.ClassifierMinAccuracy <= 0 {
		cfg.Routing.ClassifierMinAccuracy = DefaultClassifierMinAccuracy
	}
	if strings.TrimSpace(cfg.Quota.LimitResolution) == "" {
		cfg.Quota.LimitResolution = "snapshot"
	}
	if cfg.Quota.UsageRetentionDays <= 0 {
		cfg.Quota.UsageRetentionDays = DefaultUsageRetentionDays
	}
	if strings.TrimSpace(cfg.Quota.DefaultTier) == "" {
		cfg.Quota.DefaultTier = DefaultTierName
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = DefaultTiers()
	}
}

func (cfg *Config) validate() error {
	switch cfg.Routing.MergeStrategy {
	case "highest-wins", "last-write-wins":
	default:
		return fmt.Errorf("config: unknown merge strategy %q", cfg.Routing.MergeStrategy)
	}
	switch cfg.Quota.LimitResolution {
	case "snapshot", "per-request":
	default:
		return fmt.Errorf("config: unknown limit resolution %q", cfg.Quota.LimitResolution)
	}
	if cfg.Quota.ResetHourUTC < 0 || cfg.Quota.ResetHourUTC > 23 {
		return fmt.Errorf("config: reset hour out of range: %d", cfg.Quota.ResetHourUTC)
	}
	if _, ok := cfg.Tiers[cfg.Quota.DefaultTier]; !ok {
		return fmt.Errorf("config: default tier %q has no limit definition", cfg.Quota.DefaultTier)
	}
	return nil
}

// DefaultTiers returns the built-in tier limit table.
func DefaultTiers() map[string]TierLimits {
	return map[string]TierLimits{
		"free": {
			Level1DailyLimit: 5,
			Level2DailyLimit: 50,
			DailyTokenLimit:  100_000,
			DailyCostUSD:     0.50,
			MonthlyCostUSD:   10,
		},
		"premium": {
			Level1DailyLimit: 100,
			Level2DailyLimit: 1000,
			DailyTokenLimit:  2_000_000,
			DailyCostUSD:     20,
			MonthlyCostUSD:   400,
		},
	}
}
