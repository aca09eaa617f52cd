// Package config loads and validates the agent's startup configuration.
// Invalid configuration is fatal: the agent refuses to start rather than
// run with a broken threshold ladder or polling schedule.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sentinelops/sentinel/internal/risk"
)

// Config is the agent's static configuration, read once at startup.
type Config struct {
	PollInterval    time.Duration
	BlockTimeout    time.Duration
	DetectorTimeout time.Duration
	EnforceTimeout  time.Duration

	FusionAlpha       float64
	ThresholdMedium   float64
	ThresholdHigh     float64
	ThresholdCritical float64
	NeutralBehavior   float64
	StatsEveryTicks   int

	NetworkDetectorURL  string
	BehaviorDetectorURL string

	EnforcementMode   string // "http" or "noop"
	EnforcementURL    string
	EnforcementAPIKey string

	AdminPort         int
	AdminPasswordHash string // bcrypt hash of the operator password
	AdminTokenSecret  string
	AdminTokenTTL     time.Duration
	AdminRateLimitRPS int
	CORSOrigins       []string

	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPFrom       string
	SMTPRecipients []string
	SMTPMinLevel   string

	WebhookURL    string
	WebhookSecret string

	AuditBackend string // "memory" or "postgres"
	DatabaseURL  string
}

// Load reads sentinel.yaml from the given paths (plus environment variables)
// and validates the result.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("sentinel")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix("sentinel")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No file is fine; defaults and env vars apply.
	}

	cfg := &Config{
		PollInterval:    time.Duration(v.GetInt("monitor.poll_interval_seconds")) * time.Second,
		BlockTimeout:    time.Duration(v.GetInt("monitor.block_timeout_minutes")) * time.Minute,
		DetectorTimeout: v.GetDuration("monitor.detector_timeout"),
		EnforceTimeout:  v.GetDuration("monitor.enforce_timeout"),

		FusionAlpha:       v.GetFloat64("fusion.weight_alpha"),
		ThresholdMedium:   v.GetFloat64("fusion.threshold_medium"),
		ThresholdHigh:     v.GetFloat64("fusion.threshold_high"),
		ThresholdCritical: v.GetFloat64("fusion.threshold_critical"),
		NeutralBehavior:   v.GetFloat64("fusion.neutral_behavior_score"),
		StatsEveryTicks:   v.GetInt("monitor.stats_every_ticks"),

		NetworkDetectorURL:  v.GetString("detectors.network_url"),
		BehaviorDetectorURL: v.GetString("detectors.behavior_url"),

		EnforcementMode:   v.GetString("enforcement.mode"),
		EnforcementURL:    v.GetString("enforcement.url"),
		EnforcementAPIKey: v.GetString("enforcement.api_key"),

		AdminPort:         v.GetInt("admin.port"),
		AdminPasswordHash: v.GetString("admin.password_hash"),
		AdminTokenSecret:  v.GetString("admin.token_secret"),
		AdminTokenTTL:     v.GetDuration("admin.token_ttl"),
		AdminRateLimitRPS: v.GetInt("admin.rate_limit_rps"),
		CORSOrigins:       v.GetStringSlice("admin.cors_origins"),

		SMTPHost:       v.GetString("smtp.host"),
		SMTPPort:       v.GetInt("smtp.port"),
		SMTPUsername:   v.GetString("smtp.username"),
		SMTPPassword:   v.GetString("smtp.password"),
		SMTPFrom:       v.GetString("smtp.from_address"),
		SMTPRecipients: v.GetStringSlice("smtp.recipients"),
		SMTPMinLevel:   v.GetString("smtp.min_level"),

		WebhookURL:    v.GetString("webhook.url"),
		WebhookSecret: v.GetString("webhook.secret"),

		AuditBackend: v.GetString("audit.backend"),
		DatabaseURL:  v.GetString("audit.database_url"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("monitor.poll_interval_seconds", 60)
	v.SetDefault("monitor.block_timeout_minutes", 10)
	v.SetDefault("monitor.detector_timeout", "5s")
	v.SetDefault("monitor.enforce_timeout", "10s")
	v.SetDefault("monitor.stats_every_ticks", 10)

	v.SetDefault("fusion.weight_alpha", 0.6)
	v.SetDefault("fusion.threshold_medium", 0.4)
	v.SetDefault("fusion.threshold_high", 0.6)
	v.SetDefault("fusion.threshold_critical", 0.8)
	v.SetDefault("fusion.neutral_behavior_score", 0.1)

	v.SetDefault("detectors.network_url", "http://localhost:9101")
	v.SetDefault("detectors.behavior_url", "http://localhost:9102")

	v.SetDefault("enforcement.mode", "noop")
	v.SetDefault("enforcement.url", "")
	v.SetDefault("enforcement.api_key", "")

	v.SetDefault("admin.port", 8088)
	v.SetDefault("admin.password_hash", "")
	v.SetDefault("admin.token_secret", "")
	v.SetDefault("admin.token_ttl", "1h")
	v.SetDefault("admin.rate_limit_rps", 20)
	v.SetDefault("admin.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from_address", "sentinel@localhost")
	v.SetDefault("smtp.min_level", "RATE_LIMIT")

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.secret", "")

	v.SetDefault("audit.backend", "memory")
	v.SetDefault("audit.database_url", "")
}

// Validate checks every knob the control loop depends on. Any violation is a
// startup-fatal configuration error.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll interval must be positive, got %v", c.PollInterval)
	}
	if c.BlockTimeout <= 0 {
		return fmt.Errorf("config: block timeout must be positive, got %v", c.BlockTimeout)
	}
	if c.FusionAlpha < 0 || c.FusionAlpha > 1 {
		return fmt.Errorf("config: fusion weight alpha must be in [0,1], got %v", c.FusionAlpha)
	}
	if c.NeutralBehavior < 0 || c.NeutralBehavior > 1 {
		return fmt.Errorf("config: neutral behavior score must be in [0,1], got %v", c.NeutralBehavior)
	}
	for name, th := range map[string]float64{
		"threshold_medium":   c.ThresholdMedium,
		"threshold_high":     c.ThresholdHigh,
		"threshold_critical": c.ThresholdCritical,
	} {
		if th < 0 || th > 1 {
			return fmt.Errorf("config: %s must be in [0,1], got %v", name, th)
		}
	}
	if !(c.ThresholdMedium < c.ThresholdHigh && c.ThresholdHigh < c.ThresholdCritical) {
		return fmt.Errorf("config: thresholds must be strictly ascending, got %v < %v < %v",
			c.ThresholdMedium, c.ThresholdHigh, c.ThresholdCritical)
	}
	if c.EnforcementMode != "noop" && c.EnforcementMode != "http" {
		return fmt.Errorf("config: enforcement mode must be noop or http, got %q", c.EnforcementMode)
	}
	if c.EnforcementMode == "http" && c.EnforcementURL == "" {
		return errors.New("config: enforcement.url is required in http mode")
	}
	if c.AuditBackend != "memory" && c.AuditBackend != "postgres" {
		return fmt.Errorf("config: audit backend must be memory or postgres, got %q", c.AuditBackend)
	}
	if c.AuditBackend == "postgres" && c.DatabaseURL == "" {
		return errors.New("config: audit.database_url is required for the postgres backend")
	}
	if _, err := c.SMTPMinRiskLevel(); err != nil {
		return err
	}
	return nil
}

// Weights returns the fusion weights derived from the config.
func (c *Config) Weights() risk.Weights {
	return risk.Weights{
		Alpha:    c.FusionAlpha,
		Medium:   c.ThresholdMedium,
		High:     c.ThresholdHigh,
		Critical: c.ThresholdCritical,
	}
}

// SMTPMinRiskLevel parses the configured minimum email level.
func (c *Config) SMTPMinRiskLevel() (risk.Level, error) {
	switch strings.ToUpper(c.SMTPMinLevel) {
	case "LOG":
		return risk.LevelLog, nil
	case "ALERT":
		return risk.LevelAlert, nil
	case "RATE_LIMIT":
		return risk.LevelRateLimit, nil
	case "BLOCK":
		return risk.LevelBlock, nil
	default:
		return 0, fmt.Errorf("config: unknown smtp.min_level %q", c.SMTPMinLevel)
	}
}
