package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Reconcile  ReconcileConfig  `yaml:"reconcile" mapstructure:"reconcile"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings for the structured-extraction
// method.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPer float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// ExtractionConfig holds per-method confidence weights and concurrency
// limits. The weights are asserted defaults, not empirical constants, and
// are deliberately overridable.
type ExtractionConfig struct {
	TableConfidence           float64 `yaml:"table_confidence" mapstructure:"table_confidence"`
	PatternConfidence         float64 `yaml:"pattern_confidence" mapstructure:"pattern_confidence"`
	PositionalExactConfidence float64 `yaml:"positional_exact_confidence" mapstructure:"positional_exact_confidence"`
	PositionalLooseConfidence float64 `yaml:"positional_loose_confidence" mapstructure:"positional_loose_confidence"`
	StructuredConfidence      float64 `yaml:"structured_confidence" mapstructure:"structured_confidence"`
	// Workers bounds the per-field extraction fan-out. 0 means NumCPU.
	Workers              int    `yaml:"workers" mapstructure:"workers"`
	StructuredTimeoutSec int    `yaml:"structured_timeout_secs" mapstructure:"structured_timeout_secs"`
	FieldLibraryPath     string `yaml:"field_library_path" mapstructure:"field_library_path"`
}

// ValidationConfig holds tolerance and review-threshold settings.
type ValidationConfig struct {
	// ToleranceRel and ToleranceAbs define the equation tolerance
	// max(|reported| * rel, abs).
	ToleranceRel       float64 `yaml:"tolerance_rel" mapstructure:"tolerance_rel"`
	ToleranceAbs       float64 `yaml:"tolerance_abs" mapstructure:"tolerance_abs"`
	ReviewThreshold    float64 `yaml:"review_threshold" mapstructure:"review_threshold"`
	CriticalMultiplier float64 `yaml:"critical_multiplier" mapstructure:"critical_multiplier"`
	WarningMultiplier  float64 `yaml:"warning_multiplier" mapstructure:"warning_multiplier"`
}

// ReconcileConfig configures the reconciliation agent.
type ReconcileConfig struct {
	IRRTolerance      float64 `yaml:"irr_tolerance" mapstructure:"irr_tolerance"`
	IRRFailThreshold  float64 `yaml:"irr_fail_threshold" mapstructure:"irr_fail_threshold"`
	MultipleTolerance float64 `yaml:"multiple_tolerance" mapstructure:"multiple_tolerance"`
	LeaseTTLSecs      int     `yaml:"lease_ttl_secs" mapstructure:"lease_ttl_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FOREPORTING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.requests_per_second", 2.0)
	v.SetDefault("extraction.table_confidence", 0.90)
	v.SetDefault("extraction.pattern_confidence", 0.80)
	v.SetDefault("extraction.positional_exact_confidence", 0.75)
	v.SetDefault("extraction.positional_loose_confidence", 0.60)
	v.SetDefault("extraction.structured_confidence", 0.70)
	v.SetDefault("extraction.workers", 0)
	v.SetDefault("extraction.structured_timeout_secs", 60)
	v.SetDefault("validation.tolerance_rel", 1e-4)
	v.SetDefault("validation.tolerance_abs", 1.0)
	v.SetDefault("validation.review_threshold", 0.80)
	v.SetDefault("validation.critical_multiplier", 0.5)
	v.SetDefault("validation.warning_multiplier", 0.85)
	v.SetDefault("reconcile.irr_tolerance", 0.001)
	v.SetDefault("reconcile.irr_fail_threshold", 0.02)
	v.SetDefault("reconcile.multiple_tolerance", 0.01)
	v.SetDefault("reconcile.lease_ttl_secs", 600)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.Validation.ToleranceRel < 0 || cfg.Validation.ToleranceAbs < 0 {
		return nil, eris.New("config: negative validation tolerance")
	}
	if cfg.Validation.ReviewThreshold < 0 || cfg.Validation.ReviewThreshold > 1 {
		return nil, eris.New("config: review threshold outside [0,1]")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
