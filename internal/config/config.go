package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Ollama     OllamaConfig     `yaml:"ollama" mapstructure:"ollama"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Queue      QueueConfig      `yaml:"queue" mapstructure:"queue"`
	Poll       PollConfig       `yaml:"poll" mapstructure:"poll"`
	Registry   RegistryConfig   `yaml:"registry" mapstructure:"registry"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the dashboard API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	BaseURL        string   `yaml:"base_url" mapstructure:"base_url"` // used by CLI client commands
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// OllamaConfig holds Ollama API settings.
type OllamaConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Model       string `yaml:"model" mapstructure:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings for the fallback provider.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// EnrichConfig configures enrichment behavior.
type EnrichConfig struct {
	// Provider selects the LLM backend: "ollama" (default) or "anthropic".
	Provider string `yaml:"provider" mapstructure:"provider"`
	// FreshnessHours is the staleness window for the skip check. A step is
	// skipped when the prospect's group data is younger than this and the
	// job did not request force_redo. Zero means enriched data never
	// goes stale.
	FreshnessHours  int `yaml:"freshness_hours" mapstructure:"freshness_hours"`
	StepTimeoutSecs int `yaml:"step_timeout_secs" mapstructure:"step_timeout_secs"`
	// RatePerMinute caps LLM backend calls. Zero disables the limiter.
	RatePerMinute int `yaml:"rate_per_minute" mapstructure:"rate_per_minute"`
	MaxRetries    int `yaml:"max_retries" mapstructure:"max_retries"`
}

// Freshness returns the staleness window for the skip check.
func (e EnrichConfig) Freshness() time.Duration {
	return time.Duration(e.FreshnessHours) * time.Hour
}

// StepTimeout returns the per-step LLM call bound.
func (e EnrichConfig) StepTimeout() time.Duration {
	return time.Duration(e.StepTimeoutSecs) * time.Second
}

// QueueConfig configures the enhancement queue and worker.
type QueueConfig struct {
	MaxPending     int  `yaml:"max_pending" mapstructure:"max_pending"`
	RecentHistory  int  `yaml:"recent_history" mapstructure:"recent_history"`
	JobTimeoutSecs int  `yaml:"job_timeout_secs" mapstructure:"job_timeout_secs"`
	KeepaliveSecs  int  `yaml:"keepalive_secs" mapstructure:"keepalive_secs"`
	BulkBatchLimit int  `yaml:"bulk_batch_limit" mapstructure:"bulk_batch_limit"`
	StartWorker    bool `yaml:"start_worker" mapstructure:"start_worker"`
}

// JobTimeout returns the per-job wall-clock bound.
func (q QueueConfig) JobTimeout() time.Duration {
	return time.Duration(q.JobTimeoutSecs) * time.Second
}

// Keepalive returns the idle-stream keepalive interval.
func (q QueueConfig) Keepalive() time.Duration {
	return time.Duration(q.KeepaliveSecs) * time.Second
}

// PollConfig configures the client reconciliation polling cadence.
type PollConfig struct {
	FastMs    int `yaml:"fast_ms" mapstructure:"fast_ms"`         // any job processing
	MediumMs  int `yaml:"medium_ms" mapstructure:"medium_ms"`     // jobs queued only
	IdleMinMs int `yaml:"idle_min_ms" mapstructure:"idle_min_ms"` // idle, before backoff
	IdleMaxMs int `yaml:"idle_max_ms" mapstructure:"idle_max_ms"` // idle backoff ceiling
}

// RegistryConfig configures the agency source registry.
type RegistryConfig struct {
	SourcesPath string `yaml:"sources_path" mapstructure:"sources_path"`
}

// MonitoringConfig configures the background health checker.
type MonitoringConfig struct {
	CheckIntervalSecs   int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	FailRateThreshold   float64 `yaml:"fail_rate_threshold" mapstructure:"fail_rate_threshold"`
	QueueDepthThreshold int     `yaml:"queue_depth_threshold" mapstructure:"queue_depth_threshold"`
	WebhookURL          string  `yaml:"webhook_url" mapstructure:"webhook_url"`
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
	v.SetEnvPrefix("PROSPECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "prospects.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "qwen2.5:14b")
	v.SetDefault("ollama.timeout_secs", 60)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("enrich.provider", "ollama")
	v.SetDefault("enrich.freshness_hours", 168)
	v.SetDefault("enrich.step_timeout_secs", 45)
	v.SetDefault("enrich.rate_per_minute", 30)
	v.SetDefault("enrich.max_retries", 2)
	v.SetDefault("queue.max_pending", 500)
	v.SetDefault("queue.recent_history", 50)
	v.SetDefault("queue.job_timeout_secs", 120)
	v.SetDefault("queue.keepalive_secs", 30)
	v.SetDefault("queue.bulk_batch_limit", 100)
	v.SetDefault("queue.start_worker", true)
	v.SetDefault("poll.fast_ms", 1000)
	v.SetDefault("poll.medium_ms", 2000)
	v.SetDefault("poll.idle_min_ms", 5000)
	v.SetDefault("poll.idle_max_ms", 30000)
	v.SetDefault("registry.sources_path", "sources.yaml")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.fail_rate_threshold", 0.5)
	v.SetDefault("monitoring.queue_depth_threshold", 200)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
