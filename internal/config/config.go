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
	Registry  RegistryConfig  `yaml:"registry" mapstructure:"registry"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Gate      GateConfig      `yaml:"gate" mapstructure:"gate"`
	Agent     AgentConfig     `yaml:"agent" mapstructure:"agent"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Document  DocumentConfig  `yaml:"document" mapstructure:"document"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
}

// RegistryConfig locates the case registry.
type RegistryConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PipelineConfig configures the escalation ladder.
type PipelineConfig struct {
	CriticalFields  []string `yaml:"critical_fields" mapstructure:"critical_fields"`
	ReviewFields    []string `yaml:"review_fields" mapstructure:"review_fields"`
	OpticalEnabled  bool     `yaml:"optical_enabled" mapstructure:"optical_enabled"`
	CallTimeoutSecs int      `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	FieldSpecPath   string   `yaml:"field_spec_path" mapstructure:"field_spec_path"`
}

// CallTimeout returns the per-call timeout as a duration.
func (p PipelineConfig) CallTimeout() time.Duration {
	return time.Duration(p.CallTimeoutSecs) * time.Second
}

// GateConfig configures the raw-text gate.
type GateConfig struct {
	MinLength int      `yaml:"min_length" mapstructure:"min_length"`
	Markers   []string `yaml:"markers" mapstructure:"markers"`
}

// AgentConfig selects and throttles the extraction backend.
type AgentConfig struct {
	Backend           string  `yaml:"backend" mapstructure:"backend"` // "anthropic" or "gemini"
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	AllowedCasesLimit int     `yaml:"allowed_cases_limit" mapstructure:"allowed_cases_limit"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OCRConfig configures optical recovery.
type OCRConfig struct {
	Provider        string   `yaml:"provider" mapstructure:"provider"` // "tesseract" or "mistral"
	Languages       []string `yaml:"languages" mapstructure:"languages"`
	DPI             float64  `yaml:"dpi" mapstructure:"dpi"`
	MaxPages        int      `yaml:"max_pages" mapstructure:"max_pages"`
	CachePath       string   `yaml:"cache_path" mapstructure:"cache_path"`
	MistralKey      string   `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel    string   `yaml:"mistral_model" mapstructure:"mistral_model"`
	MistralEndpoint string   `yaml:"mistral_endpoint" mapstructure:"mistral_endpoint"`
}

// DocumentConfig configures text-layer extraction.
type DocumentConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MaxBytes      int64  `yaml:"max_bytes" mapstructure:"max_bytes"`
}

// StoreConfig configures the run store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency int  `yaml:"concurrency" mapstructure:"concurrency"`
	DumpOptical bool `yaml:"dump_optical" mapstructure:"dump_optical"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    map[string]ModelPricing `yaml:"gemini" mapstructure:"gemini"`
	OCR       OCRPricing              `yaml:"ocr" mapstructure:"ocr"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// OCRPricing holds the per-page price of remote recognition.
type OCRPricing struct {
	PerPage float64 `yaml:"per_page" mapstructure:"per_page"`
}

// RetryConfig bounds retries of boundary calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures per-service circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("INVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("registry.path", "data/valid_clientcasenumbers.csv")
	v.SetDefault("pipeline.critical_fields", []string{"registration_id", "tax_id"})
	v.SetDefault("pipeline.review_fields", []string{"supplier_name"})
	v.SetDefault("pipeline.optical_enabled", true)
	v.SetDefault("pipeline.call_timeout_secs", 90)
	v.SetDefault("pipeline.field_spec_path", "")
	v.SetDefault("gate.min_length", 50)
	v.SetDefault("agent.backend", "anthropic")
	v.SetDefault("agent.max_tokens", 4096)
	v.SetDefault("agent.requests_per_second", 2.0)
	v.SetDefault("agent.burst", 4)
	v.SetDefault("agent.allowed_cases_limit", 200)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("gemini.key", "")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("ocr.provider", "tesseract")
	v.SetDefault("ocr.languages", []string{"nld", "eng"})
	v.SetDefault("ocr.dpi", 300.0)
	v.SetDefault("ocr.max_pages", 10)
	v.SetDefault("ocr.cache_path", "")
	v.SetDefault("ocr.mistral_api_key", "")
	v.SetDefault("ocr.mistral_model", "mistral-ocr-latest")
	v.SetDefault("ocr.mistral_endpoint", "https://api.mistral.ai/v1/ocr")
	v.SetDefault("document.pdftotext_path", "pdftotext")
	v.SetDefault("document.max_bytes", 32<<20)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.dump_optical", false)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "invoice-runs.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_body_bytes", 8<<20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pricing.ocr.per_page", 0.001)
	v.SetDefault("retry.max_attempts", 2)
	v.SetDefault("retry.initial_backoff_ms", 2000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)

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
