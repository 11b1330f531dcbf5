package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tbuliHe/visualizer/pkg/models"
)

// Config holds all configuration for the visualizer service.
type Config struct {
	Port    int    `yaml:"port"`
	Version string `yaml:"version"`

	Server     ServerConfig     `yaml:"server"`
	Completion CompletionConfig `yaml:"completion"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	CORSOrigins []string `yaml:"cors_origins"`

	// APIKeys enables bearer/API-key auth on the API when non-empty.
	APIKeys []string `yaml:"api_keys"`

	// ErrorMessage is the caller-visible message for every pipeline failure.
	ErrorMessage string `yaml:"error_message"`

	MaxDescriptionLength int  `yaml:"max_description_length"`
	MetricsEnabled       bool `yaml:"metrics_enabled"`
}

type CompletionConfig struct {
	URL           string                `yaml:"url"`
	APIKey        string                `yaml:"api_key"`
	APIKeyFile    string                `yaml:"api_key_file"`
	Model         string                `yaml:"model"`
	Timeout       time.Duration         `yaml:"timeout"`
	MaxAttempts   int                   `yaml:"max_attempts"`
	RetryableCode int                   `yaml:"retryable_code"`
	Sampling      models.SamplingParams `yaml:"sampling"`
}

type SandboxConfig struct {
	// Language is "javascript" or "lua".
	Language  string        `yaml:"language"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxPoints int           `yaml:"max_points"`
}

type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
	// Insecure disables TLS to the collector; a local sidecar is assumed.
	Insecure bool `yaml:"insecure"`
	// SampleRatio is the share of root traces kept, 0 to 1.
	SampleRatio float64 `yaml:"sample_ratio"`
}

type LogConfig struct {
	// Level is a zerolog level name.
	Level string `yaml:"level"`
	// Format is "console" or "json".
	Format string `yaml:"format"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:    3000,
		Version: "0.1.0",
		Server: ServerConfig{
			CORSOrigins:          []string{"http://localhost:5173"},
			ErrorMessage:         "服务暂时不可用，请稍后再试",
			MaxDescriptionLength: 2000,
			MetricsEnabled:       true,
		},
		Completion: CompletionConfig{
			Model:         "meta-llama/Llama-3.3-70B-Instruct",
			Timeout:       30 * time.Second,
			MaxAttempts:   3,
			RetryableCode: 50501,
			Sampling: models.SamplingParams{
				Temperature:      0.7,
				TopP:             0.7,
				TopK:             50,
				FrequencyPenalty: 0.5,
				MaxTokens:        512,
			},
		},
		Sandbox: SandboxConfig{
			Language:  "javascript",
			Timeout:   5 * time.Second,
			MaxPoints: 10_000,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "visualizer",
			Insecure:     true,
			SampleRatio:  1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration in layers:
//  1. Built-in defaults
//  2. YAML file (explicit path, VISUALIZER_CONFIG, ./config.yaml)
//  3. .env file (VISUALIZER_ENV_FILE or ./.env); never overrides the real environment
//  4. Environment variables
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if path := discoverConfigFile(configPath); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	envFile := envStr("VISUALIZER_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading env file %s: %w", envFile, err)
	}

	applyEnv(&cfg)

	if cfg.Completion.APIKey == "" && cfg.Completion.APIKeyFile != "" {
		data, err := os.ReadFile(cfg.Completion.APIKeyFile)
		if err != nil {
			return nil, fmt.Errorf("completion.api_key_file: %w", err)
		}
		cfg.Completion.APIKey = strings.TrimSpace(string(data))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv("VISUALIZER_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

// applyEnv overrides cfg from the environment. API_URL and API_KEY keep the
// names used by existing deployments.
func applyEnv(cfg *Config) {
	cfg.Port = envInt("VISUALIZER_PORT", cfg.Port)
	cfg.Version = envStr("VISUALIZER_VERSION", cfg.Version)

	cfg.Server.CORSOrigins = envList("VISUALIZER_CORS_ORIGINS", cfg.Server.CORSOrigins)
	cfg.Server.APIKeys = envList("VISUALIZER_API_KEYS", cfg.Server.APIKeys)
	cfg.Server.ErrorMessage = envStr("VISUALIZER_ERROR_MESSAGE", cfg.Server.ErrorMessage)
	cfg.Server.MaxDescriptionLength = envInt("VISUALIZER_MAX_DESCRIPTION_LENGTH", cfg.Server.MaxDescriptionLength)
	cfg.Server.MetricsEnabled = envBool("VISUALIZER_METRICS_ENABLED", cfg.Server.MetricsEnabled)

	c := &cfg.Completion
	c.URL = envStr("API_URL", c.URL)
	c.APIKey = envStr("API_KEY", c.APIKey)
	c.APIKeyFile = envStr("API_KEY_FILE", c.APIKeyFile)
	c.Model = envStr("VISUALIZER_MODEL", c.Model)
	c.Timeout = envDuration("VISUALIZER_COMPLETION_TIMEOUT", c.Timeout)
	c.MaxAttempts = envInt("VISUALIZER_MAX_ATTEMPTS", c.MaxAttempts)
	c.RetryableCode = envInt("VISUALIZER_RETRYABLE_CODE", c.RetryableCode)
	c.Sampling.Temperature = envFloat("VISUALIZER_TEMPERATURE", c.Sampling.Temperature)
	c.Sampling.TopP = envFloat("VISUALIZER_TOP_P", c.Sampling.TopP)
	c.Sampling.TopK = envInt("VISUALIZER_TOP_K", c.Sampling.TopK)
	c.Sampling.FrequencyPenalty = envFloat("VISUALIZER_FREQUENCY_PENALTY", c.Sampling.FrequencyPenalty)
	c.Sampling.MaxTokens = envInt("VISUALIZER_MAX_TOKENS", c.Sampling.MaxTokens)
	c.Sampling.Stop = envList("VISUALIZER_STOP", c.Sampling.Stop)

	cfg.Sandbox.Language = envStr("VISUALIZER_SANDBOX_LANGUAGE", cfg.Sandbox.Language)
	cfg.Sandbox.Timeout = envDuration("VISUALIZER_SANDBOX_TIMEOUT", cfg.Sandbox.Timeout)
	cfg.Sandbox.MaxPoints = envInt("VISUALIZER_MAX_POINTS", cfg.Sandbox.MaxPoints)

	cfg.Telemetry.Enabled = envBool("OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.OTLPEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
	cfg.Telemetry.ServiceName = envStr("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
	cfg.Telemetry.Insecure = envBool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Telemetry.Insecure)
	cfg.Telemetry.SampleRatio = envFloat("OTEL_TRACES_SAMPLER_ARG", cfg.Telemetry.SampleRatio)

	cfg.Log.Level = envStr("VISUALIZER_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envStr("VISUALIZER_LOG_FORMAT", cfg.Log.Format)
}

// Validate checks the loaded configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be in 1-65535, got %d", c.Port))
	}
	if c.Completion.URL == "" {
		errs = append(errs, errors.New("completion.url is required (API_URL)"))
	}
	if c.Completion.Model == "" {
		errs = append(errs, errors.New("completion.model is required"))
	}
	if c.Completion.Timeout <= 0 {
		errs = append(errs, errors.New("completion.timeout must be positive"))
	}
	if c.Completion.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("completion.max_attempts must be at least 1, got %d", c.Completion.MaxAttempts))
	}
	switch strings.ToLower(c.Sandbox.Language) {
	case "javascript", "js", "lua":
	default:
		errs = append(errs, fmt.Errorf("sandbox.language must be javascript or lua, got %q", c.Sandbox.Language))
	}
	if c.Sandbox.Timeout <= 0 {
		errs = append(errs, errors.New("sandbox.timeout must be positive"))
	}
	if c.Sandbox.MaxPoints < 1 {
		errs = append(errs, errors.New("sandbox.max_points must be at least 1"))
	}
	if c.Server.MaxDescriptionLength < 1 {
		errs = append(errs, errors.New("server.max_description_length must be at least 1"))
	}
	if c.Server.ErrorMessage == "" {
		errs = append(errs, errors.New("server.error_message must not be empty"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio must be in 0-1, got %v", c.Telemetry.SampleRatio))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated variable, dropping blanks.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
