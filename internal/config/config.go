// Package config loads application configuration with multi-source
// priority: environment variables over config file over defaults.
//
// Sensitive fields (the PostgreSQL password) are masked in MarshalJSON so
// the config can be logged safely. Validation is fail-fast: Load returns
// an error before any component sees a bad value.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidProvider indicates an unsupported model provider.
	ErrInvalidProvider = errors.New("invalid provider")
	// ErrInvalidPostgres indicates an unusable PostgreSQL setting.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL configuration")
	// ErrInvalidSQLitePath indicates a missing catalog database path.
	ErrInvalidSQLitePath = errors.New("invalid SQLite catalog path")
	// ErrInvalidTopK indicates default_top_k outside [1, 10].
	ErrInvalidTopK = errors.New("invalid default_top_k")
	// ErrInvalidHistory indicates max_history_turns below 0.
	ErrInvalidHistory = errors.New("invalid max_history_turns")
	// ErrInvalidThreshold indicates clarify_min_signals below 1.
	ErrInvalidThreshold = errors.New("invalid clarify_min_signals")
	// ErrInvalidAddr indicates an empty listen address.
	ErrInvalidAddr = errors.New("invalid listen address")
)

// Model provider identifiers.
const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON.
type Config struct {
	// Model provider and names
	Provider      string `mapstructure:"provider" json:"provider"`
	ModelName     string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	OllamaHost    string `mapstructure:"ollama_host" json:"ollama_host"`

	// PostgreSQL (semantic index + conversation store)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// SQLite catalog (exact-match store)
	SQLitePath string `mapstructure:"sqlite_path" json:"sqlite_path"`

	// Agent behavior
	DefaultTopK       int `mapstructure:"default_top_k" json:"default_top_k"`
	MinResults        int `mapstructure:"min_results" json:"min_results"`
	MaxHistoryTurns   int `mapstructure:"max_history_turns" json:"max_history_turns"`
	ClarifyMinSignals int `mapstructure:"clarify_min_signals" json:"clarify_min_signals"`

	// Timeouts
	ToolTimeout    time.Duration `mapstructure:"tool_timeout" json:"tool_timeout"`
	ComposeTimeout time.Duration `mapstructure:"compose_timeout" json:"compose_timeout"`

	// HTTP server
	Addr string `mapstructure:"addr" json:"addr"`

	// Observability
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	LogJSON      bool   `mapstructure:"log_json" json:"log_json"`
	LogLevel     string `mapstructure:"log_level" json:"log_level"`
}

// Load reads configuration from defaults, an optional config.yaml in the
// working directory or /etc/actuator-agent, and environment overrides.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/actuator-agent")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGoogleAI)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", "gemini-embedding-001")
	v.SetDefault("ollama_host", "http://localhost:11434")

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "actuator")
	v.SetDefault("postgres_password", "actuator_dev_password")
	v.SetDefault("postgres_db_name", "actuator")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("sqlite_path", "data/catalog.db")

	v.SetDefault("default_top_k", 3)
	v.SetDefault("min_results", 3)
	v.SetDefault("max_history_turns", 10)
	v.SetDefault("clarify_min_signals", 2)

	v.SetDefault("tool_timeout", 10*time.Second)
	v.SetDefault("compose_timeout", 30*time.Second)

	v.SetDefault("addr", ":8080")
	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("log_json", true)
	v.SetDefault("log_level", "info")
}

// bindEnvVariables binds environment overrides explicitly. Provider API
// keys (GEMINI_API_KEY, OPENAI_API_KEY) are read directly by the genkit
// plugins, not through viper.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: binding %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "ACTUATOR_PROVIDER")
	mustBind("model_name", "ACTUATOR_MODEL_NAME")
	mustBind("embedder_model", "ACTUATOR_EMBEDDER_MODEL")
	mustBind("ollama_host", "ACTUATOR_OLLAMA_HOST")
	mustBind("postgres_host", "ACTUATOR_POSTGRES_HOST")
	mustBind("postgres_port", "ACTUATOR_POSTGRES_PORT")
	mustBind("postgres_user", "ACTUATOR_POSTGRES_USER")
	mustBind("postgres_password", "ACTUATOR_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "ACTUATOR_POSTGRES_DB")
	mustBind("sqlite_path", "ACTUATOR_SQLITE_PATH")
	mustBind("addr", "ACTUATOR_ADDR")
	mustBind("otlp_endpoint", "ACTUATOR_OTLP_ENDPOINT")
	mustBind("log_level", "ACTUATOR_LOG_LEVEL")
}

// Validate fail-fasts on unusable values.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGoogleAI, ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("%w: %q (expected googleai, openai, or ollama)", ErrInvalidProvider, c.Provider)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidPostgres)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidPostgres, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: empty database name", ErrInvalidPostgres)
	}
	if strings.TrimSpace(c.SQLitePath) == "" {
		return ErrInvalidSQLitePath
	}
	if c.DefaultTopK < 1 || c.DefaultTopK > 10 {
		return fmt.Errorf("%w: %d (expected 1..10)", ErrInvalidTopK, c.DefaultTopK)
	}
	if c.MaxHistoryTurns < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidHistory, c.MaxHistoryTurns)
	}
	if c.ClarifyMinSignals < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidThreshold, c.ClarifyMinSignals)
	}
	if strings.TrimSpace(c.Addr) == "" {
		return ErrInvalidAddr
	}
	return nil
}

// PostgresURL returns the postgres:// connection URL.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   "/" + c.PostgresDBName,
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// FullModelName returns the provider-qualified model name for genkit,
// e.g. "googleai/gemini-2.5-flash". A name already containing "/" is
// returned unchanged.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	return c.Provider + "/" + c.ModelName
}

// FullEmbedderName returns the provider-qualified embedder name.
func (c *Config) FullEmbedderName() string {
	if strings.Contains(c.EmbedderModel, "/") {
		return c.EmbedderModel
	}
	return c.Provider + "/" + c.EmbedderModel
}

const maskedValue = "████████"

// maskSecret shows the first and last two characters of long secrets and
// fully masks short ones so the mask never leaks a matchable substring.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON masks sensitive fields so the config can be logged.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}
