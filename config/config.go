// Package config loads promptsmith configuration from .env, an optional
// YAML file and PROMPTSMITH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration options for promptsmith.
type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Generation GenerationConfig `mapstructure:"generation"`
	Rules      RulesConfig      `mapstructure:"rules"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Temporal   TemporalConfig   `mapstructure:"temporal"`
	Library    LibraryConfig    `mapstructure:"library"`
	Sessions   SessionsConfig   `mapstructure:"sessions"`
	Log        LogConfig        `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// GenerationConfig configures the generative-language endpoint. APIKey and
// Host are the environment defaults; a stored override wins over both.
type GenerationConfig struct {
	Provider       string   `mapstructure:"provider"` // "gemini" or "openai"
	APIKey         string   `mapstructure:"api_key"`
	Host           string   `mapstructure:"host"`
	DefaultModel   string   `mapstructure:"default_model"`
	Models         []string `mapstructure:"models"`
	OutputLanguage string   `mapstructure:"output_language"`
}

// RulesConfig selects where the rules document is loaded from.
type RulesConfig struct {
	Source  string `mapstructure:"source"` // embedded, file, url, git
	Path    string `mapstructure:"path"`   // file path, or path inside the git repo
	URL     string `mapstructure:"url"`    // http(s) URL or git remote
	GitRef  string `mapstructure:"git_ref"`
	GitUser string `mapstructure:"git_user"`
	GitPAT  string `mapstructure:"git_pat"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type TemporalConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// LibraryConfig points at the git repository final prompts are published to.
// An empty Path disables publishing.
type LibraryConfig struct {
	Path        string `mapstructure:"path"`
	AuthorName  string `mapstructure:"author_name"`
	AuthorEmail string `mapstructure:"author_email"`
}

type SessionsConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	DefaultModel     = "gemini-2.5-flash"
	DefaultTaskQueue = "promptsmith-architect-queue"
)

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":3000")
	// empty defaults make the keys visible to AutomaticEnv during Unmarshal
	v.SetDefault("generation.host", "")
	v.SetDefault("rules.url", "")
	v.SetDefault("rules.git_user", "")
	v.SetDefault("rules.git_pat", "")
	v.SetDefault("library.path", "")
	v.SetDefault("generation.provider", ProviderGemini)
	v.SetDefault("generation.default_model", DefaultModel)
	v.SetDefault("generation.models", []string{DefaultModel})
	v.SetDefault("generation.output_language", "English")
	v.SetDefault("rules.source", "embedded")
	v.SetDefault("rules.path", "systemPromptRules.txt")
	v.SetDefault("rules.git_ref", "main")
	v.SetDefault("database.path", "./promptsmith.db")
	v.SetDefault("temporal.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", DefaultTaskQueue)
	v.SetDefault("library.author_name", "promptsmith")
	v.SetDefault("library.author_email", "promptsmith@localhost")
	v.SetDefault("sessions.ttl", 2*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads .env (if present), then the config file (if any), then the
// environment. configFile may be empty.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	// .env values never override variables already set in the environment
	_ = godotenv.Load()

	SetDefaults(v)
	v.SetEnvPrefix("PROMPTSMITH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// GEMINI_API_KEY wins over the legacy API_KEY variable
	_ = v.BindEnv("generation.api_key", "PROMPTSMITH_GENERATION_API_KEY", "GEMINI_API_KEY", "API_KEY")
	_ = v.BindEnv("temporal.host_port", "PROMPTSMITH_TEMPORAL_HOST_PORT", "TEMPORAL_ADDRESS")
	_ = v.BindEnv("temporal.task_queue", "PROMPTSMITH_TEMPORAL_TASK_QUEUE", "TEMPORAL_TASK_QUEUE")
	_ = v.BindEnv("http.addr", "PROMPTSMITH_HTTP_ADDR")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("promptsmith")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Generation.APIKey == "" && cfg.Generation.Provider == ProviderOpenAI {
		cfg.Generation.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot check on its own.
func (c *Config) Validate() error {
	switch c.Generation.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("generation.provider: unknown provider %q", c.Generation.Provider)
	}
	switch c.Rules.Source {
	case "embedded":
	case "file":
		if c.Rules.Path == "" {
			return errors.New("rules.path is required for the file source")
		}
	case "url", "git":
		if c.Rules.URL == "" {
			return fmt.Errorf("rules.url is required for the %s source", c.Rules.Source)
		}
	default:
		return fmt.Errorf("rules.source: unknown source %q", c.Rules.Source)
	}
	if c.Generation.DefaultModel == "" {
		return errors.New("generation.default_model must not be empty")
	}
	if c.Temporal.Enabled && c.Temporal.TaskQueue == "" {
		return errors.New("temporal.task_queue must not be empty")
	}
	if c.Sessions.TTL <= 0 {
		return errors.New("sessions.ttl must be positive")
	}
	return nil
}
