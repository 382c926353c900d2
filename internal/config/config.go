// Package config provides application configuration management using koanf.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration for the application.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Storage      StorageConfig      `koanf:"storage"`
	Services     ServicesConfig     `koanf:"services"`
	Search       SearchConfig       `koanf:"search"`
	Conversation ConversationConfig `koanf:"conversation"`
	Security     SecurityConfig     `koanf:"security"`
	App          AppConfig          `koanf:"app"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `koanf:"host"`
	Port         int    `koanf:"port"`
	ReadTimeout  int    `koanf:"read_timeout"`  // seconds
	WriteTimeout int    `koanf:"write_timeout"` // seconds
}

// StorageConfig selects and configures the collection store backend.
type StorageConfig struct {
	Backend     string `koanf:"backend"` // "sqlite" or "chromem"
	Path        string `koanf:"path"`    // sqlite database file
	ChromemPath string `koanf:"chromem_path"`
	Compress    bool   `koanf:"compress"` // chromem gzip persistence
}

// ServicesConfig holds external service configuration.
type ServicesConfig struct {
	Ollama OllamaConfig `koanf:"ollama"`
}

// OllamaConfig holds Ollama embedding/generation service configuration.
// When Enabled is false the deterministic hash embedder and the extractive
// composer are used instead; retrieval keeps working without the service.
type OllamaConfig struct {
	Enabled        bool   `koanf:"enabled"`
	BaseURL        string `koanf:"base_url"`
	EmbeddingModel string `koanf:"embedding_model"`
	LLMModel       string `koanf:"llm_model"`
	Generate       bool   `koanf:"generate"` // wire the generative answer path
	Timeout        int    `koanf:"timeout"`  // seconds
}

// SearchConfig tunes the federated query engine. Scoped searches use a
// larger per-collection top-k than public ones, which span more collections.
type SearchConfig struct {
	ScopedTopK        int `koanf:"scoped_top_k"`
	PublicTopK        int `koanf:"public_top_k"`
	CollectionTimeout int `koanf:"collection_timeout"` // seconds, per branch
	DefaultLimit      int `koanf:"default_limit"`
	MaxLimit          int `koanf:"max_limit"`
}

// ConversationConfig tunes the in-memory conversation store.
type ConversationConfig struct {
	HistoryWindow int `koanf:"history_window"` // turns fed to the composer
	TTLMinutes    int `koanf:"ttl_minutes"`    // 0 disables eviction
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	ErrorMode string `koanf:"error_mode"` // "detailed" or "secure"
}

// AppConfig holds general application settings.
type AppConfig struct {
	Environment string `koanf:"environment"` // "development", "staging", "production"
	LogLevel    string `koanf:"log_level"`   // "debug", "info", "warn", "error"
}

// Load loads configuration from multiple sources with precedence:
// 1. config.yaml (if exists)
// 2. config.json (if exists)
// 3. Environment variables (highest precedence)
func Load() (*Config, error) {
	k := koanf.New(".")

	setDefaults(k)
	loadConfigFiles(k)

	if err := k.Load(env.Provider(".", env.Opt{}), nil); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(k *koanf.Koanf) {
	defaults := map[string]interface{}{
		"server.host":          "localhost",
		"server.port":          8080,
		"server.read_timeout":  30,
		"server.write_timeout": 30,

		"storage.backend":      "sqlite",
		"storage.path":         "docqa.db",
		"storage.chromem_path": "docqa-chromem",
		"storage.compress":     false,

		"services.ollama.enabled":         false,
		"services.ollama.base_url":        "http://localhost:11434",
		"services.ollama.embedding_model": "nomic-embed-text",
		"services.ollama.llm_model":       "llama3",
		"services.ollama.generate":        false,
		"services.ollama.timeout":         60,

		"search.scoped_top_k":       5,
		"search.public_top_k":       3,
		"search.collection_timeout": 10,
		"search.default_limit":      10,
		"search.max_limit":          50,

		"conversation.history_window": 10,
		"conversation.ttl_minutes":    0,

		"security.error_mode": "detailed",

		"app.environment": "development",
		"app.log_level":   "info",
	}

	for key, value := range defaults {
		_ = k.Set(key, value)
	}
}

// loadConfigFiles loads configuration from files.
func loadConfigFiles(k *koanf.Koanf) {
	if _, err := os.Stat("config.yaml"); err == nil {
		if err := k.Load(file.Provider("config.yaml"), yaml.Parser()); err != nil {
			log.Printf("Warning: failed to load config.yaml: %v", err)
		}
	}

	if _, err := os.Stat("config.json"); err == nil {
		if err := k.Load(file.Provider("config.json"), json.Parser()); err != nil {
			log.Printf("Warning: failed to load config.json: %v", err)
		}
	}
}

// validate validates the configuration.
func validate(cfg *Config) error {
	switch cfg.Storage.Backend {
	case "sqlite", "chromem":
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if cfg.Storage.Backend == "sqlite" && cfg.Storage.Path == "" {
		return fmt.Errorf("storage path is required for the sqlite backend")
	}

	if cfg.Search.ScopedTopK <= 0 || cfg.Search.PublicTopK <= 0 {
		return fmt.Errorf("search top-k values must be positive")
	}

	if cfg.Search.MaxLimit < cfg.Search.DefaultLimit {
		return fmt.Errorf("search max_limit must be at least default_limit")
	}

	if cfg.Conversation.HistoryWindow <= 0 {
		return fmt.Errorf("conversation history window must be positive")
	}

	if cfg.Services.Ollama.Generate && !cfg.Services.Ollama.Enabled {
		return fmt.Errorf("generative answers require the ollama service to be enabled")
	}

	return nil
}

// CollectionTimeout returns the per-collection query timeout as a duration.
func (c *Config) CollectionTimeout() time.Duration {
	return time.Duration(c.Search.CollectionTimeout) * time.Second
}

// ConversationTTL returns the conversation idle TTL; zero disables eviction.
func (c *Config) ConversationTTL() time.Duration {
	return time.Duration(c.Conversation.TTLMinutes) * time.Minute
}

// DetailedErrors reports whether error responses may carry reasons.
func (c *Config) DetailedErrors() bool {
	return c.Security.ErrorMode != "secure" && !c.IsProduction()
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
