package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all codesquad configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM provider configuration
	LLM LLMConfig `yaml:"llm"`

	// Snapshot persistence
	Store StoreConfig `yaml:"store"`

	// HTTP server
	Server ServerConfig `yaml:"server"`

	// Session behavior
	Session SessionConfig `yaml:"session"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the model gateway.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// StoreConfig configures session snapshot storage.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SessionConfig configures session behavior.
type SessionConfig struct {
	MaxSessions int    `yaml:"max_sessions"`
	DriverDelay string `yaml:"driver_delay"`
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	Debug bool   `yaml:"debug"`
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "codesquad",
		Version: "1.0.0",

		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-3-pro-preview",
			BaseURL:  "https://generativelanguage.googleapis.com/v1beta",
			Timeout:  "120s",
		},

		Store: StoreConfig{
			DatabasePath: "data/codesquad.db",
		},

		Server: ServerConfig{
			Addr: ":8090",
		},

		Session: SessionConfig{
			MaxSessions: 6,
			DriverDelay: "2s",
		},

		Logging: LoggingConfig{
			Debug: false,
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "gemini"
		}
	}

	if path := os.Getenv("CODESQUAD_DB"); path != "" {
		c.Store.DatabasePath = path
	}

	if addr := os.Getenv("CODESQUAD_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
}

// GetLLMTimeout returns the LLM request timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetDriverDelay returns the autonomous-driver re-arm delay as a duration.
func (c *Config) GetDriverDelay() time.Duration {
	d, err := time.ParseDuration(c.Session.DriverDelay)
	if err != nil {
		return 2 * time.Second
	}
	return d
}
