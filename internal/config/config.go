// Package config loads taxonmatch configuration from a YAML file with
// environment variable overrides on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all taxonmatch configuration.
type Config struct {
	// Taxonomy source file
	Taxonomy TaxonomyConfig `yaml:"taxonomy"`

	// LLM disambiguation service
	LLM LLMConfig `yaml:"llm"`

	// Resolution engine settings
	Matching MatchingConfig `yaml:"matching"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// TaxonomyConfig locates the reference taxonomy.
type TaxonomyConfig struct {
	Path string `yaml:"path"`
}

// LLMConfig configures the Gemini hierarchy-suggestion client.
type LLMConfig struct {
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	BaseURL         string `yaml:"base_url"`
	Timeout         string `yaml:"timeout"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
	MaxRetries      int    `yaml:"max_retries"`
}

// MatchingConfig configures the resolution engine.
type MatchingConfig struct {
	// Workers bounds concurrent per-row resolution. Sized against the
	// LLM provider's rate limits, not CPU.
	Workers int `yaml:"workers"`
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
	Debug bool   `yaml:"debug"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Taxonomy: TaxonomyConfig{
			Path: "taxonomy.txt",
		},
		LLM: LLMConfig{
			Model:           "gemini-2.5-flash",
			BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
			Timeout:         "60s",
			MaxOutputTokens: 8192,
			MaxRetries:      3,
		},
		Matching: MatchingConfig{
			Workers: 4,
		},
		Logging: LoggingConfig{
			Dir:   "logs",
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file is not an
// error: defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
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
	}
	if model := os.Getenv("TAXONMATCH_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if path := os.Getenv("TAXONOMY_PATH"); path != "" {
		c.Taxonomy.Path = path
	}
}

// GetLLMTimeout returns the LLM call timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}
