// Package config provides hierarchical configuration loading for agentrelay.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the agentrelay service.
type Config struct {
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
	Agent   Agent   `yaml:"agent"`
	Oracle  Oracle  `yaml:"oracle"`
	NATS    NATS    `yaml:"nats"`
	Cache   Cache   `yaml:"cache"`
	MCP     MCP     `yaml:"mcp"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// Agent holds session and run-loop configuration.
type Agent struct {
	Version         string        `yaml:"version"`
	OutputDir       string        `yaml:"output_dir"`
	MemoryDir       string        `yaml:"memory_dir"`
	DefaultMaxSteps int           `yaml:"default_max_steps"`
	InputTimeout    time.Duration `yaml:"input_timeout"`
}

// Oracle holds decision-oracle endpoint configuration. Any
// OpenAI-compatible chat completions endpoint works; Provider is
// informational and surfaced in status events.
type Oracle struct {
	Provider  string        `yaml:"provider"`
	URL       string        `yaml:"url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// NATS holds the optional JetStream event mirror configuration.
type NATS struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// Cache holds the file-download cache configuration.
type Cache struct {
	MaxSizeMB int64         `yaml:"max_size_mb"`
	TTL       time.Duration `yaml:"ttl"`
}

// MCP holds the optional MCP tool-server configuration. When enabled, tools
// are executed by the external MCP server instead of the built-in set.
type MCP struct {
	Enabled   bool     `yaml:"enabled"`
	Transport string   `yaml:"transport"` // "stdio", "sse" or "http"
	Command   string   `yaml:"command"`
	Args      []string `yaml:"args"`
	URL       string   `yaml:"url"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "5000",
			CORSOrigin: "*",
		},
		Logging: Logging{
			Level:   "info",
			Service: "agentrelay",
		},
		Agent: Agent{
			Version:         "1.0.0",
			OutputDir:       "output",
			MemoryDir:       "memory",
			DefaultMaxSteps: 10,
			InputTimeout:    5 * time.Minute,
		},
		Oracle: Oracle{
			Provider:  "openai",
			URL:       "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			MaxTokens: 4096,
			Timeout:   2 * time.Minute,
		},
		NATS: NATS{
			Enabled: false,
			URL:     "nats://localhost:4222",
		},
		Cache: Cache{
			MaxSizeMB: 64,
			TTL:       5 * time.Minute,
		},
		MCP: MCP{
			Enabled:   false,
			Transport: "stdio",
		},
	}
}
