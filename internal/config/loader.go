package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "agentrelay.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "AGENTRELAY_PORT")
	setString(&cfg.Server.CORSOrigin, "AGENTRELAY_CORS_ORIGIN")
	setString(&cfg.Logging.Level, "AGENTRELAY_LOG_LEVEL")
	setString(&cfg.Logging.Service, "AGENTRELAY_LOG_SERVICE")
	setString(&cfg.Agent.OutputDir, "AGENTRELAY_OUTPUT_DIR")
	setString(&cfg.Agent.MemoryDir, "AGENTRELAY_MEMORY_DIR")
	setInt(&cfg.Agent.DefaultMaxSteps, "AGENTRELAY_MAX_STEPS")
	setDuration(&cfg.Agent.InputTimeout, "AGENTRELAY_INPUT_TIMEOUT")
	setString(&cfg.Oracle.Provider, "AGENTRELAY_ORACLE_PROVIDER")
	setString(&cfg.Oracle.URL, "AGENTRELAY_ORACLE_URL")
	setString(&cfg.Oracle.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Oracle.APIKey, "AGENTRELAY_ORACLE_API_KEY")
	setString(&cfg.Oracle.Model, "AGENTRELAY_ORACLE_MODEL")
	setInt(&cfg.Oracle.MaxTokens, "AGENTRELAY_ORACLE_MAX_TOKENS")
	setDuration(&cfg.Oracle.Timeout, "AGENTRELAY_ORACLE_TIMEOUT")
	setBool(&cfg.NATS.Enabled, "AGENTRELAY_NATS_ENABLED")
	setString(&cfg.NATS.URL, "NATS_URL")
	setInt64(&cfg.Cache.MaxSizeMB, "AGENTRELAY_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "AGENTRELAY_CACHE_TTL")
	setBool(&cfg.MCP.Enabled, "AGENTRELAY_MCP_ENABLED")
	setString(&cfg.MCP.Transport, "AGENTRELAY_MCP_TRANSPORT")
	setString(&cfg.MCP.Command, "AGENTRELAY_MCP_COMMAND")
	setString(&cfg.MCP.URL, "AGENTRELAY_MCP_URL")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Agent.OutputDir == "" {
		return errors.New("agent.output_dir is required")
	}
	if cfg.Agent.DefaultMaxSteps < 1 {
		return errors.New("agent.default_max_steps must be >= 1")
	}
	if cfg.Agent.InputTimeout <= 0 {
		return errors.New("agent.input_timeout must be positive")
	}
	if cfg.Oracle.URL == "" {
		return errors.New("oracle.url is required")
	}
	if cfg.Oracle.Model == "" {
		return errors.New("oracle.model is required")
	}
	if cfg.NATS.Enabled && cfg.NATS.URL == "" {
		return errors.New("nats.url is required when nats.enabled")
	}
	if cfg.Cache.MaxSizeMB < 1 {
		return errors.New("cache.max_size_mb must be >= 1")
	}
	if cfg.MCP.Enabled {
		switch cfg.MCP.Transport {
		case "stdio":
			if cfg.MCP.Command == "" {
				return errors.New("mcp.command is required for stdio transport")
			}
		case "sse", "http":
			if cfg.MCP.URL == "" {
				return errors.New("mcp.url is required for sse/http transport")
			}
		default:
			return fmt.Errorf("unsupported mcp.transport %q", cfg.MCP.Transport)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
