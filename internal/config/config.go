package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"pepkit/internal/execution"
	"pepkit/internal/logging"
)

// Config holds all pepkit configuration.
type Config struct {
	// Engine invocation
	Engine EngineConfig `yaml:"engine"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Pipeline scheduling
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Binary:            "pepsirf",
			AllowedEnvVars:    []string{"PATH", "HOME", "LANG", "LC_ALL", "TMPDIR"},
			MaxCapturedOutput: 64 * 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Pipeline: PipelineConfig{
			Parallelism: 1,
			OutfileDir:  ".",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
			logging.ConfigDebug("loaded config from %s", path)
		case os.IsNotExist(err):
			logging.ConfigDebug("config %s not found, using defaults", path)
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
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
	if bin := os.Getenv("PEPSIRF_BINARY"); bin != "" {
		c.Engine.Binary = bin
	}
	if dir := os.Getenv("PEPKIT_SCRATCH_DIR"); dir != "" {
		c.Engine.ScratchDir = dir
	}
	if level := os.Getenv("PEPKIT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if n := os.Getenv("PEPKIT_PARALLELISM"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			c.Pipeline.Parallelism = v
		} else {
			logging.Get(logging.CategoryConfig).Warn("ignoring PEPKIT_PARALLELISM=%q: %v", n, err)
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Engine.Binary == "" {
		return fmt.Errorf("engine.binary must not be empty")
	}
	if c.Engine.MaxCapturedOutput < 0 {
		return fmt.Errorf("engine.max_captured_output must not be negative")
	}
	if c.Engine.ScratchDir != "" {
		info, err := os.Stat(c.Engine.ScratchDir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("engine.scratch_dir %s is not a directory", c.Engine.ScratchDir)
		}
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "console", "text", "json":
	default:
		return fmt.Errorf("invalid logging.format: %s (valid: console, json)", c.Logging.Format)
	}
	if c.Pipeline.Parallelism < 1 {
		return fmt.Errorf("pipeline.parallelism must be at least 1, got %d", c.Pipeline.Parallelism)
	}
	return nil
}

// ExecutorConfig converts the engine section for the executor.
func (c *Config) ExecutorConfig() execution.ExecutorConfig {
	return execution.ExecutorConfig{
		AllowedEnvironment: append([]string(nil), c.Engine.AllowedEnvVars...),
		MaxCapturedOutput:  c.Engine.MaxCapturedOutput,
	}
}
