package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Builder   BuilderConfig   `yaml:"builder"`
	Retry     RetryConfig     `yaml:"retry"`
	Generator GeneratorConfig `yaml:"generator"`
	Staging   StagingConfig   `yaml:"staging"`
	Intake    IntakeConfig    `yaml:"intake"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr                  string        `yaml:"addr"`
	MaxConcurrentSessions int           `yaml:"max_concurrent_sessions"`
	SessionTimeout        time.Duration `yaml:"session_timeout"`
	HistorySize           int           `yaml:"history_size"`
	BodyLimitBytes        int           `yaml:"body_limit_bytes"`
}

// BuilderBackend selects how container builds are executed.
type BuilderBackend string

const (
	BackendCLI BuilderBackend = "cli" // spawn the build tool as a child process
	BackendAPI BuilderBackend = "api" // talk to the daemon through the Docker SDK
)

// BuilderConfig configures the external container build tool.
type BuilderConfig struct {
	Backend             BuilderBackend `yaml:"backend"`
	Binary              string         `yaml:"binary"`
	Args                []string       `yaml:"args,omitempty"` // placeholders: {definition} {context} {tag}
	BuildTimeout        time.Duration  `yaml:"build_timeout"`
	VersionProbeTimeout time.Duration  `yaml:"version_probe_timeout"`
	DaemonProbeTimeout  time.Duration  `yaml:"daemon_probe_timeout"`
	ImageRepository     string         `yaml:"image_repository"`
}

// RetryConfig bounds the build-monitor loop.
type RetryConfig struct {
	MaxRetries   int              `yaml:"max_retries"`
	Backoff      RetryBackoffMode `yaml:"backoff"`
	InitialDelay time.Duration    `yaml:"initial_delay"`
	MaxDelay     time.Duration    `yaml:"max_delay"`
}

// GeneratorProvider selects the generative-text collaborator.
type GeneratorProvider string

const (
	GeneratorNone    GeneratorProvider = "none"
	GeneratorOpenAI  GeneratorProvider = "openai"
	GeneratorCommand GeneratorProvider = "command"
)

// GeneratorConfig configures the external generation collaborator.
type GeneratorConfig struct {
	Provider GeneratorProvider `yaml:"provider"`
	BaseURL  string            `yaml:"base_url,omitempty"`
	APIKey   string            `yaml:"api_key,omitempty"`
	Model    string            `yaml:"model,omitempty"`
	Command  []string          `yaml:"command,omitempty"`
	Timeout  time.Duration     `yaml:"timeout"`
}

// StagingConfig configures per-attempt build directories.
type StagingConfig struct {
	Root          string        `yaml:"root,omitempty"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	MaxAge        time.Duration `yaml:"max_age"`
}

// IntakeConfig limits what is read from uploads and repositories.
type IntakeConfig struct {
	MaxFiles     int           `yaml:"max_files"`
	MaxFileBytes int64         `yaml:"max_file_bytes"`
	Ignore       []string      `yaml:"ignore,omitempty"`
	CloneTimeout time.Duration `yaml:"clone_timeout"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text|json
}

// Load loads configuration from the specified file. An empty path yields the
// defaults. Environment variables from .env files are loaded first and
// ${VAR} references in the YAML are expanded.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	cfg := Default()
	if configPath == "" {
		return cfg, cfg.Validate()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}
	// #nosec G304 -- operator-supplied config path
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads the first .env file found; process variables win.
func loadEnvFiles() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err == nil {
			return
		}
	}
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.MaxConcurrentSessions <= 0 {
		c.Server.MaxConcurrentSessions = d.Server.MaxConcurrentSessions
	}
	if c.Server.SessionTimeout <= 0 {
		c.Server.SessionTimeout = d.Server.SessionTimeout
	}
	if c.Server.HistorySize <= 0 {
		c.Server.HistorySize = d.Server.HistorySize
	}
	if c.Server.BodyLimitBytes <= 0 {
		c.Server.BodyLimitBytes = d.Server.BodyLimitBytes
	}
	c.Builder.Backend = BuilderBackend(strings.ToLower(strings.TrimSpace(string(c.Builder.Backend))))
	if c.Builder.Backend == "" {
		c.Builder.Backend = d.Builder.Backend
	}
	if c.Builder.Binary == "" {
		c.Builder.Binary = d.Builder.Binary
	}
	if len(c.Builder.Args) == 0 {
		c.Builder.Args = d.Builder.Args
	}
	if c.Builder.BuildTimeout <= 0 {
		c.Builder.BuildTimeout = d.Builder.BuildTimeout
	}
	if c.Builder.VersionProbeTimeout <= 0 {
		c.Builder.VersionProbeTimeout = d.Builder.VersionProbeTimeout
	}
	if c.Builder.DaemonProbeTimeout <= 0 {
		c.Builder.DaemonProbeTimeout = d.Builder.DaemonProbeTimeout
	}
	if c.Builder.ImageRepository == "" {
		c.Builder.ImageRepository = d.Builder.ImageRepository
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = d.Retry.MaxRetries
	}
	if c.Retry.Backoff != "" {
		c.Retry.Backoff = NormalizeRetryBackoff(string(c.Retry.Backoff))
	}
	if c.Retry.Backoff == "" {
		c.Retry.Backoff = d.Retry.Backoff
	}
	if c.Retry.InitialDelay <= 0 {
		c.Retry.InitialDelay = d.Retry.InitialDelay
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = d.Retry.MaxDelay
	}
	c.Generator.Provider = GeneratorProvider(strings.ToLower(strings.TrimSpace(string(c.Generator.Provider))))
	if c.Generator.Provider == "" {
		c.Generator.Provider = d.Generator.Provider
	}
	if c.Generator.Timeout <= 0 {
		c.Generator.Timeout = d.Generator.Timeout
	}
	if c.Generator.Provider == GeneratorOpenAI {
		if c.Generator.BaseURL == "" {
			c.Generator.BaseURL = "https://api.openai.com"
		}
		if c.Generator.Model == "" {
			c.Generator.Model = "gpt-4o-mini"
		}
	}
	if c.Staging.SweepInterval <= 0 {
		c.Staging.SweepInterval = d.Staging.SweepInterval
	}
	if c.Staging.MaxAge <= 0 {
		c.Staging.MaxAge = d.Staging.MaxAge
	}
	if c.Intake.MaxFiles <= 0 {
		c.Intake.MaxFiles = d.Intake.MaxFiles
	}
	if c.Intake.MaxFileBytes <= 0 {
		c.Intake.MaxFileBytes = d.Intake.MaxFileBytes
	}
	if c.Intake.Ignore == nil {
		c.Intake.Ignore = d.Intake.Ignore
	}
	if c.Intake.CloneTimeout <= 0 {
		c.Intake.CloneTimeout = d.Intake.CloneTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
}
