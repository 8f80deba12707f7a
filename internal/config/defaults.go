package config

import "time"

// DefaultMaxRetries is the attempt ceiling of one build session.
const DefaultMaxRetries = 3

// Default returns a fully populated configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                  ":3000",
			MaxConcurrentSessions: 4,
			SessionTimeout:        30 * time.Minute,
			HistorySize:           200,
			BodyLimitBytes:        64 << 20,
		},
		Builder: BuilderConfig{
			Backend:             BackendCLI,
			Binary:              "docker",
			Args:                []string{"build", "-f", "{definition}", "-t", "{tag}", "{context}"},
			BuildTimeout:        10 * time.Minute,
			VersionProbeTimeout: 5 * time.Second,
			DaemonProbeTimeout:  10 * time.Second,
			ImageRepository:     "autobuild",
		},
		Retry: RetryConfig{
			MaxRetries:   DefaultMaxRetries,
			Backoff:      RetryBackoffLinear,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
		},
		Generator: GeneratorConfig{
			Provider: GeneratorNone,
			Timeout:  90 * time.Second,
		},
		Staging: StagingConfig{
			SweepInterval: 15 * time.Minute,
			MaxAge:        2 * time.Hour,
		},
		Intake: IntakeConfig{
			MaxFiles:     5000,
			MaxFileBytes: 5 << 20,
			Ignore:       []string{".git/**", "node_modules/**", "**/__pycache__/**", "vendor/**"},
			CloneTimeout: 2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
