package config

import (
	"fmt"
	"strings"

	berrors "github.com/melih/lighthouse-autobuild/internal/errors"
)

// Validate checks cross-field invariants after defaults are applied.
func (c *Config) Validate() error {
	switch c.Builder.Backend {
	case BackendCLI, BackendAPI:
	default:
		return berrors.ConfigInvalid("builder.backend", fmt.Sprintf("unknown backend %q", c.Builder.Backend))
	}
	if c.Builder.Backend == BackendCLI && strings.TrimSpace(c.Builder.Binary) == "" {
		return berrors.ConfigInvalid("builder.binary", "required for cli backend")
	}
	if c.Retry.MaxRetries < 1 {
		return berrors.ConfigInvalid("retry.max_retries", "must be at least 1")
	}
	switch c.Generator.Provider {
	case GeneratorNone:
	case GeneratorOpenAI:
		if c.Generator.APIKey == "" {
			return berrors.ConfigInvalid("generator.api_key", "required for openai provider")
		}
	case GeneratorCommand:
		if len(c.Generator.Command) == 0 {
			return berrors.ConfigInvalid("generator.command", "required for command provider")
		}
	default:
		return berrors.ConfigInvalid("generator.provider", fmt.Sprintf("unknown provider %q", c.Generator.Provider))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return berrors.ConfigInvalid("logging.format", "must be text or json")
	}
	return nil
}
