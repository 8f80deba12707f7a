package generator

import (
	"fmt"

	"github.com/melih/lighthouse-autobuild/internal/config"
	"github.com/melih/lighthouse-autobuild/internal/core/ports"
)

// FromConfig returns the configured generator, or nil when generation is
// disabled.
func FromConfig(cfg config.GeneratorConfig) (ports.DefinitionGenerator, error) {
	switch cfg.Provider {
	case config.GeneratorNone, "":
		return nil, nil
	case config.GeneratorOpenAI:
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout), nil
	case config.GeneratorCommand:
		return NewCommand(cfg.Command, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
}
