// Package commands implements the autobuild command line.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/melih/lighthouse-autobuild/internal/config"
)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path (defaults apply when empty)" env:"AUTOBUILD_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Serve    ServeCmd    `cmd:"" help:"Serve the build session HTTP API"`
	Build    BuildCmd    `cmd:"" help:"Run one build session over a local directory"`
	Classify ClassifyCmd `cmd:"" help:"Classify build output read from a file or stdin"`
	Probe    ProbeCmd    `cmd:"" help:"Check that the container build tool is usable"`
}

// load reads the configuration and installs the process logger.
func (c *CLI) load(g *Global) (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	g.Logger = cfg.Logging.NewLogger(os.Stderr, c.Verbose)
	slog.SetDefault(g.Logger)
	return cfg, nil
}
