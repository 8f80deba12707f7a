package builder

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/melih/lighthouse-autobuild/internal/config"
	berrors "github.com/melih/lighthouse-autobuild/internal/errors"
)

// CLIProber checks that the build tool is installed and its daemon answers.
// Each check is a separate short-lived invocation with its own timeout.
type CLIProber struct {
	binary         string
	versionArgs    []string
	infoArgs       []string
	versionTimeout time.Duration
	daemonTimeout  time.Duration
}

// NewCLIProber creates a prober running "<binary> --version" and
// "<binary> info".
func NewCLIProber(cfg config.BuilderConfig) *CLIProber {
	return &CLIProber{
		binary:         cfg.Binary,
		versionArgs:    []string{"--version"},
		infoArgs:       []string{"info"},
		versionTimeout: cfg.VersionProbeTimeout,
		daemonTimeout:  cfg.DaemonProbeTimeout,
	}
}

// Probe returns a dependency error when either check fails.
func (p *CLIProber) Probe(ctx context.Context) error {
	if err := p.run(ctx, p.versionTimeout, p.versionArgs); err != nil {
		return berrors.ToolUnavailable("installed", err)
	}
	if err := p.run(ctx, p.daemonTimeout, p.infoArgs); err != nil {
		return berrors.ToolUnavailable("daemon", err)
	}
	return nil
}

func (p *CLIProber) run(ctx context.Context, timeout time.Duration, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, p.binary, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = waitDelay
	killProcessGroup(cmd)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s %s: timed out after %s", p.binary, strings.Join(args, " "), timeout)
		}
		msg := strings.TrimSpace(out.String())
		if len(msg) > 200 {
			msg = msg[:200]
		}
		if msg != "" {
			return fmt.Errorf("%s %s: %w: %s", p.binary, strings.Join(args, " "), err, msg)
		}
		return fmt.Errorf("%s %s: %w", p.binary, strings.Join(args, " "), err)
	}
	return nil
}
