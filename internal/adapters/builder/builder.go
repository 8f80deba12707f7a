// Package builder runs the container build tool as a child process.
package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/melih/lighthouse-autobuild/internal/config"
	"github.com/melih/lighthouse-autobuild/internal/core/domain"
	"github.com/melih/lighthouse-autobuild/internal/core/ports"
	berrors "github.com/melih/lighthouse-autobuild/internal/errors"
	"github.com/melih/lighthouse-autobuild/internal/logfields"
)

// Argument placeholders expanded per build.
const (
	PlaceholderDefinition = "{definition}"
	PlaceholderContext    = "{context}"
	PlaceholderTag        = "{tag}"
)

// waitDelay bounds how long Wait keeps reading pipes after the process was
// killed, e.g. when a grandchild still holds them open.
const waitDelay = 3 * time.Second

// CLIInvoker spawns one build process per Invoke.
type CLIInvoker struct {
	binary  string
	args    []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewCLIInvoker creates an invoker from the builder config section.
func NewCLIInvoker(cfg config.BuilderConfig, logger *slog.Logger) *CLIInvoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIInvoker{
		binary:  cfg.Binary,
		args:    cfg.Args,
		timeout: cfg.BuildTimeout,
		logger:  logger.With(logfields.Component("builder")),
	}
}

func expandArgs(args []string, req ports.BuildRequest) []string {
	r := strings.NewReplacer(
		PlaceholderDefinition, req.DefinitionPath,
		PlaceholderContext, req.ContextPath,
		PlaceholderTag, req.ImageTag,
	)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}

// Invoke runs the build and streams stdout and stderr line by line to sink.
// A non-zero exit or a build timeout yields an unsuccessful result; the error
// is reserved for spawn failures and cancellation of ctx.
func (b *CLIInvoker) Invoke(ctx context.Context, req ports.BuildRequest, sink ports.LogSink) (ports.BuildResult, error) {
	buildCtx, cancel := ctx, context.CancelFunc(func() {})
	if b.timeout > 0 {
		buildCtx, cancel = context.WithTimeout(ctx, b.timeout)
	}
	defer cancel()

	var mu sync.Mutex
	emit := func(stream, text string) {
		mu.Lock()
		defer mu.Unlock()
		sink(domain.LogChunk{Stream: stream, Text: text})
	}
	stdout := newLineWriter("stdout", emit)
	stderr := newLineWriter("stderr", emit)

	args := expandArgs(b.args, req)
	cmd := exec.CommandContext(buildCtx, b.binary, args...)
	cmd.Dir = req.ContextPath
	cmd.Env = append(os.Environ(), "BUILDKIT_PROGRESS=plain", "DOCKER_CLI_HINTS=false")
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	killProcessGroup(cmd)

	b.logger.Debug("spawning build", slog.String("binary", b.binary), slog.Any("args", args))
	if err := cmd.Start(); err != nil {
		return ports.BuildResult{ExitCode: -1}, berrors.SpawnFailed(b.binary, err)
	}
	waitErr := cmd.Wait()
	stdout.Flush()
	stderr.Flush()

	if err := ctx.Err(); err != nil {
		return ports.BuildResult{ExitCode: -1}, berrors.Cancelled(err)
	}
	if errors.Is(buildCtx.Err(), context.DeadlineExceeded) {
		emit("system", fmt.Sprintf("build timed out after %s and was terminated", b.timeout))
		b.logger.Warn("build timed out", logfields.Duration(b.timeout), logfields.ImageTag(req.ImageTag))
		return ports.BuildResult{ExitCode: -1}, nil
	}
	if waitErr == nil {
		return ports.BuildResult{Success: true}, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return ports.BuildResult{ExitCode: exitErr.ExitCode()}, nil
	}
	return ports.BuildResult{ExitCode: -1}, berrors.SpawnFailed(b.binary, waitErr)
}
