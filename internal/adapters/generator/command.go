package generator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Command pipes the prompt to a local CLI, e.g. "claude --print", and reads
// the definition from its stdout.
type Command struct {
	argv    []string
	timeout time.Duration
}

// NewCommand creates a generator running argv.
func NewCommand(argv []string, timeout time.Duration) (*Command, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("generator command is empty")
	}
	return &Command{argv: argv, timeout: timeout}, nil
}

// Generate runs the command once.
func (c *Command) Generate(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 3 * time.Second

	if err := cmd.Run(); err != nil {
		if _, lookErr := exec.LookPath(c.argv[0]); lookErr != nil {
			return "", fmt.Errorf("%s not found: %w", c.argv[0], lookErr)
		}
		return "", fmt.Errorf("%s: %s: %w", c.argv[0], strings.TrimSpace(stderr.String()), err)
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", fmt.Errorf("%s returned empty response", c.argv[0])
	}
	return out, nil
}
