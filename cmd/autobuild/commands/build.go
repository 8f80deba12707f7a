package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/melih/lighthouse-autobuild/internal/adapters/intake"
	"github.com/melih/lighthouse-autobuild/internal/core/domain"
	"github.com/melih/lighthouse-autobuild/internal/core/ports"
	"github.com/melih/lighthouse-autobuild/internal/core/session"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Dir        string `short:"d" help:"Project directory" default:"." type:"existingdir"`
	Definition string `short:"f" help:"Build definition file (defaults to the project's Dockerfile)"`
	Tag        string `short:"t" help:"Image tag (generated when empty)"`
	MaxRetries int    `help:"Attempt ceiling, overrides retry.max_retries"`
	JSON       bool   `help:"Print the session as JSON"`
	Quiet      bool   `short:"q" help:"Do not stream build output"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.load(g)
	if err != nil {
		return err
	}
	files, err := intake.LoadDir(b.Dir, intake.LimitsFromConfig(cfg.Intake), g.Logger)
	if err != nil {
		return err
	}
	defPath := b.Definition
	if defPath == "" {
		defPath = filepath.Join(b.Dir, ports.DefinitionFile)
	}
	def, err := os.ReadFile(defPath) // #nosec G304 -- operator-supplied path
	if err != nil {
		return fmt.Errorf("read definition: %w", err)
	}

	rt, err := newRuntime(cfg, g.Logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	req := session.Request{
		Files:      files,
		Definition: string(def),
		ImageTag:   b.Tag,
		MaxRetries: b.MaxRetries,
	}
	if !b.Quiet {
		req.OnChunk = func(attempt int, c domain.LogChunk) {
			fmt.Fprintf(os.Stderr, "[%d %s] %s\n", attempt, c.Stream, c.Text)
		}
	}
	sess := rt.controller().Run(ctx, req)

	if b.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sess); err != nil {
			return err
		}
	} else {
		fmt.Println(sess.Message)
		if sess.Status == domain.StatusSucceeded {
			fmt.Printf("image: %s\n", sess.ImageTag)
		}
	}
	if sess.Status != domain.StatusSucceeded {
		return fmt.Errorf("build %s", sess.Status)
	}
	return nil
}
