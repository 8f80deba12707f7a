package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/melih/lighthouse-autobuild/internal/adapters/http"
	"github.com/melih/lighthouse-autobuild/internal/adapters/intake"
	"github.com/melih/lighthouse-autobuild/internal/adapters/staging"
	"github.com/melih/lighthouse-autobuild/internal/logfields"
	"github.com/melih/lighthouse-autobuild/internal/metrics"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Addr string `help:"Listen address, overrides server.addr"`
}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.load(g)
	if err != nil {
		return err
	}
	if s.Addr != "" {
		cfg.Server.Addr = s.Addr
	}

	rt, err := newRuntime(cfg, g.Logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	janitor, err := staging.NewJanitor(rt.area, cfg.Staging.SweepInterval, cfg.Staging.MaxAge)
	if err != nil {
		return err
	}
	janitor.Start()
	defer func() {
		if err := janitor.Stop(); err != nil {
			g.Logger.Warn("failed to stop staging janitor", logfields.Error(err))
		}
	}()

	limits := intake.LimitsFromConfig(cfg.Intake)
	handler := httpapi.NewBuildHandler(httpapi.BuildHandlerDeps{
		Runner:            rt.controller(),
		Prober:            rt.prober,
		Source:            intake.NewGitSource(cfg.Staging.Root, cfg.Intake.CloneTimeout, limits, g.Logger),
		Generator:         rt.generator,
		Store:             httpapi.NewSessionStore(cfg.Server.HistorySize),
		Limits:            limits,
		MaxConcurrent:     cfg.Server.MaxConcurrentSessions,
		SessionTimeout:    cfg.Server.SessionTimeout,
		DefaultMaxRetries: cfg.Retry.MaxRetries,
		ProbeTimeout:      cfg.Builder.VersionProbeTimeout + cfg.Builder.DaemonProbeTimeout,
		Logger:            g.Logger,
	})
	app := httpapi.NewApp(handler, metrics.Handler(rt.registry), cfg.Server.BodyLimitBytes)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Listen(cfg.Server.Addr)
	}()
	g.Logger.Info("server started",
		slog.String("addr", cfg.Server.Addr),
		slog.String("backend", string(cfg.Builder.Backend)),
		slog.Bool("generator", rt.generator != nil))

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		g.Logger.Info("shutdown signal received, stopping server")
	}
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	g.Logger.Info("server stopped")
	return nil
}
