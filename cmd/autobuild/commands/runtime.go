package commands

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/melih/lighthouse-autobuild/internal/adapters/builder"
	"github.com/melih/lighthouse-autobuild/internal/adapters/docker"
	"github.com/melih/lighthouse-autobuild/internal/adapters/generator"
	"github.com/melih/lighthouse-autobuild/internal/adapters/staging"
	"github.com/melih/lighthouse-autobuild/internal/config"
	"github.com/melih/lighthouse-autobuild/internal/core/ports"
	"github.com/melih/lighthouse-autobuild/internal/core/session"
	"github.com/melih/lighthouse-autobuild/internal/logfields"
	"github.com/melih/lighthouse-autobuild/internal/metrics"
	"github.com/melih/lighthouse-autobuild/internal/retry"
)

// runtime holds the adapters shared by the commands.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	recorder  metrics.Recorder
	prober    ports.Prober
	invoker   ports.BuildInvoker
	area      *staging.Area
	generator ports.DefinitionGenerator
	closers   []func() error
}

func newRuntime(cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	rt.recorder = metrics.NewPrometheusRecorder(rt.registry)

	// 1. Build backend
	switch cfg.Builder.Backend {
	case config.BackendAPI:
		a, err := docker.NewAdapter(cfg.Builder.DaemonProbeTimeout, cfg.Builder.BuildTimeout, logger)
		if err != nil {
			return nil, err
		}
		rt.prober, rt.invoker = a, a
		rt.closers = append(rt.closers, a.Close)
	default:
		rt.prober = builder.NewCLIProber(cfg.Builder)
		rt.invoker = builder.NewCLIInvoker(cfg.Builder, logger)
	}

	// 2. Staging
	area, err := staging.NewArea(cfg.Staging.Root, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.area = area

	// 3. Generator (optional)
	gen, err := generator.FromConfig(cfg.Generator)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("configure generator: %w", err)
	}
	rt.generator = gen
	return rt, nil
}

func (rt *runtime) controller() *session.Controller {
	return session.NewController(session.ControllerDeps{
		Prober:          rt.prober,
		Invoker:         rt.invoker,
		Stager:          rt.area,
		Generator:       rt.generator,
		Metrics:         rt.recorder,
		Logger:          rt.logger,
		Policy:          retry.FromConfig(rt.cfg.Retry),
		ImageRepository: rt.cfg.Builder.ImageRepository,
	})
}

// Close releases the backend clients.
func (rt *runtime) Close() {
	for _, c := range rt.closers {
		if err := c(); err != nil {
			rt.logger.Warn("failed to close client", logfields.Error(err))
		}
	}
}
