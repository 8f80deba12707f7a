package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/melih/lighthouse-autobuild/internal/core/domain"
	"github.com/melih/lighthouse-autobuild/internal/core/ports"
	berrors "github.com/melih/lighthouse-autobuild/internal/errors"
	"github.com/melih/lighthouse-autobuild/internal/logfields"
)

// Adapter talks to the Docker daemon through the SDK. It implements both
// ports.Prober and ports.BuildInvoker.
type Adapter struct {
	cli          *client.Client
	probeTimeout time.Duration
	buildTimeout time.Duration
	logger       *slog.Logger
}

// NewAdapter creates a new Docker adapter instance
func NewAdapter(probeTimeout, buildTimeout time.Duration, logger *slog.Logger) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		cli:          cli,
		probeTimeout: probeTimeout,
		buildTimeout: buildTimeout,
		logger:       logger.With(logfields.Component("docker")),
	}, nil
}

// Close releases the client transport.
func (a *Adapter) Close() error {
	return a.cli.Close()
}

// Probe pings the daemon.
func (a *Adapter) Probe(ctx context.Context) error {
	if a.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.probeTimeout)
		defer cancel()
	}
	ping, err := a.cli.Ping(ctx)
	if err != nil {
		return berrors.ToolUnavailable("daemon", err)
	}
	a.logger.Debug("docker daemon reachable", slog.String("api_version", ping.APIVersion), slog.String("os", ping.OSType))
	return nil
}

// Invoke builds an image from the staged context through the daemon API and
// streams the daemon's progress messages to sink.
func (a *Adapter) Invoke(ctx context.Context, req ports.BuildRequest, sink ports.LogSink) (ports.BuildResult, error) {
	buildCtx := ctx
	if a.buildTimeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, a.buildTimeout)
		defer cancel()
	}

	// 1. Create Build Context (Tar)
	dockerfile, err := filepath.Rel(req.ContextPath, req.DefinitionPath)
	if err != nil || strings.HasPrefix(dockerfile, "..") {
		return ports.BuildResult{ExitCode: -1}, berrors.SpawnFailed("docker-api", fmt.Errorf("definition %s is outside the build context", req.DefinitionPath))
	}
	tar, err := archive.TarWithOptions(req.ContextPath, &archive.TarOptions{})
	if err != nil {
		return ports.BuildResult{ExitCode: -1}, berrors.SpawnFailed("docker-api", fmt.Errorf("failed to create build context: %w", err))
	}
	defer tar.Close()

	// 2. Build Docker Image
	resp, err := a.cli.ImageBuild(buildCtx, tar, types.ImageBuildOptions{
		Tags:        []string{req.ImageTag},
		Dockerfile:  filepath.ToSlash(dockerfile),
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ports.BuildResult{ExitCode: -1}, berrors.Cancelled(ctx.Err())
		}
		if client.IsErrConnectionFailed(err) {
			return ports.BuildResult{ExitCode: -1}, berrors.SpawnFailed("docker-api", err)
		}
		// The daemon rejected the request, e.g. an unparsable Dockerfile.
		sink(domain.LogChunk{Stream: "stderr", Text: err.Error()})
		return ports.BuildResult{ExitCode: 1}, nil
	}
	defer resp.Body.Close()

	// 3. Stream progress until the daemon closes the body
	res, err := decodeBuildStream(resp.Body, sink)
	if ctx.Err() != nil {
		return ports.BuildResult{ExitCode: -1}, berrors.Cancelled(ctx.Err())
	}
	if errors.Is(buildCtx.Err(), context.DeadlineExceeded) {
		sink(domain.LogChunk{Stream: "system", Text: fmt.Sprintf("build timed out after %s and was terminated", a.buildTimeout)})
		return ports.BuildResult{ExitCode: -1}, nil
	}
	if err != nil {
		sink(domain.LogChunk{Stream: "system", Text: "build stream interrupted: " + err.Error()})
		return ports.BuildResult{ExitCode: -1}, nil
	}
	return res, nil
}

// decodeBuildStream turns the daemon's JSON message stream into log chunks.
// The build failed iff the stream carries an error message.
func decodeBuildStream(r io.Reader, sink ports.LogSink) (ports.BuildResult, error) {
	dec := json.NewDecoder(r)
	res := ports.BuildResult{Success: true}
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return res, nil
			}
			return ports.BuildResult{ExitCode: -1}, err
		}
		switch {
		case msg.Error != nil:
			res.Success = false
			res.ExitCode = msg.Error.Code
			if res.ExitCode == 0 {
				res.ExitCode = 1
			}
			sink(domain.LogChunk{Stream: "stderr", Text: msg.Error.Message})
		case msg.Stream != "":
			for _, line := range strings.Split(strings.TrimRight(msg.Stream, "\n"), "\n") {
				sink(domain.LogChunk{Stream: "stdout", Text: line})
			}
		case msg.Status != "":
			text := msg.Status
			if msg.ID != "" {
				text = msg.ID + ": " + text
			}
			sink(domain.LogChunk{Stream: "stdout", Text: text})
		}
	}
}
