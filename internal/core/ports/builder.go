package ports

import (
	"context"

	"github.com/melih/lighthouse-autobuild/internal/core/domain"
)

// BuildRequest names the staged inputs of one container build.
type BuildRequest struct {
	DefinitionPath string
	ContextPath    string
	ImageTag       string
}

// BuildResult is the terminal state of one build invocation.
type BuildResult struct {
	Success  bool
	ExitCode int
}

// LogSink receives build output as it arrives. Implementations of BuildInvoker
// serialise calls, so a sink need not be safe for concurrent use.
type LogSink func(chunk domain.LogChunk)

// BuildInvoker runs exactly one container build per call. A failing build is
// reported through BuildResult; the error is reserved for infrastructure
// failures (the tool could not be started, the session was cancelled).
// Implementations never retry.
type BuildInvoker interface {
	Invoke(ctx context.Context, req BuildRequest, sink LogSink) (BuildResult, error)
}
