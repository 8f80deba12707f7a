package ports

import (
	"context"

	"github.com/melih/lighthouse-autobuild/internal/core/domain"
)

// Prober verifies that the container build tool is installed and its daemon
// reachable. It must be cheap and bounded by short timeouts.
type Prober interface {
	Probe(ctx context.Context) error
}

// DefinitionFile is the well-known name of the build definition inside a
// staged directory.
const DefinitionFile = "Dockerfile"

// Stager materialises a project plus a build definition into a fresh,
// isolated directory for a single build attempt.
type Stager interface {
	Stage(files []domain.ProjectFile, definition string) (string, error)
	Cleanup(dir string) error
}
