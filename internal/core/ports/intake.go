package ports

import (
	"context"

	"github.com/melih/lighthouse-autobuild/internal/core/domain"
)

// RepoRef points at a version-control repository.
type RepoRef struct {
	URL string
	Ref string // branch or tag; empty for the default branch
}

// ProjectSource fetches a project snapshot from a repository.
type ProjectSource interface {
	Fetch(ctx context.Context, ref RepoRef) ([]domain.ProjectFile, error)
}
