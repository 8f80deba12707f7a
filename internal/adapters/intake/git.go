package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/melih/lighthouse-autobuild/internal/core/domain"
	"github.com/melih/lighthouse-autobuild/internal/core/ports"
	berrors "github.com/melih/lighthouse-autobuild/internal/errors"
	"github.com/melih/lighthouse-autobuild/internal/logfields"
)

// GitSource fetches projects with a shallow clone.
type GitSource struct {
	workDir string
	timeout time.Duration
	limits  Limits
	logger  *slog.Logger
}

// NewGitSource clones into temporary directories below workDir (the system
// temp dir when empty).
func NewGitSource(workDir string, timeout time.Duration, limits Limits, logger *slog.Logger) *GitSource {
	if logger == nil {
		logger = slog.Default()
	}
	limits.Ignore = append([]string{".git/**"}, limits.Ignore...)
	return &GitSource{
		workDir: workDir,
		timeout: timeout,
		limits:  limits,
		logger:  logger.With(logfields.Component("intake")),
	}
}

// Fetch clones ref and returns the files of its working tree.
func (s *GitSource) Fetch(ctx context.Context, ref ports.RepoRef) ([]domain.ProjectFile, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tmpDir, err := os.MkdirTemp(s.workDir, "autobuild-clone-*")
	if err != nil {
		return nil, berrors.IntakeFailed(ref.URL, fmt.Errorf("failed to create temp dir: %w", err))
	}
	defer os.RemoveAll(tmpDir)

	opts := &git.CloneOptions{
		URL:          ref.URL,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if isRemote(ref.URL) {
		opts.Depth = 1
	}
	if ref.Ref != "" {
		opts.ReferenceName = referenceName(ref.Ref)
	}

	s.logger.Info("cloning repository", logfields.Repository(ref.URL), slog.String("ref", ref.Ref))
	repo, err := git.PlainCloneContext(ctx, tmpDir, false, opts)
	if err != nil && ref.Ref != "" && !strings.HasPrefix(ref.Ref, "refs/") && isMissingRef(err) {
		// not a branch; retry as a tag
		_ = os.RemoveAll(tmpDir)
		if err = os.MkdirAll(tmpDir, 0o755); err == nil {
			opts.ReferenceName = plumbing.NewTagReferenceName(ref.Ref)
			repo, err = git.PlainCloneContext(ctx, tmpDir, false, opts)
		}
	}
	if err != nil {
		return nil, berrors.CloneFailed(ref.URL, err)
	}
	if head, herr := repo.Head(); herr == nil {
		s.logger.Info("repository cloned", logfields.Repository(ref.URL), slog.String("commit", head.Hash().String()[:8]))
	}

	return LoadDir(tmpDir, s.limits, s.logger)
}

func isMissingRef(err error) bool {
	var noMatch git.NoMatchingRefSpecError
	return errors.As(err, &noMatch) || errors.Is(err, plumbing.ErrReferenceNotFound)
}

func referenceName(ref string) plumbing.ReferenceName {
	if strings.HasPrefix(ref, "refs/") {
		return plumbing.ReferenceName(ref)
	}
	return plumbing.NewBranchReferenceName(ref)
}

func isRemote(raw string) bool {
	return (strings.Contains(raw, "://") && !strings.HasPrefix(raw, "file://")) || strings.HasPrefix(raw, "git@")
}

var shorthandRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// NormalizeRepoURL accepts "owner/repo", "github.com/owner/repo" or a full
// https or ssh URL. Local paths and file URLs are rejected.
func NormalizeRepoURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return "", berrors.ValidationFailed("repo_url", "repository URL is required")
	case shorthandRe.MatchString(raw):
		return "https://github.com/" + strings.TrimSuffix(raw, ".git") + ".git", nil
	case strings.HasPrefix(raw, "github.com/"):
		return "https://" + raw, nil
	case strings.HasPrefix(raw, "git@"):
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", berrors.ValidationFailed("repo_url", "not a repository URL")
	}
	switch u.Scheme {
	case "https", "http", "ssh":
		return raw, nil
	default:
		return "", berrors.ValidationFailed("repo_url", "unsupported scheme "+u.Scheme)
	}
}
