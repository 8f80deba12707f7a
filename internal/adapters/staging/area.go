// Package staging materialises projects into per-attempt build directories.
package staging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/melih/lighthouse-autobuild/internal/core/dockerfile"
	"github.com/melih/lighthouse-autobuild/internal/core/domain"
	"github.com/melih/lighthouse-autobuild/internal/core/ports"
	berrors "github.com/melih/lighthouse-autobuild/internal/errors"
	"github.com/melih/lighthouse-autobuild/internal/logfields"
)

// dirPattern names staging directories. It must not match the clone
// directories intake creates under the same root ("autobuild-clone-*").
const dirPattern = "autobuild-stage-*"

// Area allocates staging directories below a root directory.
type Area struct {
	root   string
	logger *slog.Logger
	now    func() time.Time
}

// NewArea prepares root (the system temp dir when empty).
func NewArea(root string, logger *slog.Logger) (*Area, error) {
	if root == "" {
		root = os.TempDir()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, berrors.StagingFailed("resolve root", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, berrors.StagingFailed("create root", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Area{
		root:   abs,
		logger: logger.With(logfields.Component("staging")),
		now:    time.Now,
	}, nil
}

// Root returns the directory holding staged builds.
func (a *Area) Root() string { return a.root }

// Stage writes files and the definition into a fresh directory. The
// definition replaces any project file named like ports.DefinitionFile.
// On error nothing is left behind.
func (a *Area) Stage(files []domain.ProjectFile, definition string) (string, error) {
	dir, err := os.MkdirTemp(a.root, dirPattern)
	if err != nil {
		return "", berrors.StagingFailed("allocate", err)
	}
	if err := a.populate(dir, files, definition); err != nil {
		if rerr := os.RemoveAll(dir); rerr != nil {
			a.logger.Warn("failed to remove partial staging directory", logfields.Path(dir), logfields.Error(rerr))
		}
		return "", err
	}
	a.logger.Debug("project staged", logfields.Path(dir), slog.Int("files", len(files)))
	return dir, nil
}

func (a *Area) populate(dir string, files []domain.ProjectFile, definition string) error {
	for _, f := range files {
		target, err := resolve(dir, f.Path)
		if err != nil {
			return err
		}
		if f.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return berrors.StagingFailed("mkdir", err).WithContext("path", f.Path)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return berrors.StagingFailed("mkdir", err).WithContext("path", f.Path)
		}
		if err := os.WriteFile(target, f.Content, 0o644); err != nil {
			return berrors.StagingFailed("write", err).WithContext("path", f.Path)
		}
	}

	def := filepath.Join(dir, ports.DefinitionFile)
	if err := os.WriteFile(def, []byte(dockerfile.StripFences(definition)), 0o644); err != nil {
		return berrors.StagingFailed("write definition", err)
	}
	return nil
}

// resolve maps a relative project path into dir, rejecting escapes.
func resolve(dir, rel string) (string, error) {
	native := filepath.FromSlash(rel)
	if rel == "" || !filepath.IsLocal(native) {
		return "", berrors.PathEscape(rel)
	}
	target, err := securejoin.SecureJoin(dir, native)
	if err != nil {
		return "", berrors.StagingFailed("resolve", err).WithContext("path", rel)
	}
	if target == dir || !strings.HasPrefix(target, dir+string(filepath.Separator)) {
		return "", berrors.PathEscape(rel)
	}
	return target, nil
}

// Cleanup removes a directory previously returned by Stage.
func (a *Area) Cleanup(dir string) error {
	if !a.owns(dir) {
		return berrors.PathEscape(dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return berrors.StagingFailed("cleanup", err).WithContext("path", dir)
	}
	return nil
}

func (a *Area) owns(dir string) bool {
	if filepath.Dir(filepath.Clean(dir)) != a.root {
		return false
	}
	ok, _ := filepath.Match(dirPattern, filepath.Base(dir))
	return ok
}

// Sweep removes staging directories older than maxAge, e.g. left behind by
// a crashed process. It returns how many were removed.
func (a *Area) Sweep(maxAge time.Duration) (int, error) {
	matches, err := filepath.Glob(filepath.Join(a.root, dirPattern))
	if err != nil {
		return 0, fmt.Errorf("list staging directories: %w", err)
	}
	cutoff := a.now().Add(-maxAge)
	removed := 0
	for _, dir := range matches {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			a.logger.Warn("failed to sweep staging directory", logfields.Path(dir), logfields.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
