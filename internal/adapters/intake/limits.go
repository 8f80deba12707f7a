// Package intake turns uploads, directories and repositories into project
// file sets.
package intake

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/melih/lighthouse-autobuild/internal/config"
	"github.com/melih/lighthouse-autobuild/internal/core/domain"
	berrors "github.com/melih/lighthouse-autobuild/internal/errors"
)

// Limits bounds what intake accepts. Zero values disable a limit.
type Limits struct {
	MaxFiles     int
	MaxFileBytes int64
	Ignore       []string // doublestar patterns over slash-separated paths
}

// LimitsFromConfig builds Limits from the intake config section.
func LimitsFromConfig(cfg config.IntakeConfig) Limits {
	return Limits{MaxFiles: cfg.MaxFiles, MaxFileBytes: cfg.MaxFileBytes, Ignore: cfg.Ignore}
}

// Ignored reports whether rel matches an ignore pattern.
func (l Limits) Ignored(rel string) bool {
	for _, p := range l.Ignore {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// prunes reports whether a directory's whole subtree is ignored, i.e. a
// pattern "<dir>/**" matches it.
func (l Limits) prunes(dir string) bool {
	for _, p := range l.Ignore {
		base, ok := strings.CutSuffix(p, "/**")
		if !ok {
			continue
		}
		if m, _ := doublestar.Match(base, dir); m {
			return true
		}
	}
	return false
}

// Apply validates files, drops ignored entries and enforces the limits.
func (l Limits) Apply(files []domain.ProjectFile) ([]domain.ProjectFile, error) {
	if err := domain.ValidateFiles(files); err != nil {
		return nil, berrors.IntakeFailed("files", err)
	}
	out := make([]domain.ProjectFile, 0, len(files))
	for _, f := range files {
		if l.Ignored(f.Path) {
			continue
		}
		if l.MaxFileBytes > 0 && int64(len(f.Content)) > l.MaxFileBytes {
			return nil, berrors.IntakeFailed("files", fmt.Errorf("file %q exceeds %d bytes", f.Path, l.MaxFileBytes))
		}
		out = append(out, f)
	}
	if l.MaxFiles > 0 && len(out) > l.MaxFiles {
		return nil, berrors.IntakeFailed("files", fmt.Errorf("project has %d files, limit is %d", len(out), l.MaxFiles))
	}
	return out, nil
}
