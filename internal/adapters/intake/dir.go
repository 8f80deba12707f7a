package intake

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/melih/lighthouse-autobuild/internal/core/domain"
	berrors "github.com/melih/lighthouse-autobuild/internal/errors"
	"github.com/melih/lighthouse-autobuild/internal/logfields"
)

// LoadDir reads the regular files below root. Symlinks and other special
// files are skipped, as are files over the size limit.
func LoadDir(root string, limits Limits, logger *slog.Logger) ([]domain.ProjectFile, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var files []domain.ProjectFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if limits.prunes(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || limits.Ignored(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if limits.MaxFileBytes > 0 && info.Size() > limits.MaxFileBytes {
			logger.Warn("skipping oversized file", logfields.Path(rel), slog.Int64("bytes", info.Size()))
			return nil
		}
		if limits.MaxFiles > 0 && len(files) >= limits.MaxFiles {
			return fmt.Errorf("project has more than %d files", limits.MaxFiles)
		}
		// #nosec G304 -- path comes from walking root.
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, domain.ProjectFile{Path: rel, Content: content, Kind: domain.KindFile})
		return nil
	})
	if err != nil {
		return nil, berrors.IntakeFailed(root, err)
	}
	return files, nil
}
