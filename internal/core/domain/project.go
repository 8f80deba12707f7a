package domain

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// FileKind distinguishes regular files from explicit directory entries.
type FileKind string

const (
	KindFile      FileKind = "file"
	KindDirectory FileKind = "directory"
)

// ProjectFile is one entry of a caller-supplied project snapshot. It is never
// mutated by the build pipeline, only copied into staging.
type ProjectFile struct {
	Path    string   `json:"path"` // relative, slash-separated
	Content []byte   `json:"content,omitempty"`
	Kind    FileKind `json:"kind"`
}

// IsDir reports whether the entry is a directory.
func (f ProjectFile) IsDir() bool {
	return f.Kind == KindDirectory
}

// ValidateFiles rejects empty, absolute, non-canonical or duplicate paths.
func ValidateFiles(files []ProjectFile) error {
	seen := make(map[string]struct{}, len(files))
	for i, f := range files {
		p := f.Path
		switch {
		case strings.TrimSpace(p) == "":
			return fmt.Errorf("file %d: empty path", i)
		case strings.HasPrefix(p, "/") || strings.Contains(p, `\`):
			return fmt.Errorf("file %q: path must be relative and slash-separated", p)
		case path.Clean(p) != p || p == "." || p == ".." || strings.HasPrefix(p, "../"):
			return fmt.Errorf("file %q: path must be clean and stay inside the project", p)
		}
		switch f.Kind {
		case KindFile, KindDirectory, "":
		default:
			return fmt.Errorf("file %q: unknown kind %q", p, f.Kind)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("file %q: duplicate path", p)
		}
		seen[p] = struct{}{}
	}
	return nil
}

// Manifest returns the sorted file paths of a project (directories excluded).
func Manifest(files []ProjectFile) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		out = append(out, f.Path)
	}
	sort.Strings(out)
	return out
}
