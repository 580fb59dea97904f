package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Discover lists the regular files under root that match an include pattern
// and no exclude pattern, in lexical order. Patterns are doublestar globs
// relative to root; no include patterns means every file. A root that is
// itself a file is returned as is.
func Discover(root string, include, exclude []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	for _, p := range append(append([]string{}, include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid discovery pattern: %s", p)
		}
	}
	if len(include) == 0 {
		include = []string{"**"}
	}

	fsys := os.DirFS(root)
	seen := make(map[string]bool)
	var paths []string

	for _, pattern := range include {
		err := doublestar.GlobWalk(fsys, pattern, func(rel string, d fs.DirEntry) error {
			if !d.Type().IsRegular() || seen[rel] || excluded(rel, exclude) {
				return nil
			}
			seen[rel] = true
			paths = append(paths, filepath.Join(root, filepath.FromSlash(rel)))
			return nil
		}, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", root, err)
		}
	}

	sort.Strings(paths)
	return paths, nil
}

func excluded(rel string, exclude []string) bool {
	for _, p := range exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
