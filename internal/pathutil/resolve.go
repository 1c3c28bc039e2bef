// Package pathutil resolves local filesystem paths given on the command line.
package pathutil

import (
	"os"
	"path/filepath"

	"github.com/matflow/matflow-cli/internal/config"
)

// ResolveAbsolutePath expands ~, makes path absolute and resolves symlinks
// in the part of it that exists. Missing trailing components are kept, so
// an output directory that is about to be created resolves too. The empty
// path is the working directory.
func ResolveAbsolutePath(path string) (string, error) {
	if path == "" {
		return os.Getwd()
	}

	absPath, err := filepath.Abs(config.ExpandHome(path))
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved, nil
	}

	existing := absPath
	var missing []string
	for {
		if _, err := os.Stat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return absPath, nil
		}
		missing = append([]string{filepath.Base(existing)}, missing...)
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		resolved = existing
	}
	return filepath.Join(append([]string{resolved}, missing...)...), nil
}
