package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// EnumerateFiles lists the regular files under root as absolute paths. With
// recurse it walks the whole tree; without it only root's direct entries are
// returned. Symbolic links are never followed, so link cycles cannot loop
// the walk. An empty directory yields an empty slice, not an error.
func EnumerateFiles(root string, recurse bool) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", absRoot)
	}

	var paths []string

	if !recurse {
		entries, err := os.ReadDir(absRoot)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", absRoot, err)
		}
		for _, entry := range entries {
			if entry.Type().IsRegular() {
				paths = append(paths, filepath.Join(absRoot, entry.Name()))
			}
		}
		sort.Strings(paths)
		return paths, nil
	}

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A subdirectory vanishing mid-walk is not worth aborting the
			// whole discovery.
			if path == absRoot {
				return err
			}
			return nil
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", absRoot, err)
	}

	sort.Strings(paths)
	return paths, nil
}
