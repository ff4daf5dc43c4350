package utils

import "path/filepath"

// ResolvePaths rewrites each non-empty relative path to be relative to
// baseDir. Absolute and empty paths are left unchanged.
func ResolvePaths(baseDir string, paths ...*string) {
	for _, p := range paths {
		if p == nil || *p == "" || filepath.IsAbs(*p) {
			continue
		}
		*p = filepath.Join(baseDir, *p)
	}
}
