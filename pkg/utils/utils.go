package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetFullDevPath will return full path with `/dev/` prefix
func GetFullDevPath(shortPath string) string {
	if shortPath == "" {
		return ""
	}
	if filepath.IsAbs(shortPath) {
		return shortPath
	}
	return fmt.Sprintf("/dev/%s", shortPath)
}

// ResolveLink returns the path a symlink finally points at. Dangling links
// are resolved lexically so that stale links to vanished device nodes can
// still be attributed to their disk.
func ResolveLink(path string) (string, error) {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real, nil
	}
	target, err := os.Readlink(path)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	return filepath.Clean(target), nil
}

// SameDevice reports whether two device paths name the same node once
// symlinks such as /dev/disk/by-id entries are followed.
func SameDevice(a, b string) bool {
	if a == b {
		return true
	}
	ra, err := filepath.EvalSymlinks(a)
	if err != nil {
		return false
	}
	rb, err := filepath.EvalSymlinks(b)
	if err != nil {
		return false
	}
	return ra == rb
}
