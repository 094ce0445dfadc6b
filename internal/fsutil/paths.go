package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNotDirectory      = errors.New("not a directory")
	ErrAbsoluteExclusion = errors.New("exclusion must be relative to the root")
	ErrEscapingExclusion = errors.New("exclusion escapes the root")
)

// ResolveRoot returns the absolute, symlink-free form of root and verifies
// that it is a directory.
func ResolveRoot(root string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", errors.New("root path is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: %w", resolved, ErrNotDirectory)
	}
	return resolved, nil
}

// ResolveExclusions joins each relative exclusion onto root. Entries that
// name the root itself are returned in skipped; blank entries are ignored.
func ResolveExclusions(root string, relative []string) (resolved map[string]struct{}, skipped []string, err error) {
	resolved = make(map[string]struct{}, len(relative))
	for _, value := range relative {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		native := filepath.FromSlash(trimmed)
		if filepath.IsAbs(native) || filepath.VolumeName(native) != "" {
			return nil, nil, fmt.Errorf("%q: %w", value, ErrAbsoluteExclusion)
		}
		cleaned := filepath.Clean(native)
		if cleaned == "." {
			skipped = append(skipped, value)
			continue
		}
		if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
			return nil, nil, fmt.Errorf("%q: %w", value, ErrEscapingExclusion)
		}
		resolved[filepath.Join(root, cleaned)] = struct{}{}
	}
	return resolved, skipped, nil
}

// IsWithin reports whether child is parent or lies below it, comparing
// whole path segments.
func IsWithin(parent, child string) bool {
	parentPath := filepath.Clean(parent)
	childPath := filepath.Clean(child)
	rel, err := filepath.Rel(parentPath, childPath)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}
