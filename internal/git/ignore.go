package git

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// IgnoredDirs lists directories under root that the repository's ignore
// rules exclude, as slash-separated paths relative to root. Descendants of
// an ignored directory are not listed; the metadata directory never is.
func IgnoredDirs(root, metadataDir string) ([]string, error) {
	if metadataDir == "" {
		metadataDir = DefaultMetadataDir
	}
	patterns, err := gitignore.ReadPatterns(osfs.New(root), nil)
	if err != nil {
		return nil, err
	}
	patterns = append(patterns, readExcludeFile(filepath.Join(root, metadataDir, "info", "exclude"))...)
	if len(patterns) == 0 {
		return nil, nil
	}
	matcher := gitignore.NewMatcher(patterns)
	metaPath := filepath.Join(root, metadataDir)

	var ignored []string
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !entry.IsDir() || path == root {
			return nil
		}
		if path == metaPath {
			return filepath.SkipDir
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		segments := strings.Split(filepath.ToSlash(rel), "/")
		if matcher.Match(segments, true) {
			ignored = append(ignored, filepath.ToSlash(rel))
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ignored)
	return ignored, nil
}

func readExcludeFile(path string) []gitignore.Pattern {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	var patterns []gitignore.Pattern
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return patterns
}
