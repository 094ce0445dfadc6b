package watcher

import (
	"path/filepath"

	"gitwatch/internal/fsutil"
)

// IsMetadataDir reports whether dir is the metadata directory under root or
// lies below it. Comparison is by whole path segments, so siblings such as
// ".git-backup" are not metadata.
func IsMetadataDir(root, metadataDir, dir string) bool {
	if metadataDir == "" {
		metadataDir = DefaultMetadataDir
	}
	metaPath := metadataDir
	if !filepath.IsAbs(metaPath) {
		metaPath = filepath.Join(root, metadataDir)
	}
	return fsutil.IsWithin(metaPath, dir)
}
