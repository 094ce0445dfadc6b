package git

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func mkdirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, dir := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(dir)), 0o755))
	}
}

func TestIgnoredDirsFromGitignore(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, ".git", "src", "vendor/lib", "build/out", "src/node_modules/pkg")
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("vendor/\nbuild\n*.log\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", ".gitignore"), []byte("node_modules/\n"), 0o644))

	dirs, err := IgnoredDirs(root, "")
	require.NoError(t, err)
	require.Equal(t, []string{"build", "src/node_modules", "vendor"}, dirs)
}

func TestIgnoredDirsReadsInfoExclude(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, ".git/info", "cache", "src")
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "info", "exclude"), []byte("# local\n\ncache/\n"), 0o644))

	dirs, err := IgnoredDirs(root, ".git")
	require.NoError(t, err)
	require.Equal(t, []string{"cache"}, dirs)
}

func TestIgnoredDirsNoRules(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "a/b")

	dirs, err := IgnoredDirs(root, "")
	require.NoError(t, err)
	require.Empty(t, dirs)
}

func TestIgnoredDirsSkipsMetadataDir(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, ".git/objects")
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("objects/\n"), 0o644))

	dirs, err := IgnoredDirs(root, "")
	require.NoError(t, err)
	require.Empty(t, dirs)
}
